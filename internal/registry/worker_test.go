// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/config"
)

type stubSink bool

func (s stubSink) SinkActive() bool { return bool(s) }

// mockRegistry is a scriptable IS-04 registration endpoint.
type mockRegistry struct {
	mu sync.Mutex

	// conflictOnce returns 409 for the first POST of this resource type.
	conflictOnce map[string]bool
	// heartbeatStatus is returned for health posts (default 200).
	heartbeatStatus int

	posts      []string // resource types posted, in order
	deletes    []string // collection/id paths deleted
	heartbeats int

	srv *httptest.Server
}

func newMockRegistry(t *testing.T) *mockRegistry {
	t.Helper()
	m := &mockRegistry{
		conflictOnce:    map[string]bool{},
		heartbeatStatus: http.StatusOK,
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockRegistry) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/resource":
		var envelope struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.posts = append(m.posts, envelope.Type)
		if m.conflictOnce[envelope.Type] {
			m.conflictOnce[envelope.Type] = false
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/resource/"):
		m.deletes = append(m.deletes, strings.TrimPrefix(r.URL.Path, "/resource/"))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/health/nodes/"):
		m.heartbeats++
		w.WriteHeader(m.heartbeatStatus)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *mockRegistry) setHeartbeatStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatStatus = code
}

func (m *mockRegistry) snapshot() (posts, deletes []string, heartbeats int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.posts...), append([]string(nil), m.deletes...), m.heartbeats
}

func newTestWorker(t *testing.T, reg *mockRegistry) *Worker {
	t.Helper()
	cfg := config.Default()
	cfg.Registry.Mode = "static"
	cfg.Registry.StaticURLs = []string{reg.srv.URL}
	cfg.Registry.HeartbeatInterval = 0.01

	w := NewWorker(cfg, testIdentity(), stubSink(false), nil)
	w.advertise = func(string) string { return "127.0.0.1" }
	return w
}

func TestRegisterAllResources(t *testing.T) {
	reg := newMockRegistry(t)
	w := newTestWorker(t, reg)

	w.tick(context.Background())

	posts, _, _ := reg.snapshot()
	assert.Equal(t, []string{"node", "device", "receiver"}, posts)
	assert.Equal(t, stateRegistered, w.state)
}

func TestConflictResolvedByDeleteAndRepost(t *testing.T) {
	reg := newMockRegistry(t)
	reg.conflictOnce["node"] = true
	w := newTestWorker(t, reg)

	w.tick(context.Background())

	posts, deletes, _ := reg.snapshot()
	assert.Equal(t, []string{"node", "node", "device", "receiver"}, posts)
	require.Len(t, deletes, 1)
	assert.Equal(t, "nodes/"+testIdentity().NodeID, deletes[0])
	assert.Equal(t, stateRegistered, w.state)
}

func TestHeartbeatKeepsRegistered(t *testing.T) {
	reg := newMockRegistry(t)
	w := newTestWorker(t, reg)

	w.tick(context.Background()) // register
	w.tick(context.Background()) // heartbeat
	w.tick(context.Background()) // heartbeat

	_, _, heartbeats := reg.snapshot()
	assert.Equal(t, 2, heartbeats)
	assert.Equal(t, stateRegistered, w.state)
}

func TestHeartbeat404TriggersReRegistration(t *testing.T) {
	reg := newMockRegistry(t)
	w := newTestWorker(t, reg)

	w.tick(context.Background()) // register
	reg.setHeartbeatStatus(http.StatusNotFound)
	w.tick(context.Background()) // heartbeat lost

	assert.Equal(t, stateUnregistered, w.state)
	assert.Nil(t, w.registry)

	reg.setHeartbeatStatus(http.StatusOK)
	w.tick(context.Background()) // re-discover and re-register

	posts, _, _ := reg.snapshot()
	assert.Equal(t, []string{"node", "device", "receiver", "node", "device", "receiver"}, posts)
	assert.Equal(t, stateRegistered, w.state)
}

func TestNetworkErrorRevertsToDiscovery(t *testing.T) {
	reg := newMockRegistry(t)
	w := newTestWorker(t, reg)
	reg.srv.Close()

	w.tick(context.Background())

	assert.Equal(t, stateUnregistered, w.state)
	assert.Nil(t, w.registry)
}

func TestRunDeregistersOnShutdown(t *testing.T) {
	reg := newMockRegistry(t)
	w := newTestWorker(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		posts, _, _ := reg.snapshot()
		return len(posts) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	_, deletes, _ := reg.snapshot()
	require.Len(t, deletes, 3)
	assert.Equal(t, "receivers/"+testIdentity().ReceiverID, deletes[0])
	assert.Equal(t, "devices/"+testIdentity().DeviceID, deletes[1])
	assert.Equal(t, "nodes/"+testIdentity().NodeID, deletes[2])

	reg.srv.Close()
	goleak.VerifyNone(t)
}

func TestStaticModeWithoutURLsErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Registry.Mode = "static"
	w := NewWorker(cfg, testIdentity(), stubSink(false), nil)

	_, err := w.discoverRegistry(context.Background())
	assert.Error(t, err)
}
