// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/aes67d"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/config"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/connection"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/store"
)

type nopLoop struct {
	mu      sync.Mutex
	running bool
}

func (l *nopLoop) EnsureRunning(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = true
	return nil
}

func (l *nopLoop) Stop(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	return nil
}

type nopMixer struct{}

func (nopMixer) SetVolume(context.Context, int) error { return nil }
func (nopMixer) SetMute(context.Context, bool) error  { return nil }

// fakeDaemon is a minimal aes67-linux-daemon stand-in.
type fakeDaemon struct {
	mu        sync.Mutex
	sinkSDPs  []string
	deletes   int
	rejectPUT bool
}

func (f *fakeDaemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/sink/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.rejectPUT {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("sink busy"))
			return
		}
		var payload struct {
			UseSDP bool   `json:"use_sdp"`
			SDP    string `json:"sdp"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.UseSDP {
			f.sinkSDPs = append(f.sinkSDPs, payload.SDP)
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /api/sink/{id}", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deletes++
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/ptp/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "locked", "gmid": "00-1d-c1-ff-fe-12-34-56"}`))
	})
	mux.HandleFunc("GET /api/config", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	return mux
}

type testNode struct {
	srv      *httptest.Server
	daemon   *fakeDaemon
	loop     *nopLoop
	identity store.Identity
	ctrl     *connection.Controller
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	daemon := &fakeDaemon{}
	daemonSrv := httptest.NewServer(daemon.handler())
	t.Cleanup(daemonSrv.Close)

	st, err := store.New(filepath.Join(t.TempDir(), "runtime.json"))
	require.NoError(t, err)
	identity, err := store.EnsureIdentity(st)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Daemon.BaseURL = daemonSrv.URL
	client := aes67d.New(daemonSrv.URL, 0, aes67d.Options{})

	ctrl, err := connection.NewController(st, cfg.Audio.DefaultVolume)
	require.NoError(t, err)
	loop := &nopLoop{}
	activator := connection.NewActivator(ctrl, client, loop, nopMixer{}, cfg.ReceiverFriendlyName)

	srv := httptest.NewServer(New(cfg, identity, ctrl, activator, client).Handler())
	t.Cleanup(srv.Close)

	return &testNode{srv: srv, daemon: daemon, loop: loop, identity: identity, ctrl: ctrl}
}

func (n *testNode) request(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, n.srv.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (n *testNode) getJSON(t *testing.T, path string, dest any) int {
	t.Helper()
	code, data := n.request(t, http.MethodGet, path, "")
	if dest != nil && code == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, dest))
	}
	return code
}

func TestNodeAPIBase(t *testing.T) {
	n := newTestNode(t)
	var base []string
	code := n.getJSON(t, "/x-nmos/node/v1.3/", &base)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"self/", "sources/", "flows/", "devices/", "senders/", "receivers/"}, base)
}

func TestNodeAPIUnsupportedVersion(t *testing.T) {
	n := newTestNode(t)
	code, data := n.request(t, http.MethodGet, "/x-nmos/node/v9.9/self", "")
	require.Equal(t, http.StatusNotFound, code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.EqualValues(t, 404, body["code"])
	assert.Contains(t, body, "error")
	assert.Contains(t, body, "debug")
}

func TestNodeAPISelf(t *testing.T) {
	n := newTestNode(t)
	var node map[string]any
	code := n.getJSON(t, "/x-nmos/node/v1.3/self", &node)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, n.identity.NodeID, node["id"])
	assert.Regexp(t, `^[0-9]+:[0-9]+$`, node["version"])

	clocks, ok := node["clocks"].([]any)
	require.True(t, ok)
	require.Len(t, clocks, 1)
	clock := clocks[0].(map[string]any)
	assert.Equal(t, "clk0", clock["name"])
	assert.Equal(t, true, clock["locked"], "clock reflects the live daemon PTP lock")
	assert.Equal(t, "00-1d-c1-ff-fe-12-34-56", clock["gmid"])
}

func TestNodeAPIDevicesAndReceivers(t *testing.T) {
	n := newTestNode(t)

	var devices []map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/node/v1.3/devices", &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, n.identity.DeviceID, devices[0]["id"])

	var device map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/node/v1.3/devices/"+n.identity.DeviceID, &device))
	assert.Equal(t, n.identity.DeviceID, device["id"])
	assert.Equal(t, http.StatusNotFound, n.getJSON(t, "/x-nmos/node/v1.3/devices/unknown", nil))

	var receiver map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/node/v1.3/receivers/"+n.identity.ReceiverID, &receiver))
	sub := receiver["subscription"].(map[string]any)
	assert.Equal(t, false, sub["active"])
	assert.Nil(t, sub["sender_id"])
}

func TestNodeAPIEmptyCollections(t *testing.T) {
	n := newTestNode(t)
	for _, collection := range []string{"sources", "flows", "senders"} {
		var list []any
		require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/node/v1.3/"+collection, &list))
		assert.Empty(t, list)
		assert.Equal(t, http.StatusNotFound, n.getJSON(t, "/x-nmos/node/v1.3/"+collection+"/some-id", nil))
	}
}

func TestNodeAPIReceiverTarget(t *testing.T) {
	n := newTestNode(t)
	path := "/x-nmos/node/v1.3/receivers/" + n.identity.ReceiverID + "/target"

	code, data := n.request(t, http.MethodOptions, path, "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{}`, string(data))

	code, _ = n.request(t, http.MethodPut, path, `{"id": null}`)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestConnectionTraversal(t *testing.T) {
	n := newTestNode(t)

	var base []string
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/connection/v1.3/", &base))
	assert.Equal(t, []string{"bulk/", "single/"}, base)

	var receivers []string
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/connection/v1.3/single/receivers", &receivers))
	assert.Equal(t, []string{n.identity.ReceiverID + "/"}, receivers)

	var endpoints []string
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/connection/v1.3/single/receivers/"+n.identity.ReceiverID+"/", &endpoints))
	assert.Equal(t, []string{"constraints/", "staged/", "active/", "transporttype/"}, endpoints)
}

func TestConnectionConstraints(t *testing.T) {
	n := newTestNode(t)
	var caps map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/connection/v1.3/single/receivers/"+n.identity.ReceiverID+"/constraints", &caps))
	assert.Equal(t, []any{float64(48000)}, caps["sample_rates"])
	assert.Equal(t, []any{float64(1)}, caps["channels"])
	assert.Equal(t, []any{"L24"}, caps["encodings"])
	assert.Equal(t, []any{"multicast", "unicast"}, caps["destination_modes"])
}

func TestConnectionTransportType(t *testing.T) {
	n := newTestNode(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/connection/v1.3/single/receivers/"+n.identity.ReceiverID+"/transporttype", &body))
	assert.Equal(t, "urn:x-nmos:transport:rtp.mcast", body["type"])
}

func TestConnectionUnknownReceiver(t *testing.T) {
	n := newTestNode(t)
	assert.Equal(t, http.StatusNotFound, n.getJSON(t, "/x-nmos/connection/v1.3/single/receivers/not-the-receiver/staged", nil))
}

func TestPatchStagedAndActivate(t *testing.T) {
	n := newTestNode(t)
	base := "/x-nmos/connection/v1.3/single/receivers/" + n.identity.ReceiverID

	code, data := n.request(t, http.MethodPatch, base+"/staged", `{
		"master_enable": true,
		"transport_params": [{
			"destination_ip": "239.1.2.3", "destination_port": 5004, "ttl": 32,
			"sample_rate": 48000, "encoding_name": "L24", "payload_type": 97
		}],
		"audio": {"volume": 50, "mute": false}
	}`)
	require.Equal(t, http.StatusOK, code, string(data))

	code, data = n.request(t, http.MethodPost, base+"/staged/activation", "")
	require.Equal(t, http.StatusAccepted, code, string(data))
	assert.JSONEq(t, `{"state": "connected"}`, string(data))

	n.daemon.mu.Lock()
	require.Len(t, n.daemon.sinkSDPs, 1)
	sdpDoc := n.daemon.sinkSDPs[0]
	n.daemon.mu.Unlock()
	assert.Contains(t, sdpDoc, "c=IN IP4 239.1.2.3/32\r\n")
	assert.Contains(t, sdpDoc, "m=audio 5004 RTP/AVP 97\r\n")
	assert.Contains(t, sdpDoc, "a=rtpmap:97 L24/48000/1\r\n")

	// active == staged after the commit
	var staged, active map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, base+"/staged", &staged))
	require.Equal(t, http.StatusOK, n.getJSON(t, base+"/active", &active))
	assert.Equal(t, staged, active)

	// Node API reflects the sink state.
	var receiver map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, "/x-nmos/node/v1.3/receivers/"+n.identity.ReceiverID, &receiver))
	assert.Equal(t, true, receiver["subscription"].(map[string]any)["active"])
}

func TestDeactivateViaAPI(t *testing.T) {
	n := newTestNode(t)
	base := "/x-nmos/connection/v1.3/single/receivers/" + n.identity.ReceiverID

	code, _ := n.request(t, http.MethodPatch, base+"/staged", `{"master_enable": true}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = n.request(t, http.MethodPost, base+"/staged/activation", "")
	require.Equal(t, http.StatusAccepted, code)

	code, _ = n.request(t, http.MethodPatch, base+"/staged", `{"master_enable": false}`)
	require.Equal(t, http.StatusOK, code)
	code, data := n.request(t, http.MethodPost, base+"/staged/activation", "")
	require.Equal(t, http.StatusAccepted, code)
	assert.JSONEq(t, `{"state": "disconnected"}`, string(data))

	n.daemon.mu.Lock()
	assert.Equal(t, 1, n.daemon.deletes)
	n.daemon.mu.Unlock()
	assert.False(t, n.ctrl.SinkActive())
}

func TestPatchStagedValidationError(t *testing.T) {
	n := newTestNode(t)
	base := "/x-nmos/connection/v1.3/single/receivers/" + n.identity.ReceiverID

	code, data := n.request(t, http.MethodPatch, base+"/staged", `{"transport_params": [{"destination_port": 99999}]}`)
	require.Equal(t, http.StatusBadRequest, code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.EqualValues(t, 400, body["code"])
}

func TestActivationDaemonRejection(t *testing.T) {
	n := newTestNode(t)
	base := "/x-nmos/connection/v1.3/single/receivers/" + n.identity.ReceiverID

	code, _ := n.request(t, http.MethodPatch, base+"/staged", `{"master_enable": true}`)
	require.Equal(t, http.StatusOK, code)

	n.daemon.mu.Lock()
	n.daemon.rejectPUT = true
	n.daemon.mu.Unlock()

	code, data := n.request(t, http.MethodPost, base+"/staged/activation", "")
	require.Equal(t, http.StatusInternalServerError, code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "sink busy", body["debug"], "daemon body text surfaces in debug")
	assert.False(t, n.ctrl.SinkActive())
}

func TestScheduledActivationNotImplemented(t *testing.T) {
	n := newTestNode(t)
	base := "/x-nmos/connection/v1.3/single/receivers/" + n.identity.ReceiverID

	code, _ := n.request(t, http.MethodPatch, base+"/staged", `{"activation": {"mode": "activate_scheduled_relative"}}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = n.request(t, http.MethodPost, base+"/staged/activation", "")
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestBulkEndpoints(t *testing.T) {
	n := newTestNode(t)
	for _, collection := range []string{"senders", "receivers"} {
		path := "/x-nmos/connection/v1.3/bulk/" + collection
		code, _ := n.request(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, code)
		code, _ = n.request(t, http.MethodOptions, path, "")
		assert.Equal(t, http.StatusOK, code)
		code, _ = n.request(t, http.MethodPost, path, `[]`)
		assert.Equal(t, http.StatusNotImplemented, code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	n := newTestNode(t)

	var live map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, "/health/live", &live))
	assert.Equal(t, true, live["ok"])

	var ready map[string]any
	require.Equal(t, http.StatusOK, n.getJSON(t, "/health/ready", &ready))
	assert.Equal(t, true, ready["ok"])
	assert.Equal(t, true, ready["daemon_reachable"])
}

func TestMetricsExposed(t *testing.T) {
	n := newTestNode(t)
	code, data := n.request(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(data), "aes67_nmos_")
}
