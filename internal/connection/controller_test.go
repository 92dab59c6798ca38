// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connection

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/store"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "runtime.json"))
	require.NoError(t, err)
	ctrl, err := NewController(st, 80)
	require.NoError(t, err)
	return ctrl
}

func rawPatch(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	patch := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal([]byte(body), &patch))
	return patch
}

func TestFreshStateDefaults(t *testing.T) {
	ctrl := newTestController(t)
	state := ctrl.Snapshot()

	assert.False(t, state.Staged.MasterEnable)
	assert.False(t, state.SinkActive)
	assert.Nil(t, state.LastActivated)
	require.Len(t, state.Staged.TransportParams, 1)

	tp := state.Staged.TransportParams[0]
	assert.Equal(t, "239.0.0.1", tp.DestinationIP)
	assert.Equal(t, 5004, tp.DestinationPort)
	assert.Equal(t, 64, tp.TTL)
	assert.Equal(t, 48000, tp.SampleRate)
	assert.Equal(t, "L24", tp.EncodingName)
	assert.Equal(t, 96, tp.PayloadType)
	assert.Equal(t, 80, state.Staged.Audio.Volume)
	assert.Equal(t, state.Staged, state.Active)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.json")
	st, err := store.New(path)
	require.NoError(t, err)
	ctrl, err := NewController(st, 50)
	require.NoError(t, err)

	_, err = ctrl.UpdateStaged(rawPatch(t, `{"master_enable": true}`))
	require.NoError(t, err)

	st2, err := store.New(path)
	require.NoError(t, err)
	ctrl2, err := NewController(st2, 50)
	require.NoError(t, err)
	assert.True(t, ctrl2.Snapshot().Staged.MasterEnable)
}

func TestUpdateStagedMergesTransportParams(t *testing.T) {
	ctrl := newTestController(t)
	state, err := ctrl.UpdateStaged(rawPatch(t, `{
		"master_enable": true,
		"transport_params": [{"destination_ip": "239.1.2.3", "ttl": 32, "payload_type": 97}]
	}`))
	require.NoError(t, err)

	tp := state.Staged.TransportParams[0]
	assert.Equal(t, "239.1.2.3", tp.DestinationIP)
	assert.Equal(t, 32, tp.TTL)
	assert.Equal(t, 97, tp.PayloadType)
	// Omitted fields fall back to schema defaults.
	assert.Equal(t, 5004, tp.DestinationPort)
	assert.Equal(t, "L24", tp.EncodingName)
	assert.True(t, state.Staged.MasterEnable)
	// Active is untouched until an activation commit.
	assert.False(t, state.Active.MasterEnable)
}

func TestUpdateStagedRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{"unknown top-level key", `{"bogus": 1}`},
		{"unknown transport field", `{"transport_params": [{"destination_ip": "239.0.0.1", "nonsense": 2}]}`},
		{"bad destination ip", `{"transport_params": [{"destination_ip": "not-an-ip"}]}`},
		{"port out of range", `{"transport_params": [{"destination_port": 70000}]}`},
		{"ttl out of range", `{"transport_params": [{"ttl": 0}]}`},
		{"sample rate out of range", `{"transport_params": [{"sample_rate": 4000}]}`},
		{"payload type out of range", `{"transport_params": [{"payload_type": 128}]}`},
		{"volume out of range", `{"audio": {"volume": 150}}`},
		{"two legs", `{"transport_params": [{}, {}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newTestController(t)
			before := ctrl.Snapshot()
			_, err := ctrl.UpdateStaged(rawPatch(t, tt.patch))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, before, ctrl.Snapshot(), "failed patch must not change state")
		})
	}
}

func TestCommitActivation(t *testing.T) {
	ctrl := newTestController(t)
	_, err := ctrl.UpdateStaged(rawPatch(t, `{"master_enable": true}`))
	require.NoError(t, err)

	state, err := ctrl.CommitActivation(true)
	require.NoError(t, err)

	assert.True(t, state.SinkActive)
	assert.Equal(t, state.Staged, state.Active)
	require.NotNil(t, state.LastActivated)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`, *state.LastActivated)
}

func TestSnapshotIsolation(t *testing.T) {
	ctrl := newTestController(t)
	snap := ctrl.Snapshot()
	snap.Staged.TransportParams[0].DestinationIP = "10.0.0.1"
	snap.Staged.MasterEnable = true

	assert.Equal(t, "239.0.0.1", ctrl.Snapshot().Staged.TransportParams[0].DestinationIP)
	assert.False(t, ctrl.Snapshot().Staged.MasterEnable)
}

func TestConcurrentPatchAndCommit(t *testing.T) {
	ctrl := newTestController(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctrl.UpdateStaged(rawPatch(t, `{"master_enable": true}`))
			assert.NoError(t, err)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctrl.CommitActivation(true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whatever the interleaving, active must equal a coherent staged value.
	state := ctrl.Snapshot()
	require.Len(t, state.Active.TransportParams, 1)
	assert.Equal(t, "239.0.0.1", state.Active.TransportParams[0].DestinationIP)
}
