// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connection

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/store"
)

// StateNamespace is the store namespace holding the receiver state document.
const StateNamespace = "receiver_state"

// Controller owns the in-memory receiver state and its persistence. All
// mutations are serialized by the controller mutex, so a concurrent staged
// PATCH and an activation observe snapshot-isolated state.
type Controller struct {
	mu            sync.Mutex
	store         *store.Store
	defaultVolume int
	state         ReceiverState
	log           zerolog.Logger
}

// NewController loads the persisted receiver state, seeding defaults on an
// empty store.
func NewController(st *store.Store, defaultVolume int) (*Controller, error) {
	c := &Controller{
		store:         st,
		defaultVolume: defaultVolume,
		log:           xglog.WithComponent("connection"),
	}
	var loaded ReceiverState
	found, err := st.ReadNamespaceInto(StateNamespace, &loaded)
	if err != nil {
		return nil, err
	}
	if !found {
		staged := DefaultStaged(defaultVolume)
		loaded = ReceiverState{
			Staged:     staged,
			Active:     staged.Clone(),
			SinkActive: false,
		}
		if err := st.WriteNamespace(StateNamespace, loaded); err != nil {
			return nil, err
		}
		c.log.Info().
			Str(xglog.FieldEvent, "state.seeded").
			Msg("seeded receiver state with defaults")
	}
	c.state = loaded
	return c, nil
}

// Snapshot returns a deep copy of the current receiver state.
func (c *Controller) Snapshot() ReceiverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SinkActive reports whether the last committed activation left the sink
// enabled.
func (c *Controller) SinkActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SinkActive
}

// UpdateStaged merges a shallow patch into the staged state, validates the
// result, persists, and returns the new state.
func (c *Controller) UpdateStaged(patch map[string]json.RawMessage) (ReceiverState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	staged, err := applyPatch(c.state.Staged, patch, c.defaultVolume)
	if err != nil {
		return ReceiverState{}, err
	}
	c.state.Staged = staged
	if err := c.persist(); err != nil {
		return ReceiverState{}, err
	}
	return c.state.Clone(), nil
}

// CommitActivation assigns active from staged, stamps the activation time,
// records the sink outcome, and persists.
func (c *Controller) CommitActivation(sinkActive bool) (ReceiverState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Active = c.state.Staged.Clone()
	now := time.Now().UTC().Format(time.RFC3339)
	c.state.LastActivated = &now
	c.state.SinkActive = sinkActive
	if err := c.persist(); err != nil {
		return ReceiverState{}, err
	}
	return c.state.Clone(), nil
}

func (c *Controller) persist() error {
	return c.store.WriteNamespace(StateNamespace, c.state)
}
