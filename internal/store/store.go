// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists runtime state as a single JSON document split into
// named namespaces. Writes are atomic and durable: the whole document is
// serialized to a temp file, fsynced, and renamed over the target.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
)

// Store is a durable JSON store with namespacing semantics. All operations
// are serialized by a single mutex; an in-memory cache backs reads.
type Store struct {
	path   string
	mu     sync.Mutex
	cache  map[string]json.RawMessage // nil until first load
	logger zerolog.Logger
}

// New creates a store backed by the given file path. The parent directory is
// created if missing.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", dir, err)
		}
	}
	return &Store{
		path:   path,
		logger: xglog.WithComponent("store"),
	}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// load populates the cache from disk. A corrupt document is renamed to a
// .corrupt sibling and the store starts from empty rather than crashing the
// node. Callers must hold s.mu.
func (s *Store) load() error {
	if s.cache != nil {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.cache = map[string]json.RawMessage{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file %s: %w", s.path, err)
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		corrupt := s.path + ".corrupt"
		s.logger.Warn().
			Str(xglog.FieldEvent, "store.corrupt").
			Str("path", s.path).
			Str("quarantine", corrupt).
			Msg("state file is not valid JSON; quarantining and starting empty")
		if err := os.Rename(s.path, corrupt); err != nil {
			return fmt.Errorf("quarantine corrupt state file: %w", err)
		}
		s.cache = map[string]json.RawMessage{}
		return nil
	}
	s.cache = doc
	return nil
}

// persist serializes the cache and atomically replaces the state file, then
// refreshes the cache from the serialized bytes. Callers must hold s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize state document: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", s.path, err)
	}
	fresh := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fresh); err != nil {
		return fmt.Errorf("reload state document: %w", err)
	}
	s.cache = fresh
	return nil
}

// ReadNamespace returns a deep copy of the named namespace, or an empty object
// if it is absent.
func (s *Store) ReadNamespace(name string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	raw, ok := s.cache[name]
	if !ok {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode namespace %s: %w", name, err)
	}
	return out, nil
}

// ReadNamespaceInto decodes the named namespace into dest. It reports whether
// the namespace was present.
func (s *Store) ReadNamespaceInto(name string, dest any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return false, err
	}
	raw, ok := s.cache[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode namespace %s: %w", name, err)
	}
	return true, nil
}

// WriteNamespace replaces the named namespace and persists the document.
func (s *Store) WriteNamespace(name string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode namespace %s: %w", name, err)
	}
	s.cache[name] = raw
	return s.persist()
}

// GetOrCreateUUID returns the persisted v4 UUID under the identity namespace,
// generating and persisting a new one on first use.
func (s *Store) GetOrCreateUUID(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", err
	}
	identity := map[string]string{}
	if raw, ok := s.cache["identity"]; ok {
		if err := json.Unmarshal(raw, &identity); err != nil {
			return "", fmt.Errorf("decode identity namespace: %w", err)
		}
	}
	if id, ok := identity[name]; ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	identity[name] = id
	raw, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("encode identity namespace: %w", err)
	}
	s.cache["identity"] = raw
	if err := s.persist(); err != nil {
		return "", err
	}
	return id, nil
}
