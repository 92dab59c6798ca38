// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides.
const (
	EnvConfigPath = "AES67_NMOS_CONFIG"
	EnvHTTPPort   = "AES67_NMOS_HTTP_PORT"
)

// DefaultConfigPath is used when neither a flag nor AES67_NMOS_CONFIG names a file.
const DefaultConfigPath = "config.yaml"

// Load reads the configuration with precedence ENV > file > defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults apply
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if raw := strings.TrimSpace(os.Getenv(EnvHTTPPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("parse %s=%q: %w", EnvHTTPPort, raw, err)
		}
		cfg.HTTPPort = port
	}

	if len(cfg.Registry.Versions) == 0 {
		cfg.Registry.Versions = append([]string(nil), SupportedVersions...)
	}
	if len(cfg.Audio.MixerControls) == 0 {
		cfg.Audio.MixerControls = ControlsList(append([]string(nil), DefaultMixerControls...))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	// Ensure the state directory exists early so first persistence cannot fail.
	if dir := filepath.Dir(cfg.StateFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return cfg, fmt.Errorf("create state directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}
