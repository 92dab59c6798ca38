// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package audio

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
)

// Mixer drives volume and mute through the amixer binary. Each configured
// control is updated in sequence; a non-zero exit is logged, not fatal.
type Mixer struct {
	binary   string
	card     string
	controls []string
	log      zerolog.Logger

	// run invokes one mixer command; replaceable in tests.
	run func(ctx context.Context, name string, args ...string) error
}

// NewMixer creates a mixer controller for the given card and control names.
func NewMixer(card string, controls []string) *Mixer {
	kept := make([]string, 0, len(controls))
	for _, c := range controls {
		if c != "" {
			kept = append(kept, c)
		}
	}
	m := &Mixer{
		binary:   "amixer",
		card:     card,
		controls: kept,
		log:      xglog.WithComponent("amixer"),
	}
	m.run = m.execRun
	if len(kept) == 0 {
		m.log.Warn().
			Str(xglog.FieldEvent, "mixer.no_controls").
			Msg("no mixer controls configured; volume operations will be skipped")
	}
	return m
}

func (m *Mixer) execRun(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}

func (m *Mixer) available() bool {
	if _, err := exec.LookPath(m.binary); err != nil {
		m.log.Warn().
			Str(xglog.FieldEvent, "mixer.binary_missing").
			Str("binary", m.binary).
			Msg("mixer binary not found; skipping")
		return false
	}
	return true
}

func (m *Mixer) apply(ctx context.Context, value string) error {
	for _, control := range m.controls {
		args := []string{"-c", m.card, "set", control, value}
		m.log.Info().
			Str(xglog.FieldEvent, "mixer.set").
			Str("control", control).
			Str("value", value).
			Msg("invoking mixer")
		if err := m.run(ctx, m.binary, args...); err != nil {
			m.log.Error().
				Err(err).
				Str("control", control).
				Msg("mixer command failed")
		}
	}
	return nil
}

// SetVolume sets each control to the given percentage, clamped to [0, 100].
func (m *Mixer) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if !m.available() {
		return nil
	}
	return m.apply(ctx, fmt.Sprintf("%d%%", percent))
}

// SetMute toggles mute on each control.
func (m *Mixer) SetMute(ctx context.Context, mute bool) error {
	if !m.available() {
		return nil
	}
	value := "unmute"
	if mute {
		value = "mute"
	}
	return m.apply(ctx, value)
}
