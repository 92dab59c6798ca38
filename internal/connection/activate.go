// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/metrics"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/sdp"
)

// Activation outcomes reported to the Connection API caller.
const (
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// ErrModeNotImplemented rejects activation modes other than immediate.
var ErrModeNotImplemented = errors.New("activation mode not implemented")

// SinkConfigurator is the daemon surface the activation needs.
type SinkConfigurator interface {
	UpsertSink(ctx context.Context, payload any) error
	DeleteSink(ctx context.Context) error
}

// LoopController is the audio loop surface the activation needs.
type LoopController interface {
	EnsureRunning(ctx context.Context) error
	Stop(ctx context.Context) error
}

// MixerController is the mixer surface the activation needs.
type MixerController interface {
	SetVolume(ctx context.Context, percent int) error
	SetMute(ctx context.Context, mute bool) error
}

// SinkPayload is the sink configuration sent to the daemon. The mono stream
// is mapped onto both playback legs.
type SinkPayload struct {
	UseSDP bool   `json:"use_sdp"`
	SDP    string `json:"sdp"`
	Map    [2]int `json:"map"`
	Delay  int    `json:"delay"`
}

// Activator executes the activation transaction: it snapshots the staged
// state, drives the daemon, loop, and mixer in order, and commits the result.
// The controller mutex is held only across state reads and the commit; side
// effects run in between, so a failed daemon call leaves active untouched.
type Activator struct {
	Ctrl        *Controller
	Daemon      SinkConfigurator
	Loop        LoopController
	Mixer       MixerController
	StreamLabel string

	log zerolog.Logger
}

// NewActivator wires an activation executor around the controller.
func NewActivator(ctrl *Controller, daemon SinkConfigurator, loop LoopController, mixer MixerController, streamLabel string) *Activator {
	return &Activator{
		Ctrl:        ctrl,
		Daemon:      daemon,
		Loop:        loop,
		Mixer:       mixer,
		StreamLabel: streamLabel,
		log:         xglog.WithComponent("activation"),
	}
}

// Activate performs an immediate activation of the staged parameters and
// returns the resulting connection state string.
func (a *Activator) Activate(ctx context.Context) (string, error) {
	snap := a.Ctrl.Snapshot()
	staged := snap.Staged

	if staged.Activation.Mode != ModeActivateImmediate {
		metrics.IncActivation("rejected")
		return "", fmt.Errorf("%w: %s", ErrModeNotImplemented, staged.Activation.Mode)
	}

	if !staged.MasterEnable {
		if err := a.Daemon.DeleteSink(ctx); err != nil {
			metrics.IncActivation("error")
			return "", fmt.Errorf("deactivate: %w", err)
		}
		if err := a.Loop.Stop(ctx); err != nil {
			a.log.Warn().Err(err).Msg("audio loop stop failed")
		}
		if _, err := a.Ctrl.CommitActivation(false); err != nil {
			return "", err
		}
		metrics.IncActivation(StateDisconnected)
		metrics.SetSinkActive(false)
		a.log.Info().
			Str(xglog.FieldEvent, "activation.committed").
			Str(xglog.FieldNewState, StateDisconnected).
			Msg("receiver deactivated")
		return StateDisconnected, nil
	}

	params := staged.TransportParams[0]
	doc := sdp.Build(sdp.Params{
		DestinationIP:   params.DestinationIP,
		DestinationPort: params.DestinationPort,
		TTL:             params.TTL,
		PayloadType:     params.PayloadType,
		EncodingName:    params.EncodingName,
		SampleRate:      params.SampleRate,
	}, a.StreamLabel)

	payload := SinkPayload{
		UseSDP: true,
		SDP:    doc,
		Map:    [2]int{0, 0},
		Delay:  0,
	}
	if err := a.Daemon.UpsertSink(ctx, payload); err != nil {
		// No commit, no loop start: the daemon rejected and stays in its
		// prior state, so active and sink_active must too.
		metrics.IncActivation("error")
		return "", fmt.Errorf("configure sink: %w", err)
	}

	if err := a.Loop.EnsureRunning(ctx); err != nil {
		a.log.Warn().Err(err).Msg("audio loop start failed")
	}
	if err := a.Mixer.SetVolume(ctx, staged.Audio.Volume); err != nil {
		a.log.Warn().Err(err).Msg("mixer volume failed")
	}
	if err := a.Mixer.SetMute(ctx, staged.Audio.Mute); err != nil {
		a.log.Warn().Err(err).Msg("mixer mute failed")
	}

	if _, err := a.Ctrl.CommitActivation(true); err != nil {
		return "", err
	}
	metrics.IncActivation(StateConnected)
	metrics.SetSinkActive(true)
	a.log.Info().
		Str(xglog.FieldEvent, "activation.committed").
		Str(xglog.FieldNewState, StateConnected).
		Str("destination", fmt.Sprintf("%s:%d", params.DestinationIP, params.DestinationPort)).
		Msg("receiver activated")
	return StateConnected, nil
}
