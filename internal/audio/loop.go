// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audio bridges the daemon's capture device to the local playback
// device (alsaloop) and drives the mixer (amixer). Both paths are advisory:
// a missing binary degrades with a warning instead of failing activation.
package audio

import (
	"context"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/procgroup"
)

const stopGrace = 3 * time.Second

// Loop owns at most one alsaloop child process piping capture to playback.
type Loop struct {
	binary         string
	captureDevice  string
	playbackDevice string
	bufferMS       int
	extraArgs      []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	waitCh chan error
	log    zerolog.Logger
}

// LoopOptions configures the loop process controller.
type LoopOptions struct {
	Binary         string // defaults to "alsaloop"
	CaptureDevice  string
	PlaybackDevice string
	BufferMS       int
	ExtraArgs      []string
}

// NewLoop creates a loop controller. No process is spawned until
// EnsureRunning is called.
func NewLoop(opts LoopOptions) *Loop {
	binary := opts.Binary
	if binary == "" {
		binary = "alsaloop"
	}
	return &Loop{
		binary:         binary,
		captureDevice:  opts.CaptureDevice,
		playbackDevice: opts.PlaybackDevice,
		bufferMS:       opts.BufferMS,
		extraArgs:      append([]string(nil), opts.ExtraArgs...),
		log:            xglog.WithComponent("alsaloop"),
	}
}

// running reports whether the current child is still alive. Callers must hold
// l.mu. A child whose exit has been observed is reaped here.
func (l *Loop) running() bool {
	if l.cmd == nil {
		return false
	}
	select {
	case <-l.waitCh:
		l.cmd = nil
		l.waitCh = nil
		return false
	default:
		return true
	}
}

// EnsureRunning spawns the loop process if it is not already alive. A missing
// binary logs a warning and returns nil so the control plane keeps working.
func (l *Loop) EnsureRunning(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := exec.LookPath(l.binary); err != nil {
		l.log.Warn().
			Str(xglog.FieldEvent, "loop.binary_missing").
			Str("binary", l.binary).
			Msg("loop binary not found; audio will not bridge capture to playback")
		return nil
	}
	if l.running() {
		return nil
	}

	args := []string{
		"-C", l.captureDevice,
		"-P", l.playbackDevice,
		"-t", strconv.Itoa(l.bufferMS),
	}
	args = append(args, l.extraArgs...)

	cmd := exec.Command(l.binary, args...)
	procgroup.Set(cmd)
	l.log.Info().
		Str(xglog.FieldEvent, "loop.start").
		Str("binary", l.binary).
		Strs("args", args).
		Msg("starting audio loop")
	if err := cmd.Start(); err != nil {
		return err
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	l.cmd = cmd
	l.waitCh = waitCh
	return nil
}

// Stop terminates the loop process: SIGTERM, wait up to three seconds, then
// SIGKILL and reap. Calling Stop without a live child is a no-op.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running() {
		return nil
	}
	l.log.Info().
		Str(xglog.FieldEvent, "loop.stop").
		Msg("stopping audio loop")
	err := procgroup.Terminate(l.cmd, l.waitCh, stopGrace)
	l.cmd = nil
	l.waitCh = nil
	if err != nil && ctx.Err() == nil {
		// Exit status of a signalled child is expected noise.
		l.log.Debug().Err(err).Msg("audio loop exit")
	}
	return nil
}

// Running reports whether a loop child is currently alive.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running()
}
