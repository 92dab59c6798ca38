// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package monitor polls the audio daemon for sink presence, sink flags, and
// PTP status, logging transitions only.
package monitor

import (
	"context"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/aes67d"
	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/metrics"
)

// warnAtFailures throttles failure logging: only these consecutive-failure
// counts emit a warning.
var warnAtFailures = map[int]bool{1: true, 5: true, 20: true}

// DaemonPoller is the daemon surface the monitor needs.
type DaemonPoller interface {
	ListSinks(ctx context.Context) ([]aes67d.Sink, error)
	FetchSinkStatus(ctx context.Context) (map[string]any, error)
	FetchPTPStatus(ctx context.Context) (map[string]any, error)
}

// Monitor is the background daemon status poller.
type Monitor struct {
	daemon   DaemonPoller
	sinkID   int
	interval time.Duration
	log      zerolog.Logger

	sinkPresent *bool
	lastFlags   map[string]any
	lastPTP     map[string]any
	failures    int
}

// New creates a monitor for the given sink id and poll interval.
func New(daemon DaemonPoller, sinkID int, interval time.Duration) *Monitor {
	return &Monitor{
		daemon:   daemon,
		sinkID:   sinkID,
		interval: interval,
		log:      xglog.WithComponent("monitor"),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	if err := m.observe(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.failures++
		metrics.IncDaemonPollFailure()
		if warnAtFailures[m.failures] {
			m.log.Warn().
				Err(err).
				Str(xglog.FieldEvent, "poll.failed").
				Int("consecutive_failures", m.failures).
				Msg("daemon status poll failed")
		}
		return
	}
	if m.failures > 0 {
		m.log.Info().
			Str(xglog.FieldEvent, "poll.recovered").
			Int("failed_polls", m.failures).
			Msg("daemon status poll recovered")
		m.failures = 0
	}
}

// observe performs one poll pass: sink presence, sink flags, PTP status.
func (m *Monitor) observe(ctx context.Context) error {
	sinks, err := m.daemon.ListSinks(ctx)
	if err != nil {
		return err
	}
	present := false
	for _, sink := range sinks {
		if sink.ID == m.sinkID {
			present = true
			break
		}
	}
	if m.sinkPresent == nil || *m.sinkPresent != present {
		m.log.Info().
			Str(xglog.FieldEvent, "sink.presence").
			Int(xglog.FieldSinkID, m.sinkID).
			Bool("present", present).
			Msg("daemon sink presence changed")
		m.sinkPresent = &present
	}

	if present {
		status, err := m.daemon.FetchSinkStatus(ctx)
		if err != nil {
			return err
		}
		var flags map[string]any
		if status != nil {
			flags, _ = status["sink_flags"].(map[string]any)
		}
		if !reflect.DeepEqual(flags, m.lastFlags) {
			m.log.Info().
				Str(xglog.FieldEvent, "sink.flags").
				Interface("sink_flags", flags).
				Msg("daemon sink flags changed")
			m.lastFlags = flags
		}
	}

	ptp, err := m.daemon.FetchPTPStatus(ctx)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(ptp, m.lastPTP) {
		m.log.Info().
			Str(xglog.FieldEvent, "ptp.status").
			Interface("ptp", ptp).
			Msg("daemon PTP status changed")
		m.lastPTP = ptp
	}
	return nil
}
