// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus instrumentation for the node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aes67_nmos_registered",
		Help: "Whether the node is currently registered with an IS-04 registry (1) or not (0).",
	})

	registrationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aes67_nmos_registration_attempts_total",
		Help: "IS-04 resource registration attempts by result.",
	}, []string{"result"})

	heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aes67_nmos_heartbeats_total",
		Help: "IS-04 heartbeat posts by result.",
	}, []string{"result"})

	activations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aes67_nmos_activations_total",
		Help: "IS-05 activation requests by outcome.",
	}, []string{"outcome"})

	sinkActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aes67_nmos_sink_active",
		Help: "Whether the daemon sink is active after the last committed activation.",
	})

	daemonPollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aes67_nmos_daemon_poll_failures_total",
		Help: "Failed polls of the daemon status monitor.",
	})
)

// SetRegistered records the registry registration state.
func SetRegistered(registered bool) {
	if registered {
		registrationState.Set(1)
		return
	}
	registrationState.Set(0)
}

// IncRegistration counts one registration attempt with the given result.
func IncRegistration(result string) {
	registrationAttempts.WithLabelValues(result).Inc()
}

// IncHeartbeat counts one heartbeat with the given result.
func IncHeartbeat(result string) {
	heartbeats.WithLabelValues(result).Inc()
}

// IncActivation counts one activation with the given outcome.
func IncActivation(outcome string) {
	activations.WithLabelValues(outcome).Inc()
}

// SetSinkActive records the sink state after a committed activation.
func SetSinkActive(active bool) {
	if active {
		sinkActive.Set(1)
		return
	}
	sinkActive.Set(0)
}

// IncDaemonPollFailure counts one failed monitor poll.
func IncDaemonPollFailure() {
	daemonPollFailures.Inc()
}
