// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// mountHealth wires the liveness and readiness probes.
func (s *Server) mountHealth(r chi.Router) {
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		// Readiness reports collaborator reachability without failing the
		// probe: the control plane stays useful while the daemon restarts.
		ctx, cancel := snapshotCtx(r.Context())
		defer cancel()
		_, err := s.daemon.FetchConfig(ctx)
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":               true,
			"daemon_reachable": err == nil,
			"sink_active":      s.ctrl.SinkActive(),
		})
	})
}
