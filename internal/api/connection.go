// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/aes67d"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/connection"
)

// transportType identifies the receiver transport on the wire.
const transportType = "urn:x-nmos:transport:rtp.mcast"

// constraints is the static capability set of the single receiver leg.
var constraints = map[string]any{
	"sample_rates":      []int{48000},
	"channels":          []int{1},
	"encodings":         []string{"L24"},
	"destination_modes": []string{"multicast", "unicast"},
}

// mountConnectionAPI wires the IS-05 Connection API.
func (s *Server) mountConnectionAPI(r chi.Router) {
	r.Route("/x-nmos/connection/{version}", func(r chi.Router) {
		r.Use(s.requireVersion)

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []string{"bulk/", "single/"})
		})

		r.Route("/bulk", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, []string{"senders/", "receivers/"})
			})
			for _, collection := range []string{"senders", "receivers"} {
				r.Get("/"+collection, func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusMethodNotAllowed, "Bulk resources only support OPTIONS and POST", "")
				})
				r.Options("/"+collection, func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusOK, map[string]any{})
				})
				r.Post("/"+collection, func(w http.ResponseWriter, _ *http.Request) {
					writeNotImplemented(w, "Bulk connection management is not implemented")
				})
			}
		})

		r.Route("/single", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, []string{"senders/", "receivers/"})
			})
			r.Get("/senders", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, []any{})
			})
			r.Get("/receivers", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, []string{s.identity.ReceiverID + "/"})
			})

			r.Route("/receivers/{receiverID}", func(r chi.Router) {
				r.Use(s.requireReceiver)

				r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusOK, []string{"constraints/", "staged/", "active/", "transporttype/"})
				})
				r.Get("/constraints", func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusOK, constraints)
				})
				r.Get("/transporttype", func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusOK, map[string]string{"type": transportType})
				})
				r.Get("/staged", func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusOK, s.ctrl.Snapshot().Staged)
				})
				r.Get("/active", func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, http.StatusOK, s.ctrl.Snapshot().Active)
				})
				r.Patch("/staged", s.handlePatchStaged)
				r.Post("/staged/activation", s.handleActivate)
			})
		})
	})
}

// requireReceiver rejects ids other than the single managed receiver.
func (s *Server) requireReceiver(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "receiverID") != s.identity.ReceiverID {
			writeNotFound(w, "Receiver not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePatchStaged(w http.ResponseWriter, r *http.Request) {
	patch := map[string]json.RawMessage{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed JSON body", err.Error())
		return
	}
	state, err := s.ctrl.UpdateStaged(patch)
	if err != nil {
		var verr *connection.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "Invalid staged parameters", verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update staged parameters", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state.Staged)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	state, err := s.activator.Activate(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrModeNotImplemented):
			writeNotImplemented(w, "Only immediate activation is supported")
		default:
			if se, ok := aes67d.IsStatus(err); ok {
				writeError(w, http.StatusInternalServerError, "Audio daemon rejected the sink configuration", se.Body)
				return
			}
			writeError(w, http.StatusInternalServerError, "Activation failed", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": state})
}
