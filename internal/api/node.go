// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/netutil"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/registry"
)

// nodeBase is the traversal list served at the Node API root.
var nodeBase = []string{"self/", "sources/", "flows/", "devices/", "senders/", "receivers/"}

// mountNodeAPI wires the read-only IS-04 Node API.
func (s *Server) mountNodeAPI(r chi.Router) {
	r.Route("/x-nmos/node/{version}", func(r chi.Router) {
		r.Use(s.requireVersion)

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, nodeBase)
		})
		r.Get("/self", s.handleSelf)
		r.Get("/devices", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []registry.Device{s.buildDevice()})
		})
		r.Get("/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != s.identity.DeviceID {
				writeNotFound(w, "Device not found")
				return
			}
			writeJSON(w, http.StatusOK, s.buildDevice())
		})
		r.Get("/receivers", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []registry.Receiver{s.buildReceiver()})
		})
		r.Get("/receivers/{id}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != s.identity.ReceiverID {
				writeNotFound(w, "Receiver not found")
				return
			}
			writeJSON(w, http.StatusOK, s.buildReceiver())
		})

		// This node has no sources, flows, or senders.
		for _, collection := range []string{"sources", "flows", "senders"} {
			r.Get("/"+collection, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, []any{})
			})
			singular := collection[:len(collection)-1]
			r.Get("/"+collection+"/{id}", func(w http.ResponseWriter, _ *http.Request) {
				writeNotFound(w, capitalize(singular)+" not found")
			})
		}

		r.Options("/receivers/{id}/target", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != s.identity.ReceiverID {
				writeNotFound(w, "Receiver not found")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{})
		})
		// Deprecated in IS-04 but required to exist.
		r.Put("/receivers/{id}/target", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != s.identity.ReceiverID {
				writeNotFound(w, "Receiver not found")
				return
			}
			writeNotImplemented(w, "Receiver target subscription is not implemented")
		})
	})
}

// requireVersion rejects unsupported API versions with the NMOS error body.
func (s *Server) requireVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.versionSupported(chi.URLParam(r, "version")) {
			writeNotFound(w, "Unsupported API version")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) advertise() registry.Advertise {
	return registry.Advertise{
		Host: netutil.AdvertiseHost(s.cfg.Registry.StaticURLs),
		Port: s.cfg.HTTPPort,
	}
}

func (s *Server) interfaceName() string {
	return netutil.InterfaceName(s.cfg.InterfaceName)
}

// handleSelf serves the Node resource with the clock fetched live from the
// daemon; failures degrade to an unlocked clock.
func (s *Server) handleSelf(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := snapshotCtx(r.Context())
	defer cancel()
	ptp, err := s.daemon.FetchPTPStatus(ctx)
	if err != nil {
		ptp = nil
	}
	iface := s.interfaceName()
	node := registry.BuildNode(s.cfg, s.identity, registry.ClockFromPTP(ptp), s.advertise(), iface, netutil.InterfaceMAC(iface))
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) buildDevice() registry.Device {
	return registry.BuildDevice(s.cfg, s.identity, s.advertise())
}

func (s *Server) buildReceiver() registry.Receiver {
	return registry.BuildReceiver(s.cfg, s.identity, s.interfaceName(), s.ctrl.SinkActive())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}
