// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api provides the HTTP control surface of the node: the IS-05
// Connection API, the read-only IS-04 Node API, health probes, and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/aes67d"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/config"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/connection"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/store"
)

// Server is the node's HTTP control surface.
type Server struct {
	cfg       config.AppConfig
	identity  store.Identity
	ctrl      *connection.Controller
	activator *connection.Activator
	daemon    *aes67d.Client
	router    chi.Router
}

// New assembles the router with all mounted surfaces.
func New(cfg config.AppConfig, identity store.Identity, ctrl *connection.Controller, activator *connection.Activator, daemon *aes67d.Client) *Server {
	s := &Server{
		cfg:       cfg,
		identity:  identity,
		ctrl:      ctrl,
		activator: activator,
		daemon:    daemon,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(httprate.LimitByIP(100, time.Second))

	s.mountConnectionAPI(r)
	s.mountNodeAPI(r)
	s.mountHealth(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// versionSupported reports whether the requested API version is served.
func (s *Server) versionSupported(version string) bool {
	for _, v := range s.cfg.Registry.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// snapshotCtx bounds live daemon reads performed while serving a request.
func snapshotCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Second)
}
