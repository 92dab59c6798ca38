// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/brutella/dnssd"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
)

// ServiceType is the DNS-SD service registries advertise.
const ServiceType = "_nmos-registration._tcp.local."

// registrationVersion is the Registration API version appended to discovered
// endpoints.
const registrationVersion = "v1.3"

// discoverRegistry resolves a registration endpoint. Static mode with URLs
// short-circuits to the first URL; otherwise a DNS-SD browse runs bounded by
// the configured timeout, with the static list as fallback.
func (w *Worker) discoverRegistry(ctx context.Context) (*Endpoint, error) {
	static := w.cfg.Registry.StaticURLs
	if w.cfg.Registry.Mode == "static" {
		if len(static) == 0 {
			return nil, errors.New("static registry mode without static_urls")
		}
		return &Endpoint{URL: static[0]}, nil
	}

	if ep := w.browse(ctx); ep != nil {
		return ep, nil
	}

	if len(static) > 0 {
		w.log.Info().
			Str(xglog.FieldEvent, "discovery.fallback").
			Msg("DNS-SD yielded no registry; falling back to static list")
		return &Endpoint{URL: static[0]}, nil
	}
	return nil, nil
}

// browse runs a one-shot DNS-SD lookup and returns the first registry seen,
// or nil when the timeout elapses.
func (w *Worker) browse(ctx context.Context) *Endpoint {
	browseCtx, cancel := context.WithTimeout(ctx, w.cfg.Registry.BrowseTimeout())
	defer cancel()

	found := make(chan Endpoint, 1)
	add := func(entry dnssd.BrowseEntry) {
		ep, ok := endpointFromEntry(entry)
		if !ok {
			return
		}
		select {
		case found <- ep:
		default:
		}
	}
	rmv := func(dnssd.BrowseEntry) {}

	go func() {
		if err := dnssd.LookupType(browseCtx, ServiceType, add, rmv); err != nil && browseCtx.Err() == nil {
			w.log.Warn().
				Err(err).
				Str(xglog.FieldEvent, "discovery.browse_failed").
				Msg("DNS-SD browse failed")
		}
	}()

	select {
	case ep := <-found:
		w.log.Info().
			Str(xglog.FieldEvent, "discovery.found").
			Str(xglog.FieldRegistryURL, ep.URL).
			Int("priority", ep.Priority).
			Msg("discovered registry via DNS-SD")
		return &ep
	case <-browseCtx.Done():
		return nil
	}
}

// endpointFromEntry converts a browse result into a registration endpoint.
// Registries advertised without an IPv4 address are skipped.
func endpointFromEntry(entry dnssd.BrowseEntry) (Endpoint, bool) {
	for _, ip := range entry.IPs {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		priority := 0
		if raw, ok := entry.Text["pri"]; ok {
			if parsed, err := strconv.Atoi(raw); err == nil {
				priority = parsed
			}
		}
		return Endpoint{
			URL:      fmt.Sprintf("http://%s:%d/x-nmos/registration/%s", v4, entry.Port, registrationVersion),
			Priority: priority,
		}, true
	}
	return Endpoint{}, false
}
