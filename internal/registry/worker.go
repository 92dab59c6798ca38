// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicolasdesilles/aes67-nmos-node/internal/config"
	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/metrics"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/netutil"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/platform/httpx"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/store"
)

type workerState int

const (
	stateUnregistered workerState = iota
	stateRegistering
	stateRegistered
)

func (s workerState) String() string {
	switch s {
	case stateRegistering:
		return "registering"
	case stateRegistered:
		return "registered"
	default:
		return "unregistered"
	}
}

const (
	clockFetchTimeout = 2 * time.Second
	deregisterTimeout = 5 * time.Second
	maxErrBody        = 2048
)

// SinkStateSource exposes the receiver's current sink state for the
// Receiver resource subscription.
type SinkStateSource interface {
	SinkActive() bool
}

// PTPSource provides the daemon's PTP status for the Node clock projection.
type PTPSource interface {
	FetchPTPStatus(ctx context.Context) (map[string]any, error)
}

// Worker registers this node with an IS-04 registry and keeps it alive with
// heartbeats. It owns the registry endpoint and the registration status;
// failures self-heal through state transitions, never surface externally.
type Worker struct {
	cfg      config.AppConfig
	identity store.Identity
	sink     SinkStateSource
	ptp      PTPSource
	client   *http.Client
	log      zerolog.Logger

	// discover and advertise are replaceable in tests.
	discover  func(ctx context.Context) (*Endpoint, error)
	advertise func(registryURL string) string

	state    workerState
	registry *Endpoint
}

// NewWorker creates a registration worker. It does nothing until Run.
func NewWorker(cfg config.AppConfig, identity store.Identity, sink SinkStateSource, ptp PTPSource) *Worker {
	w := &Worker{
		cfg:       cfg,
		identity:  identity,
		sink:      sink,
		ptp:       ptp,
		client:    httpx.NewClient(5 * time.Second),
		log:       xglog.WithComponent("is04"),
		advertise: netutil.AdvertiseIP,
	}
	w.discover = w.discoverRegistry
	return w
}

// Run drives the worker loop until ctx is cancelled, then performs a bounded
// best-effort deregistration.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().
		Str(xglog.FieldEvent, "worker.start").
		Str("mode", w.cfg.Registry.Mode).
		Msg("IS-04 worker started")

	period := w.cfg.Registry.HeartbeatPeriod()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return ctx.Err()
		case <-timer.C:
		}
		w.tick(ctx)
		timer.Reset(period)
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.registry == nil {
		ep, err := w.discover(ctx)
		if err != nil {
			w.log.Warn().
				Err(err).
				Str(xglog.FieldEvent, "discovery.failed").
				Msg("registry discovery failed")
			return
		}
		if ep == nil {
			w.log.Debug().Msg("no registry discovered yet")
			return
		}
		w.registry = ep
		w.setState(stateRegistering)
		w.log.Info().
			Str(xglog.FieldEvent, "registry.selected").
			Str(xglog.FieldRegistryURL, ep.URL).
			Msg("using registry")
	}
	if w.state != stateRegistered {
		w.register(ctx)
		return
	}
	w.heartbeat(ctx)
}

func (w *Worker) setState(next workerState) {
	if next == w.state {
		return
	}
	w.log.Info().
		Str(xglog.FieldEvent, "worker.state").
		Str(xglog.FieldOldState, w.state.String()).
		Str(xglog.FieldNewState, next.String()).
		Msg("worker state changed")
	w.state = next
	metrics.SetRegistered(next == stateRegistered)
}

// clock fetches the daemon PTP status best-effort for the Node resource.
func (w *Worker) clock(ctx context.Context) Clock {
	if w.ptp == nil {
		return ClockFromPTP(nil)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, clockFetchTimeout)
	defer cancel()
	ptp, err := w.ptp.FetchPTPStatus(fetchCtx)
	if err != nil {
		return ClockFromPTP(nil)
	}
	return ClockFromPTP(ptp)
}

// register builds and posts the Node, Device, and Receiver resources. Any
// failure reverts to discovery on the next tick.
func (w *Worker) register(ctx context.Context) {
	adv := Advertise{
		Host: w.advertise(w.registry.URL),
		Port: w.cfg.HTTPPort,
	}
	ifaceName := netutil.InterfaceName(w.cfg.InterfaceName)
	mac := netutil.InterfaceMAC(ifaceName)

	node := BuildNode(w.cfg, w.identity, w.clock(ctx), adv, ifaceName, mac)
	device := BuildDevice(w.cfg, w.identity, adv)
	receiver := BuildReceiver(w.cfg, w.identity, ifaceName, w.sink.SinkActive())

	resources := []struct {
		typ        string
		collection string
		id         string
		data       any
	}{
		{"node", "nodes", w.identity.NodeID, node},
		{"device", "devices", w.identity.DeviceID, device},
		{"receiver", "receivers", w.identity.ReceiverID, receiver},
	}
	for _, res := range resources {
		if err := w.postResource(ctx, res.typ, res.collection, res.id, res.data); err != nil {
			w.log.Warn().
				Err(err).
				Str(xglog.FieldEvent, "registration.failed").
				Str("resource", res.typ).
				Msg("failed to register resource")
			metrics.IncRegistration("error")
			w.registry = nil
			w.setState(stateUnregistered)
			return
		}
	}
	metrics.IncRegistration("ok")
	w.setState(stateRegistered)
	w.log.Info().
		Str(xglog.FieldEvent, "registration.complete").
		Str(xglog.FieldNodeID, w.identity.NodeID).
		Str(xglog.FieldDeviceID, w.identity.DeviceID).
		Str(xglog.FieldReceiverID, w.identity.ReceiverID).
		Msg("registered node, device, and receiver")
}

// postResource posts one resource envelope. A 409 conflict is resolved by
// deleting the stale resource and posting again.
func (w *Worker) postResource(ctx context.Context, typ, collection, id string, data any) error {
	status, err := w.postEnvelope(ctx, typ, data)
	if err != nil {
		return err
	}
	if is2xx(status) {
		return nil
	}
	if status != http.StatusConflict {
		return fmt.Errorf("register %s: registry returned %d", typ, status)
	}

	w.log.Info().
		Str(xglog.FieldEvent, "registration.conflict").
		Str("resource", typ).
		Msg("resource already registered; deleting and re-posting")
	if err := w.deleteResource(ctx, collection, id); err != nil {
		return fmt.Errorf("resolve %s conflict: %w", typ, err)
	}
	status, err = w.postEnvelope(ctx, typ, data)
	if err != nil {
		return err
	}
	if !is2xx(status) {
		return fmt.Errorf("re-register %s: registry returned %d", typ, status)
	}
	return nil
}

func (w *Worker) postEnvelope(ctx context.Context, typ string, data any) (int, error) {
	envelope := map[string]any{"type": typ, "data": data}
	body, err := json.Marshal(envelope)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.registry.URL+"/resource", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	drain(resp)
	return resp.StatusCode, nil
}

func (w *Worker) deleteResource(ctx context.Context, collection, id string) error {
	url := fmt.Sprintf("%s/resource/%s/%s", w.registry.URL, collection, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	drain(resp)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return fmt.Errorf("delete %s/%s: registry returned %d", collection, id, resp.StatusCode)
}

// heartbeat posts node health. A 404 means the registry lost this node:
// clear the endpoint and rediscover on the next tick. Other failures stay
// registered and retry.
func (w *Worker) heartbeat(ctx context.Context) {
	url := fmt.Sprintf("%s/health/nodes/%s", w.registry.URL, w.identity.NodeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Warn().
			Err(err).
			Str(xglog.FieldEvent, "heartbeat.failed").
			Msg("heartbeat failed; retrying next tick")
		metrics.IncHeartbeat("error")
		return
	}
	drain(resp)
	switch {
	case is2xx(resp.StatusCode):
		metrics.IncHeartbeat("ok")
	case resp.StatusCode == http.StatusNotFound:
		w.log.Info().
			Str(xglog.FieldEvent, "heartbeat.lost").
			Msg("registry lost our node; re-registering")
		metrics.IncHeartbeat("lost")
		w.registry = nil
		w.setState(stateUnregistered)
	default:
		w.log.Warn().
			Str(xglog.FieldEvent, "heartbeat.rejected").
			Int("status", resp.StatusCode).
			Msg("heartbeat rejected; retrying next tick")
		metrics.IncHeartbeat("error")
	}
}

// shutdown deregisters best-effort, bounded by its own timeout so node
// shutdown cannot hang on an unreachable registry.
func (w *Worker) shutdown() {
	if w.state != stateRegistered || w.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deregisterTimeout)
	defer cancel()
	for _, res := range []struct{ collection, id string }{
		{"receivers", w.identity.ReceiverID},
		{"devices", w.identity.DeviceID},
		{"nodes", w.identity.NodeID},
	} {
		if err := w.deleteResource(ctx, res.collection, res.id); err != nil {
			w.log.Debug().Err(err).Str("collection", res.collection).Msg("deregistration failed")
		}
	}
	w.setState(stateUnregistered)
	w.client.CloseIdleConnections()
	w.log.Info().
		Str(xglog.FieldEvent, "worker.stopped").
		Msg("IS-04 worker stopped")
}

func is2xx(code int) bool {
	return code >= 200 && code < 300
}

func drain(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, maxErrBody)
	_ = resp.Body.Close()
}
