// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package aes67d provides a client for the local aes67-linux-daemon REST API.
package aes67d

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xglog "github.com/nicolasdesilles/aes67-nmos-node/internal/log"
	"github.com/nicolasdesilles/aes67-nmos-node/internal/platform/httpx"
)

const (
	// maxDrainBytes caps the amount of data we drain from a response body
	// before closing it, enough to clear TCP buffers for small responses.
	maxDrainBytes = 4096

	// maxErrBody caps the response body excerpt carried in a StatusError.
	maxErrBody = 8 * 1024

	defaultTimeout = 5 * time.Second
)

// StatusError reports a daemon response outside the tolerated status codes.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Body)
}

// IsStatus reports whether err wraps a StatusError.
func IsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Options configures the client behavior.
type Options struct {
	Timeout   time.Duration
	RateLimit rate.Limit // max requests/sec toward the daemon (default: 10)
	Burst     int        // burst capacity (default: 20)
}

// Client talks to the aes67-linux-daemon. The daemon's sink model is
// non-transactional, so all operations are mutually exclusive.
type Client struct {
	baseURL string
	sinkID  int
	http    *http.Client
	limiter *rate.Limiter
	mu      sync.Mutex
	log     zerolog.Logger
}

// New creates a daemon client for the given base URL and sink id.
func New(baseURL string, sinkID int, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 20
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		sinkID:  sinkID,
		http:    httpx.NewClient(timeout),
		limiter: rate.NewLimiter(limit, burst),
		log:     xglog.WithComponent("aes67d"),
	}
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SinkID returns the managed sink identifier.
func (c *Client) SinkID() int {
	return c.sinkID
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
	_ = resp.Body.Close()
}

func statusError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	_ = resp.Body.Close()
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
}

func is2xx(code int) bool {
	return code >= 200 && code < 300
}

// UpsertSink configures the managed sink via PUT /api/sink/{id}. Any non-2xx
// response fails.
func (c *Client) UpsertSink(ctx context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Info().
		Str(xglog.FieldEvent, "sink.upsert").
		Int(xglog.FieldSinkID, c.sinkID).
		Msg("configuring daemon sink")
	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/sink/%d", c.sinkID), payload)
	if err != nil {
		return fmt.Errorf("upsert sink %d: %w", c.sinkID, err)
	}
	if !is2xx(resp.StatusCode) {
		return statusError(resp)
	}
	drainAndClose(resp)
	return nil
}

// DeleteSink removes the managed sink. 200/204/404 all count as success.
func (c *Client) DeleteSink(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Info().
		Str(xglog.FieldEvent, "sink.delete").
		Int(xglog.FieldSinkID, c.sinkID).
		Msg("deleting daemon sink")
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/sink/%d", c.sinkID), nil)
	if err != nil {
		return fmt.Errorf("delete sink %d: %w", c.sinkID, err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		drainAndClose(resp)
		return nil
	default:
		if is2xx(resp.StatusCode) {
			drainAndClose(resp)
			return nil
		}
		return statusError(resp)
	}
}

// Sink is one entry of the daemon's sink list.
type Sink struct {
	ID int `json:"id"`
}

// ListSinks returns the daemon's configured sinks.
func (c *Client) ListSinks(ctx context.Context) ([]Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.do(ctx, http.MethodGet, "/api/sinks", nil)
	if err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}
	if !is2xx(resp.StatusCode) {
		return nil, statusError(resp)
	}
	defer func() { _ = resp.Body.Close() }()
	var payload struct {
		Sinks []Sink `json:"sinks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode sink list: %w", err)
	}
	return payload.Sinks, nil
}

// FetchSinkStatus returns the managed sink's status object, or nil when the
// daemon reports the sink as not yet configured (400/404).
func (c *Client) FetchSinkStatus(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sink/status/%d", c.sinkID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch sink status: %w", err)
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		drainAndClose(resp)
		return nil, nil
	}
	if !is2xx(resp.StatusCode) {
		return nil, statusError(resp)
	}
	defer func() { _ = resp.Body.Close() }()
	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sink status: %w", err)
	}
	return out, nil
}

// FetchConfig returns the daemon's configuration object.
func (c *Client) FetchConfig(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, "/api/config", "fetch config")
}

// FetchPTPStatus returns the daemon's PTP status payload.
func (c *Client) FetchPTPStatus(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, "/api/ptp/status", "fetch ptp status")
}

func (c *Client) getJSON(ctx context.Context, path, op string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !is2xx(resp.StatusCode) {
		return nil, statusError(resp)
	}
	defer func() { _ = resp.Body.Close() }()
	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", op, err)
	}
	return out, nil
}
