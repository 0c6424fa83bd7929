// Package signalhttp implements the optional distributed Signal HTTP
// interface: a client that fetches a policy area's signal pack over HTTP,
// honoring ETags (a BLAKE3 digest of the pack body) for conditional
// re-fetch, capping response size and request duration, and circuit
// breaking after a run of failures so a flaky signal service degrades a
// distributed deployment instead of stalling it.
package signalhttp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"

	"policypipeline/internal/config"
	"policypipeline/internal/monolith"
	"policypipeline/internal/observability"
	"policypipeline/internal/signalregistry"
)

// ErrCircuitOpen is returned when the breaker is open and a fetch is
// refused without attempting the network call.
var ErrCircuitOpen = fmt.Errorf("signalhttp: circuit open")

// breakerState tracks consecutive-failure circuit breaking for one client.
type breakerState struct {
	mu          sync.Mutex
	failures    int
	openUntil   time.Time
	failThresh  int
	openFor     time.Duration
}

func (b *breakerState) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.failThresh {
		return true
	}
	if now.After(b.openUntil) {
		b.failures = 0
		return true
	}
	return false
}

func (b *breakerState) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

func (b *breakerState) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.failThresh {
		b.openUntil = now.Add(b.openFor)
	}
}

// Client fetches signal packs from a distributed signal service, caching
// each policy area's ETag so unchanged packs are served as 304s.
type Client struct {
	http    *http.Client
	baseURL string
	maxResp int64

	mu     sync.Mutex
	etags  map[string]string

	breaker *breakerState
}

// New builds a Client from the given configuration, instrumenting its
// transport with the ambient OpenTelemetry HTTP client.
func New(cfg config.SignalHTTPConfig) *Client {
	failThresh := cfg.BreakerFailN
	if failThresh <= 0 {
		failThresh = 5
	}
	openFor := cfg.BreakerOpenFor
	if openFor <= 0 {
		openFor = 60 * time.Second
	}
	maxResp := cfg.MaxResponse
	if maxResp <= 0 {
		maxResp = 1_500_000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		http:    observability.NewHTTPClient(&http.Client{Timeout: timeout}),
		baseURL: cfg.BaseURL,
		maxResp: maxResp,
		etags:   make(map[string]string),
		breaker: &breakerState{failThresh: failThresh, openFor: openFor},
	}
}

// wirePack is the JSON payload a signal service returns for GET
// /signals/{policy_area}.
type wirePack struct {
	PolicyAreaID     string                       `json:"policy_area_id"`
	Version          string                       `json:"version"`
	Patterns         []monolith.Pattern           `json:"patterns"`
	ExpectedElements []monolith.ExpectedElement   `json:"expected_elements"`
}

// FetchResult reports whether a fetch returned a fresh pack or a 304
// confirming the caller's cached copy is still current.
type FetchResult struct {
	Pack      signalregistry.SignalPack
	NotModified bool
	ETag      string
}

// Fetch retrieves the signal pack for policyAreaID. If a prior ETag is
// known for that policy area, it is sent as If-None-Match; a 304 response
// sets NotModified and returns a zero-value Pack. Retryable failures
// (401/403/429/5xx, transport errors) count toward the circuit breaker;
// repeated failures trip the breaker and subsequent calls fail fast with
// ErrCircuitOpen until it cools down.
func (c *Client) Fetch(ctx context.Context, policyAreaID string) (FetchResult, error) {
	now := time.Now().UTC()
	if !c.breaker.allow(now) {
		return FetchResult{}, ErrCircuitOpen
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("signalhttp: invalid base url: %w", err)
	}
	u.Path = fmt.Sprintf("/signals/%s", policyAreaID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return FetchResult{}, err
	}
	c.mu.Lock()
	if tag, ok := c.etags[policyAreaID]; ok {
		req.Header.Set("If-None-Match", tag)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.recordFailure(now)
		return FetchResult{}, fmt.Errorf("signalhttp: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		c.breaker.recordSuccess()
		c.mu.Lock()
		tag := c.etags[policyAreaID]
		c.mu.Unlock()
		return FetchResult{NotModified: true, ETag: tag}, nil

	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		c.breaker.recordFailure(now)
		logErrorBody(resp, policyAreaID)
		return FetchResult{}, fmt.Errorf("signalhttp: retryable status %d", resp.StatusCode)

	case resp.StatusCode != http.StatusOK:
		c.breaker.recordFailure(now)
		logErrorBody(resp, policyAreaID)
		return FetchResult{}, fmt.Errorf("signalhttp: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResp+1))
	if err != nil {
		c.breaker.recordFailure(now)
		return FetchResult{}, fmt.Errorf("signalhttp: read body: %w", err)
	}
	if int64(len(body)) > c.maxResp {
		c.breaker.recordFailure(now)
		return FetchResult{}, fmt.Errorf("signalhttp: response exceeds %d byte cap", c.maxResp)
	}

	var wire wirePack
	if err := json.Unmarshal(body, &wire); err != nil {
		c.breaker.recordFailure(now)
		return FetchResult{}, fmt.Errorf("signalhttp: decode body: %w", err)
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		etag = ComputeETag(body)
	}
	c.mu.Lock()
	c.etags[policyAreaID] = etag
	c.mu.Unlock()
	c.breaker.recordSuccess()

	pack := signalregistry.SignalPack{
		PolicyAreaID:      wire.PolicyAreaID,
		Version:           wire.Version,
		Patterns:          wire.Patterns,
		ExpectedElements:  wire.ExpectedElements,
		SourceFingerprint: etag,
		ValidFrom:         now,
	}
	return FetchResult{Pack: pack, ETag: etag}, nil
}

// logErrorBody reads a bounded error response body and logs it at debug
// level with sensitive-looking fields (tokens, credentials) redacted, since
// a signal service's error payload may echo request headers back.
func logErrorBody(resp *http.Response, policyAreaID string) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return
	}
	evt := log.Debug().
		Str("policy_area_id", policyAreaID).
		Int("status", resp.StatusCode)
	if json.Valid(body) {
		evt = evt.RawJSON("body", observability.RedactJSON(body))
	} else {
		evt = evt.Str("body", string(body))
	}
	evt.Msg("signalhttp: non-success response")
}

// ComputeETag derives the BLAKE3-based ETag a signal service would assign
// to a pack body, used both by Fetch's fallback path and by tests that
// stand up a fake signal server.
func ComputeETag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
