// Package testhelpers provides small shared fakes used across this
// module's test suites: an httptest-backed fake signal HTTP service and a
// WaitGroup helper for tests that fan out goroutines.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"policypipeline/internal/monolith"
	"policypipeline/internal/signalhttp"
)

// FakeSignalServer is a minimal stand-in for the distributed Signal HTTP
// interface (spec'd as GET /signals/{policy_area}), serving a fixed set of
// packs with ETag/If-None-Match support and an optional forced status code
// for exercising retry and circuit-breaker behavior.
type FakeSignalServer struct {
	mu           sync.Mutex
	Packs        map[string]FakeSignalPack
	ForceStatus  int
	RequestCount int
}

// FakeSignalPack is the body one policy area's fake signal pack serves.
type FakeSignalPack struct {
	PolicyAreaID     string                     `json:"policy_area_id"`
	Version          string                     `json:"version"`
	Patterns         []monolith.Pattern         `json:"patterns"`
	ExpectedElements []monolith.ExpectedElement `json:"expected_elements"`
}

// NewFakeSignalServer starts an httptest.Server backed by packs, returning
// both the server and the fake so callers can mutate ForceStatus mid-test
// to drive retry and circuit-breaker scenarios.
func NewFakeSignalServer(packs map[string]FakeSignalPack) (*httptest.Server, *FakeSignalServer) {
	f := &FakeSignalServer{Packs: packs}
	return httptest.NewServer(http.HandlerFunc(f.handle)), f
}

// SetForceStatus sets the status code every subsequent request receives,
// regardless of path; zero restores normal handling.
func (f *FakeSignalServer) SetForceStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ForceStatus = status
}

func (f *FakeSignalServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.RequestCount++
	forced := f.ForceStatus
	f.mu.Unlock()

	if forced != 0 {
		w.WriteHeader(forced)
		return
	}

	policyAreaID := r.URL.Path[len("/signals/"):]
	pack, ok := f.Packs[policyAreaID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := json.Marshal(pack)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	etag := signalhttp.ComputeETag(body)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// NewTestServer returns an httptest.Server for the given handler func.
func NewTestServer(handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(handler))
}

// WaitGroupDoneOnce returns a function that will call wg.Done() only once; useful for
// tests that need to ensure a WaitGroup is decremented a single time from multiple places.
func WaitGroupDoneOnce(wg *sync.WaitGroup) func() {
	once := sync.Once{}
	return func() { once.Do(wg.Done) }
}
