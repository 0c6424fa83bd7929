package signalhttp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/config"
	"policypipeline/internal/monolith"
	"policypipeline/internal/signalhttp"
	"policypipeline/internal/testhelpers"
)

func testConfig(baseURL string) config.SignalHTTPConfig {
	return config.SignalHTTPConfig{
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		MaxResponse:    1_500_000,
		BreakerFailN:   3,
		BreakerOpenFor: 50 * time.Millisecond,
	}
}

func TestFetchReturnsFreshPackOnFirstCall(t *testing.T) {
	srv, _ := testhelpers.NewFakeSignalServer(map[string]testhelpers.FakeSignalPack{
		"PA01": {
			PolicyAreaID: "PA01",
			Version:      "1.0.0",
			Patterns:     []monolith.Pattern{{ID: "p1", Category: "budget"}},
		},
	})
	defer srv.Close()

	c := signalhttp.New(testConfig(srv.URL))
	result, err := c.Fetch(context.Background(), "PA01")
	require.NoError(t, err)
	require.False(t, result.NotModified)
	require.Equal(t, "PA01", result.Pack.PolicyAreaID)
	require.NotEmpty(t, result.ETag)
}

func TestFetchReturnsNotModifiedOnMatchingETag(t *testing.T) {
	srv, _ := testhelpers.NewFakeSignalServer(map[string]testhelpers.FakeSignalPack{
		"PA01": {PolicyAreaID: "PA01", Version: "1.0.0"},
	})
	defer srv.Close()

	c := signalhttp.New(testConfig(srv.URL))
	_, err := c.Fetch(context.Background(), "PA01")
	require.NoError(t, err)

	result, err := c.Fetch(context.Background(), "PA01")
	require.NoError(t, err)
	require.True(t, result.NotModified)
}

func TestFetchUnknownPolicyAreaFails(t *testing.T) {
	srv, _ := testhelpers.NewFakeSignalServer(map[string]testhelpers.FakeSignalPack{})
	defer srv.Close()

	c := signalhttp.New(testConfig(srv.URL))
	_, err := c.Fetch(context.Background(), "PA99")
	require.Error(t, err)
}

func TestCircuitOpensAfterRepeatedFailuresThenRecovers(t *testing.T) {
	srv, fake := testhelpers.NewFakeSignalServer(map[string]testhelpers.FakeSignalPack{
		"PA01": {PolicyAreaID: "PA01"},
	})
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerFailN = 2
	cfg.BreakerOpenFor = 30 * time.Millisecond
	c := signalhttp.New(cfg)

	fake.SetForceStatus(503)
	_, err := c.Fetch(context.Background(), "PA01")
	require.Error(t, err)
	_, err = c.Fetch(context.Background(), "PA01")
	require.Error(t, err)

	_, err = c.Fetch(context.Background(), "PA01")
	require.ErrorIs(t, err, signalhttp.ErrCircuitOpen)

	fake.SetForceStatus(0)
	time.Sleep(40 * time.Millisecond)

	result, err := c.Fetch(context.Background(), "PA01")
	require.NoError(t, err)
	require.Equal(t, "PA01", result.Pack.PolicyAreaID)
}
