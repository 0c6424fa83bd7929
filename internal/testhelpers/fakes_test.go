package testhelpers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeSignalServerServesRegisteredPolicyArea(t *testing.T) {
	srv, _ := NewFakeSignalServer(map[string]FakeSignalPack{
		"PA01": {PolicyAreaID: "PA01", Version: "1.0.0"},
	})
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/signals/PA01")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}

func TestFakeSignalServerReturns404ForUnknownPolicyArea(t *testing.T) {
	srv, _ := NewFakeSignalServer(map[string]FakeSignalPack{})
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/signals/PA99")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 404, resp.StatusCode)
}

func TestWaitGroupDoneOnceOnlyDecrementsOnce(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	done := WaitGroupDoneOnce(&wg)

	done()
	done()

	wg.Wait() // would block forever if Done() fired twice against Add(1)
}
