package contentstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/contentstore"
	"policypipeline/internal/objectstore"
)

func TestAcquireIsContentAddressedAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	backend := objectstore.NewMemoryStore()
	store := contentstore.New(backend)

	data := []byte("policy document body")

	first, err := store.Acquire(ctx, data, "plan.txt")
	require.NoError(t, err)
	require.NotEmpty(t, first.Key)
	require.NotEmpty(t, first.SourceHash)

	exists, err := backend.Exists(ctx, first.Key)
	require.NoError(t, err)
	require.True(t, exists)

	second, err := store.Acquire(ctx, data, "plan-resubmitted.txt")
	require.NoError(t, err)
	require.Equal(t, first.Key, second.Key)
	require.Equal(t, first.SourceHash, second.SourceHash)
}

func TestAcquireRejectsEmptyBody(t *testing.T) {
	ctx := context.Background()
	store := contentstore.New(objectstore.NewMemoryStore())

	_, err := store.Acquire(ctx, nil, "empty.txt")
	require.Error(t, err)
}

func TestFetchRoundTripsStoredBytes(t *testing.T) {
	ctx := context.Background()
	store := contentstore.New(objectstore.NewMemoryStore())

	data := []byte("policy document body")
	manifest, err := store.Acquire(ctx, data, "plan.txt")
	require.NoError(t, err)

	got, err := store.Fetch(ctx, manifest)
	require.NoError(t, err)
	require.Equal(t, data, got)
}
