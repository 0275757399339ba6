package memory

import (
	"context"
	"testing"

	"github.com/distribution/registry-cleaner/registry/storage/cache"
	cacheprovider "github.com/distribution/registry-cleaner/registry/storage/cache/provider"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

var (
	revision = digest.FromString("revision")
	layerA   = digest.FromString("layerA")
	layerB   = digest.FromString("layerB")
)

// TestInMemoryReferenceCache checks the in memory implementation is working
// correctly.
func TestInMemoryReferenceCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewReferenceCacheProvider(ctx, NewCacheOptions(UnlimitedSize))
	require.NoError(t, err)

	_, err = c.References(ctx, revision)
	require.ErrorIs(t, err, cache.ErrNotFound)

	references := []digest.Digest{layerA, layerB}
	require.NoError(t, c.SetReferences(ctx, revision, references))

	// the cached slice must not alias the caller's
	references[0] = "garbage"

	got, err := c.References(ctx, revision)
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{layerA, layerB}, got)
}

func TestInMemoryReferenceCacheEmptyReferences(t *testing.T) {
	ctx := context.Background()
	c, err := New(1)
	require.NoError(t, err)

	require.NoError(t, c.SetReferences(ctx, revision, nil))
	got, err := c.References(ctx, revision)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestInMemoryReferenceCacheRejectsInvalidDigests(t *testing.T) {
	ctx := context.Background()
	c, err := New(DefaultSize)
	require.NoError(t, err)

	_, err = c.References(ctx, "sha256:nothex")
	require.Error(t, err)

	require.Error(t, c.SetReferences(ctx, "", []digest.Digest{layerA}))
	require.Error(t, c.SetReferences(ctx, revision, []digest.Digest{"bogus"}))

	_, err = c.References(ctx, revision)
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestInMemoryReferenceCacheEvicts(t *testing.T) {
	ctx := context.Background()
	c, err := New(1)
	require.NoError(t, err)

	other := digest.FromString("other revision")
	require.NoError(t, c.SetReferences(ctx, revision, []digest.Digest{layerA}))
	require.NoError(t, c.SetReferences(ctx, other, []digest.Digest{layerB}))

	_, err = c.References(ctx, revision)
	require.ErrorIs(t, err, cache.ErrNotFound)
	got, err := c.References(ctx, other)
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{layerB}, got)
}

func TestRegisteredProvider(t *testing.T) {
	c, err := cacheprovider.Get(context.Background(), "inmemory", map[string]interface{}{
		"params": map[string]interface{}{"size": 2},
	})
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = cacheprovider.Get(context.Background(), "redis", nil)
	require.Error(t, err)
}
