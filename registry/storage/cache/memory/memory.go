package memory

import (
	"context"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"math"

	"github.com/distribution/registry-cleaner/registry/storage/cache"
	cacheprovider "github.com/distribution/registry-cleaner/registry/storage/cache/provider"
	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/opencontainers/go-digest"
)

// init registers the inmemory cacheprovider.
func init() {
	if err := cacheprovider.Register("inmemory", NewReferenceCacheProvider); err != nil {
		panic(err)
	}
}

const (
	// DefaultSize is the default cache size to use if no size is explicitly
	// configured.
	DefaultSize = 10000

	// UnlimitedSize indicates the cache size should not be limited.
	UnlimitedSize = math.MaxInt
)

type inMemoryReferenceCache struct {
	lru *arc.ARCCache[digest.Digest, []digest.Digest]
}

// NewReferenceCacheProvider returns a new ARC backed cache for storing the
// references of manifest revisions.
func NewReferenceCacheProvider(ctx context.Context, options map[string]interface{}) (cache.ReferenceCache, error) {
	var c Memory
	if err := mapstructure.Decode(options["params"], &c); err != nil {
		return nil, err
	}

	size := c.Size
	if size <= 0 {
		size = DefaultSize
	}

	return New(size)
}

// New returns an in-memory reference cache holding at most size revisions.
func New(size int) (cache.ReferenceCache, error) {
	lruCache, err := arc.NewARC[digest.Digest, []digest.Digest](size)
	if err != nil {
		// NewARC can only fail if size is <= 0
		return nil, err
	}
	return &inMemoryReferenceCache{
		lru: lruCache,
	}, nil
}

func (imrc *inMemoryReferenceCache) References(ctx context.Context, revision digest.Digest) ([]digest.Digest, error) {
	if err := revision.Validate(); err != nil {
		return nil, err
	}

	references, ok := imrc.lru.Get(revision)
	if !ok {
		return nil, cache.ErrNotFound
	}
	return append([]digest.Digest(nil), references...), nil
}

func (imrc *inMemoryReferenceCache) SetReferences(ctx context.Context, revision digest.Digest, references []digest.Digest) error {
	if err := revision.Validate(); err != nil {
		return err
	}

	if err := cache.ValidateReferences(references); err != nil {
		return err
	}

	imrc.lru.Add(revision, append([]digest.Digest(nil), references...))
	return nil
}

// Memory configures inmemory cache
type Memory struct {
	Size int `yaml:"size,omitempty"`
}

// NewCacheOptions returns new memory cache options.
func NewCacheOptions(size int) map[string]interface{} {
	return map[string]interface{}{
		"params": map[interface{}]interface{}{
			"size": size,
		},
	}
}
