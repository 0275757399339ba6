package metrics

import (
	"context"
	"sync"
	"time"

	prometheus "github.com/distribution/registry-cleaner/metrics"
	"github.com/distribution/registry-cleaner/registry/storage/cache"
	"github.com/docker/go-metrics"
	"github.com/opencontainers/go-digest"
)

type instruments struct {
	latencyTimer metrics.LabeledTimer
	requests     metrics.LabeledCounter
}

var (
	instrumentsMu sync.Mutex
	// instrumentsByName holds the metrics of every wrapped cache. A name is
	// only registered once in the namespace; caches created later under the
	// same name share its metrics.
	instrumentsByName = make(map[string]*instruments)
)

type prometheusReferenceCache struct {
	cache.ReferenceCache
	*instruments
}

// NewPrometheusReferenceCache wraps a reference cache with latency and hit
// ratio metrics registered under name in the storage namespace.
func NewPrometheusReferenceCache(wrap cache.ReferenceCache, name, help string) cache.ReferenceCache {
	instrumentsMu.Lock()
	defer instrumentsMu.Unlock()

	inst, ok := instrumentsByName[name]
	if !ok {
		inst = &instruments{
			latencyTimer: prometheus.StorageNamespace.NewLabeledTimer(name, help, "operation"),
			requests:     prometheus.StorageNamespace.NewLabeledCounter(name+"_requests", "The number of cache lookups by result", "result"),
		}
		instrumentsByName[name] = inst
	}

	return &prometheusReferenceCache{
		ReferenceCache: wrap,
		instruments:    inst,
	}
}

func (p *prometheusReferenceCache) References(ctx context.Context, revision digest.Digest) ([]digest.Digest, error) {
	start := time.Now()
	references, err := p.ReferenceCache.References(ctx, revision)
	p.latencyTimer.WithValues("References").UpdateSince(start)
	if err == nil {
		p.requests.WithValues("hit").Inc(1)
	} else {
		p.requests.WithValues("miss").Inc(1)
	}
	return references, err
}

func (p *prometheusReferenceCache) SetReferences(ctx context.Context, revision digest.Digest, references []digest.Digest) error {
	start := time.Now()
	err := p.ReferenceCache.SetReferences(ctx, revision, references)
	p.latencyTimer.WithValues("SetReferences").UpdateSince(start)
	return err
}
