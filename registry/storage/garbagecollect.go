package storage

import (
	"context"
	"path"
	"sort"

	"github.com/distribution/reference"
	cleaner "github.com/distribution/registry-cleaner"
	"github.com/distribution/registry-cleaner/internal/dcontext"
	"github.com/distribution/registry-cleaner/registry/storage/cache"
	"github.com/distribution/registry-cleaner/registry/storage/cache/memory"
	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
	"github.com/distribution/registry-cleaner/registry/storage/driver/dryrun"
	"github.com/opencontainers/go-digest"
	"go.uber.org/multierr"
)

// Collector deletes tags and the manifest revisions and layer links that
// become unreachable within one repository. It is not safe for concurrent
// use, and the registry must not write to the store while it runs.
type Collector struct {
	driver     storagedriver.StorageDriver
	vacuum     *Vacuum
	references cache.ReferenceCache
	dryRun     bool
	failures   error
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector) error

// DryRun makes the collector simulate deletions. The store is only read;
// later decisions of the run observe the simulated deletions.
func DryRun(c *Collector) error {
	c.dryRun = true
	return nil
}

// ReferenceCache sets the cache remembering the references of decoded
// manifests. Without it the collector uses an in-memory cache.
func ReferenceCache(references cache.ReferenceCache) CollectorOption {
	return func(c *Collector) error {
		c.references = references
		return nil
	}
}

// NewCollector returns a Collector operating on the store behind driver.
func NewCollector(driver storagedriver.StorageDriver, options ...CollectorOption) (*Collector, error) {
	c := &Collector{
		driver: driver,
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	if c.dryRun {
		c.driver = dryrun.New(driver)
	}
	if c.references == nil {
		references, err := memory.New(memory.DefaultSize)
		if err != nil {
			return nil, err
		}
		c.references = references
	}
	c.vacuum = NewVacuum(c.driver, c.dryRun)

	return c, nil
}

// Removed returns the paths removed, or in dry-run mode the paths that would
// have been removed, in removal order.
func (c *Collector) Removed() []string {
	return c.vacuum.Removed()
}

// Failures returns the deletions that failed so far, combined into a single
// error. It is nil when every deletion succeeded.
func (c *Collector) Failures() error {
	return c.failures
}

func (c *Collector) recordFailure(err error) {
	c.failures = multierr.Append(c.failures, err)
}

// DeleteTag deletes a tag of a repository. The manifest revisions the tag
// linked to are removed unless another tag of the repository currently
// points at them, along with those of their layer links no other tag of the
// repository needs. Layers are removed first, then revisions, then the tag.
func (c *Collector) DeleteTag(ctx context.Context, repo, tag string) error {
	if err := validateTag(repo, tag); err != nil {
		return err
	}

	ctx = dcontext.WithValues(ctx, map[string]any{
		"vars.name":      repo,
		"vars.reference": tag,
	})
	logger := dcontext.GetLogger(ctx, "vars.name", "vars.reference")
	logger.Debugf("Deleting %s:%s", repo, tag)

	tagPath, err := pathFor(manifestTagPathSpec{name: repo, tag: tag})
	if err != nil {
		return err
	}
	fi, err := c.driver.Stat(ctx, tagPath)
	if err != nil {
		if isPathNotFound(err) {
			return cleaner.ErrTagUnknown{Repository: repo, Tag: tag}
		}
		return err
	}
	if !fi.IsDir() {
		return cleaner.ErrTagUnknown{Repository: repo, Tag: tag}
	}

	manifests, err := collectLinks(ctx, c.driver, tagPath, "")
	if err != nil {
		return err
	}

	var revisions []digest.Digest
	layers := newDigestSet()
	for _, dgst := range manifests {
		logger.Debugf("Looking up filesystem layers for manifest digest %s", dgst)

		shared, err := c.manifestSharedInRepo(ctx, repo, tag, dgst)
		if err != nil {
			return err
		}
		if shared {
			logger.Debugf("Not deleting since we found another tag using manifest: %s", dgst)
			continue
		}

		revisions = append(revisions, dgst)
		layers.add(c.layersForRevision(ctx, dgst)...)
	}

	for _, layer := range layers.list {
		shared, err := c.layerSharedInRepo(ctx, repo, tag, layer)
		if err != nil {
			return err
		}
		if shared {
			logger.Debugf("Not deleting since we found another tag using digest: %s", layer)
			continue
		}
		if err := c.vacuum.RemoveLayer(ctx, repo, layer); err != nil {
			c.recordFailure(err)
		}
	}

	for _, revision := range revisions {
		if err := c.removeRevision(ctx, repo, revision); err != nil {
			return err
		}
	}

	if err := c.vacuum.DeleteTag(ctx, repo, tag); err != nil {
		c.recordFailure(err)
	}
	return nil
}

// DeleteUntagged deletes the manifest revisions of a repository no tag of
// it currently points at, and those of their layer links that no tag of any
// repository in the store references.
func (c *Collector) DeleteUntagged(ctx context.Context, repo string) error {
	if err := validateRepository(repo); err != nil {
		return err
	}

	ctx = dcontext.WithValues(ctx, map[string]any{"vars.name": repo})
	logger := dcontext.GetLogger(ctx, "vars.name")

	repoPath, err := pathFor(repositoryPathSpec{name: repo})
	if err != nil {
		return err
	}
	fi, err := c.driver.Stat(ctx, repoPath)
	if err != nil {
		if isPathNotFound(err) {
			return cleaner.ErrRepositoryUnknown{Name: repo}
		}
		return err
	}
	if !fi.IsDir() {
		return cleaner.ErrRepositoryUnknown{Name: repo}
	}

	protected, err := c.protectedLayers(ctx)
	if err != nil {
		return err
	}

	tagged, err := c.taggedRevisions(ctx, repo)
	if err != nil {
		return err
	}

	stored, err := c.storedRevisions(ctx, repo)
	if err != nil {
		return err
	}

	var revisions []digest.Digest
	layers := newDigestSet()
	for _, revision := range stored {
		if _, ok := tagged[revision]; ok {
			continue
		}
		revisions = append(revisions, revision)
		for _, layer := range c.layersForRevision(ctx, revision) {
			if _, ok := protected[layer]; !ok {
				layers.add(layer)
			}
		}
	}

	if len(revisions) == 0 && len(layers.list) == 0 {
		return nil
	}

	logger.Debugf("Deleting untagged data from repository %q", repo)
	for _, revision := range revisions {
		if err := c.removeRevision(ctx, repo, revision); err != nil {
			return err
		}
	}

	for _, layer := range layers.list {
		if err := c.vacuum.RemoveLayer(ctx, repo, layer); err != nil {
			c.recordFailure(err)
		}
	}
	return nil
}

// storedRevisions lists the manifest revisions of a repository, grouped by
// digest algorithm. A repository without a revisions directory has none.
func (c *Collector) storedRevisions(ctx context.Context, repo string) ([]digest.Digest, error) {
	revisionsPath, err := pathFor(manifestRevisionsPathSpec{name: repo, algorithm: digest.Canonical})
	if err != nil {
		return nil, err
	}
	revisionsPath = path.Dir(revisionsPath)

	algorithms, err := c.driver.List(ctx, revisionsPath)
	if err != nil {
		if isPathNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(algorithms)

	var revisions []digest.Digest
	for _, algorithmPath := range algorithms {
		algorithm := digest.Algorithm(path.Base(algorithmPath))
		if !algorithm.Available() {
			dcontext.GetLoggerWithField(ctx, "path", algorithmPath).Warn("skipping revisions of unsupported digest algorithm")
			continue
		}

		entries, err := c.driver.List(ctx, algorithmPath)
		if err != nil {
			if isPathNotFound(err) {
				continue
			}
			return nil, err
		}
		sort.Strings(entries)

		for _, entry := range entries {
			revision := digest.NewDigestFromEncoded(algorithm, path.Base(entry))
			if err := revision.Validate(); err != nil {
				dcontext.GetLoggerWithField(ctx, "path", entry).WithError(err).Warn("skipping revision with invalid name")
				continue
			}
			revisions = append(revisions, revision)
		}
	}
	return revisions, nil
}

// removeRevision strips every digest linked by the revision from the index
// of every tag of the repository, then removes the revision directory.
func (c *Collector) removeRevision(ctx context.Context, repo string, revision digest.Digest) error {
	revisionPath, err := pathFor(manifestRevisionPathSpec{name: repo, revision: revision})
	if err != nil {
		return err
	}

	linked, err := collectLinks(ctx, c.driver, revisionPath, "")
	if err != nil {
		return err
	}

	if len(linked) > 0 {
		tags, err := c.tagNames(ctx, repo)
		if err != nil && !isPathNotFound(err) {
			return err
		}
		for _, dgst := range linked {
			for _, tag := range tags {
				if err := c.vacuum.RemoveTagIndexEntry(ctx, repo, tag, dgst); err != nil {
					c.recordFailure(err)
				}
			}
		}
	}

	if err := c.vacuum.RemoveManifestRevision(ctx, repo, revision); err != nil {
		c.recordFailure(err)
	}
	return nil
}

func validateRepository(repo string) error {
	if _, err := reference.WithName(repo); err != nil {
		return cleaner.ErrRepositoryNameInvalid{Name: repo, Reason: err}
	}
	return nil
}

func validateTag(repo, tag string) error {
	named, err := reference.WithName(repo)
	if err != nil {
		return cleaner.ErrRepositoryNameInvalid{Name: repo, Reason: err}
	}
	if _, err := reference.WithTag(named, tag); err != nil {
		return cleaner.ErrTagInvalid{Tag: tag, Reason: err}
	}
	return nil
}

// digestSet is an insertion ordered set of digests.
type digestSet struct {
	list []digest.Digest
	seen map[digest.Digest]struct{}
}

func newDigestSet() *digestSet {
	return &digestSet{seen: make(map[digest.Digest]struct{})}
}

func (s *digestSet) add(digests ...digest.Digest) {
	for _, dgst := range digests {
		if _, ok := s.seen[dgst]; ok {
			continue
		}
		s.seen[dgst] = struct{}{}
		s.list = append(s.list, dgst)
	}
}
