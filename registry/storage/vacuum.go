package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/distribution/registry-cleaner/internal/dcontext"
	"github.com/distribution/registry-cleaner/metrics"
	"github.com/distribution/registry-cleaner/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// vacuum contains functions for cleaning up repositories.
// These functions will only reliably work on strongly consistent
// storage systems.
// https://en.wikipedia.org/wiki/Consistency_model

// Kinds of removed paths, used as metric labels.
const (
	kindLayer    = "layer"
	kindRevision = "revision"
	kindTag      = "tag"
	kindTagIndex = "tag_index"
)

// Failed deletions are attempted again, waiting deleteDelay before the
// first retry and backing off after that.
const (
	deleteAttempts = 3
	deleteDelay    = 50 * time.Millisecond
)

// NewVacuum creates a new Vacuum. With dryRun set, removals are logged as
// simulated; the driver decides whether anything is actually deleted.
func NewVacuum(driver driver.StorageDriver, dryRun bool) *Vacuum {
	return &Vacuum{
		driver: driver,
		dryRun: dryRun,
	}
}

// Vacuum removes content from the filesystem
type Vacuum struct {
	driver  driver.StorageDriver
	dryRun  bool
	removed []string
}

// Removed returns the paths removed so far, in removal order.
func (v *Vacuum) Removed() []string {
	return append([]string(nil), v.removed...)
}

// RemoveLayer removes the layer link directory of dgst from a repository.
func (v *Vacuum) RemoveLayer(ctx context.Context, repoName string, dgst digest.Digest) error {
	layerPath, err := pathFor(layerPathSpec{name: repoName, digest: dgst})
	if err != nil {
		return err
	}
	return v.remove(ctx, kindLayer, layerPath)
}

// RemoveManifestRevision removes the revision directory of dgst from a
// repository.
func (v *Vacuum) RemoveManifestRevision(ctx context.Context, repoName string, dgst digest.Digest) error {
	revPath, err := pathFor(manifestRevisionPathSpec{name: repoName, revision: dgst})
	if err != nil {
		return err
	}
	return v.remove(ctx, kindRevision, revPath)
}

// RemoveTagIndexEntry removes dgst from the index of a tag.
func (v *Vacuum) RemoveTagIndexEntry(ctx context.Context, repoName, tag string, dgst digest.Digest) error {
	entryPath, err := pathFor(manifestTagIndexEntryPathSpec{name: repoName, tag: tag, revision: dgst})
	if err != nil {
		return err
	}
	return v.remove(ctx, kindTagIndex, entryPath)
}

// DeleteTag removes a tag from repository with index store from the filesystem.
func (v *Vacuum) DeleteTag(ctx context.Context, repoName, tag string) error {
	tagPath, err := pathFor(manifestTagPathSpec{name: repoName, tag: tag})
	if err != nil {
		return err
	}
	return v.remove(ctx, kindTag, tagPath)
}

// remove deletes the subtree at p. Paths that are already gone are skipped,
// so removals can be repeated safely.
func (v *Vacuum) remove(ctx context.Context, kind, p string) error {
	logger := dcontext.GetLoggerWithField(ctx, "path", p)

	if _, err := v.driver.Stat(ctx, p); err != nil {
		if isPathNotFound(err) {
			logger.Debug("path already absent, skipping")
			return nil
		}
		return v.fail(ctx, kind, p, err)
	}

	if v.dryRun {
		dcontext.GetLogger(ctx).Infof("DRYRUN: would have deleted %s", p)
	} else {
		dcontext.GetLogger(ctx).Infof("Deleting %s", p)
	}

	err := retry.Do(
		func() error {
			return v.driver.Delete(ctx, p)
		},
		retry.Context(ctx),
		retry.Attempts(deleteAttempts),
		retry.Delay(deleteDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !isPathNotFound(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.WithError(err).Warnf("Retrying deletion (attempt %d)", n+2)
		}),
	)
	if err != nil {
		if isPathNotFound(err) {
			logger.Debug("path already absent, skipping")
			return nil
		}
		return v.fail(ctx, kind, p, err)
	}

	v.removed = append(v.removed, p)
	metrics.Deletions.WithValues(kind, v.mode()).Inc(1)
	return nil
}

func (v *Vacuum) fail(ctx context.Context, kind, p string, err error) error {
	dcontext.GetLoggerWithField(ctx, "path", p).WithError(err).Error("Failed to delete directory")
	metrics.DeletionFailures.WithValues(kind).Inc(1)
	return fmt.Errorf("delete %s: %w", p, err)
}

func (v *Vacuum) mode() string {
	if v.dryRun {
		return "dryrun"
	}
	return "real"
}
