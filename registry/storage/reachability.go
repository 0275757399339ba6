package storage

import (
	"context"
	"path"
	"sort"

	"github.com/distribution/registry-cleaner/internal/dcontext"
	"github.com/opencontainers/go-digest"
)

// The reachability questions below are answered by scanning the store on
// every call. Nothing is indexed ahead of time, so each answer reflects the
// deletions made earlier in the same run.

// tagNames returns the names of the tag directories of a repository in
// lexical order. A missing tags directory is returned as a
// storagedriver.PathNotFoundError.
func (c *Collector) tagNames(ctx context.Context, repo string) ([]string, error) {
	tagsPath, err := pathFor(manifestTagsPathSpec{name: repo})
	if err != nil {
		return nil, err
	}

	entries, err := c.driver.List(ctx, tagsPath)
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	tags := make([]string, 0, len(entries))
	for _, entry := range entries {
		fi, err := c.driver.Stat(ctx, entry)
		if err != nil {
			if isPathNotFound(err) || isInvalidPath(err) {
				continue
			}
			return nil, err
		}
		if fi.IsDir() {
			tags = append(tags, path.Base(entry))
		}
	}
	return tags, nil
}

// currentRevision returns the revision the tag currently points at. A link
// that is missing or unreadable is logged and reported as absent.
func (c *Collector) currentRevision(ctx context.Context, repo, tag string) (digest.Digest, bool) {
	currentPath, err := pathFor(manifestTagCurrentPathSpec{name: repo, tag: tag})
	if err != nil {
		dcontext.GetLogger(ctx).WithError(err).Errorf("Failed to resolve current link of %s:%s", repo, tag)
		return "", false
	}

	revision, err := readLink(ctx, c.driver, currentPath)
	if err != nil {
		dcontext.GetLoggerWithField(ctx, "path", currentPath).WithError(err).Error("Failed to read digest from link")
		return "", false
	}
	return revision, true
}

// manifestSharedInRepo reports whether a tag of repo other than excludingTag
// currently points at the manifest dgst.
func (c *Collector) manifestSharedInRepo(ctx context.Context, repo, excludingTag string, dgst digest.Digest) (bool, error) {
	tags, err := c.tagNames(ctx, repo)
	if err != nil {
		return false, err
	}

	for _, tag := range tags {
		if tag == excludingTag {
			continue
		}
		if revision, ok := c.currentRevision(ctx, repo, tag); ok && revision == dgst {
			return true, nil
		}
	}
	return false, nil
}

// layerSharedInRepo reports whether a tag of repo other than excludingTag
// currently points at a manifest referencing the blob dgst.
func (c *Collector) layerSharedInRepo(ctx context.Context, repo, excludingTag string, dgst digest.Digest) (bool, error) {
	tags, err := c.tagNames(ctx, repo)
	if err != nil {
		return false, err
	}

	for _, tag := range tags {
		if tag == excludingTag {
			continue
		}
		revision, ok := c.currentRevision(ctx, repo, tag)
		if !ok {
			continue
		}
		for _, layer := range c.layersForRevision(ctx, revision) {
			if layer == dgst {
				return true, nil
			}
		}
	}
	return false, nil
}

// protectedLayers returns every blob referenced by the current manifest of
// any tag in any repository of the store.
func (c *Collector) protectedLayers(ctx context.Context) (map[digest.Digest]struct{}, error) {
	root, err := pathFor(repositoriesRootPathSpec{})
	if err != nil {
		return nil, err
	}

	revisions, err := collectLinks(ctx, c.driver, root, currentLinkDir)
	if err != nil {
		return nil, err
	}

	protected := make(map[digest.Digest]struct{})
	for _, revision := range revisions {
		for _, layer := range c.layersForRevision(ctx, revision) {
			protected[layer] = struct{}{}
		}
	}
	return protected, nil
}

// taggedRevisions returns the revisions the tags of repo currently point
// at. A repository without tags has none.
func (c *Collector) taggedRevisions(ctx context.Context, repo string) (map[digest.Digest]struct{}, error) {
	tags, err := c.tagNames(ctx, repo)
	if err != nil {
		if isPathNotFound(err) {
			return map[digest.Digest]struct{}{}, nil
		}
		return nil, err
	}

	tagged := make(map[digest.Digest]struct{}, len(tags))
	for _, tag := range tags {
		if revision, ok := c.currentRevision(ctx, repo, tag); ok {
			tagged[revision] = struct{}{}
		}
	}
	return tagged, nil
}
