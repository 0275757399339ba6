package storage

import (
	"context"
	"path"
	"sort"
	"time"

	cleaner "github.com/distribution/registry-cleaner"
	"github.com/distribution/registry-cleaner/internal/dcontext"
	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
)

// TagDescriptor describes a tag by the last modification of its current
// link, which is rewritten whenever the tag is pushed.
type TagDescriptor struct {
	Name    string
	ModTime time.Time
}

// TagStore lists the tags of repositories in a backend storage driver.
type TagStore struct {
	driver storagedriver.StorageDriver
}

// NewTagStore returns a TagStore reading through driver.
func NewTagStore(driver storagedriver.StorageDriver) *TagStore {
	return &TagStore{driver: driver}
}

// All returns the tags of repo in lexical order. Tags whose current link
// can not be stat'ed are logged and left out. A repository without a tags
// directory has no tags; a repository that does not exist yields
// cleaner.ErrRepositoryUnknown.
func (ts *TagStore) All(ctx context.Context, repo string) ([]TagDescriptor, error) {
	if err := validateRepository(repo); err != nil {
		return nil, err
	}

	tagsPath, err := pathFor(manifestTagsPathSpec{name: repo})
	if err != nil {
		return nil, err
	}

	entries, err := ts.driver.List(ctx, tagsPath)
	if err != nil {
		if !isPathNotFound(err) {
			return nil, err
		}
		return nil, ts.repositoryExists(ctx, repo)
	}
	sort.Strings(entries)

	var tags []TagDescriptor
	for _, entry := range entries {
		fi, err := ts.driver.Stat(ctx, entry)
		if err != nil {
			if isPathNotFound(err) {
				continue
			}
			if isInvalidPath(err) {
				dcontext.GetLoggerWithField(ctx, "path", entry).Warn("Skipping foreign entry")
				continue
			}
			return nil, err
		}
		if !fi.IsDir() {
			continue
		}

		tag := path.Base(entry)
		currentPath, err := pathFor(manifestTagCurrentPathSpec{name: repo, tag: tag})
		if err != nil {
			return nil, err
		}
		current, err := ts.driver.Stat(ctx, currentPath)
		if err != nil {
			dcontext.GetLoggerWithField(ctx, "path", currentPath).WithError(err).Warnf("Skipping tag %s:%s", repo, tag)
			continue
		}
		tags = append(tags, TagDescriptor{Name: tag, ModTime: current.ModTime()})
	}

	return tags, nil
}

// repositoryExists returns cleaner.ErrRepositoryUnknown unless the
// repository directory is present.
func (ts *TagStore) repositoryExists(ctx context.Context, repo string) error {
	repoPath, err := pathFor(repositoryPathSpec{name: repo})
	if err != nil {
		return err
	}

	if _, err := ts.driver.Stat(ctx, repoPath); err != nil {
		if isPathNotFound(err) {
			return cleaner.ErrRepositoryUnknown{Name: repo}
		}
		return err
	}
	return nil
}
