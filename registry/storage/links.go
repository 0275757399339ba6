package storage

import (
	"context"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/distribution/registry-cleaner/internal/dcontext"
	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// linkFileName is the name of every file holding a digest indirection.
const linkFileName = "link"

// currentLinkDir is the directory of a tag holding its current link.
const currentLinkDir = "current"

// ErrInvalidLink is returned when the content of a link file is not a
// digest.
type ErrInvalidLink struct {
	Path string
	Err  error
}

func (err ErrInvalidLink) Error() string {
	return fmt.Sprintf("invalid link %s: %v", err.Path, err.Err)
}

func (err ErrInvalidLink) Unwrap() error {
	return err.Err
}

// readLink returns the digest stored in the link file at p. An absent file
// yields a storagedriver.PathNotFoundError, unparsable content an
// ErrInvalidLink; any other error comes from the driver.
func readLink(ctx context.Context, driver storagedriver.StorageDriver, p string) (digest.Digest, error) {
	content, err := driver.GetContent(ctx, p)
	if err != nil {
		return "", err
	}

	linked, err := digest.Parse(strings.TrimSpace(string(content)))
	if err != nil {
		return "", ErrInvalidLink{Path: p, Err: err}
	}

	return linked, nil
}

// isPathNotFound reports whether err means the path does not exist.
func isPathNotFound(err error) bool {
	var notFound storagedriver.PathNotFoundError
	return errors.As(err, &notFound)
}

// isInvalidPath reports whether err means the driver rejected the path,
// as it does for entries the store layout never creates.
func isInvalidPath(err error) bool {
	var invalid storagedriver.InvalidPathError
	return errors.As(err, &invalid)
}

// linkFunc is called with the path and digest of every link found by
// enumerateLinks.
type linkFunc func(p string, dgst digest.Digest) error

// enumerateLinks walks root and calls fn for every link file below it. When
// filter is set, only links whose parent directory is named filter are
// reported, so "current" selects the current revision of tags and skips
// their index entries; directories that can not hold such a link are not
// entered. Links that cannot be read are logged and skipped. A missing root
// has no links.
func enumerateLinks(ctx context.Context, driver storagedriver.StorageDriver, root, filter string, fn linkFunc) error {
	if _, err := driver.Stat(ctx, root); err != nil {
		if isPathNotFound(err) {
			return nil
		}
		return err
	}

	return storagedriver.WalkFallback(ctx, driver, root, func(fileInfo storagedriver.FileInfo) error {
		p := fileInfo.Path()
		if fileInfo.IsDir() {
			if filter == currentLinkDir && holdsNoCurrentLinks(p) {
				return storagedriver.ErrSkipDir
			}
			return nil
		}
		if path.Base(p) != linkFileName {
			return nil
		}
		if filter != "" && path.Base(path.Dir(p)) != filter {
			return nil
		}

		dgst, err := readLink(ctx, driver, p)
		if err != nil {
			if isPathNotFound(err) {
				dcontext.GetLoggerWithField(ctx, "path", p).Debug("link disappeared during walk")
				return nil
			}
			dcontext.GetLoggerWithField(ctx, "path", p).WithError(err).Error("Failed to read digest from link")
			return nil
		}

		return fn(p, dgst)
	})
}

// holdsNoCurrentLinks reports whether the directory p of a repository only
// holds layer links, revision links, uploads or tag index entries.
// Repository name components never start with an underscore, so the
// underscored names can not be mistaken for a repository.
func holdsNoCurrentLinks(p string) bool {
	base := path.Base(p)
	switch {
	case base == "_layers" || base == "_uploads":
		return true
	case base == "revisions" && path.Base(path.Dir(p)) == "_manifests":
		return true
	case base == "index" && path.Base(path.Dir(path.Dir(path.Dir(p)))) == "_manifests":
		return true
	}
	return false
}

// collectLinks returns the distinct digests enumerateLinks finds below root,
// in the order they were first seen.
func collectLinks(ctx context.Context, driver storagedriver.StorageDriver, root, filter string) ([]digest.Digest, error) {
	var (
		digests []digest.Digest
		seen    = make(map[digest.Digest]struct{})
	)
	err := enumerateLinks(ctx, driver, root, filter, func(_ string, dgst digest.Digest) error {
		if _, ok := seen[dgst]; !ok {
			seen[dgst] = struct{}{}
			digests = append(digests, dgst)
		}
		return nil
	})
	return digests, err
}
