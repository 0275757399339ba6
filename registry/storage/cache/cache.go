// Package cache provides facilities to speed up access to the storage
// backend. The cleaner decodes the same manifest revisions over and over
// while answering reachability questions; caches here remember the blob
// references of revisions already decoded. Manifest revisions are content
// addressed, so an entry never goes stale.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// ErrNotFound is returned when a revision has no cached references.
var ErrNotFound = errors.New("not found")

// ReferenceCache remembers the blob references decoded from manifest
// revisions.
type ReferenceCache interface {
	// References returns the cached references of the revision, or
	// ErrNotFound.
	References(ctx context.Context, revision digest.Digest) ([]digest.Digest, error)

	// SetReferences records the references decoded from the revision.
	SetReferences(ctx context.Context, revision digest.Digest, references []digest.Digest) error
}

// ValidateReferences provides a helper function to ensure that a list of
// references has enough information to be cached.
func ValidateReferences(references []digest.Digest) error {
	for i, dgst := range references {
		if err := dgst.Validate(); err != nil {
			return fmt.Errorf("cache: reference %d: %w", i, err)
		}
	}
	return nil
}
