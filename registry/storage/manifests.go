package storage

import (
	"context"
	"errors"

	"github.com/distribution/registry-cleaner/internal/dcontext"
	"github.com/distribution/registry-cleaner/manifest"
	"github.com/distribution/registry-cleaner/manifest/schema1"
	"github.com/distribution/registry-cleaner/manifest/schema2"
	"github.com/distribution/registry-cleaner/registry/storage/cache"
	"github.com/opencontainers/go-digest"
)

// References decodes a manifest and returns the digests of the blobs it
// references: the fsLayers of a schema 1 manifest, the layers and config of
// a schema 2 or OCI image manifest.
func References(content []byte) ([]digest.Digest, error) {
	versioned, err := manifest.DetectVersion(content)
	if err != nil {
		return nil, err
	}

	switch versioned.SchemaVersion {
	case schema1.SchemaVersion:
		m, err := schema1.Unmarshal(content)
		if err != nil {
			return nil, err
		}
		return m.References()
	case schema2.SchemaVersion:
		m, err := schema2.Unmarshal(content)
		if err != nil {
			return nil, err
		}
		return m.References()
	default:
		return nil, manifest.ErrUnsupportedSchema{SchemaVersion: versioned.SchemaVersion}
	}
}

// layersForRevision returns the blobs referenced by the manifest stored for
// revision in the blob pool. A manifest that cannot be read or decoded is
// logged and references nothing.
func (c *Collector) layersForRevision(ctx context.Context, revision digest.Digest) []digest.Digest {
	logger := dcontext.GetLoggerWithField(ctx, "revision", revision)

	if c.references != nil {
		references, err := c.references.References(ctx, revision)
		if err == nil {
			return references
		}
		if !errors.Is(err, cache.ErrNotFound) {
			logger.WithError(err).Debug("reference cache lookup failed")
		}
	}

	blobPath, err := pathFor(blobDataPathSpec{digest: revision})
	if err != nil {
		logger.WithError(err).Error("Failed to read layers from blob")
		return nil
	}

	content, err := c.driver.GetContent(ctx, blobPath)
	if err != nil {
		logger.WithError(err).Error("Failed to read layers from blob")
		return nil
	}

	references, err := References(content)
	if err != nil {
		logger.WithError(err).Error("Failed to read layers from blob")
		return nil
	}

	if c.references != nil {
		if err := c.references.SetReferences(ctx, revision, references); err != nil {
			logger.WithError(err).Debug("failed to cache references")
		}
	}

	return references
}
