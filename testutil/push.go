package testutil

import (
	"context"
	"crypto/rand"
	"fmt"
	"path"

	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// Paths of the registry storage layout, rooted at the data directory.

// BlobDataPath returns the path of the data of a blob in the blob pool.
func BlobDataPath(dgst digest.Digest) string {
	return path.Join("/blobs", dgst.Algorithm().String(), dgst.Encoded()[:2], dgst.Encoded(), "data")
}

// RepositoryPath returns the directory of a repository.
func RepositoryPath(repo string) string {
	return path.Join("/repositories", repo)
}

// RevisionPath returns the revision directory of a manifest in a repository.
func RevisionPath(repo string, dgst digest.Digest) string {
	return path.Join(RepositoryPath(repo), "_manifests", "revisions", dgst.Algorithm().String(), dgst.Encoded())
}

// LayerPath returns the layer link directory of a blob in a repository.
func LayerPath(repo string, dgst digest.Digest) string {
	return path.Join(RepositoryPath(repo), "_layers", dgst.Algorithm().String(), dgst.Encoded())
}

// TagPath returns the directory of a tag.
func TagPath(repo, tag string) string {
	return path.Join(RepositoryPath(repo), "_manifests", "tags", tag)
}

// TagCurrentPath returns the link to the current revision of a tag.
func TagCurrentPath(repo, tag string) string {
	return path.Join(TagPath(repo, tag), "current", "link")
}

// TagIndexPath returns the index entry directory of a revision in a tag.
func TagIndexPath(repo, tag string, dgst digest.Digest) string {
	return path.Join(TagPath(repo, tag), "index", dgst.Algorithm().String(), dgst.Encoded())
}

// PushBlob stores content in the blob pool and returns its digest.
func PushBlob(ctx context.Context, driver storagedriver.StorageDriver, content []byte) (digest.Digest, error) {
	dgst := digest.FromBytes(content)
	if err := driver.PutContent(ctx, BlobDataPath(dgst), content); err != nil {
		return "", err
	}
	return dgst, nil
}

// PushManifest stores a manifest in the blob pool and links it as a
// revision of the repository.
func PushManifest(ctx context.Context, driver storagedriver.StorageDriver, repo string, content []byte) (digest.Digest, error) {
	dgst, err := PushBlob(ctx, driver, content)
	if err != nil {
		return "", err
	}
	if err := driver.PutContent(ctx, path.Join(RevisionPath(repo, dgst), "link"), []byte(dgst)); err != nil {
		return "", err
	}
	return dgst, nil
}

// LinkLayers links blobs into the layer directory of a repository.
func LinkLayers(ctx context.Context, driver storagedriver.StorageDriver, repo string, layers ...digest.Digest) error {
	for _, layer := range layers {
		if err := driver.PutContent(ctx, path.Join(LayerPath(repo, layer), "link"), []byte(layer)); err != nil {
			return err
		}
	}
	return nil
}

// TagManifest points a tag at a revision and records the revision in the
// tag's index, the way the registry does on push.
func TagManifest(ctx context.Context, driver storagedriver.StorageDriver, repo, tag string, dgst digest.Digest) error {
	if err := driver.PutContent(ctx, TagCurrentPath(repo, tag), []byte(dgst)); err != nil {
		return err
	}
	return driver.PutContent(ctx, path.Join(TagIndexPath(repo, tag, dgst), "link"), []byte(dgst))
}

// CreateRandomLayers returns n digests of random content. The content itself
// is not stored.
func CreateRandomLayers(n int) ([]digest.Digest, error) {
	digests := make([]digest.Digest, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("creating random layer %d: %w", i, err)
		}
		digests = append(digests, digest.FromBytes(buf))
	}
	return digests, nil
}
