// Package schema1 provides definitions for the deprecated Docker Image
// Manifest v2, Schema 1 specification, limited to what is needed to follow
// the layers a stored manifest references.
//
// Deprecated: Docker Image Manifest v2, Schema 1 is deprecated since 2015.
// Stores written by older registries still hold such manifests, so they are
// decoded for reachability only.
package schema1

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/distribution/registry-cleaner/manifest"
	"github.com/opencontainers/go-digest"
)

// SchemaVersion is the schemaVersion value of this package's manifests.
const SchemaVersion = 1

// FSLayer is a container struct for BlobSums defined in an image manifest
type FSLayer struct {
	// BlobSum is the tarsum of the referenced filesystem image layer
	BlobSum digest.Digest `json:"blobSum"`
}

// Manifest provides the base accessible fields for working with V2 image
// format in the registry. Signatures of signed manifests are ignored.
type Manifest struct {
	manifest.Versioned

	// Name is the name of the image's repository
	Name string `json:"name"`

	// Tag is the tag of the image specified by this manifest
	Tag string `json:"tag"`

	// FSLayers is a list of filesystem layer blobSums contained in this image
	FSLayers []FSLayer `json:"fsLayers"`
}

// Unmarshal decodes a schema 1 manifest, signed or not.
func Unmarshal(content []byte) (*Manifest, error) {
	m := new(Manifest)
	if err := json.Unmarshal(content, m); err != nil {
		return nil, err
	}
	if m.SchemaVersion != SchemaVersion {
		return nil, manifest.ErrUnsupportedSchema{SchemaVersion: m.SchemaVersion}
	}
	if m.FSLayers == nil {
		return nil, errors.New("schema1 manifest has no fsLayers")
	}
	return m, nil
}

// References returns the digests of all layers referenced by the manifest,
// in manifest order.
func (m *Manifest) References() ([]digest.Digest, error) {
	dependencies := make([]digest.Digest, 0, len(m.FSLayers))
	for i, fsLayer := range m.FSLayers {
		if err := fsLayer.BlobSum.Validate(); err != nil {
			return nil, fmt.Errorf("fsLayers[%d]: invalid blobSum %q: %v", i, fsLayer.BlobSum, err)
		}
		dependencies = append(dependencies, fsLayer.BlobSum)
	}
	return dependencies, nil
}
