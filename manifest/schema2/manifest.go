// Package schema2 decodes schemaVersion 2 image manifests: Docker Image
// Manifest v2, Schema 2 and OCI image manifests share the layout used here.
package schema2

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/distribution/registry-cleaner/manifest"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// SchemaVersion is the schemaVersion value of this package's manifests.
	SchemaVersion = 2

	// MediaTypeManifest specifies the mediaType for the current version.
	MediaTypeManifest = "application/vnd.docker.distribution.manifest.v2+json"
)

// Manifest defines a schema2 manifest. Config is optional so image indexes
// and artifacts without one still decode.
type Manifest struct {
	manifest.Versioned

	// Config references the image configuration as a blob.
	Config *v1.Descriptor `json:"config,omitempty"`

	// Layers lists descriptors for the layers referenced by the
	// configuration.
	Layers []v1.Descriptor `json:"layers"`
}

// Unmarshal decodes a schemaVersion 2 manifest.
func Unmarshal(content []byte) (*Manifest, error) {
	m := new(Manifest)
	if err := json.Unmarshal(content, m); err != nil {
		return nil, err
	}
	if m.SchemaVersion != SchemaVersion {
		return nil, manifest.ErrUnsupportedSchema{SchemaVersion: m.SchemaVersion}
	}
	if m.Layers == nil {
		return nil, errors.New("schema2 manifest has no layers")
	}
	return m, nil
}

// References returns the digests of the layers followed by the config blob,
// when the manifest has one.
func (m *Manifest) References() ([]digest.Digest, error) {
	references := make([]digest.Digest, 0, len(m.Layers)+1)
	for i, layer := range m.Layers {
		if err := layer.Digest.Validate(); err != nil {
			return nil, fmt.Errorf("layers[%d]: invalid digest %q: %v", i, layer.Digest, err)
		}
		references = append(references, layer.Digest)
	}
	if m.Config != nil {
		if err := m.Config.Digest.Validate(); err != nil {
			return nil, fmt.Errorf("config: invalid digest %q: %v", m.Config.Digest, err)
		}
		references = append(references, m.Config.Digest)
	}
	return references, nil
}
