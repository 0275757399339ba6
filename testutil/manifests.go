package testutil

import (
	"encoding/json"

	"github.com/distribution/registry-cleaner/manifest"
	"github.com/distribution/registry-cleaner/manifest/schema1"
	"github.com/distribution/registry-cleaner/manifest/schema2"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// MakeSchema1Manifest constructs a schema 1 manifest from a given list of
// digests and returns its canonical JSON.
//
// Deprecated: Docker Image Manifest v2, Schema 1 is deprecated since 2015.
// It is only built here because old stores still hold such revisions.
func MakeSchema1Manifest(digests []digest.Digest) ([]byte, error) {
	mfst := schema1.Manifest{
		Versioned: manifest.Versioned{
			SchemaVersion: schema1.SchemaVersion,
		},
		Name:     "who",
		Tag:      "cares",
		FSLayers: []schema1.FSLayer{},
	}

	for _, d := range digests {
		mfst.FSLayers = append(mfst.FSLayers, schema1.FSLayer{BlobSum: d})
	}

	return json.MarshalIndent(&mfst, "", "   ")
}

// MakeSchema2Manifest constructs a schema 2 manifest from a config digest
// and a list of layer digests and returns its JSON. An empty config digest
// leaves the config out.
func MakeSchema2Manifest(config digest.Digest, layers []digest.Digest) ([]byte, error) {
	mfst := schema2.Manifest{
		Versioned: manifest.Versioned{
			SchemaVersion: schema2.SchemaVersion,
			MediaType:     schema2.MediaTypeManifest,
		},
		Layers: []v1.Descriptor{},
	}

	if config != "" {
		mfst.Config = &v1.Descriptor{
			MediaType: "application/vnd.docker.container.image.v1+json",
			Digest:    config,
			Size:      1,
		}
	}

	for _, layer := range layers {
		mfst.Layers = append(mfst.Layers, v1.Descriptor{
			MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip",
			Digest:    layer,
			Size:      1,
		})
	}

	return json.MarshalIndent(&mfst, "", "   ")
}
