// Package manifest holds the parts of image manifests shared by every schema
// version. Schema specific definitions live in the sub-packages.
package manifest

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
)

// Versioned provides a struct with the manifest schemaVersion and mediaType.
// Incoming content with unknown schema version can be decoded against this
// struct to check the version.
type Versioned struct {
	// SchemaVersion is the image manifest schema that this image follows
	SchemaVersion int `json:"schemaVersion"`

	// MediaType is the media type of this schema.
	MediaType string `json:"mediaType,omitempty"`
}

// ErrSchemaVersionMissing is returned for documents without a schemaVersion
// field.
var ErrSchemaVersionMissing = errors.New("manifest has no schemaVersion")

// ErrUnsupportedSchema is returned for documents with a schemaVersion no
// decoder exists for.
type ErrUnsupportedSchema struct {
	SchemaVersion int
}

func (err ErrUnsupportedSchema) Error() string {
	return fmt.Sprintf("unsupported manifest schemaVersion %d", err.SchemaVersion)
}

// DetectVersion reads the schema version header of a manifest document.
func DetectVersion(content []byte) (Versioned, error) {
	var probe struct {
		SchemaVersion *int   `json:"schemaVersion"`
		MediaType     string `json:"mediaType,omitempty"`
	}
	if err := json.Unmarshal(content, &probe); err != nil {
		return Versioned{}, err
	}
	if probe.SchemaVersion == nil {
		return Versioned{}, ErrSchemaVersionMissing
	}
	return Versioned{SchemaVersion: *probe.SchemaVersion, MediaType: probe.MediaType}, nil
}
