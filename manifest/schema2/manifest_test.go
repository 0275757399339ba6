package schema2

import (
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

const (
	configDigest = digest.Digest("sha256:b5b2b2c507a0944348e0303114d8d93aaaa081732b86451d9bce1f432a537bc7")
	layerDigest  = digest.Digest("sha256:e692418e4cbaf90ca69d05a66403747baa33ee08806650b51fab815ad7fc331f")
)

func TestReferencesWithConfig(t *testing.T) {
	m, err := Unmarshal([]byte(`{
		"schemaVersion": 2,
		"mediaType": "` + MediaTypeManifest + `",
		"config": {"mediaType": "application/vnd.docker.container.image.v1+json", "size": 7023, "digest": "` + configDigest.String() + `"},
		"layers": [{"mediaType": "application/vnd.docker.image.rootfs.diff.tar.gzip", "size": 32654, "digest": "` + layerDigest.String() + `"}]
	}`))
	require.NoError(t, err)

	refs, err := m.References()
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{layerDigest, configDigest}, refs)
}

func TestReferencesWithoutConfig(t *testing.T) {
	m, err := Unmarshal([]byte(`{"schemaVersion": 2, "layers": [{"digest": "` + layerDigest.String() + `"}]}`))
	require.NoError(t, err)

	refs, err := m.References()
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{layerDigest}, refs)
}

func TestUnmarshalRejects(t *testing.T) {
	for name, content := range map[string]string{
		"wrong version":  `{"schemaVersion": 1, "layers": []}`,
		"missing layers": `{"schemaVersion": 2, "config": {"digest": "` + configDigest.String() + `"}}`,
		"bad json":       `{"schemaVersion": 2,`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(content))
			require.Error(t, err)
		})
	}
}

func TestReferencesEmptyConfigDigest(t *testing.T) {
	m, err := Unmarshal([]byte(`{"schemaVersion": 2, "config": {}, "layers": []}`))
	require.NoError(t, err)
	_, err = m.References()
	require.Error(t, err)
}
