package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	Deletions.WithValues("layer", "dryrun").Inc(1)
	DeletionFailures.WithValues("revision").Inc(1)

	path := filepath.Join(t.TempDir(), "cleaner.prom")
	require.NoError(t, WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), `registry_cleaner_deletions_total{kind="layer",mode="dryrun"}`)
	require.Contains(t, string(content), `registry_cleaner_deletion_failures_total{kind="revision"}`)
}

func TestNewRegistryIsPrivate(t *testing.T) {
	first, err := NewRegistry()
	require.NoError(t, err)
	second, err := NewRegistry()
	require.NoError(t, err)
	require.NotSame(t, first, second)
}
