package version

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFprintVersion(t *testing.T) {
	var buf bytes.Buffer
	FprintVersion(&buf)

	fields := strings.Fields(buf.String())
	require.Equal(t, []string{os.Args[0], Package(), Version()}, fields)
	require.Equal(t, "github.com/distribution/registry-cleaner", Package())
	require.True(t, strings.HasPrefix(Version(), "v"))
}
