package pruner

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/distribution/registry-cleaner/internal/dcontext"
	"github.com/distribution/registry-cleaner/registry/storage/driver/filesystem"
	"github.com/distribution/registry-cleaner/testutil"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestParseExclude(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected []string
	}{
		{input: "", expected: nil},
		{input: " , ,", expected: nil},
		{input: "latest", expected: []string{"latest"}},
		{input: "latest, release-* ,stable", expected: []string{"latest", "release-*", "stable"}},
		{input: "v[!0-9]*", expected: []string{"v[!0-9]*"}},
		{input: " v[^0-9]* ", expected: []string{"v[^0-9]*"}},
	} {
		exclude, err := ParseExclude(tc.input)
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.expected, exclude, tc.input)
	}

	_, err := ParseExclude("latest,release-[")
	require.Error(t, err)
}

func TestTranslateGlob(t *testing.T) {
	for pattern, expected := range map[string]string{
		"latest":     "latest",
		"v[!0-9]*":   "v[^0-9]*",
		"v[^0-9]*":   `v[\^0-9]*`,
		"v[!^]":      "v[^^]",
		"v[]a]":      `v[\]a]`,
		"v[!]a]":     `v[^\]a]`,
		"v[^]":       `v[\^]`,
		`v\[!x]`:     `v\[!x]`,
		"a[!b]c[!d]": "a[^b]c[^d]",
		"release-[":  "release-[",
	} {
		require.Equal(t, expected, translateGlob(pattern), pattern)
	}
}

func TestExcluded(t *testing.T) {
	patterns, err := ParseExclude("latest,release-*,v1.?,build-[!a-z]*,rc[^0]")
	require.NoError(t, err)
	exclude, err := compileExclude(patterns)
	require.NoError(t, err)

	for tag, expected := range map[string]bool{
		"latest":      true,
		"latest-rc":   false,
		"release-":    true,
		"release-1.2": true,
		"v1.2":        true,
		"v1.23":       false,
		"build-42":    true,
		"build-x":     false,
		"rc0":         true,
		"rc1":         false,
		"stable":      false,
	} {
		require.Equal(t, expected, excluded(tag, exclude), tag)
	}
}

func tagsAt(base time.Time, offsets map[string]int) []Tag {
	var tags []Tag
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if offset, ok := offsets[name]; ok {
			tags = append(tags, Tag{Name: name, ModTime: base.Add(time.Duration(offset) * time.Minute)})
		}
	}
	return tags
}

func names(tags []Tag) []string {
	var names []string
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}

func TestSelectExpired(t *testing.T) {
	base := time.Unix(1700000000, 0)
	tags := tagsAt(base, map[string]int{"a": 3, "b": 1, "c": 5, "d": 2, "e": 4})

	require.Equal(t, []string{"e", "a", "d", "b"}, names(SelectExpired(tags, 1)))
	require.Equal(t, []string{"d", "b"}, names(SelectExpired(tags, 3)))
	require.Equal(t, []string{"c", "e", "a", "d", "b"}, names(SelectExpired(tags, 0)))
	require.Empty(t, SelectExpired(tags, 5))
	require.Empty(t, SelectExpired(tags, 30))
	require.Empty(t, SelectExpired(nil, 0))

	// the input is left in enumeration order
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, names(tags))
}

func TestSelectExpiredTies(t *testing.T) {
	base := time.Unix(1700000000, 0)
	tags := tagsAt(base, map[string]int{"a": 1, "b": 1, "c": 2, "d": 1})

	require.Equal(t, []string{"a", "b", "d"}, names(SelectExpired(tags, 1)))
	require.Equal(t, []string{"b", "d"}, names(SelectExpired(tags, 2)))
}

// TestSelectExpiredKeepsNewest checks on random inputs that exactly the
// tags outside the window are selected, and that none of them is newer
// than a kept tag.
func TestSelectExpiredKeepsNewest(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Unix(1700000000, 0)

	for i := 0; i < 200; i++ {
		tags := make([]Tag, rng.Intn(12))
		for j := range tags {
			tags[j] = Tag{
				Name:    string(rune('a' + j)),
				ModTime: base.Add(time.Duration(rng.Intn(6)) * time.Second),
			}
		}
		keep := rng.Intn(len(tags) + 2)

		expired := SelectExpired(tags, keep)
		expectedLen := len(tags) - keep
		if expectedLen < 0 {
			expectedLen = 0
		}
		require.Len(t, expired, expectedLen)

		selected := make(map[string]bool)
		for _, tag := range expired {
			selected[tag.Name] = true
		}
		for _, kept := range tags {
			if selected[kept.Name] {
				continue
			}
			for _, tag := range expired {
				require.False(t, tag.ModTime.After(kept.ModTime), "expired %s is newer than kept %s", tag.Name, kept.Name)
			}
		}
	}
}

func TestListTags(t *testing.T) {
	ctx := dcontext.Background()
	root := t.TempDir()
	driver := filesystem.New(filesystem.DriverParameters{RootDirectory: root})

	content, err := testutil.MakeSchema2Manifest("", []digest.Digest{digest.FromString("layer")})
	require.NoError(t, err)
	dgst, err := testutil.PushManifest(ctx, driver, "app", content)
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	for i, tag := range []string{"v1", "latest", "release-1", "v2"} {
		require.NoError(t, testutil.TagManifest(ctx, driver, "app", tag, dgst))
		modTime := base.Add(time.Duration(i) * time.Hour)
		current := filepath.Join(root, filepath.FromSlash(testutil.TagCurrentPath("app", tag)))
		require.NoError(t, os.Chtimes(current, modTime, modTime))
	}

	tags, err := ListTags(ctx, driver, "app", []string{"latest", "release-*"})
	require.NoError(t, err)
	require.Equal(t, []Tag{
		{Name: "v1", ModTime: base},
		{Name: "v2", ModTime: base.Add(3 * time.Hour)},
	}, normalize(tags))
}

// normalize drops monotonic clock readings and locations so times compare
// with require.Equal.
func normalize(tags []Tag) []Tag {
	for i := range tags {
		tags[i].ModTime = time.Unix(tags[i].ModTime.Unix(), 0)
	}
	return tags
}
