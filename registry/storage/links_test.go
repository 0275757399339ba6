package storage

import (
	"path"
	"testing"

	"github.com/distribution/registry-cleaner/testutil"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestReadLink(t *testing.T) {
	s := newTestStore(t)
	dgst := digest.FromString("manifest")

	require.NoError(t, s.driver.PutContent(s.ctx, "/link", []byte(dgst)))
	linked, err := readLink(s.ctx, s.driver, "/link")
	require.NoError(t, err)
	require.Equal(t, dgst, linked)

	// trailing newlines written by hand are tolerated
	require.NoError(t, s.driver.PutContent(s.ctx, "/link", []byte(dgst+"\n")))
	linked, err = readLink(s.ctx, s.driver, "/link")
	require.NoError(t, err)
	require.Equal(t, dgst, linked)

	_, err = readLink(s.ctx, s.driver, "/missing/link")
	require.True(t, isPathNotFound(err))

	require.NoError(t, s.driver.PutContent(s.ctx, "/corrupt/link", []byte("sha256:")))
	_, err = readLink(s.ctx, s.driver, "/corrupt/link")
	var invalid ErrInvalidLink
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "/corrupt/link", invalid.Path)
	require.ErrorIs(t, err, digest.ErrDigestInvalidFormat)
	require.False(t, isPathNotFound(err))
}

func TestEnumerateLinks(t *testing.T) {
	s := newTestStore(t)
	m1 := s.image("app", layer("layerA"))
	m2 := s.image("app", layer("layerB"))
	s.tag("app", "v1", m1)
	s.tag("app", "v1", m2)
	s.tag("web/frontend", "latest", m1)

	// a tag named current must not make its index entries look current
	s.tag("app", "current", m1)

	var currents []string
	err := enumerateLinks(s.ctx, s.driver, "/repositories", "current", func(p string, dgst digest.Digest) error {
		currents = append(currents, p)
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		testutil.TagCurrentPath("app", "current"),
		testutil.TagCurrentPath("app", "v1"),
		testutil.TagCurrentPath("web/frontend", "latest"),
	}, currents)

	linked, err := collectLinks(s.ctx, s.driver, testutil.TagPath("app", "v1"), "")
	require.NoError(t, err)
	require.ElementsMatch(t, []digest.Digest{m1, m2}, linked)
}

func TestEnumerateCurrentLinksSkipsNonTagDirectories(t *testing.T) {
	s := newTestStore(t)
	dgst := s.image("app", layer("layerA"))
	s.tag("app", "v1", dgst)

	// only a walk entering these directories could report them
	for _, p := range []string{
		"/repositories/app/_layers/current/link",
		"/repositories/app/_uploads/current/link",
		"/repositories/app/_manifests/revisions/current/link",
		"/repositories/app/_manifests/tags/v1/index/current/link",
	} {
		require.NoError(t, s.driver.PutContent(s.ctx, p, []byte(dgst)))
	}

	var currents []string
	err := enumerateLinks(s.ctx, s.driver, "/repositories", currentLinkDir, func(p string, _ digest.Digest) error {
		currents = append(currents, p)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{testutil.TagCurrentPath("app", "v1")}, currents)
}

func TestHoldsNoCurrentLinks(t *testing.T) {
	for _, tc := range []struct {
		dir      string
		expected bool
	}{
		{"/repositories/app/_layers", true},
		{"/repositories/app/_uploads", true},
		{"/repositories/app/_manifests/revisions", true},
		{"/repositories/app/_manifests/tags/v1/index", true},
		{"/repositories/app/_manifests", false},
		{"/repositories/app/_manifests/tags", false},
		{"/repositories/app/_manifests/tags/index", false},
		{"/repositories/app/_manifests/tags/revisions", false},
		{"/repositories/app/_manifests/tags/v1/current", false},
		{"/repositories/revisions", false},
		{"/repositories/a/tags/b/index", false},
	} {
		require.Equal(t, tc.expected, holdsNoCurrentLinks(tc.dir), tc.dir)
	}
}

func TestEnumerateLinksSkipsUnreadableLinks(t *testing.T) {
	s := newTestStore(t)
	dgst := digest.FromString("manifest")
	require.NoError(t, s.driver.PutContent(s.ctx, "/links/a/link", []byte("garbage")))
	require.NoError(t, s.driver.PutContent(s.ctx, "/links/b/link", []byte(dgst)))
	require.NoError(t, s.driver.PutContent(s.ctx, "/links/b/data", []byte("not a link")))

	linked, err := collectLinks(s.ctx, s.driver, "/links", "")
	require.NoError(t, err)
	require.Equal(t, []digest.Digest{dgst}, linked)
}

func TestEnumerateLinksMissingRoot(t *testing.T) {
	s := newTestStore(t)
	called := false
	err := enumerateLinks(s.ctx, s.driver, path.Join("/repositories", "nothing"), "", func(string, digest.Digest) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}
