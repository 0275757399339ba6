package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/distribution/registry-cleaner/internal/dcontext"
	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
	"github.com/distribution/registry-cleaner/registry/storage/driver/dryrun"
	"github.com/distribution/registry-cleaner/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestVacuumRemovesAndRecords(t *testing.T) {
	s := newTestStore(t)
	layerA := layer("layerA")
	dgst := s.image("app", layerA)
	s.tag("app", "v1", dgst)

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	ctx := dcontext.WithLogger(s.ctx, logrus.NewEntry(logger))

	v := NewVacuum(s.driver, false)
	require.NoError(t, v.RemoveLayer(ctx, "app", layerA))
	require.NoError(t, v.RemoveTagIndexEntry(ctx, "app", "v1", dgst))
	require.NoError(t, v.RemoveManifestRevision(ctx, "app", dgst))
	require.NoError(t, v.DeleteTag(ctx, "app", "v1"))

	expected := []string{
		testutil.LayerPath("app", layerA),
		testutil.TagIndexPath("app", "v1", dgst),
		testutil.RevisionPath("app", dgst),
		testutil.TagPath("app", "v1"),
	}
	require.Equal(t, expected, v.Removed())
	for _, p := range expected {
		require.False(t, s.exists(p))
		require.Contains(t, buf.String(), "Deleting "+p)
	}
	require.NotContains(t, buf.String(), "DRYRUN")
}

func TestVacuumSkipsAbsentPaths(t *testing.T) {
	s := newTestStore(t)
	v := NewVacuum(s.driver, false)

	require.NoError(t, v.RemoveLayer(s.ctx, "app", layer("layerA")))
	require.NoError(t, v.DeleteTag(s.ctx, "app", "v1"))
	require.Empty(t, v.Removed())
}

func TestVacuumDryRun(t *testing.T) {
	s := newTestStore(t)
	layerA := layer("layerA")
	s.image("app", layerA)
	before := s.files()

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	ctx := dcontext.WithLogger(s.ctx, logrus.NewEntry(logger))

	d := dryrun.New(s.driver)
	v := NewVacuum(d, true)
	require.NoError(t, v.RemoveLayer(ctx, "app", layerA))
	// a second removal sees the simulated deletion
	require.NoError(t, v.RemoveLayer(ctx, "app", layerA))

	p := testutil.LayerPath("app", layerA)
	require.Equal(t, []string{p}, v.Removed())
	require.True(t, d.Deleted(p))
	require.Contains(t, buf.String(), "DRYRUN: would have deleted "+p)
	require.Equal(t, before, s.files())
}

func TestVacuumRejectsInvalidDigests(t *testing.T) {
	s := newTestStore(t)
	v := NewVacuum(s.driver, false)
	require.Error(t, v.RemoveLayer(s.ctx, "app", "sha256:short"))
	require.Error(t, v.RemoveManifestRevision(s.ctx, "app", ""))
}

// flakyDriver fails the first failures deletions.
type flakyDriver struct {
	storagedriver.StorageDriver
	failures int
	calls    int
}

func (d *flakyDriver) Delete(ctx context.Context, p string) error {
	d.calls++
	if d.calls <= d.failures {
		return storagedriver.Error{DriverName: "flaky", Detail: errors.New("device busy")}
	}
	return d.StorageDriver.Delete(ctx, p)
}

func TestVacuumRetriesFailedDeletions(t *testing.T) {
	s := newTestStore(t)
	layerA := layer("layerA")
	s.image("app", layerA)

	driver := &flakyDriver{StorageDriver: s.driver, failures: deleteAttempts - 1}
	v := NewVacuum(driver, false)
	require.NoError(t, v.RemoveLayer(s.ctx, "app", layerA))
	require.Equal(t, deleteAttempts, driver.calls)
	require.False(t, s.exists(testutil.LayerPath("app", layerA)))
	require.Equal(t, []string{testutil.LayerPath("app", layerA)}, v.Removed())
}

func TestVacuumGivesUpAfterRetries(t *testing.T) {
	s := newTestStore(t)
	layerA := layer("layerA")
	s.image("app", layerA)

	driver := &flakyDriver{StorageDriver: s.driver, failures: deleteAttempts}
	v := NewVacuum(driver, false)
	err := v.RemoveLayer(s.ctx, "app", layerA)
	require.Error(t, err)

	var driverErr storagedriver.Error
	require.True(t, errors.As(err, &driverErr))
	require.Equal(t, deleteAttempts, driver.calls)
	require.True(t, s.exists(testutil.LayerPath("app", layerA)))
	require.Empty(t, v.Removed())
}
