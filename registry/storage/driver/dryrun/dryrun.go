// Package dryrun provides a storage driver middleware which simulates
// deletions. Deleted subtrees are remembered and hidden from every later read
// so callers observe the same store they would after a real run, while the
// underlying driver is never modified.
package dryrun

import (
	"context"
	"path"
	"strings"

	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
)

const driverName = "dryrun"

// Driver wraps a storagedriver.StorageDriver and records deletions instead of
// executing them.
type Driver struct {
	storagedriver.StorageDriver
	deleted map[string]struct{}
}

var _ storagedriver.StorageDriver = &Driver{}

// New returns a Driver simulating deletions on top of d.
func New(d storagedriver.StorageDriver) *Driver {
	return &Driver{
		StorageDriver: d,
		deleted:       make(map[string]struct{}),
	}
}

// Name returns the name of the wrapped driver, marked as simulated.
func (d *Driver) Name() string {
	return driverName + "(" + d.StorageDriver.Name() + ")"
}

// GetContent retrieves the content stored at "path" unless it was deleted.
func (d *Driver) GetContent(ctx context.Context, p string) ([]byte, error) {
	if d.hidden(p) {
		return nil, d.notFound(p)
	}
	return d.StorageDriver.GetContent(ctx, p)
}

// PutContent stores content and revives the path if it was deleted before.
func (d *Driver) PutContent(ctx context.Context, p string, content []byte) error {
	for prefix := range d.deleted {
		if within(p, prefix) {
			delete(d.deleted, prefix)
		}
	}
	return d.StorageDriver.PutContent(ctx, p, content)
}

// Stat retrieves the FileInfo for the given path unless it was deleted.
func (d *Driver) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	if d.hidden(p) {
		return nil, d.notFound(p)
	}
	return d.StorageDriver.Stat(ctx, p)
}

// List returns the children of path which were not deleted.
func (d *Driver) List(ctx context.Context, p string) ([]string, error) {
	if d.hidden(p) {
		return nil, d.notFound(p)
	}
	children, err := d.StorageDriver.List(ctx, p)
	if err != nil {
		return nil, err
	}
	kept := children[:0]
	for _, child := range children {
		if !d.hidden(child) {
			kept = append(kept, child)
		}
	}
	return kept, nil
}

// Delete records the deletion of path and everything below it.
func (d *Driver) Delete(ctx context.Context, p string) error {
	if _, err := d.Stat(ctx, p); err != nil {
		return err
	}
	d.deleted[path.Clean(p)] = struct{}{}
	return nil
}

// Walk traverses the non-deleted part of the store.
func (d *Driver) Walk(ctx context.Context, p string, f storagedriver.WalkFn) error {
	return storagedriver.WalkFallback(ctx, d, p, f)
}

// Deleted reports whether path was deleted, directly or through an
// ancestor.
func (d *Driver) Deleted(p string) bool {
	return d.hidden(p)
}

func (d *Driver) hidden(p string) bool {
	if len(d.deleted) == 0 {
		return false
	}
	p = path.Clean(p)
	for {
		if _, ok := d.deleted[p]; ok {
			return true
		}
		if p == "/" || p == "." {
			return false
		}
		p = path.Dir(p)
	}
}

func (d *Driver) notFound(p string) error {
	return storagedriver.PathNotFoundError{Path: p, DriverName: d.Name()}
}

func within(p, prefix string) bool {
	p = path.Clean(p)
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
