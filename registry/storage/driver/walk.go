package driver

import (
	"context"
	"errors"
	"sort"

	"github.com/distribution/registry-cleaner/internal/dcontext"
)

// ErrSkipDir is used as a return value from onFileFunc to indicate that
// the directory named in the call is to be skipped. It is not returned
// as an error by any function.
var ErrSkipDir = errors.New("skip this directory")

// WalkFn is called once per file by Walk
type WalkFn func(fileInfo FileInfo) error

// WalkFallback traverses a filesystem defined within driver, starting
// from the given path, calling f on each file. It uses the List method and Stat to drive itself.
// If the returned error from the WalkFn is ErrSkipDir and fileInfo refers
// to a directory, the directory will not be entered and Walk
// will continue the traversal. If fileInfo refers to a normal file, processing stops.
// Entries the driver rejects as invalid paths are logged and skipped.
func WalkFallback(ctx context.Context, driver StorageDriver, from string, f WalkFn) error {
	_, err := doWalkFallback(ctx, driver, from, func(fileInfo FileInfo) error {
		return f(fileInfo)
	})
	return err
}

// WalkFilesFallback behaves like WalkFallback but only calls f for files.
func WalkFilesFallback(ctx context.Context, driver StorageDriver, from string, f WalkFn) error {
	_, err := doWalkFallback(ctx, driver, from, func(fileInfo FileInfo) error {
		if fileInfo.IsDir() {
			return nil
		}
		return f(fileInfo)
	})
	return err
}

func doWalkFallback(ctx context.Context, driver StorageDriver, from string, f WalkFn) (bool, error) {
	children, err := driver.List(ctx, from)
	if err != nil {
		return false, err
	}
	sort.Stable(sort.StringSlice(children))
	for _, child := range children {
		fileInfo, err := driver.Stat(ctx, child)
		if err != nil {
			var notFound PathNotFoundError
			if errors.As(err, &notFound) {
				// entry was removed in between listing and enumeration. Ignore it.
				dcontext.GetLoggerWithField(ctx, "path", child).Debug("ignoring deleted path")
				continue
			}
			var invalid InvalidPathError
			if errors.As(err, &invalid) {
				// names the store layout never produces, e.g. "lost+found".
				dcontext.GetLoggerWithField(ctx, "path", child).Warn("ignoring foreign path")
				continue
			}
			return false, err
		}
		err = f(fileInfo)
		if err == nil && fileInfo.IsDir() {
			if ok, err := doWalkFallback(ctx, driver, child, f); err != nil || !ok {
				return ok, err
			}
		} else if errors.Is(err, ErrSkipDir) {
			// noop for folders, will just skip
			if !fileInfo.IsDir() {
				return false, nil // no error but stop iteration
			}
		} else if err != nil {
			return false, err
		}
	}
	return true, nil
}
