package driver

import (
	"context"
	"testing"
	"time"
)

type fileInfo struct {
	path  string
	size  int64
	isDir bool
}

func (fi fileInfo) Path() string       { return fi.path }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return fi.isDir }

type changingFileSystem struct {
	StorageDriver
	fileset      []string
	keptFiles    map[string]bool
	invalidFiles map[string]struct{}
}

func (cfs *changingFileSystem) List(ctx context.Context, path string) ([]string, error) {
	return cfs.fileset, nil
}

func (cfs *changingFileSystem) Stat(ctx context.Context, path string) (FileInfo, error) {
	kept, ok := cfs.keptFiles[path]
	if ok && kept {
		return fileInfo{path: path}, nil
	}
	if _, ok := cfs.invalidFiles[path]; ok {
		return nil, InvalidPathError{Path: path}
	}
	return nil, PathNotFoundError{Path: path}
}

type fileSystem struct {
	StorageDriver
	fileset map[string][]string
}

func (cfs *fileSystem) List(_ context.Context, path string) ([]string, error) {
	return cfs.fileset[path], nil
}

func (cfs *fileSystem) Stat(_ context.Context, path string) (FileInfo, error) {
	_, isDir := cfs.fileset[path]
	return fileInfo{path: path, isDir: isDir, size: int64(len(path))}, nil
}

func TestWalkFileRemoved(t *testing.T) {
	d := &changingFileSystem{
		fileset: []string{"zoidberg", "bender"},
		keptFiles: map[string]bool{
			"zoidberg": true,
		},
	}
	infos := []FileInfo{}
	err := WalkFallback(context.Background(), d, "", func(fileInfo FileInfo) error {
		infos = append(infos, fileInfo)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 || infos[0].Path() != "zoidberg" {
		t.Errorf("unexpected path set during walk: %v", infos)
	}
}

func TestWalkFallbackSkipDirOnDir(t *testing.T) {
	d := &fileSystem{
		fileset: map[string][]string{
			"/":                 {"/repositories", "/blobs"},
			"/blobs":            {"/blobs/sha256"},
			"/repositories":     {"/repositories/app"},
			"/repositories/app": {"/repositories/app/_layers"},
		},
	}
	expected := []string{
		"/blobs", // skipped
		"/repositories",
		"/repositories/app",
		"/repositories/app/_layers",
	}

	var walked []string
	err := WalkFallback(context.Background(), d, "/", func(fileInfo FileInfo) error {
		walked = append(walked, fileInfo.Path())
		if fileInfo.Path() == "/blobs" {
			return ErrSkipDir
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected Walk to not error %v", err)
	}
	compareWalked(t, expected, walked)
}

func TestWalkFilesFallbackOnlyFiles(t *testing.T) {
	d := &fileSystem{
		fileset: map[string][]string{
			"/":                {"/current", "/index"},
			"/current":         {"/current/link"},
			"/index":           {"/index/sha256"},
			"/index/sha256":    {"/index/sha256/ab"},
			"/index/sha256/ab": {"/index/sha256/ab/link"},
		},
	}
	expected := []string{"/current/link", "/index/sha256/ab/link"}

	var walked []string
	err := WalkFilesFallback(context.Background(), d, "/", func(fileInfo FileInfo) error {
		if fileInfo.IsDir() {
			t.Fatalf("can't walk over dir %s", fileInfo.Path())
		}
		walked = append(walked, fileInfo.Path())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	compareWalked(t, expected, walked)
}

func TestWalkSkipsInvalidPaths(t *testing.T) {
	d := &changingFileSystem{
		fileset: []string{"/lost+found", "/other dir", "/repositories"},
		keptFiles: map[string]bool{
			"/repositories": true,
		},
		invalidFiles: map[string]struct{}{
			"/lost+found": {},
			"/other dir":  {},
		},
	}

	var walked []string
	err := WalkFilesFallback(context.Background(), d, "/", func(fileInfo FileInfo) error {
		walked = append(walked, fileInfo.Path())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	compareWalked(t, []string{"/repositories"}, walked)
}

func compareWalked(t *testing.T, expected, walked []string) {
	t.Helper()
	if len(walked) != len(expected) {
		t.Fatalf("Mismatch number of fileInfo walked %d expected %d: %v", len(walked), len(expected), walked)
	}
	for i := range walked {
		if walked[i] != expected[i] {
			t.Fatalf("expected walked to come in order %v: walked %v", expected, walked)
		}
	}
}
