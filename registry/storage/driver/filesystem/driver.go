// Package filesystem provides a storagedriver.StorageDriver implementation
// backed by a local filesystem, laid out the way the registry's own
// filesystem driver writes it.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	storagedriver "github.com/distribution/registry-cleaner/registry/storage/driver"
	"github.com/distribution/registry-cleaner/registry/storage/driver/factory"
	"github.com/mitchellh/mapstructure"
)

const (
	driverName           = "filesystem"
	defaultRootDirectory = "/var/lib/registry/docker/registry/v2"
)

// DriverParameters represents all configuration options available for the
// filesystem driver
type DriverParameters struct {
	RootDirectory string `mapstructure:"rootdirectory"`
}

func init() {
	factory.Register(driverName, &filesystemDriverFactory{})
}

// filesystemDriverFactory implements the factory.StorageDriverFactory interface
type filesystemDriverFactory struct{}

func (factory *filesystemDriverFactory) Create(ctx context.Context, parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return FromParameters(parameters)
}

// Driver is a storagedriver.StorageDriver implementation backed by a local
// filesystem. All provided paths will be subpaths of the RootDirectory.
type Driver struct {
	rootDirectory string
}

// FromParameters constructs a new Driver with a given parameters map
// Optional Parameters:
// - rootdirectory
func FromParameters(parameters map[string]interface{}) (*Driver, error) {
	params, err := fromParametersImpl(parameters)
	if err != nil {
		return nil, err
	}
	return New(*params), nil
}

func fromParametersImpl(parameters map[string]interface{}) (*DriverParameters, error) {
	params := DriverParameters{
		RootDirectory: defaultRootDirectory,
	}
	if parameters != nil {
		if err := mapstructure.Decode(parameters, &params); err != nil {
			return nil, fmt.Errorf("invalid filesystem parameters: %v", err)
		}
	}
	if params.RootDirectory == "" {
		return nil, errors.New("rootdirectory must not be empty")
	}
	return &params, nil
}

// New constructs a new Driver with a given rootDirectory
func New(params DriverParameters) *Driver {
	return &Driver{rootDirectory: params.RootDirectory}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return driverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *Driver) GetContent(ctx context.Context, subPath string) ([]byte, error) {
	fullPath, err := d.fullPath(subPath)
	if err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, d.translate(subPath, err)
	}
	return contents, nil
}

// PutContent stores the []byte content at a location designated by "path".
func (d *Driver) PutContent(ctx context.Context, subPath string, contents []byte) error {
	fullPath, err := d.fullPath(subPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}
	if err := os.WriteFile(fullPath, contents, 0o644); err != nil {
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}
	return nil
}

// Stat retrieves the FileInfo for the given path, including the current size
// in bytes and the modification time.
func (d *Driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	fullPath, err := d.fullPath(subPath)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(fullPath)
	if err != nil {
		return nil, d.translate(subPath, err)
	}

	return fileInfo{
		path:     subPath,
		FileInfo: fi,
	}, nil
}

// List returns a list of the objects that are direct descendants of the given
// path.
func (d *Driver) List(ctx context.Context, subPath string) ([]string, error) {
	fullPath, err := d.fullPath(subPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, d.translate(subPath, err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, path.Join(subPath, entry.Name()))
	}

	return keys, nil
}

// Delete recursively deletes all objects stored at "path" and its subpaths.
func (d *Driver) Delete(ctx context.Context, subPath string) error {
	fullPath, err := d.fullPath(subPath)
	if err != nil {
		return err
	}
	if fullPath == path.Clean(d.rootDirectory) {
		return storagedriver.InvalidPathError{Path: subPath, DriverName: driverName}
	}

	if _, err := os.Lstat(fullPath); err != nil {
		return d.translate(subPath, err)
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}
	return nil
}

// Walk traverses a filesystem defined within driver, starting
// from the given path, calling f on each file and directory
func (d *Driver) Walk(ctx context.Context, subPath string, f storagedriver.WalkFn) error {
	return storagedriver.WalkFallback(ctx, d, subPath, f)
}

// fullPath returns the absolute path of a key within the Driver's storage.
func (d *Driver) fullPath(subPath string) (string, error) {
	if subPath != "/" && !storagedriver.PathRegexp.MatchString(subPath) {
		return "", storagedriver.InvalidPathError{Path: subPath, DriverName: driverName}
	}
	for _, component := range strings.Split(subPath, "/") {
		if component == ".." || component == "." {
			return "", storagedriver.InvalidPathError{Path: subPath, DriverName: driverName}
		}
	}
	return path.Join(d.rootDirectory, subPath), nil
}

func (d *Driver) translate(subPath string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
	}
	return storagedriver.Error{DriverName: driverName, Detail: err}
}

type fileInfo struct {
	os.FileInfo
	path string
}

var _ storagedriver.FileInfo = fileInfo{}

// Path provides the full path of the target of this file info.
func (fi fileInfo) Path() string {
	return fi.path
}

// Size returns current length in bytes of the file. The return value can
// be used to write to the end of the file at path. The value is
// meaningless if IsDir returns true.
func (fi fileInfo) Size() int64 {
	if fi.IsDir() {
		return 0
	}

	return fi.FileInfo.Size()
}

// ModTime returns the modification time for the file. For backends that
// don't have a modification time, the creation time should be returned.
func (fi fileInfo) ModTime() time.Time {
	return fi.FileInfo.ModTime()
}

// IsDir returns true if the path is a directory.
func (fi fileInfo) IsDir() bool {
	return fi.FileInfo.IsDir()
}
