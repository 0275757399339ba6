package configuration

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
)

const (
	// DefaultRootDirectory is the data directory of a registry using the
	// filesystem storage driver with its default settings.
	DefaultRootDirectory = "/var/lib/registry/docker/registry/v2"

	// DefaultKeep is the number of most recently modified tags kept.
	DefaultKeep = 30

	// DefaultCacheProvider names the reference cache used without
	// configuration.
	DefaultCacheProvider = "inmemory"
)

// Configuration is a versioned cleaner configuration, intended to be provided
// by a yaml file, and optionally modified by environment variables.
//
// Note that yaml field names should never include _ characters, since this is the separator used
// in environment variable names.
type Configuration struct {
	// Version is the version which defines the format of the rest of the configuration
	Version Version `yaml:"version"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log Log `yaml:"log"`

	// Storage is the configuration for the storage driver giving access to
	// the registry data directory
	Storage Storage `yaml:"storage"`

	// Retention selects the tags which are deleted.
	Retention Retention `yaml:"retention"`

	// DryRun simulates every deletion and leaves the store untouched.
	DryRun bool `yaml:"dryrun,omitempty"`

	// Report is the path of a yaml file describing the run. No report is
	// written when empty.
	Report string `yaml:"report,omitempty"`

	// Cache configures the cache of decoded manifest references.
	Cache Cache `yaml:"cache,omitempty"`

	// Metrics configures the export of deletion counters.
	Metrics Metrics `yaml:"metrics,omitempty"`
}

// Log supports setting various parameters related to the logging subsystem.
type Log struct {
	// Level is the granularity at which cleaner operations are logged.
	Level Loglevel `yaml:"level,omitempty"`

	// Formatter overrides the default formatter with another. Options
	// include "text", "json" and "logstash".
	Formatter string `yaml:"formatter,omitempty"`

	// Fields allows users to specify static string fields to include in
	// the logger context.
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// ReportCaller allows user to configure the log to report the caller
	ReportCaller bool `yaml:"reportcaller,omitempty"`
}

// Retention selects the tags of a repository which are deleted: every tag
// but the Keep most recently modified ones, skipping tags matching one of
// the Exclude glob patterns.
type Retention struct {
	// Repository is the name of the repository to clean.
	Repository string `yaml:"repository,omitempty"`

	// Keep is the size of the retention window. Defaults to DefaultKeep.
	Keep *int `yaml:"keep,omitempty"`

	// Exclude lists glob patterns of tags which are never deleted.
	Exclude []string `yaml:"exclude,omitempty"`
}

// Cache configures the reference cache provider.
type Cache struct {
	// Provider names a registered cache provider, such as inmemory.
	Provider string `yaml:"provider,omitempty"`

	// Params are handed to the provider.
	Params Parameters `yaml:"params,omitempty"`
}

// Metrics configures the export of deletion counters.
type Metrics struct {
	// Textfile is the path the counters are written to in the prometheus
	// text format at the end of a run, for the node exporter textfile
	// collector.
	Textfile string `yaml:"textfile,omitempty"`
}

// v0_1Configuration is a Version 0.1 Configuration struct
// This is currently aliased to Configuration, as it is the current version
type v0_1Configuration Configuration

// UnmarshalYAML implements the yaml.Unmarshaler interface
// Unmarshals a string of the form X.Y into a Version, validating that X and Y can represent unsigned integers
func (version *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var versionString string
	err := unmarshal(&versionString)
	if err != nil {
		return err
	}

	newVersion := Version(versionString)
	if _, err := newVersion.major(); err != nil {
		return err
	}

	if _, err := newVersion.minor(); err != nil {
		return err
	}

	*version = newVersion
	return nil
}

// CurrentVersion is the most recent Version that can be parsed
var CurrentVersion = MajorMinorVersion(0, 1)

// Loglevel is the level at which operations are logged
// This can be error, warn, info, or debug
type Loglevel string

// UnmarshalYAML implements the yaml.Umarshaler interface
// Unmarshals a string into a Loglevel, lowercasing the string and validating that it represents a
// valid loglevel
func (loglevel *Loglevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var loglevelString string
	err := unmarshal(&loglevelString)
	if err != nil {
		return err
	}

	loglevelString = strings.ToLower(loglevelString)
	switch loglevelString {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("invalid loglevel %s Must be one of [error, warn, info, debug]", loglevelString)
	}

	*loglevel = Loglevel(loglevelString)
	return nil
}

// Parameters defines a key-value parameters mapping
type Parameters map[string]interface{}

// Storage defines the configuration for registry object storage
type Storage map[string]Parameters

// Type returns the storage driver type, such as filesystem
func (storage Storage) Type() string {
	var storageType []string

	// Return only key in this map
	for k := range storage {
		storageType = append(storageType, k)
	}
	if len(storageType) > 1 {
		panic("multiple storage drivers specified in configuration or environment: " + strings.Join(storageType, ", "))
	}
	if len(storageType) == 1 {
		return storageType[0]
	}
	return ""
}

// Parameters returns the Parameters map for a Storage configuration
func (storage Storage) Parameters() Parameters {
	return storage[storage.Type()]
}

// setParameter changes the parameter at the provided key to the new value
func (storage Storage) setParameter(key string, value interface{}) {
	storage[storage.Type()][key] = value
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
// Unmarshals a single item map into a Storage or a string into a Storage type with no parameters
func (storage *Storage) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var storageMap map[string]Parameters
	err := unmarshal(&storageMap)
	if err == nil {
		if len(storageMap) > 1 {
			types := make([]string, 0, len(storageMap))
			for k := range storageMap {
				types = append(types, k)
			}
			return fmt.Errorf("must provide exactly one storage type. Provided: %v", types)
		}
		*storage = storageMap
		return nil
	}

	var storageType string
	err = unmarshal(&storageType)
	if err == nil {
		*storage = Storage{storageType: Parameters{}}
		return nil
	}

	return err
}

// MarshalYAML implements the yaml.Marshaler interface
func (storage Storage) MarshalYAML() (interface{}, error) {
	if storage.Parameters() == nil {
		return storage.Type(), nil
	}
	return map[string]Parameters(storage), nil
}

// SetRootDirectory points the configuration at a filesystem data directory,
// replacing any other storage driver.
func (config *Configuration) SetRootDirectory(rootDirectory string) {
	config.Storage = Storage{"filesystem": Parameters{"rootdirectory": rootDirectory}}
}

// KeepTags returns the size of the retention window.
func (config *Configuration) KeepTags() int {
	if config.Retention.Keep == nil {
		return DefaultKeep
	}
	return *config.Retention.Keep
}

// Validate checks the settings a run can not do without.
func (config *Configuration) Validate() error {
	if config.Retention.Repository == "" {
		return errors.New("no repository configured")
	}
	if config.KeepTags() < 0 {
		return fmt.Errorf("retention window must not be negative: %d", config.KeepTags())
	}
	return nil
}

// Default returns the configuration used when no file is given. Environment
// overrides apply as they do to a file.
func Default() (*Configuration, error) {
	return Parse(strings.NewReader("version: " + string(CurrentVersion)))
}

func applyDefaults(config *Configuration) {
	if config.Log.Level == "" {
		config.Log.Level = Loglevel("debug")
	}
	if config.Log.Formatter == "" {
		config.Log.Formatter = "text"
	}
	if config.Storage.Type() == "" {
		config.SetRootDirectory(DefaultRootDirectory)
	}
	if config.Cache.Provider == "" {
		config.Cache.Provider = DefaultCacheProvider
	}
}

// Parse parses an input configuration yaml document into a Configuration struct
// This should generally be capable of handling old configuration format versions
//
// Environment variables may be used to override configuration parameters other than version,
// following the scheme below:
// Configuration.Abc may be replaced by the value of CLEANER_ABC,
// Configuration.Abc.Xyz may be replaced by the value of CLEANER_ABC_XYZ, and so forth
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	p := NewParser("cleaner", []VersionedParseInfo{
		{
			Version: MajorMinorVersion(0, 1),
			ParseAs: reflect.TypeOf(v0_1Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				if v0_1, ok := c.(*v0_1Configuration); ok {
					config := (*Configuration)(v0_1)
					applyDefaults(config)
					return config, nil
				}
				return nil, fmt.Errorf("expected *v0_1Configuration, received %#v", c)
			},
		},
	})

	config := new(Configuration)
	err = p.Parse(in, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
