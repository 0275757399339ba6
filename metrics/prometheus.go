package metrics

import (
	"github.com/docker/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "registry"
)

var (
	// CleanerNamespace is the prometheus namespace of deletion related operations
	CleanerNamespace = metrics.NewNamespace(NamespacePrefix, "cleaner", nil)

	// StorageNamespace is the prometheus namespace of manifest and cache related operations
	StorageNamespace = metrics.NewNamespace(NamespacePrefix, "storage", nil)
)

var (
	// Deletions counts removed paths by kind (layer, revision, tag,
	// tag_index) and mode (real, dryrun).
	Deletions = CleanerNamespace.NewLabeledCounter("deletions", "The number of paths removed from the store", "kind", "mode")

	// DeletionFailures counts removals the storage driver rejected.
	DeletionFailures = CleanerNamespace.NewLabeledCounter("deletion_failures", "The number of paths that could not be removed", "kind")

	// RunDuration times a complete cleaner run.
	RunDuration = CleanerNamespace.NewTimer("run", "The time taken by a complete cleaner run")
)

// NewRegistry returns a prometheus registry holding the cleaner namespaces.
// The process-wide default registry is left untouched.
func NewRegistry() (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	for _, ns := range []*metrics.Namespace{CleanerNamespace, StorageNamespace} {
		if err := registry.Register(ns); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// WriteTextfile writes the current values of the cleaner metrics to path in
// the prometheus text exposition format, for use with the node exporter
// textfile collector.
func WriteTextfile(path string) error {
	registry, err := NewRegistry()
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, registry)
}
