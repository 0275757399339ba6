package pruner

import (
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// Report describes a cleaner run.
type Report struct {
	Repository string        `yaml:"repository"`
	DryRun     bool          `yaml:"dryrun"`
	Keep       int           `yaml:"keep"`
	Exclude    []string      `yaml:"exclude,omitempty"`
	Tags       int           `yaml:"tags"`
	Deleted    []string      `yaml:"deleted,omitempty"`
	Removed    []string      `yaml:"removed,omitempty"`
	Failures   []string      `yaml:"failures,omitempty"`
	Started    time.Time     `yaml:"started"`
	Duration   time.Duration `yaml:"duration"`
}

func (r *Report) addFailures(err error) {
	for _, failure := range multierr.Errors(err) {
		r.Failures = append(r.Failures, failure.Error())
	}
}

// WriteFile writes the report to path as yaml.
func (r *Report) WriteFile(path string) error {
	out, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
