package pruner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	logstash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/distribution/registry-cleaner/configuration"
	"github.com/distribution/registry-cleaner/internal/dcontext"
	"github.com/distribution/registry-cleaner/metrics"
	"github.com/distribution/registry-cleaner/registry/storage"
	cachemetrics "github.com/distribution/registry-cleaner/registry/storage/cache/metrics"
	cacheprovider "github.com/distribution/registry-cleaner/registry/storage/cache/provider"
	"github.com/distribution/registry-cleaner/registry/storage/driver/factory"
	"github.com/distribution/registry-cleaner/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
)

const (
	binaryName      = "registry-cleaner"
	helpMessageTmpl = `%s deletes the tags of a repository outside of the retention
window, then removes the manifests and layers no tag references anymore.

Make sure that the registry instance isn't running or is running in read-only
mode before launching this executable. Run it with --dry-run first: the same
paths are reported without touching the store.`
)

// Cmd is a cobra command for cleaning a repository of a registry store.
var Cmd = &cobra.Command{
	Use:   binaryName + " [config]",
	Short: fmt.Sprintf("%s deletes old tags and unreferenced data", binaryName),
	Long:  fmt.Sprintf(helpMessageTmpl, binaryName),
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
			version.PrintVersion()
			return
		}

		config, err := resolveConfiguration(cmd.Flags(), args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			cmd.Usage()
			os.Exit(1)
		}

		ctx, err := configureLogging(dcontext.Background(), config, cmd.ErrOrStderr())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
			os.Exit(1)
		}

		if err := Execute(ctx, config); err != nil {
			dcontext.GetLogger(ctx).WithError(err).Error("Cleaning failed")
			os.Exit(1)
		}
	},
}

func init() {
	registerFlags(Cmd.Flags())
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String("data-dir", configuration.DefaultRootDirectory, "registry data directory")
	flags.String("repository", "", "repository to clean, for example library/ubuntu")
	flags.Int("n", configuration.DefaultKeep, "number of most recently pushed tags to keep")
	flags.BoolP("dry-run", "d", false, "report what would be deleted without deleting anything")
	flags.String("exclude", "", "comma separated glob patterns of tags which are never deleted")
	flags.String("log-level", "debug", "log level: error, warn, info or debug")
	flags.String("log-formatter", "text", "log formatter: text, json or logstash")
	flags.String("report", "", "write a yaml report of the run to this file")
	flags.String("metrics-textfile", "", "write deletion counters to this file in the prometheus text format")
	flags.BoolP("version", "V", false, "show the version and exit")
}

// applyFlags overrides config with the flags set on the command line.
func applyFlags(flags *pflag.FlagSet, config *configuration.Configuration) error {
	if flags.Changed("data-dir") {
		dataDir, err := flags.GetString("data-dir")
		if err != nil {
			return err
		}
		config.SetRootDirectory(dataDir)
	}
	if flags.Changed("repository") {
		repository, err := flags.GetString("repository")
		if err != nil {
			return err
		}
		config.Retention.Repository = repository
	}
	if flags.Changed("n") {
		keep, err := flags.GetInt("n")
		if err != nil {
			return err
		}
		config.Retention.Keep = &keep
	}
	if flags.Changed("dry-run") {
		dryRun, err := flags.GetBool("dry-run")
		if err != nil {
			return err
		}
		config.DryRun = dryRun
	}
	if flags.Changed("exclude") {
		patterns, err := flags.GetString("exclude")
		if err != nil {
			return err
		}
		exclude, err := ParseExclude(patterns)
		if err != nil {
			return err
		}
		config.Retention.Exclude = exclude
	}
	if flags.Changed("log-level") {
		level, err := flags.GetString("log-level")
		if err != nil {
			return err
		}
		config.Log.Level = configuration.Loglevel(strings.ToLower(level))
	}
	if flags.Changed("log-formatter") {
		formatter, err := flags.GetString("log-formatter")
		if err != nil {
			return err
		}
		config.Log.Formatter = formatter
	}
	if flags.Changed("report") {
		report, err := flags.GetString("report")
		if err != nil {
			return err
		}
		config.Report = report
	}
	if flags.Changed("metrics-textfile") {
		textfile, err := flags.GetString("metrics-textfile")
		if err != nil {
			return err
		}
		config.Metrics.Textfile = textfile
	}
	return nil
}

func resolveConfiguration(flags *pflag.FlagSet, args []string) (*configuration.Configuration, error) {
	var configurationPath string

	if len(args) > 0 {
		configurationPath = args[0]
	} else if os.Getenv("CLEANER_CONFIGURATION_PATH") != "" {
		configurationPath = os.Getenv("CLEANER_CONFIGURATION_PATH")
	}

	var config *configuration.Configuration
	if configurationPath == "" {
		var err error
		config, err = configuration.Default()
		if err != nil {
			return nil, err
		}
	} else {
		fp, err := os.Open(configurationPath)
		if err != nil {
			return nil, err
		}
		defer fp.Close()

		config, err = configuration.Parse(fp)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s: %v", configurationPath, err)
		}
	}

	if err := applyFlags(flags, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// configureLogging prepares the context with a logger writing to out,
// using the provided configuration.
func configureLogging(ctx context.Context, config *configuration.Configuration, out io.Writer) (context.Context, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(string(config.Log.Level))
	if err != nil {
		return ctx, err
	}
	logger.SetLevel(level)
	logger.SetReportCaller(config.Log.ReportCaller)

	switch config.Log.Formatter {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	case "logstash":
		logger.SetFormatter(&logstash.LogstashFormatter{
			Formatter: &logrus.JSONFormatter{
				TimestampFormat: time.RFC3339Nano,
			},
		})
	default:
		return ctx, fmt.Errorf("unsupported logging formatter: %q", config.Log.Formatter)
	}

	ctx = dcontext.WithLogger(ctx, logrus.NewEntry(logger))

	// log the application version with messages
	ctx = dcontext.WithVersion(ctx, version.Version())

	if len(config.Log.Fields) > 0 {
		// build up the static fields, if present.
		keys := make([]string, 0, len(config.Log.Fields))
		for k := range config.Log.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := make([]any, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, k)
		}

		ctx = dcontext.WithValues(ctx, config.Log.Fields)
		ctx = dcontext.WithLogger(ctx, dcontext.GetLogger(ctx, fields...))
	}

	return ctx, nil
}

// Execute cleans the configured repository and writes the report and the
// metrics requested by the configuration.
func Execute(ctx context.Context, config *configuration.Configuration) error {
	report, err := Clean(ctx, config)

	if config.Report != "" {
		if reportErr := report.WriteFile(config.Report); reportErr != nil {
			err = multierr.Append(err, fmt.Errorf("writing report: %w", reportErr))
		}
	}
	if config.Metrics.Textfile != "" {
		if metricsErr := metrics.WriteTextfile(config.Metrics.Textfile); metricsErr != nil {
			err = multierr.Append(err, fmt.Errorf("writing metrics: %w", metricsErr))
		}
	}
	return err
}

// Clean deletes the tags of the configured repository outside of the
// retention window, then the data no tag references anymore. Failures to
// remove single paths are logged and listed in the report without failing
// the run. The report is returned even when the run is aborted.
func Clean(ctx context.Context, config *configuration.Configuration) (*Report, error) {
	start := time.Now()
	defer metrics.RunDuration.UpdateSince(start)

	repo := config.Retention.Repository
	keep := config.KeepTags()
	report := &Report{
		Repository: repo,
		DryRun:     config.DryRun,
		Keep:       keep,
		Started:    start,
	}
	defer func() {
		report.Duration = time.Since(start)
	}()

	if _, err := compileExclude(config.Retention.Exclude); err != nil {
		return report, err
	}
	report.Exclude = append(report.Exclude, config.Retention.Exclude...)

	driver, err := factory.Create(ctx, config.Storage.Type(), config.Storage.Parameters())
	if err != nil {
		return report, err
	}

	references, err := cacheprovider.Get(ctx, config.Cache.Provider, map[string]interface{}{"params": config.Cache.Params})
	if err != nil {
		return report, err
	}
	references = cachemetrics.NewPrometheusReferenceCache(references, "reference_cache", "The time taken by reference cache operations")

	options := []storage.CollectorOption{storage.ReferenceCache(references)}
	if config.DryRun {
		options = append(options, storage.DryRun)
	}
	collector, err := storage.NewCollector(driver, options...)
	if err != nil {
		return report, err
	}
	defer func() {
		report.Removed = collector.Removed()
		report.addFailures(collector.Failures())
	}()

	logger := dcontext.GetLoggerWithField(ctx, "repository", repo)
	if config.DryRun {
		logger.Info("Dry run: the store is left untouched")
	}

	tags, err := ListTags(ctx, driver, repo, report.Exclude)
	if err != nil {
		return report, err
	}
	report.Tags = len(tags)

	expired := SelectExpired(tags, keep)
	logger.Infof("Found %d tags, keeping %d, deleting %d", len(tags), len(tags)-len(expired), len(expired))
	for _, tag := range expired {
		if err := collector.DeleteTag(ctx, repo, tag.Name); err != nil {
			return report, err
		}
		report.Deleted = append(report.Deleted, tag.Name)
	}

	if err := collector.DeleteUntagged(ctx, repo); err != nil {
		return report, err
	}

	if failures := multierr.Errors(collector.Failures()); len(failures) > 0 {
		logger.Warnf("%d paths could not be deleted", len(failures))
	}
	return report, nil
}
