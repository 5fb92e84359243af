// Package cmd provides CLI command implementations
package cmd

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChrisMcGann/msalign/internal/config"
	"github.com/ChrisMcGann/msalign/internal/logger"
	"github.com/ChrisMcGann/msalign/internal/metrics"
)

var (
	// settings binds the global flags and MSALIGN_* environment variables
	settings = viper.New()
	registry = prometheus.NewRegistry()

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "msalign",
	Short: "msalign - Cross-sample peak alignment and annotation",
	Long: `msalign aligns detected chromatographic peaks across samples, recovers
missing peaks from raw signal and annotates the aligned spots against a
reference spectral library.

Parameters come from a YAML file (--config), overridden by MSALIGN_*
environment variables and then by the global flags below.`,
	Version:            "0.3.0",
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: flushMetrics,
}

// Execute runs the root command with ctx, which is cancelled on interrupt.
func Execute(ctx context.Context) error {
	defer logger.Sync()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	settings.SetEnvPrefix("MSALIGN")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Parameter file (YAML)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.Int("workers", 0, "Worker goroutines per stage (0 = one per CPU)")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	for _, name := range []string{"config", "log-level", "log-format", "workers", "metrics-file"} {
		_ = settings.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(alignCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(configCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(settings)
	if err != nil {
		return err
	}
	if err := logger.Initialize(c.Logging.Level, c.Logging.JSON); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	if err := metrics.Register(registry); err != nil {
		return err
	}
	cfg = c
	return nil
}

// loadConfig reads the parameter file and applies the global flags on top.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	c, err := config.Load(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v.IsSet("workers") {
		c.Workers = v.GetInt("workers")
	}
	if lvl := v.GetString("log-level"); lvl != "" {
		c.Logging.Level = lvl
	}
	switch strings.ToLower(v.GetString("log-format")) {
	case "":
	case "json":
		c.Logging.JSON = true
	case "console":
		c.Logging.JSON = false
	default:
		return nil, errors.Newf("unknown log format '%s', must be console or json", v.GetString("log-format"))
	}
	if path := v.GetString("metrics-file"); path != "" {
		c.Metrics.Textfile = path
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func flushMetrics(cmd *cobra.Command, args []string) error {
	if cfg == nil || cfg.Metrics.Textfile == "" {
		return nil
	}
	return metrics.WriteTextfile(cfg.Metrics.Textfile, registry)
}
