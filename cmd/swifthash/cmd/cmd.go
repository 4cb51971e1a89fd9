// Package cmd holds the swifthash subcommands.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gordian-engine/swift"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameChunkSize    = "chunk-size"
	optionNameMmap         = "mmap"
	optionNameCheckHashes  = "check-hashes"
	optionNameVerbosity    = "verbosity"
	optionNameRoot         = "root"
	optionNameCheckpoint   = "checkpoint"
	optionNamePrintMetrics = "print-metrics"
)

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	cfgFile string
	homeDir string

	// Filesystem for tree files; the OS filesystem unless a test overrides it.
	fs afero.Fs

	registry *prometheus.Registry
	metrics  *swift.Metrics
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "swifthash",
			Short:         "Build and check content hash trees",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig(cmd)
			},
		},
	}

	for _, o := range opts {
		o(c)
	}
	if c.fs == nil {
		c.fs = afero.NewOsFs()
	}

	c.registry = prometheus.NewRegistry()
	c.metrics = swift.NewMetrics(c.registry)

	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()
	c.initHashCmd()
	c.initVerifyCmd()
	c.initCopyCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.swifthash.yaml)")
	globalFlags.Uint32(optionNameChunkSize, swift.DefaultChunkSize, "chunk size in bytes")
	globalFlags.Bool(optionNameMmap, false, "memory-map hash files")
	globalFlags.String(optionNameVerbosity, "info", "log verbosity level: debug, info, warn, or error")
	globalFlags.Bool(optionNamePrintMetrics, false, "print tree metrics on exit")
}

func (c *command) initConfig(cmd *cobra.Command) (err error) {
	config := viper.New()
	configName := ".swifthash"
	if c.cfgFile != "" {
		config.SetConfigFile(c.cfgFile)
	} else {
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	config.SetEnvPrefix("swifthash")
	config.AutomaticEnv()
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}

	if err := config.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

func (c *command) newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.config.GetString(optionNameVerbosity))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", optionNameVerbosity, err)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}

// treeConfig returns the tree configuration for the content at path,
// from the global flags.
func (c *command) treeConfig(path string) (swift.Config, error) {
	cfg := swift.Config{
		ContentPath: filepath.Clean(path),
		ChunkSize:   c.config.GetUint32(optionNameChunkSize),
		MmapHashes:  c.config.GetBool(optionNameMmap),
		Metrics:     c.metrics,
	}
	if cfg.ChunkSize == 0 {
		return cfg, fmt.Errorf("%s must be positive", optionNameChunkSize)
	}

	// Memory mapping only works against the OS filesystem.
	if !cfg.MmapHashes {
		cfg.Fs = c.fs
	} else if _, ok := c.fs.(*afero.OsFs); !ok {
		return cfg, fmt.Errorf("%s requires the OS filesystem", optionNameMmap)
	}
	return cfg, nil
}

func (c *command) printMetrics(cmd *cobra.Command) error {
	if !c.config.GetBool(optionNamePrintMetrics) {
		return nil
	}
	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(cmd.OutOrStdout(), mf); err != nil {
			return fmt.Errorf("failed to print metrics: %w", err)
		}
	}
	return nil
}
