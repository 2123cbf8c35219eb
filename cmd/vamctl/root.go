package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nnanto/gpuva"
)

// The prefix for configuration keys inside environment.
const envPrefix = "VAMCTL"

type rootConfig struct {
	TotalSize string
	PageSize  string
	MaxHoles  int
	Tracking  bool
	LogLevel  string
	CfgFile   string

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	cfg := &rootConfig{}
	rootCmd := &cobra.Command{
		Use:   "vamctl",
		Short: "GPU virtual address space manager tool",
		Long: `vamctl drives an in-process GPU virtual address space manager: replay
alloc/free scripts against it, or hammer it from concurrent workers and
check that the free list coalesces back into a single hole.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cmd, cfg); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}
			cfg.logger = logger
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.TotalSize, "total-size", humanize.IBytes(gpuva.DefaultTotalSize), "size of the address space (e.g. 4GiB, 0x100000000)")
	pf.StringVar(&cfg.PageSize, "page-size", strconv.FormatUint(gpuva.PageSize, 10), "allocation granularity, a power of two")
	pf.IntVar(&cfg.MaxHoles, "max-holes", 0, "maximum number of hole records, 0 for no limit")
	pf.BoolVar(&cfg.Tracking, "tracking", false, "record outstanding allocations and reject unknown frees")
	pf.StringVar(&cfg.LogLevel, "log-level", "INFO", "log verbosity level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&cfg.CfgFile, "config", "", "config file (yaml, json or toml)")

	rootCmd.AddCommand(newReplayCmd(cfg), newStressCmd(cfg))
	return rootCmd
}

// newManager creates the address space described by the flags.
func (c *rootConfig) newManager() (*gpuva.Manager, error) {
	total, err := parseSize(c.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("total size: %w", err)
	}
	page, err := parseSize(c.PageSize)
	if err != nil {
		return nil, fmt.Errorf("page size: %w", err)
	}
	opts := []gpuva.Option{
		gpuva.WithPageSize(page),
		gpuva.WithMaxHoles(c.MaxHoles),
		gpuva.WithLogger(c.logger),
	}
	if c.Tracking {
		opts = append(opts, gpuva.WithTracking())
	}
	return gpuva.New(total, opts...)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// initializeConfig fills flags that were not set on the command line from
// VAMCTL_* environment variables and the config file, in that order.
func initializeConfig(cmd *cobra.Command, cfg *rootConfig) error {
	v := viper.New()

	if cfg.CfgFile != "" {
		v.SetConfigFile(cfg.CfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	return bindFlags(cmd, v)
}

// Bind each cobra flag to its associated viper configuration (config file and environment variable)
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Environment variables can't have dashes in them, so bind them to their equivalent
		// keys with underscores, e.g. --total-size to VAMCTL_TOTAL_SIZE
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				errs = append(errs, fmt.Errorf("binding env to flag %s: %w", f.Name, err))
				return
			}
		}

		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				errs = append(errs, fmt.Errorf("setting flag %s: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}

// parseSize accepts 0x-prefixed hex or a humanized byte count such as
// "4096", "8KiB" or "4 GiB".
func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return humanize.ParseBytes(s)
}
