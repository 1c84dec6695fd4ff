// Package cmd provides the CLI commands for bpomverify.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bpomverify/bpomverify/internal/config"
	"github.com/bpomverify/bpomverify/internal/logging"
	"github.com/bpomverify/bpomverify/pkg/version"
)

var (
	cfgPath        string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the bpomverify CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bpomverify",
		Short: "Verify consumer drug/health products against an official registry",
		Long: `bpomverify fuses evidence from an official registry's exact, lexical,
and semantic tiers, and from a label photograph's T1/T2 extraction race,
into a single valid/invalid/unknown decision with a confidence score
and an auditable evidence trace.`,
		Version:           version.Version,
		PersistentPreRunE: setupLogging,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if loggingCleanup != nil {
				loggingCleanup()
			}
			return nil
		},
	}
	cmd.SetVersionTemplate("bpomverify version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a project directory containing .bpomverify.yaml (default: current directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the project configuration from cfgPath (or the current
// directory if unset), falling back to hardcoded defaults on any error.
func loadConfig() *config.Config {
	dir := cfgPath
	if dir == "" {
		dir = "."
	}
	cfg, err := config.Load(dir)
	if err != nil {
		slog.Warn("failed to load config, using defaults", slog.String("error", err.Error()))
		return config.NewConfig()
	}
	return cfg
}
