package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kogorman/sdclone/internal/config"
	"github.com/kogorman/sdclone/internal/logger"
)

var (
	// ConfigFile is the path to the YAML configuration, empty for the
	// built-in default location.
	ConfigFile string
	// Verbosity counts repeated -v flags. It affects diagnostics only.
	Verbosity int

	rootCmd = &cobra.Command{
		Use:   "sdclone",
		Short: "Whole-drive backup and restore through filesystem-aware tools",
		Long: `sdclone captures a drive's partition table and partition contents
into a timestamped, self-contained backup directory, and can later replay a
chosen backup onto a drive with a different layout or identity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// loadSetup initializes the logger and loads the configuration for a
// subcommand run.
func loadSetup() (config.Config, logger.Logger, error) {
	log, err := logger.Init(Verbosity)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger init: %w", err)
	}
	var cfg config.Config
	if err := cfg.Load(ConfigFile); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// Execute runs the root command. Exit code is 0 on success, 1 on any
// validation or execution failure.
func Execute() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().
		CountVarP(&Verbosity, "verbose", "v", "increase diagnostic verbosity (repeatable)")

	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(listCmd)
}
