package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kogorman/sdclone/internal/operations"
)

var compressLevel int

var cloneCmd = &cobra.Command{
	Use:   "clone <drive> <destRoot>",
	Short: "Back up a whole drive into a new timestamped directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadSetup()
		if err != nil {
			return err
		}
		level := compressLevel
		if !cmd.Flags().Changed("compress") {
			level = cfg.Backup.CompressionLevel
		}
		op := operations.NewOperator(cfg, log)
		return op.Clone(cmd.Context(), args[0], args[1], level)
	},
}

func init() {
	cloneCmd.Flags().
		IntVar(&compressLevel, "compress", 3, "zstd compression level (1-19)")
}
