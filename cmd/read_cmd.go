package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kogorman/sdclone/internal/operations"
)

var (
	readDate   string
	readDryRun bool
)

var readCmd = &cobra.Command{
	Use:   "read <sourceRoot> <destDrive>",
	Short: "Restore a recorded backup onto a drive",
	Long: `read replays a backup run onto the destination drive: the raw
first-megabyte capture, then the partition table, then each recorded
partition in its original order. The destination must either be the drive
the backup was taken from (matching serial) or carry no partitions at all.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadSetup()
		if err != nil {
			return err
		}
		op := operations.NewOperator(cfg, log)
		return op.Restore(cmd.Context(), args[0], args[1], readDate, readDryRun)
	},
}

func init() {
	readCmd.Flags().
		StringVar(&readDate, "date", "", "backup run to restore (YYYYMMDD-HHMMSS, default: most recent)")
	readCmd.Flags().
		BoolVar(&readDryRun, "dry-run", false, "validate and print the replay plan without writing")
}
