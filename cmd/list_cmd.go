package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kogorman/sdclone/internal/operations"
)

var listCmd = &cobra.Command{
	Use:   "list <sourceRoot>",
	Short: "Show the backup series under a destination root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadSetup()
		if err != nil {
			return err
		}
		op := operations.NewOperator(cfg, log)
		return op.List(args[0])
	},
}
