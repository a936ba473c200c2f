package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/marginalia/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import new highlights from every source",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := sync.Run(cmd.Context(), a.db, a.cfg.ReposDir, a.clock(), os.Stderr)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new highlights from %d files (%d errors).\n",
			report.Imported, report.Files, report.Errors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
