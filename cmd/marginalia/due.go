package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "Show what each deck has due today",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		engine, queue, err := a.newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer flush(queue, a.logger)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tBOOK\tCARDS\tDUE\tDONE TODAY\tLEFT TODAY")
		var due, left int
		for _, d := range engine.Overview() {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", d.Book.ID, d.Book.Title, d.Cards, d.Due, d.ReviewedToday, d.Remaining)
			due += d.Due
			left += min(d.Due, d.Remaining)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d cards due, %d in today's sessions.\n", due, left)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dueCmd)
}
