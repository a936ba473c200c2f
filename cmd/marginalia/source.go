package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/sync"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage where highlights are imported from",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <path/or/url.git>",
	Short: "Add a local path or git repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		path := args[0]
		kind := sync.SourceType(path)
		if kind == domain.SourceLocal {
			if path, err = filepath.Abs(path); err != nil {
				return fmt.Errorf("failed to resolve %s: %w", args[0], err)
			}
		}

		existing, err := a.db.FindSourceByPath(cmd.Context(), path)
		if err != nil {
			return err
		}
		if existing != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Source already exists: %s\n", path)
			return nil
		}

		id, err := a.db.InsertSource(cmd.Context(), path, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", kind, id, path)
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		sources, err := a.db.GetAllSources(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tLAST SCANNED\tPATH")
		for _, s := range sources {
			scanned := "never"
			if s.LastScanned != nil {
				scanned = s.LastScanned.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Type, scanned, s.Path)
		}
		return tw.Flush()
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a source; imported highlights are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source ID %q", args[0])
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.DeleteSource(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed source %d\n", id)
		return nil
	},
}

func init() {
	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd, sourceRemoveCmd)
	rootCmd.AddCommand(sourceCmd)
}
