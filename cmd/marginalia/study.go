package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/marginalia/internal/domain"
	"github.com/conorfennell/marginalia/internal/session"
)

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Review due highlights in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		bookID, _ := cmd.Flags().GetString("book")

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

		s, err := engine.Start(cmd.Context(), bookID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if s == nil {
			fmt.Fprintln(out, "Nothing due. Come back tomorrow.")
			return nil
		}
		return studyLoop(cmd, engine, bufio.NewScanner(cmd.InOrStdin()), out)
	},
}

func init() {
	studyCmd.Flags().String("book", "", "study a single deck by book ID (default: all decks)")
	rootCmd.AddCommand(studyCmd)
}

const prompt = "[1] again  [2] hard  [3] good  [4] easy  [u] undo  [q] quit > "

func studyLoop(cmd *cobra.Command, engine *session.Engine, in *bufio.Scanner, out io.Writer) error {
	for {
		s := engine.Session()
		if s == nil || s.Complete() {
			printSummary(out, s)
			return nil
		}

		cardID := s.NextCardID()
		card, ok := engine.Card(cardID)
		if !ok {
			return fmt.Errorf("card %s: %w", cardID, domain.ErrCardNotFound)
		}
		h, _ := engine.Highlight(cardID)

		fmt.Fprintf(out, "\n(%d/%d, %s)\n\n%s\n", len(s.CompletedIDs)+1, len(s.CardIDs), card.Stage(), h.Text)
		if h.Note != "" {
			fmt.Fprintf(out, "\n  note: %s\n", h.Note)
		}
		shown := time.Now()

	answer:
		for {
			fmt.Fprint(out, prompt)
			if !in.Scan() {
				return in.Err()
			}
			input := strings.TrimSpace(strings.ToLower(in.Text()))
			switch input {
			case "q":
				fmt.Fprintln(out, "Session saved. Run study again to resume.")
				return nil
			case "u":
				if len(s.History) == 0 {
					fmt.Fprintln(out, "Nothing to undo.")
					continue
				}
				if err := engine.Undo(cmd.Context()); err != nil {
					return err
				}
				break answer
			case "1", "2", "3", "4":
				q := domain.Quality(input[0] - '0')
				if err := engine.Submit(cmd.Context(), cardID, q, card, time.Since(shown)); err != nil {
					return err
				}
				break answer
			default:
				fmt.Fprintln(out, "Answer 1-4, u or q.")
			}
		}
	}
}

func printSummary(out io.Writer, s *domain.StudySession) {
	if s == nil {
		return
	}
	counts := make(map[domain.Quality]int)
	for _, r := range s.Results {
		counts[r.Quality]++
	}
	fmt.Fprintf(out, "\nSession complete: %d cards (again %d, hard %d, good %d, easy %d).\n",
		len(s.Results), counts[domain.Again], counts[domain.Hard], counts[domain.Good], counts[domain.Easy])
}
