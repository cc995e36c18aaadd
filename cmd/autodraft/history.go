package main

import (
	"encoding/json"
	"fmt"

	"github.com/daviddao/autodraft/internal/db"
	"github.com/daviddao/autodraft/internal/display"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyMessage string
	historyCycles  bool
)

type historyOutput struct {
	Totals    db.Totals      `json:"totals"`
	Cycles    []db.Cycle     `json:"cycles,omitempty"`
	Processed []db.Processed `json:"processed,omitempty"`
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"log"},
	Short:   "Show drafted replies and past cycles from the ledger",
	Long: `Show what earlier runs did, as recorded in the ledger database.

By default lists the most recently processed messages. --cycles lists
polling cycles instead, and --message shows every outcome for one message.`,
	Example: `  autodraft history
  autodraft history -n 50
  autodraft history --cycles
  autodraft history --message 18d5a7b3c4e5f6a7 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ledger, err := db.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer ledger.Close()

		var out historyOutput
		if out.Totals, err = ledger.Totals(ctx); err != nil {
			return err
		}
		switch {
		case historyMessage != "":
			out.Processed, err = ledger.MessageHistory(ctx, historyMessage)
		case historyCycles:
			out.Cycles, err = ledger.RecentCycles(ctx, historyLimit)
		default:
			out.Processed, err = ledger.RecentProcessed(ctx, historyLimit)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		w := cmd.OutOrStdout()
		t := out.Totals
		display.Header(w, "Ledger")
		fmt.Fprintf(w, "  %d cycles  ·  %d drafted  ·  %d failed  ·  %d aborted\n\n",
			t.Cycles, t.Drafted, t.Failed, t.Aborted)

		if historyCycles {
			if len(out.Cycles) == 0 {
				fmt.Fprintln(w, display.Dim.Render("No cycles recorded."))
				return nil
			}
			for _, c := range out.Cycles {
				status := display.Success.Render("ok")
				if c.Error != "" {
					status = display.ErrStyle.Render("aborted")
				}
				fmt.Fprintf(w, "  %s  %-7s listed %-3d drafted %-3d failed %-3d %s\n",
					display.Dim.Render(shortID(c.ID)), status, c.Listed, c.Drafted, c.Failed,
					display.Dim.Render(display.TimeAgo(c.StartedAt)))
				if c.Error != "" {
					fmt.Fprintf(w, "    %s\n", display.Muted.Render(display.Truncate(c.Error, 100)))
				}
			}
			return nil
		}

		if len(out.Processed) == 0 {
			fmt.Fprintln(w, display.Dim.Render("No messages processed yet."))
			return nil
		}
		for _, p := range out.Processed {
			fmt.Fprintln(w, "  "+display.OutcomeLine(p.Outcome, p.ProcessedAt))
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().StringVar(&historyMessage, "message", "", "Show every outcome recorded for one message ID")
	historyCmd.Flags().BoolVar(&historyCycles, "cycles", false, "List cycles instead of messages")
	rootCmd.AddCommand(historyCmd)
}
