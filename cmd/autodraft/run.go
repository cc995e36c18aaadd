package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daviddao/autodraft/internal/db"
	"github.com/daviddao/autodraft/internal/display"
	"github.com/daviddao/autodraft/internal/draft"
	"github.com/daviddao/autodraft/internal/gmail"
	"github.com/daviddao/autodraft/internal/loop"
	"github.com/spf13/cobra"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll for unread messages and draft replies",
	Long: `Poll the inbox for unread messages and store a drafted reply for each.

Every cycle lists unread messages, drafts a reply to each one in order and
marks it read. The loop then waits --interval before the next cycle and runs
until interrupted or until a step fails in a way that cannot be skipped.

A message whose draft the mail service refuses stays unread and is retried
next cycle, unless --mark-read-on-draft-failure is set.`,
	Example: `  autodraft run
  autodraft run --interval 1m
  autodraft run --once --json
  autodraft run --model gpt-4o-mini --no-ledger`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gen, err := draft.New(draft.Options{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return err
		}

		mailbox, err := gmailClient(ctx, cfg)
		if err != nil {
			return err
		}

		// Keep stdout clean for the JSON summary.
		progress := cmd.OutOrStdout()
		if jsonOutput {
			progress = cmd.ErrOrStderr()
		}

		ctrl := &loop.Controller{
			Mailbox:   mailbox,
			Generator: gen,
			Reporter:  &display.Reporter{Out: progress, Quiet: quietFlag || jsonOutput},
			Policy: loop.Policy{
				MarkReadOnDraftFailure: cfg.MarkReadOnDraftFailure,
				Recoverable:            gmail.IsServiceError,
			},
			Interval: cfg.Interval,
			Log:      logger,
		}

		if !cfg.NoLedger {
			ledger, err := db.Open(cfg.DB)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer ledger.Close()
			ctrl.Recorder = ledger
		}

		logger.Info().
			Dur("interval", cfg.Interval).
			Str("model", cfg.Model).
			Str("query", cfg.Query).
			Bool("mark_read_on_draft_failure", cfg.MarkReadOnDraftFailure).
			Msg("starting")

		if runOnce {
			summary, err := ctrl.RunCycle(ctx)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(summary); encErr != nil {
					return encErr
				}
			}
			if err != nil && ctx.Err() == nil {
				display.ErrorMsg("%v", err)
				return err
			}
			return nil
		}

		if err := ctrl.Run(ctx); err != nil {
			display.ErrorMsg("%v", err)
			return err
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.Duration("interval", loop.DefaultInterval, "Pause between polling cycles")
	f.BoolVar(&runOnce, "once", false, "Run a single cycle and exit")
	f.Bool("mark-read-on-draft-failure", false, "Mark a message read even if its draft could not be stored")
	f.String("query", gmail.DefaultQuery, "Gmail search query selecting messages to answer")
	f.String("model", draft.DefaultModel, "Chat model used to draft replies")
	f.Int64("max-tokens", draft.DefaultMaxTokens, "Maximum tokens per drafted reply")
	f.Float64("temperature", draft.DefaultTemperature, "Sampling temperature")
	f.Bool("no-ledger", false, "Do not record cycles in the ledger database")

	rootCmd.AddCommand(runCmd)
}
