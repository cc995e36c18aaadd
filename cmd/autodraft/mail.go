package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/daviddao/autodraft/internal/display"
	"github.com/daviddao/autodraft/internal/draft"
	"github.com/daviddao/autodraft/internal/gmail"
	"github.com/daviddao/autodraft/internal/types"
	"github.com/spf13/cobra"
)

var mailPrompt bool

// mailCmd is the parent command for read-only mailbox inspection.
var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Inspect the mailbox without changing it",
}

var mailUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "List the messages the next cycle would answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := gmailClient(ctx, cfg)
		if err != nil {
			return err
		}
		refs, err := client.ListUnread(ctx)
		if err != nil {
			return err
		}

		msgs := make([]types.Message, 0, len(refs))
		for _, ref := range refs {
			msg, err := client.Read(ctx, ref)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No new emails.")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d unread message(s) matching %s\n\n", len(msgs), cfg.Query)
		for _, msg := range msgs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", display.Dim.Render(msg.ID), display.Bold.Render(display.Truncate(msg.Subject, 60)))
			if preview := firstLine(msg.Body); preview != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", display.Muted.Render(display.Truncate(preview, 80)))
			}
		}
		return nil
	},
}

var mailReadCmd = &cobra.Command{
	Use:   "read MESSAGE_ID",
	Short: "Show the subject and plain-text body autodraft extracts from a message",
	Example: `  autodraft mail read 18d5a7b3c4e5f6a7
  autodraft mail read 18d5a7b3c4e5f6a7 --prompt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := gmailClient(ctx, cfg)
		if err != nil {
			return err
		}
		msg, err := client.Read(ctx, types.MessageRef{ID: args[0]})
		if err != nil {
			if gmail.IsServiceError(err) {
				return fmt.Errorf("message %s: %w", args[0], err)
			}
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(msg)
		}
		if mailPrompt {
			fmt.Fprintln(cmd.OutOrStdout(), draft.Prompt(msg))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", display.Muted.Render("Subject:"), display.Bold.Render(msg.Subject))
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n\n", display.Muted.Render("Reply:"), types.Reply(msg, "").Subject)
		if msg.Body == "" {
			fmt.Fprintln(cmd.OutOrStdout(), display.Dim.Render("(no text/plain part)"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg.Body)
		return nil
	},
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func init() {
	mailUnreadCmd.Flags().String("query", gmail.DefaultQuery, "Gmail search query")
	mailReadCmd.Flags().BoolVar(&mailPrompt, "prompt", false, "Print the prompt that would be sent to the model")

	mailCmd.AddCommand(mailUnreadCmd)
	mailCmd.AddCommand(mailReadCmd)
	rootCmd.AddCommand(mailCmd)
}
