package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/daviddao/autodraft/internal/display"
	"github.com/spf13/cobra"
)

var authForce bool

type authOutput struct {
	Store      string    `json:"store"`
	Expiry     time.Time `json:"expiry"`
	HasRefresh bool      `json:"has_refresh_token"`
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Gmail access and store the token",
	Long: `Obtain a Gmail token without starting the polling loop.

A stored token is reused, or refreshed if it has expired. Without one, or
with --force, the browser consent flow runs and the new token is stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAuthorizer(cfg, authForce)
		if err != nil {
			return err
		}
		ts, err := a.TokenSource(cmd.Context())
		if err != nil {
			return err
		}
		tok, err := ts.Token()
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(authOutput{Store: cfg.TokenStore, Expiry: tok.Expiry, HasRefresh: tok.RefreshToken != ""})
		}
		if !quietFlag {
			display.SuccessMsg("Authorized (%s store)", cfg.TokenStore)
			if !tok.Expiry.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", display.Dim.Render("access token expires "+tok.Expiry.Local().Format(time.RFC1123)))
			}
		}
		return nil
	},
}

func init() {
	authCmd.Flags().BoolVar(&authForce, "force", false, "Ignore any stored token and re-run consent")
	rootCmd.AddCommand(authCmd)
}
