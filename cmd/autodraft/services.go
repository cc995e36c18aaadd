package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daviddao/autodraft/internal/auth"
	"github.com/daviddao/autodraft/internal/config"
	"github.com/daviddao/autodraft/internal/gmail"
)

// tokenStore returns the configured token backend.
func tokenStore(c *config.Config) (auth.TokenStore, error) {
	if c.TokenStore == config.TokenStoreKeyring {
		return auth.OpenKeyring(expandHome(c.KeyringDir))
	}
	return auth.FileStore{Path: c.Token}, nil
}

func newAuthorizer(c *config.Config, force bool) (*auth.Authorizer, error) {
	oauthCfg, err := auth.LoadConfig(c.Credentials)
	if err != nil {
		return nil, err
	}
	store, err := tokenStore(c)
	if err != nil {
		return nil, err
	}
	return &auth.Authorizer{
		Config: oauthCfg,
		Store:  store,
		Flow:   auth.Flow{Open: openConsent},
		Log:    logger.With().Str("component", "auth").Logger(),
		Force:  force,
	}, nil
}

// gmailClient authorizes and returns a mailbox client.
func gmailClient(ctx context.Context, c *config.Config) (*gmail.Client, error) {
	a, err := newAuthorizer(c, false)
	if err != nil {
		return nil, err
	}
	ts, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := auth.LoadGmailService(ctx, ts)
	if err != nil {
		return nil, err
	}
	return gmail.New(svc, c.Query), nil
}

// openConsent prints the consent URL and tries the browser as well, so
// headless machines can still complete authorization.
func openConsent(url string) error {
	if !quietFlag {
		fmt.Fprintf(os.Stderr, "Open this URL to authorize autodraft:\n\n  %s\n\n", url)
	}
	if err := auth.OpenBrowser(url); err != nil {
		logger.Debug().Err(err).Msg("could not open browser")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
