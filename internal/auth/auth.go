// Package auth provides Google OAuth2 authentication for autodraft.
//
// The stored token is refreshed when it has expired; if it cannot be
// refreshed, or none is stored, an interactive loopback authorization runs.
// Every new or refreshed token is written back to the store, including
// refreshes that happen while the process is running.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scopes requested from Google: read messages, create drafts, change labels.
var Scopes = []string{gmail.GmailModifyScope}

// LoadConfig reads the OAuth client secrets file.
func LoadConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s: %w", credentialsPath, err)
	}

	config, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return config, nil
}

// Authorizer produces a valid token source from a store, refreshing or
// re-authorizing as needed.
type Authorizer struct {
	Config *oauth2.Config
	Store  TokenStore
	Flow   Flow
	Log    zerolog.Logger

	// Force skips the stored token and always runs the interactive flow.
	Force bool
}

// TokenSource returns a token source backed by a valid token.
func (a *Authorizer) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		base:  a.Config.TokenSource(ctx, tok),
		store: a.Store,
		last:  tok.AccessToken,
		log:   a.Log,
	}, nil
}

func (a *Authorizer) token(ctx context.Context) (*oauth2.Token, error) {
	if a.Force {
		return a.authorize(ctx)
	}

	tok, err := a.Store.Load()
	if errors.Is(err, ErrNoToken) {
		a.Log.Info().Msg("no stored token, starting authorization")
		return a.authorize(ctx)
	}
	if err != nil {
		return nil, err
	}
	if tok.Valid() {
		return tok, nil
	}

	if tok.RefreshToken != "" {
		refreshed, err := a.Config.TokenSource(ctx, tok).Token()
		if err == nil {
			a.Log.Debug().Time("expiry", refreshed.Expiry).Msg("token refreshed")
			if err := a.Store.Save(refreshed); err != nil {
				return nil, fmt.Errorf("save refreshed token: %w", err)
			}
			return refreshed, nil
		}
		a.Log.Warn().Err(err).Msg("token refresh failed, starting authorization")
	}
	return a.authorize(ctx)
}

func (a *Authorizer) authorize(ctx context.Context) (*oauth2.Token, error) {
	tok, err := a.Flow.Run(ctx, a.Config)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if err := a.Store.Save(tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}

// persistingSource saves every token whose access token differs from the
// last one it saw.
type persistingSource struct {
	base  oauth2.TokenSource
	store TokenStore
	log   zerolog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		// Non-fatal: the in-memory token keeps working.
		if err := s.store.Save(tok); err != nil {
			s.log.Warn().Err(err).Msg("could not save refreshed token")
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

// LoadGmailService returns an authenticated Gmail API service.
func LoadGmailService(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}
