package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/nalgeon/be"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type memStore struct {
	tok   *oauth2.Token
	saves int
}

func (m *memStore) Load() (*oauth2.Token, error) {
	if m.tok == nil {
		return nil, ErrNoToken
	}
	return m.tok, nil
}

func (m *memStore) Save(tok *oauth2.Token) error {
	m.tok = tok
	m.saves++
	return nil
}

// tokenServer answers token requests with a new access token. With
// failRefresh set, refresh grants are rejected.
func tokenServer(t *testing.T, failRefresh bool) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failRefresh && r.FormValue("grant_type") == "refresh_token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + string(rune('0'+n)),
			"refresh_token": "refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: Scopes,
	}
}

// consent simulates the user approving the request in a browser.
func consent(t *testing.T) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		redirect := q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(q.Get("state"))
		go func() {
			resp, err := http.Get(redirect)
			if err != nil {
				t.Errorf("callback: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}
}

func newAuthorizer(cfg *oauth2.Config, store TokenStore, open func(string) error) *Authorizer {
	return &Authorizer{
		Config: cfg,
		Store:  store,
		Flow:   Flow{Open: open, Timeout: 5 * time.Second},
		Log:    zerolog.Nop(),
	}
}

func TestValidTokenIsUsedAsIs(t *testing.T) {
	srv, calls := tokenServer(t, false)
	store := &memStore{tok: &oauth2.Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}}
	a := newAuthorizer(testConfig(srv.URL), store, func(string) error {
		t.Fatal("interactive flow started")
		return nil
	})

	ts, err := a.TokenSource(context.Background())
	be.Err(t, err, nil)
	tok, err := ts.Token()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "valid")
	be.Equal(t, atomic.LoadInt32(calls), int32(0))
	be.Equal(t, store.saves, 0)
}

func TestExpiredTokenIsRefreshedAndSaved(t *testing.T) {
	srv, calls := tokenServer(t, false)
	store := &memStore{tok: &oauth2.Token{
		AccessToken:  "old",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}}
	a := newAuthorizer(testConfig(srv.URL), store, func(string) error {
		t.Fatal("interactive flow started")
		return nil
	})

	ts, err := a.TokenSource(context.Background())
	be.Err(t, err, nil)
	tok, err := ts.Token()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "access-1")
	be.Equal(t, atomic.LoadInt32(calls), int32(1))
	be.Equal(t, store.saves, 1)
	be.Equal(t, store.tok.AccessToken, "access-1")
}

func TestFailedRefreshFallsBackToAuthorization(t *testing.T) {
	srv, _ := tokenServer(t, true)
	cfg := testConfig(srv.URL)

	store := &memStore{tok: &oauth2.Token{
		AccessToken:  "old",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	}}
	var opened bool
	a := newAuthorizer(cfg, store, func(u string) error {
		opened = true
		return consent(t)(u)
	})

	ts, err := a.TokenSource(context.Background())
	be.Err(t, err, nil)
	be.True(t, opened)
	tok, err := ts.Token()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "access-1")
	be.Equal(t, store.tok.AccessToken, "access-1")
}

func TestMissingTokenRunsAuthorization(t *testing.T) {
	srv, calls := tokenServer(t, false)
	store := &memStore{}
	a := newAuthorizer(testConfig(srv.URL), store, consent(t))

	ts, err := a.TokenSource(context.Background())
	be.Err(t, err, nil)
	tok, err := ts.Token()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "access-1")
	be.Equal(t, atomic.LoadInt32(calls), int32(1))
	be.Equal(t, store.saves, 1)
}

func TestForceIgnoresStoredToken(t *testing.T) {
	srv, _ := tokenServer(t, false)
	store := &memStore{tok: &oauth2.Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}}
	a := newAuthorizer(testConfig(srv.URL), store, consent(t))
	a.Force = true

	_, err := a.TokenSource(context.Background())
	be.Err(t, err, nil)
	be.Equal(t, store.tok.AccessToken, "access-1")
}

func TestFlowRejectsWrongState(t *testing.T) {
	srv, _ := tokenServer(t, false)
	flow := Flow{
		Timeout: 300 * time.Millisecond,
		Open: func(authURL string) error {
			u, _ := url.Parse(authURL)
			go func() {
				resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=c&state=forged")
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}
	_, err := flow.Run(context.Background(), testConfig(srv.URL))
	be.Err(t, err, "timed out")
}

func TestFlowDenied(t *testing.T) {
	srv, _ := tokenServer(t, false)
	flow := Flow{
		Timeout: 5 * time.Second,
		Open: func(authURL string) error {
			u, _ := url.Parse(authURL)
			q := u.Query()
			go func() {
				resp, err := http.Get(q.Get("redirect_uri") + "?error=access_denied&state=" + url.QueryEscape(q.Get("state")))
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}
	_, err := flow.Run(context.Background(), testConfig(srv.URL))
	be.Err(t, err, "access_denied")
}

func TestFlowUsesLoopbackRedirect(t *testing.T) {
	var redirect string
	flow := Flow{
		Timeout: 100 * time.Millisecond,
		Open: func(authURL string) error {
			u, _ := url.Parse(authURL)
			redirect = u.Query().Get("redirect_uri")
			return nil
		},
	}
	cfg := testConfig("http://127.0.0.1:1/token")
	_, err := flow.Run(context.Background(), cfg)
	be.Err(t, err)

	u, err := url.Parse(redirect)
	be.Err(t, err, nil)
	be.Equal(t, u.Hostname(), "127.0.0.1")
	be.True(t, u.Port() != "" && u.Port() != "0")
	be.Equal(t, cfg.RedirectURL, "")
}

func TestPersistingSourceSavesRotatedTokens(t *testing.T) {
	store := &memStore{}
	tokens := []*oauth2.Token{{AccessToken: "a"}, {AccessToken: "a"}, {AccessToken: "b"}}
	var i int
	ps := &persistingSource{
		base: tokenSourceFunc(func() (*oauth2.Token, error) {
			tok := tokens[i]
			i++
			return tok, nil
		}),
		store: store,
		last:  "a",
		log:   zerolog.Nop(),
	}
	for range tokens {
		_, err := ps.Token()
		be.Err(t, err, nil)
	}
	be.Equal(t, store.saves, 1)
	be.Equal(t, store.tok.AccessToken, "b")
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "token.json")
	store := FileStore{Path: path}

	_, err := store.Load()
	be.Err(t, err, ErrNoToken)

	expiry := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	be.Err(t, store.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}), nil)

	info, err := os.Stat(path)
	be.Err(t, err, nil)
	be.Equal(t, info.Mode().Perm(), os.FileMode(0o600))

	tok, err := store.Load()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "a")
	be.Equal(t, tok.RefreshToken, "r")
	be.True(t, tok.Expiry.Equal(expiry))
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	be.Err(t, os.WriteFile(path, []byte("not json"), 0o600), nil)
	_, err := FileStore{Path: path}.Load()
	be.Err(t, err, "parse token")
	be.True(t, !errors.Is(err, ErrNoToken))
}

func TestKeyringStore(t *testing.T) {
	store := &KeyringStore{Ring: keyring.NewArrayKeyring(nil)}

	_, err := store.Load()
	be.Err(t, err, ErrNoToken)

	be.Err(t, store.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}), nil)
	tok, err := store.Load()
	be.Err(t, err, nil)
	be.Equal(t, tok.AccessToken, "a")
	be.Equal(t, tok.RefreshToken, "r")
}
