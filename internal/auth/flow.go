package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"
)

// DefaultFlowTimeout bounds how long the loopback flow waits for consent.
const DefaultFlowTimeout = 5 * time.Minute

// Flow runs the installed-app authorization: it listens on an OS-assigned
// loopback port, sends the user to the consent page and exchanges the code
// delivered to the callback.
type Flow struct {
	// Open presents the consent URL to the user. Nil uses OpenBrowser.
	Open    func(url string) error
	Timeout time.Duration
}

type callback struct {
	code string
	err  error
}

// Run performs the authorization and returns the exchanged token.
func (f Flow) Run(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}

	state, err := randomState()
	if err != nil {
		ln.Close()
		return nil, err
	}

	// The redirect must match the listener; copy so the caller's config is untouched.
	c := *cfg
	c.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	results := make(chan callback, 1)
	srv := &http.Server{Handler: callbackHandler(state, results), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callback{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	open := f.Open
	if open == nil {
		open = OpenBrowser
	}
	if err := open(authURL); err != nil {
		return nil, fmt.Errorf("open consent page: %w", err)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFlowTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res callback
	select {
	case res = <-results:
	case <-timer.C:
		return nil, fmt.Errorf("authorization timed out after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := c.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func callbackHandler(state string, results chan<- callback) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			deliver(results, callback{err: fmt.Errorf("authorization denied: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "code missing", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "Authorization received. You can close this tab.")
		deliver(results, callback{code: code})
	})
}

// deliver keeps only the first callback result.
func deliver(results chan<- callback, c callback) {
	select {
	case results <- c:
	default:
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return "st-" + hex.EncodeToString(b), nil
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}
