package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

// ErrNoToken means no credential has been stored yet.
var ErrNoToken = errors.New("no stored token")

// TokenStore persists the OAuth token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// FileStore keeps the token as JSON in a single file.
type FileStore struct {
	Path string
}

// Load reads the token file. A missing file yields ErrNoToken.
func (s FileStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", s.Path, err)
	}
	return tok, nil
}

// Save rewrites the token file with owner-only permissions.
func (s FileStore) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", s.Path, err)
	}
	return nil
}

const (
	keyringService = "autodraft"
	keyringKey     = "gmail-token"
)

// KeyringStore keeps the token in the system keyring.
type KeyringStore struct {
	Ring keyring.Keyring
}

// OpenKeyring returns a KeyringStore on the first available system backend,
// falling back to an encrypted file under dir.
func OpenKeyring(dir string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringStore{Ring: ring}, nil
}

// Load reads the token from the keyring.
func (s *KeyringStore) Load() (*oauth2.Token, error) {
	item, err := s.Ring.Get(keyringKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", keyringKey, err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(item.Data, tok); err != nil {
		return nil, fmt.Errorf("parse credential %q: %w", keyringKey, err)
	}
	return tok, nil
}

// Save replaces the token in the keyring.
func (s *KeyringStore) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	err = s.Ring.Set(keyring.Item{
		Key:   keyringKey,
		Data:  data,
		Label: "autodraft Gmail token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", keyringKey, err)
	}
	return nil
}
