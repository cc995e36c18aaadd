package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load("", nil)
	be.Err(t, err, nil)

	be.Equal(t, cfg.Model, "gpt-3.5-turbo")
	be.Equal(t, cfg.MaxTokens, int64(150))
	be.Equal(t, cfg.Temperature, 0.5)
	be.Equal(t, cfg.Interval, 300*time.Second)
	be.Equal(t, cfg.Query, "is:unread")
	be.Equal(t, cfg.Credentials, "credentials.json")
	be.Equal(t, cfg.Token, "token.json")
	be.Equal(t, cfg.TokenStore, TokenStoreFile)
	be.True(t, !cfg.MarkReadOnDraftFailure)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("AUTODRAFT_INTERVAL", "90s")
	t.Setenv("AUTODRAFT_MARK_READ_ON_DRAFT_FAILURE", "true")

	cfg, err := Load("", nil)
	be.Err(t, err, nil)
	be.Equal(t, cfg.OpenAIAPIKey, "sk-env")
	be.Equal(t, cfg.Interval, 90*time.Second)
	be.True(t, cfg.MarkReadOnDraftFailure)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	be.Err(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-from-file\n"), 0o600), nil)

	// Register cleanup of the variable godotenv is about to set.
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")

	be.Err(t, LoadEnvFile(path), nil)
	cfg, err := Load("", nil)
	be.Err(t, err, nil)
	be.Equal(t, cfg.OpenAIAPIKey, "sk-from-file")
}

func TestLoadEnvFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	be.Err(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-from-file\n"), 0o600), nil)
	t.Setenv("OPENAI_API_KEY", "sk-shell")

	be.Err(t, LoadEnvFile(path), nil)
	be.Equal(t, os.Getenv("OPENAI_API_KEY"), "sk-shell")
}

func TestLoadEnvFileMissing(t *testing.T) {
	be.Err(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")), nil)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autodraft.yaml")
	be.Err(t, os.WriteFile(path, []byte("model: gpt-4o-mini\ninterval: 2m\nquery: \"is:unread in:inbox\"\n"), 0o600), nil)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("interval", 0, "")
	flags.Bool("mark-read-on-draft-failure", false, "")
	be.Err(t, flags.Parse([]string{"--interval=45s", "--mark-read-on-draft-failure"}), nil)

	cfg, err := Load(path, flags)
	be.Err(t, err, nil)
	be.Equal(t, cfg.Model, "gpt-4o-mini")
	be.Equal(t, cfg.Query, "is:unread in:inbox")
	be.Equal(t, cfg.Interval, 45*time.Second)
	be.True(t, cfg.MarkReadOnDraftFailure)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"AUTODRAFT_INTERVAL":    "-1s",
		"AUTODRAFT_TOKEN_STORE": "vault",
		"AUTODRAFT_TEMPERATURE": "3",
	}
	for env, value := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			_, err := Load("", nil)
			be.Err(t, err)
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	be.Err(t, err, "reading config")
}
