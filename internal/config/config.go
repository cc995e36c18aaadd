// Package config resolves autodraft settings from flags, environment,
// an optional .env file and an optional YAML config file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides (AUTODRAFT_INTERVAL, ...).
const EnvPrefix = "AUTODRAFT"

// Keys.
const (
	KeyOpenAIKey      = "openai_api_key"
	KeyOpenAIBaseURL  = "openai_base_url"
	KeyModel          = "model"
	KeyMaxTokens      = "max_tokens"
	KeyTemperature    = "temperature"
	KeyCredentials    = "credentials"
	KeyToken          = "token"
	KeyTokenStore     = "token_store"
	KeyKeyringDir     = "keyring_dir"
	KeyInterval       = "interval"
	KeyQuery          = "query"
	KeyMarkReadOnFail = "mark_read_on_draft_failure"
	KeyDB             = "db"
	KeyNoLedger       = "no_ledger"
	KeyLogLevel       = "log_level"
	KeyLogJSON        = "log_json"
)

// Token store backends.
const (
	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

// Config holds application-wide configuration.
type Config struct {
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	Model         string        `mapstructure:"model"`
	MaxTokens     int64         `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
	Credentials   string        `mapstructure:"credentials"`
	Token         string        `mapstructure:"token"`
	TokenStore    string        `mapstructure:"token_store"`
	KeyringDir    string        `mapstructure:"keyring_dir"`
	Interval      time.Duration `mapstructure:"interval"`
	Query         string        `mapstructure:"query"`

	MarkReadOnDraftFailure bool `mapstructure:"mark_read_on_draft_failure"`

	DB       string `mapstructure:"db"`
	NoLedger bool   `mapstructure:"no_ledger"`
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyModel, "gpt-3.5-turbo")
	v.SetDefault(KeyMaxTokens, 150)
	v.SetDefault(KeyTemperature, 0.5)
	v.SetDefault(KeyCredentials, "credentials.json")
	v.SetDefault(KeyToken, "token.json")
	v.SetDefault(KeyTokenStore, TokenStoreFile)
	v.SetDefault(KeyKeyringDir, "~/.config/autodraft/keyring")
	v.SetDefault(KeyInterval, 300*time.Second)
	v.SetDefault(KeyQuery, "is:unread")
	v.SetDefault(KeyMarkReadOnFail, false)
	v.SetDefault(KeyDB, ".autodraft/ledger.db")
	v.SetDefault(KeyNoLedger, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogJSON, false)
}

// LoadEnvFile loads variables from an env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration. flags may be nil; when set, each flag
// whose name matches a key (with dashes for underscores) overrides it.
// configFile is optional.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// The API key is conventionally unprefixed.
	if err := v.BindEnv(KeyOpenAIKey, "OPENAI_API_KEY", EnvPrefix+"_OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv(KeyOpenAIBaseURL, "OPENAI_BASE_URL", EnvPrefix+"_OPENAI_BASE_URL"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	if flags != nil {
		for _, key := range v.AllKeys() {
			if f := flags.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on the command being run.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature <= 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within (0, 2], got %g", c.Temperature)
	}
	switch c.TokenStore {
	case TokenStoreFile, TokenStoreKeyring:
	default:
		return fmt.Errorf("unknown token_store %q (want %q or %q)", c.TokenStore, TokenStoreFile, TokenStoreKeyring)
	}
	return nil
}

func flagName(key string) string {
	b := []byte(key)
	for i, c := range b {
		if c == '_' {
			b[i] = '-'
		}
	}
	return string(b)
}
