package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daviddao/autodraft/internal/config"
	"github.com/daviddao/autodraft/internal/db"
	"github.com/daviddao/autodraft/internal/display"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configFile string
	envFile    string
	jsonOutput bool
	quietFlag  bool

	cfg    *config.Config
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "autodraft",
	Short: "autodraft - draft replies to unread Gmail messages",
	Long: `Autodraft polls a Gmail inbox, asks a language model for a reply to every
unread message, stores the reply as a draft and marks the message read.
Nothing is ever sent.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version":
			return nil
		}

		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		logger, err = display.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogJSON)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autodraft version %s\n", Version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the ledger database and ignore it in git",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := db.Open(cfg.DB)
		if err != nil {
			return err
		}
		s.Close()

		ensureGitignore(".", filepath.Dir(cfg.DB)+"/")

		if !quietFlag {
			display.SuccessMsg("Initialized ledger at %s", cfg.DB)
		}
		return nil
	},
}

// ensureGitignore appends entry to root/.gitignore when the repository has
// one and the entry is missing.
func ensureGitignore(root, entry string) {
	if entry == "./" {
		return
	}
	gitignorePath := filepath.Join(root, ".gitignore")

	f, err := os.Open(gitignorePath)
	if err != nil {
		return
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == entry || line == strings.TrimSuffix(entry, "/") {
			f.Close()
			return
		}
	}
	f.Close()

	af, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return // silently skip if can't write
	}
	defer af.Close()
	fmt.Fprintf(af, "\n# autodraft ledger\n%s\n", entry)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.StringVar(&envFile, "env-file", ".env", "Env file loaded before reading the environment")
	pf.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	pf.String("log-level", "info", "Diagnostic log level (debug, info, warn, error)")
	pf.Bool("log-json", false, "Write diagnostic logs as JSON lines")
	pf.String("credentials", "credentials.json", "OAuth client secrets file")
	pf.String("token", "token.json", "Token file (token-store=file)")
	pf.String("token-store", config.TokenStoreFile, "Where to keep the OAuth token (file, keyring)")
	pf.String("db", db.DefaultPath, "Ledger database path")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
