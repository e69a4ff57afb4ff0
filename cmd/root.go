package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pmdash/internal/auth"
	"github.com/joescharf/pmdash/internal/forms"
	"github.com/joescharf/pmdash/internal/llm"
	"github.com/joescharf/pmdash/internal/output"
	"github.com/joescharf/pmdash/internal/realtime"
	"github.com/joescharf/pmdash/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	eventHub  *realtime.Hub

	verbose bool
	dryRun  bool
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pmdash",
	Short: "Project dashboard - projects, task board, team and QA",
	Long: `pmdash tracks projects, a kanban task board, team workload and QA
issues. It can run as a local CLI against its SQLite database or serve the
REST API, live change stream and web UI with 'pmdash serve'.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/pmdash/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "pmdash %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

func initConfig() {
	// .env in the working directory feeds PMDASH_* variables; a missing file is fine.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PMDASH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key rooted at dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "pmdash.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("base_url", "")
	viper.SetDefault("blob_dir", filepath.Join(dir, "files"))
	viper.SetDefault("blob.max_size_mb", 10)
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.issuer", "pmdash")
	viper.SetDefault("service.user_id", "local")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("server_url", "")
	viper.SetDefault("token", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily by getStore so config and version
	// commands run without a database.
}

// rootRun handles `pmdash` with no subcommand: show the board if a database
// is reachable, help otherwise.
func rootRun(cmd *cobra.Command) error {
	if _, err := getStore(); err != nil {
		return cmd.Help()
	}
	return boardShowRun()
}

// getStore returns the shared store, initializing it on first call. Writes
// go through a notifying wrapper so in-process subscribers see them.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	eventHub = realtime.NewHub(newLogger())
	dataStore = store.NewNotifying(s, eventHub)
	return dataStore, nil
}

// cliIdentity is the user CLI mutations are attributed to.
func cliIdentity() auth.Identity {
	return auth.Identity{UserID: viper.GetString("service.user_id")}
}

// newSubmitter returns a form submitter that reports through the terminal.
func newSubmitter(s store.Store) *forms.Submitter {
	return forms.New(s, uiNotifier{}, newLogger())
}

// newLogger returns the structured logger for background components.
// Verbose mode raises the level to debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var out io.Writer = os.Stderr
	if ui != nil {
		out = ui.ErrOut
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// newLLMClient returns nil when neither anthropic.api_key nor
// ANTHROPIC_API_KEY is set; callers treat that as enrichment disabled.
func newLLMClient() *llm.Client {
	key := viper.GetString("anthropic.api_key")
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil
	}
	return llm.NewClient(key, viper.GetString("anthropic.model"))
}
