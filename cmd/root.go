package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issues/internal/output"
	"github.com/joescharf/issues/internal/store"
	"github.com/joescharf/issues/internal/tracker"
)

// Set from main via Execute.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "issues",
	Short: "Issue tracker - per-project issues over a small REST API",
	Long: `issues keeps a list of issues for each project and serves them
over a JSON REST API. Issues can also be managed from the command line
or through an MCP stdio server.

Storage is SQLite by default; set store.driver to "mongo" to use MongoDB.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/issues/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "issues")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ISSUES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("mongo.uri", "ISSUES_MONGO_URI", "DB")
	_ = viper.BindEnv("anthropic.api_key", "ISSUES_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "issues"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("port", 8080)
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("db_path", filepath.Join(stateDir, "issues.db"))
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "issues")
	viper.SetDefault("api.strict_delete", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version run without a database.
}

// newLogger builds the process logger from log.level; --verbose forces debug.
func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getStore returns the shared store, opening and migrating it on first call.
func getStore(ctx context.Context) (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var (
		s   store.Store
		err error
	)
	switch driver := viper.GetString("store.driver"); driver {
	case "sqlite", "":
		s, err = store.NewSQLiteStore(viper.GetString("db_path"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	case "mongo", "mongodb":
		s, err = store.NewMongoStore(ctx, viper.GetString("mongo.uri"), viper.GetString("mongo.database"))
		if err != nil {
			return nil, fmt.Errorf("connect to mongodb: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q (use sqlite or mongo)", driver)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}

// getService wires the issue service over the shared store.
func getService(ctx context.Context) (*tracker.Service, error) {
	s, err := getStore(ctx)
	if err != nil {
		return nil, err
	}
	return tracker.NewService(s,
		tracker.WithLogger(newLogger()),
		tracker.WithStrictDelete(viper.GetBool("api.strict_delete")),
	), nil
}
