// Package cli implements the sentbench command-line interface
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/constantino-dev/sentbench/internal/core"
	"github.com/constantino-dev/sentbench/internal/logger"
	"github.com/constantino-dev/sentbench/pkg/types"
)

const (
	configDir  = ".sentbench"
	configFile = "config.json"
	dbFile     = "sentbench.db"
	envPrefix  = "SENTBENCH"
)

var (
	// Global flags
	projectDir string
	verbose    bool
	logLevel   string

	// Root command
	rootCmd = &cobra.Command{
		Use:   "sentbench",
		Short: "sentbench - Evaluate sentence embeddings on downstream tasks",
		Long: `sentbench scores sentence embedding models on formality and style tasks.

Embeddings come from an external embedder command that reads one tokenized
sentence per line on stdin and answers each with a
"Sequence embedding: <floats>" line on stdout, or from an
OpenAI-compatible embeddings endpoint.

Use 'sentbench init' to create a project configuration.`,
		SilenceUsage: true,
	}
)

// Execute runs the CLI. SIGINT and SIGTERM cancel the command's context so
// that the embedder is shut down before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (JSON results, debug logs)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(similarityCmd)
	rootCmd.AddCommand(nearestCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// getProjectDir returns the project directory
func getProjectDir() string {
	if projectDir != "" {
		return projectDir
	}
	cwd, _ := os.Getwd()
	return cwd
}

// getConfigPath returns the path to config directory
func getConfigPath() string {
	return filepath.Join(getProjectDir(), configDir)
}

// loadConfig reads the project config, overlays SENTBENCH_* environment
// variables and fills in defaults. A missing config file is not an error as
// long as the environment describes an embedder.
func loadConfig() (*types.Config, error) {
	configPath := filepath.Join(getConfigPath(), configFile)

	var cfg types.Config
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if cfg.ExtractCommand == "" && cfg.EmbeddingProvider != "openai" {
		return nil, fmt.Errorf("no embedder configured. Run 'sentbench init' or set %s_EXTRACT_COMMAND", envPrefix)
	}

	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// applyConfigDefaults fills zero-valued fields
func applyConfigDefaults(cfg *types.Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(getConfigPath(), dbFile)
	}
	if cfg.EmbeddingProvider == "" {
		cfg.EmbeddingProvider = "command"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.ReplyTimeoutSecs <= 0 {
		cfg.ReplyTimeoutSecs = 60
	}
	if cfg.ShutdownGraceSecs <= 0 {
		cfg.ShutdownGraceSecs = 5
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.TaskPath == "" {
		cfg.TaskPath = filepath.Join(getProjectDir(), "data")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// saveConfig saves the configuration
func saveConfig(cfg *types.Config) error {
	configPath := filepath.Join(getConfigPath(), configFile)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// newLogger builds the stderr logger; stdout is reserved for results
func newLogger(cfg *types.Config) zerolog.Logger {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	return logger.NewConsole("sentbench", level, os.Stderr)
}

// getEngine creates and returns a sentbench engine
func getEngine() (*core.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	return core.New(cfg, newLogger(cfg))
}

// printJSON prints a value as JSON
func printJSON(w io.Writer, v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

// printFormatted prints v as json or yaml. It reports false for any other
// format so the caller can fall back to its text rendering.
func printFormatted(w io.Writer, v interface{}, format string) (bool, error) {
	switch format {
	case "json":
		printJSON(w, v)
		return true, nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "", "text":
		if verbose {
			printJSON(w, v)
			return true, nil
		}
		return false, nil
	default:
		return true, fmt.Errorf("unknown format %q (json, yaml, text)", format)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
