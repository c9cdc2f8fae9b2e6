package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/constantino-dev/sentbench/pkg/types"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sentbench project",
	Long: `Initialize a sentbench project in the current directory.

This creates a .sentbench directory with configuration and database files.

Examples:
  sentbench init --extract-command "python extract.py --model m.pt"
  sentbench init --provider openai --openai-model text-embedding-3-small
  sentbench init --extract-command ./embed.sh --language ja --bpe-model sp.model`,
	RunE: runInit,
}

var (
	initProvider      string
	initCommand       string
	initOpenAIKey     string
	initOpenAIBaseURL string
	initOpenAIModel   string
	initTaskPath      string
	initLanguage      string
	initBPEModel      string
	initCache         bool
)

func init() {
	initCmd.Flags().StringVar(&initProvider, "provider", "command", "Embedding provider (command, openai)")
	initCmd.Flags().StringVar(&initCommand, "extract-command", "", "Shell command of the external embedder")
	initCmd.Flags().StringVar(&initOpenAIKey, "openai-key", "", "OpenAI API key")
	initCmd.Flags().StringVar(&initOpenAIBaseURL, "openai-base-url", "", "OpenAI-compatible endpoint")
	initCmd.Flags().StringVar(&initOpenAIModel, "openai-model", "", "OpenAI embedding model")
	initCmd.Flags().StringVar(&initTaskPath, "task-path", "", "Directory holding the task datasets (default: ./data)")
	initCmd.Flags().StringVar(&initLanguage, "language", "en", "Dataset language (en, ja)")
	initCmd.Flags().StringVar(&initBPEModel, "bpe-model", "", "Sentencepiece BPE model applied before sending sentences")
	initCmd.Flags().BoolVar(&initCache, "cache", true, "Cache embeddings in the project database")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	// Check if already initialized
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("sentbench already initialized in this directory")
	}

	apiKey := initOpenAIKey
	switch initProvider {
	case "command":
		if initCommand == "" {
			return fmt.Errorf("--extract-command is required for the command provider")
		}
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			// Prompt for key
			fmt.Fprint(cmd.OutOrStdout(), "Enter OpenAI API key (or set OPENAI_API_KEY env var): ")
			reader := bufio.NewReader(cmd.InOrStdin())
			input, _ := reader.ReadString('\n')
			apiKey = strings.TrimSpace(input)
			if apiKey == "" {
				return fmt.Errorf("OpenAI API key is required")
			}
		}
	default:
		return fmt.Errorf("unknown provider %q (command, openai)", initProvider)
	}

	// Create config directory
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &types.Config{
		DBPath:            filepath.Join(configPath, dbFile),
		EmbeddingProvider: initProvider,
		ExtractCommand:    initCommand,
		Language:          initLanguage,
		TaskPath:          initTaskPath,
		BPEModel:          initBPEModel,
		CacheEmbeddings:   initCache,
		OpenAIKey:         apiKey,
		OpenAIBaseURL:     initOpenAIBaseURL,
		OpenAIModel:       initOpenAIModel,
	}
	applyConfigDefaults(cfg)

	if err := saveConfig(cfg); err != nil {
		os.RemoveAll(configPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	// Initialize database by opening engine; the embedder is not started
	engine, err := getEngine()
	if err != nil {
		os.RemoveAll(configPath)
		return fmt.Errorf("failed to initialize: %w", err)
	}
	engine.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ sentbench initialized successfully")
	fmt.Fprintf(out, "  Config:   %s\n", filepath.Join(configPath, configFile))
	fmt.Fprintf(out, "  Database: %s\n", cfg.DBPath)
	fmt.Fprintf(out, "  Tasks:    %s\n", cfg.TaskPath)

	return nil
}
