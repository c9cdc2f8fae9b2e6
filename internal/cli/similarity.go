package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var similarityCmd = &cobra.Command{
	Use:   "similarity <sentence> <sentence>",
	Short: "Cosine similarity of two sentences",
	Long: `Embed two sentences and print the cosine similarity of their vectors.

Examples:
  sentbench similarity "I would be grateful for your help" "can u help me"`,
	Args: cobra.ExactArgs(2),
	RunE: runSimilarity,
}

func runSimilarity(cmd *cobra.Command, args []string) error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	sim, err := engine.Similarity(cmd.Context(), engine.Tokenize(args[0]), engine.Tokenize(args[1]))
	if err != nil {
		return fmt.Errorf("similarity failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", sim)
	return nil
}
