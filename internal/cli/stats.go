package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show project statistics",
	Long: `Show statistics about recorded runs and cached embeddings.

Examples:
  sentbench stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Stats()
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if verbose {
		printJSON(out, stats)
		return nil
	}

	fmt.Fprintln(out, "sentbench Statistics")
	fmt.Fprintln(out, "────────────────────")
	fmt.Fprintf(out, "Model:       %s\n", engine.Model())
	fmt.Fprintf(out, "Runs:        %d\n", stats["runs"])
	fmt.Fprintf(out, "Results:     %d\n", stats["results"])
	fmt.Fprintf(out, "Sentences:   %d\n", stats["sentences"])
	fmt.Fprintf(out, "Models:      %d\n", stats["models"])
	fmt.Fprintf(out, "Vector dims: %d\n", stats["vector_dims"])

	return nil
}
