package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var nearestCmd = &cobra.Command{
	Use:   "nearest <sentence>",
	Short: "Find embedded sentences closest to a sentence",
	Long: `Embed a sentence and list the closest sentences embedded so far.

Only sentences stored by earlier eval, embed or similarity calls are searched.

Examples:
  sentbench nearest "thank you so much"
  sentbench nearest "thank you so much" -n 10`,
	Args: cobra.ExactArgs(1),
	RunE: runNearest,
}

var nearestLimit int

func init() {
	nearestCmd.Flags().IntVarP(&nearestLimit, "limit", "n", 5, "Maximum results")
}

func runNearest(cmd *cobra.Command, args []string) error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	hits, err := engine.Nearest(cmd.Context(), engine.Tokenize(args[0]), nearestLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, "No embedded sentences found.")
		return nil
	}

	if verbose {
		printJSON(out, hits)
		return nil
	}

	fmt.Fprintf(out, "%-8s %s\n", "SIM", "SENTENCE")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, h := range hits {
		fmt.Fprintf(out, "%-8.4f %s\n", 1-h.Distance, truncate(h.Text, 80))
	}
	return nil
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
