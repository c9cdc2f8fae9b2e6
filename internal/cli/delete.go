package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete an evaluation run",
	Long: `Delete a run and its results. Cached embeddings are kept.

Examples:
  sentbench delete 5f1c0d2e-...
  sentbench delete 5f1c0d2e-... --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var deleteForce bool

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]

	engine, err := getEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	// Verify run exists
	run, err := engine.GetRun(id)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", id)
	}

	out := cmd.OutOrStdout()

	// Confirm deletion
	if !deleteForce {
		fmt.Fprintf(out, "Run to delete:\n")
		fmt.Fprintf(out, "  ID:      %s\n", run.ID)
		fmt.Fprintf(out, "  Status:  %s\n", run.Status)
		fmt.Fprintf(out, "  Model:   %s\n", truncate(run.Model, 100))
		fmt.Fprintf(out, "  Results: %d\n", len(run.Results))
		fmt.Fprint(out, "\nAre you sure? (y/N): ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := engine.DeleteRun(id); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}

	fmt.Fprintf(out, "✓ Deleted run: %s\n", id)

	return nil
}
