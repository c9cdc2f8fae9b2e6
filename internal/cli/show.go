package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show details of an evaluation run",
	Long: `Show the parameters and per-task metrics of a run.

Examples:
  sentbench show 5f1c0d2e-...
  sentbench show 5f1c0d2e-... --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var showFormat string

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "Output format (text, json, yaml)")
}

func runShow(cmd *cobra.Command, args []string) error {
	id := args[0]

	engine, err := getEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	run, err := engine.GetRun(id)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", id)
	}

	return printRun(cmd.OutOrStdout(), run, showFormat)
}
