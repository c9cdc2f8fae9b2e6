package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs",
	Long: `List recorded evaluation runs, most recent first.

Examples:
  sentbench list
  sentbench list --limit 5`,
	RunE: runList,
}

var listLimit int

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum results")
}

func runList(cmd *cobra.Command, args []string) error {
	engine, err := getEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	runs, err := engine.ListRuns(listLimit)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	if verbose {
		printJSON(out, runs)
		return nil
	}

	fmt.Fprintf(out, "%-36s %-10s %-12s %-20s %s\n", "ID", "STATUS", "CREATED", "TASKS", "MODEL")
	fmt.Fprintln(out, strings.Repeat("-", 110))
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s %-10s %-12s %-20s %s\n",
			r.ID, r.Status, formatTimeAgo(r.CreatedAt),
			truncate(strings.Join(r.Tasks, ","), 20), truncate(r.Model, 40))
	}
	fmt.Fprintf(out, "\nTotal: %d runs\n", len(runs))

	return nil
}

func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
