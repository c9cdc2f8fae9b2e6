package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/constantino-dev/sentbench/internal/core"
	"github.com/constantino-dev/sentbench/internal/metrics"
	"github.com/constantino-dev/sentbench/internal/tasks"
	"github.com/constantino-dev/sentbench/pkg/types"
)

var evalCmd = &cobra.Command{
	Use:   "eval [task...]",
	Short: "Evaluate the configured embedder on downstream tasks",
	Long: `Evaluate the configured embedder on one or more tasks and record the run.

With no arguments every known task is evaluated.

Examples:
  sentbench eval
  sentbench eval BEAN MASC --kfold 5
  sentbench eval StyleSim --format yaml
  sentbench eval --metrics-addr :9090`,
	ValidArgs: tasks.Names(),
	RunE:      runEval,
}

var (
	evalBatchSize   int
	evalKFold       int
	evalSeed        int64
	evalFormat      string
	evalMetricsAddr string
)

func init() {
	evalCmd.Flags().IntVarP(&evalBatchSize, "batch-size", "b", tasks.DefaultBatchSize, "Sentences per embedder batch")
	evalCmd.Flags().IntVar(&evalKFold, "kfold", tasks.DefaultKFold, "Folds for cross-validated tasks")
	evalCmd.Flags().Int64Var(&evalSeed, "seed", tasks.DefaultSeed, "Fold shuffling seed")
	evalCmd.Flags().StringVarP(&evalFormat, "format", "f", "text", "Output format (text, json, yaml)")
	evalCmd.Flags().StringVar(&evalMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	engine, err := core.New(cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	if evalMetricsAddr != "" {
		srv, err := metrics.Start(evalMetricsAddr, log)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	params := types.EvalParams{
		BatchSize: evalBatchSize,
		KFold:     evalKFold,
		Seed:      evalSeed,
	}

	run, err := engine.Evaluate(cmd.Context(), args, params)
	if run != nil {
		if perr := printRun(cmd.OutOrStdout(), run, evalFormat); perr != nil {
			printError("%v", perr)
		}
	}
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}

// printRun renders a run in the requested format
func printRun(w io.Writer, run *types.Run, format string) error {
	if done, err := printFormatted(w, run, format); done {
		return err
	}

	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(w, "Model: %s\n", run.Model)
	fmt.Fprintf(w, "Params: batch=%d kfold=%d seed=%d\n",
		run.Params.BatchSize, run.Params.KFold, run.Params.Seed)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	if len(run.Results) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-10s %-10s %s\n", "TASK", "TIME", "METRICS")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, res := range run.Results {
		fmt.Fprintf(w, "%-10s %-10s %s\n", res.Task, res.Duration.Round(time.Millisecond), formatMetrics(res.Metrics))
	}
	return nil
}

// formatMetrics renders metrics sorted by name; counts print as integers
func formatMetrics(m types.Metrics) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, k := range names {
		v := m[k]
		if strings.HasPrefix(k, "n") && v == float64(int64(v)) {
			parts[i] = fmt.Sprintf("%s=%d", k, int64(v))
		} else {
			parts[i] = fmt.Sprintf("%s=%.4f", k, v)
		}
	}
	return strings.Join(parts, " ")
}
