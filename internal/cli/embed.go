package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/constantino-dev/sentbench/pkg/types"
)

var embedCmd = &cobra.Command{
	Use:   "embed [sentence...]",
	Short: "Embed sentences with the configured embedder",
	Long: `Embed sentences and print one vector per line.

Sentences are read from the arguments, or one per line from stdin when no
arguments are given.

Examples:
  sentbench embed "this is fine" "whatever lol"
  cat sentences.txt | sentbench embed --format json`,
	RunE: runEmbed,
}

var embedFormat string

func init() {
	embedCmd.Flags().StringVarP(&embedFormat, "format", "f", "text", "Output format (text, json, yaml)")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	texts := args
	if len(texts) == 0 {
		var err error
		if texts, err = readLines(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}
	if len(texts) == 0 {
		return fmt.Errorf("no sentences given")
	}

	engine, err := getEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	batch := make([]types.Sentence, len(texts))
	for i, t := range texts {
		batch[i] = engine.Tokenize(t)
	}

	vecs, err := engine.Embed(cmd.Context(), batch)
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if done, err := printFormatted(out, vecs, embedFormat); done {
		return err
	}
	for _, v := range vecs {
		fmt.Fprintln(out, formatVector(v))
	}
	return nil
}

// readLines returns the non-empty lines of r
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func formatVector(v types.Vector) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
