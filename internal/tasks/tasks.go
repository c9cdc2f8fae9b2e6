// Package tasks loads the downstream evaluation datasets and scores
// embeddings against them.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/pkg/types"
)

const (
	DefaultBatchSize = 512
	DefaultKFold     = 10
	DefaultSeed      = 1111
)

// Embedder turns a batch of sentences into one vector per sentence.
type Embedder interface {
	EmbedBatch(ctx context.Context, batch []types.Sentence) ([]types.Vector, error)
}

// Task is one downstream evaluation.
type Task interface {
	Name() string
	Run(ctx context.Context, emb Embedder, p types.EvalParams) (types.Metrics, error)
}

// Config locates the datasets.
type Config struct {
	DataDir  string
	Language string // "en" or "ja"; controls tokenization of raw text
	Logger   zerolog.Logger
}

type factory func(cfg Config) Task

var registry = map[string]factory{
	"BEAN":        newBEAN,
	"MASC":        newMASC,
	"StyleSim":    newStyleSim,
	"FormalityJa": newFormalityJa,
	"RITE2":       newRITE,
}

// Names returns the known task names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the task called name.
func New(name string, cfg Config) (Task, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown task %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f(cfg), nil
}

// Defaults fills zero fields of p.
func Defaults(p types.EvalParams) types.EvalParams {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.KFold <= 0 {
		p.KFold = DefaultKFold
	}
	if p.Seed == 0 {
		p.Seed = DefaultSeed
	}
	return p
}

// Tokenize splits raw text: whitespace fields for "en", one token per rune
// (spaces dropped) for "ja".
func Tokenize(text, lang string) types.Sentence {
	if lang != "ja" {
		return strings.Fields(text)
	}
	var out types.Sentence
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '　' || r == '\n' || r == '\r' {
			continue
		}
		out = append(out, string(r))
	}
	return out
}

// embedAll embeds sents in consecutive batches of size.
func embedAll(ctx context.Context, emb Embedder, sents []types.Sentence, size int) ([]types.Vector, error) {
	out := make([]types.Vector, 0, len(sents))
	for lo := 0; lo < len(sents); lo += size {
		hi := lo + size
		if hi > len(sents) {
			hi = len(sents)
		}
		vecs, err := emb.EmbedBatch(ctx, sents[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", lo, hi, err)
		}
		if len(vecs) != hi-lo {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", lo, hi, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}
