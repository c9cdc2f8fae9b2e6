package tasks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/internal/score"
	"github.com/constantino-dev/sentbench/pkg/types"
)

var styleSimSplits = []string{"dev", "test"}

// styleSim correlates the cosine similarity of sentence pairs with a human
// stylistic similarity rating.
type styleSim struct {
	dir  string
	lang string
	log  zerolog.Logger
}

func newStyleSim(cfg Config) Task {
	return &styleSim{
		dir:  filepath.Join(cfg.DataDir, "StyleSim"),
		lang: cfg.Language,
		log:  cfg.Logger.With().Str("task", "StyleSim").Logger(),
	}
}

func (t *styleSim) Name() string { return "StyleSim" }

type ratedPair struct {
	a, b types.Sentence
	sim  float64
}

func (t *styleSim) Run(ctx context.Context, emb Embedder, p types.EvalParams) (types.Metrics, error) {
	p = Defaults(p)
	metrics := types.Metrics{}

	for _, split := range styleSimSplits {
		pairs, err := t.load(filepath.Join(t.dir, "stylistic_sentsim_"+split+".csv"))
		if err != nil {
			return nil, fmt.Errorf("StyleSim %s: %w", split, err)
		}

		rho, n, err := t.evalSplit(ctx, emb, pairs, p.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("StyleSim %s: %w", split, err)
		}
		metrics["spearman_"+split] = rho
		metrics["n_"+split] = float64(n)
	}
	return metrics, nil
}

func (t *styleSim) evalSplit(ctx context.Context, emb Embedder, pairs []ratedPair, batch int) (float64, int, error) {
	sort.SliceStable(pairs, func(i, j int) bool {
		if len(pairs[i].a) != len(pairs[j].a) {
			return len(pairs[i].a) < len(pairs[j].a)
		}
		return len(pairs[i].b) < len(pairs[j].b)
	})

	left := make([]types.Sentence, len(pairs))
	right := make([]types.Sentence, len(pairs))
	for i, pr := range pairs {
		left[i], right[i] = pr.a, pr.b
	}

	t.log.Info().Int("pairs", len(pairs)).Msg("computing embeddings")
	ea, err := embedAll(ctx, emb, left, batch)
	if err != nil {
		return 0, 0, err
	}
	eb, err := embedAll(ctx, emb, right, batch)
	if err != nil {
		return 0, 0, err
	}

	var sims, gold []float64
	for i := range pairs {
		sim, ok := score.Cosine(ea[i], eb[i])
		if !ok {
			t.log.Warn().Int("pair", i).Msg("skipped pair with undefined cosine")
			continue
		}
		sims = append(sims, sim)
		gold = append(gold, pairs[i].sim)
	}

	rho, err := score.Spearman(sims, gold)
	if err != nil {
		return 0, 0, err
	}
	return rho, len(sims), nil
}

// load reads a pair CSV with a header row; columns 0 and 1 hold the
// sentences and column 4 the rating.
func (t *styleSim) load(path string) ([]ratedPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var out []ratedPair
	for row := 2; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("%s:%d: want at least 5 columns, got %d", path, row, len(rec))
		}
		sim, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, row, err)
		}
		out = append(out, ratedPair{
			a:   Tokenize(rec[0], t.lang),
			b:   Tokenize(rec[1], t.lang),
			sim: sim,
		})
	}
	return out, nil
}
