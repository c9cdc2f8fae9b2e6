package tasks

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/internal/score"
	"github.com/constantino-dev/sentbench/pkg/types"
)

var riteLabels = map[string]int{"Y": 0, "N": 1}

// rite is the RITE2 Japanese binary entailment task. Dev and test pairs are
// pooled and scored by nested cross-validation of a classifier over
// |a-b| and a*b features.
type rite struct {
	files []string
	log   zerolog.Logger
}

func newRITE(cfg Config) Task {
	dir := filepath.Join(cfg.DataDir, "RITE2")
	return &rite{
		files: []string{
			filepath.Join(dir, "RITE2_JA_dev_bc", "RITE2_JA_dev_bc.xml"),
			filepath.Join(dir, "RITE2_JA_testlabel_bc", "RITE2_JA_testlabel_bc.xml"),
		},
		log: cfg.Logger.With().Str("task", "RITE2").Logger(),
	}
}

func (t *rite) Name() string { return "RITE2" }

type ritePair struct {
	a, b  types.Sentence
	label int
}

type riteDataset struct {
	Pairs []struct {
		Label string `xml:"label,attr"`
		T1    string `xml:"t1"`
		T2    string `xml:"t2"`
	} `xml:"pair"`
}

func (t *rite) Run(ctx context.Context, emb Embedder, p types.EvalParams) (types.Metrics, error) {
	p = Defaults(p)

	var pairs []ritePair
	for _, path := range t.files {
		loaded, err := loadRITE(path)
		if err != nil {
			return nil, fmt.Errorf("RITE2: %w", err)
		}
		pairs = append(pairs, loaded...)
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if len(pairs[i].a) != len(pairs[j].a) {
			return len(pairs[i].a) < len(pairs[j].a)
		}
		if len(pairs[i].b) != len(pairs[j].b) {
			return len(pairs[i].b) < len(pairs[j].b)
		}
		return pairs[i].label < pairs[j].label
	})

	left := make([]types.Sentence, len(pairs))
	right := make([]types.Sentence, len(pairs))
	labels := make([]int, len(pairs))
	for i, pr := range pairs {
		left[i], right[i], labels[i] = pr.a, pr.b, pr.label
	}

	t.log.Info().Int("pairs", len(pairs)).Msg("computing embeddings")
	ea, err := embedAll(ctx, emb, left, p.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("RITE2: %w", err)
	}
	eb, err := embedAll(ctx, emb, right, p.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("RITE2: %w", err)
	}

	features := make([]types.Vector, len(pairs))
	for i := range pairs {
		if features[i], err = pairFeatures(ea[i], eb[i]); err != nil {
			return nil, fmt.Errorf("RITE2 pair %d: %w", i, err)
		}
	}

	acc, err := score.InnerKFoldClassify(features, labels, score.ClassifierParams{
		Classes: len(riteLabels),
		Folds:   p.KFold,
		Seed:    p.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("RITE2: %w", err)
	}
	return types.Metrics{"devacc": acc.Dev, "acc": acc.Test, "n": float64(len(pairs))}, nil
}

// pairFeatures concatenates |a-b| and a*b.
func pairFeatures(a, b types.Vector) (types.Vector, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("embeddings differ in length: %d vs %d", len(a), len(b))
	}
	out := make(types.Vector, 2*len(a))
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		out[i] = d
		out[len(a)+i] = a[i] * b[i]
	}
	return out, nil
}

func loadRITE(path string) ([]ritePair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds riteDataset
	if err := xml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]ritePair, 0, len(ds.Pairs))
	for i, pr := range ds.Pairs {
		label, ok := riteLabels[pr.Label]
		if !ok {
			return nil, fmt.Errorf("%s: pair %d: unknown label %q", path, i+1, pr.Label)
		}
		out = append(out, ritePair{
			a:     Tokenize(pr.T1, "ja"),
			b:     Tokenize(pr.T2, "ja"),
			label: label,
		})
	}
	return out, nil
}
