package tasks

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/internal/score"
	"github.com/constantino-dev/sentbench/pkg/types"
)

const formalityJaClasses = 3

// formalityJa classifies Japanese sentences into three formality levels. The
// data is split in half with a seeded shuffle; the classifier is tuned on
// one half and tested on the other.
type formalityJa struct {
	dir string
	log zerolog.Logger
}

func newFormalityJa(cfg Config) Task {
	return &formalityJa{
		dir: filepath.Join(cfg.DataDir, "FormalityJa"),
		log: cfg.Logger.With().Str("task", "FormalityJa").Logger(),
	}
}

func (t *formalityJa) Name() string { return "FormalityJa" }

type labeledSentence struct {
	tokens types.Sentence
	label  int
}

func (t *formalityJa) Run(ctx context.Context, emb Embedder, p types.EvalParams) (types.Metrics, error) {
	p = Defaults(p)

	data, err := t.load()
	if err != nil {
		return nil, fmt.Errorf("FormalityJa: %w", err)
	}
	train, test := splitHalf(data, p.Seed)

	trainX, trainY, err := t.embed(ctx, emb, train, p.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("FormalityJa train: %w", err)
	}
	testX, testY, err := t.embed(ctx, emb, test, p.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("FormalityJa test: %w", err)
	}

	acc, err := score.KFoldClassify(trainX, trainY, testX, testY, score.ClassifierParams{
		Classes: formalityJaClasses,
		Folds:   p.KFold,
		Seed:    p.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("FormalityJa: %w", err)
	}
	t.log.Debug().Float64("devacc", acc.Dev).Float64("acc", acc.Test).Msg("classifier scored")

	return types.Metrics{"devacc": acc.Dev, "acc": acc.Test, "ntest": float64(len(test))}, nil
}

func (t *formalityJa) embed(ctx context.Context, emb Embedder, data []labeledSentence, batch int) ([]types.Vector, []int, error) {
	sort.SliceStable(data, func(i, j int) bool {
		if len(data[i].tokens) != len(data[j].tokens) {
			return len(data[i].tokens) < len(data[j].tokens)
		}
		return data[i].label < data[j].label
	})

	sents := make([]types.Sentence, len(data))
	labels := make([]int, len(data))
	for i, d := range data {
		sents[i], labels[i] = d.tokens, d.label
	}

	t.log.Info().Int("sentences", len(sents)).Msg("computing embeddings")
	xs, err := embedAll(ctx, emb, sents, batch)
	return xs, labels, err
}

// load pairs sentences.txt with formality-labels.txt. Labels are numbered
// in order of first appearance.
func (t *formalityJa) load() ([]labeledSentence, error) {
	sents, err := readLines(filepath.Join(t.dir, "sentences.txt"))
	if err != nil {
		return nil, err
	}
	raw, err := readLines(filepath.Join(t.dir, "formality-labels.txt"))
	if err != nil {
		return nil, err
	}
	if len(sents) != len(raw) {
		return nil, fmt.Errorf("%d sentences but %d labels", len(sents), len(raw))
	}

	ids := map[string]int{}
	out := make([]labeledSentence, len(sents))
	for i, s := range sents {
		label := strings.TrimSpace(raw[i])
		id, ok := ids[label]
		if !ok {
			id = len(ids)
			ids[label] = id
		}
		out[i] = labeledSentence{tokens: Tokenize(s, "ja"), label: id}
	}
	if len(ids) != formalityJaClasses {
		return nil, fmt.Errorf("want %d formality labels, got %d", formalityJaClasses, len(ids))
	}
	return out, nil
}

// splitHalf shuffles data with a seeded source and returns the train and
// test halves; the test half gets the extra sample of an odd count.
func splitHalf[T any](data []T, seed int64) (train, test []T) {
	perm := rand.New(rand.NewSource(seed)).Perm(len(data))
	nTest := (len(data) + 1) / 2
	for i, j := range perm {
		if i < nTest {
			test = append(test, data[j])
		} else {
			train = append(train, data[j])
		}
	}
	return train, test
}

// readLines returns the lines of path with surrounding blank lines dropped.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return lines, nil
}
