package tasks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/internal/score"
	"github.com/constantino-dev/sentbench/pkg/types"
)

// ridgeFolds is the cross-validation used to pick the ridge penalty.
const ridgeFolds = 10

// formality scores sentences with a human formality rating and measures how
// well ridge regression over the embeddings recovers it.
type formality struct {
	name      string
	scores    string
	sentences string
	log       zerolog.Logger
}

func newBEAN(cfg Config) Task {
	dir := filepath.Join(cfg.DataDir, "BEAN")
	return &formality{
		name:      "BEAN",
		scores:    filepath.Join(dir, "scores"),
		sentences: filepath.Join(dir, "bean-tokenized-sentences"),
		log:       cfg.Logger.With().Str("task", "BEAN").Logger(),
	}
}

func newMASC(cfg Config) Task {
	dir := filepath.Join(cfg.DataDir, "MASC")
	return &formality{
		name:      "MASC",
		scores:    filepath.Join(dir, "naacl-2015-style-scores", "formality", "human", "sentence-scores"),
		sentences: filepath.Join(dir, "masc-tokenized-sentences"),
		log:       cfg.Logger.With().Str("task", "MASC").Logger(),
	}
}

func (t *formality) Name() string { return t.name }

type ratedSentence struct {
	tokens types.Sentence
	score  float64
}

func (t *formality) Run(ctx context.Context, emb Embedder, p types.EvalParams) (types.Metrics, error) {
	p = Defaults(p)

	data, err := loadRated(t.scores, t.sentences)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	t.log.Info().Int("sentences", len(data)).Msg("computing embeddings")

	sort.SliceStable(data, func(i, j int) bool {
		if len(data[i].tokens) != len(data[j].tokens) {
			return len(data[i].tokens) < len(data[j].tokens)
		}
		return data[i].score < data[j].score
	})

	sents := make([]types.Sentence, len(data))
	ys := make([]float64, len(data))
	for i, d := range data {
		sents[i] = d.tokens
		ys[i] = d.score
	}

	xs, err := embedAll(ctx, emb, sents, p.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}

	res, err := score.RidgeCV(xs, ys, ridgeFolds, score.DefaultAlphas)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	t.log.Debug().Float64("alpha", res.Alpha).Msg("ridge penalty selected")

	return types.Metrics{"spearman": res.Score, "alpha": res.Alpha, "n": float64(len(data))}, nil
}

// loadRated zips a score file (rating in the first tab-separated field) with
// a tokenized sentence file, stopping at the shorter of the two.
func loadRated(scoresPath, sentencesPath string) ([]ratedSentence, error) {
	fs, err := os.Open(scoresPath)
	if err != nil {
		return nil, err
	}
	defer fs.Close()

	ft, err := os.Open(sentencesPath)
	if err != nil {
		return nil, err
	}
	defer ft.Close()

	scores := bufio.NewScanner(fs)
	sents := bufio.NewScanner(ft)
	sents.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var out []ratedSentence
	for line := 1; scores.Scan() && sents.Scan(); line++ {
		field, _, _ := strings.Cut(scores.Text(), "\t")
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", scoresPath, line, err)
		}
		out = append(out, ratedSentence{tokens: strings.Fields(sents.Text()), score: v})
	}
	if err := scores.Err(); err != nil {
		return nil, err
	}
	if err := sents.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
