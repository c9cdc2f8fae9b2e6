package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constantino-dev/sentbench/internal/db"
	"github.com/constantino-dev/sentbench/pkg/types"
)

// tableProvider embeds sentences from a lookup table.
type tableProvider struct {
	vecs   map[string]types.Vector
	calls  int
	closed int
}

func (p *tableProvider) EmbedBatch(_ context.Context, batch []types.Sentence) ([]types.Vector, error) {
	p.calls++
	out := make([]types.Vector, len(batch))
	for i, s := range batch {
		v, ok := p.vecs[s.Text()]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", s.Text())
		}
		out[i] = v
	}
	return out, nil
}

func (p *tableProvider) Model() string { return "table" }

func (p *tableProvider) Close() error {
	p.closed++
	return nil
}

func newTestEngine(t *testing.T, cache bool) (*Engine, *tableProvider, *types.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &types.Config{
		DBPath:          filepath.Join(dir, "data", "sentbench.db"),
		TaskPath:        filepath.Join(dir, "tasks"),
		Language:        "en",
		CacheEmbeddings: cache,
	}
	p := &tableProvider{vecs: map[string]types.Vector{
		"a":      {1, 0},
		"b":      {1, 0.1},
		"c":      {0, 1},
		"d":      {1, 1},
		"zero":   {0, 0},
		"good x": {1, 0.2},
	}}
	e, err := NewWithProvider(cfg, p, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, p, cfg
}

func writeStyleSim(t *testing.T, dir string) {
	t.Helper()
	csv := "s1,s2,x,y,sim\na,b,,,0.9\na,c,,,0.1\na,d,,,0.5\n"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "StyleSim"), 0755))
	for _, split := range []string{"dev", "test"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "StyleSim", "stylistic_sentsim_"+split+".csv"), []byte(csv), 0644))
	}
}

func TestEngine_EvaluateRecordsRun(t *testing.T) {
	e, _, cfg := newTestEngine(t, false)
	writeStyleSim(t, cfg.TaskPath)

	run, err := e.Evaluate(context.Background(), []string{"StyleSim"}, types.EvalParams{})
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, "table", run.Model)
	assert.Equal(t, 512, run.Params.BatchSize)
	require.Len(t, run.Results, 1)
	assert.InDelta(t, 1.0, run.Results[0].Metrics["spearman_dev"], 1e-9)

	stored, err := e.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, types.RunCompleted, stored.Status)
	require.Len(t, stored.Results, 1)
	assert.Equal(t, 3.0, stored.Results[0].Metrics["n_test"])

	runs, err := e.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, e.DeleteRun(run.ID))
	assert.ErrorIs(t, e.DeleteRun(run.ID), db.ErrNotFound)
}

func TestEngine_EvaluateFailureMarksRun(t *testing.T) {
	e, _, _ := newTestEngine(t, false)

	run, err := e.Evaluate(context.Background(), []string{"BEAN"}, types.EvalParams{})
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, types.RunFailed, run.Status)

	stored, err := e.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
	assert.NotNil(t, stored.FinishedAt)
}

func TestEngine_EvaluateUnknownTask(t *testing.T) {
	e, _, _ := newTestEngine(t, false)

	run, err := e.Evaluate(context.Background(), []string{"nope"}, types.EvalParams{})
	require.Error(t, err)
	assert.Nil(t, run)

	runs, err := e.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_SimilarityAndNearest(t *testing.T) {
	e, _, _ := newTestEngine(t, false)
	ctx := context.Background()

	sim, err := e.Similarity(ctx, types.Sentence{"a"}, types.Sentence{"d"})
	require.NoError(t, err)
	assert.InDelta(t, 0.7071, sim, 1e-4)

	_, err = e.Similarity(ctx, types.Sentence{"a"}, types.Sentence{"zero"})
	assert.ErrorIs(t, err, ErrUndefinedSimilarity)

	_, err = e.Embed(ctx, []types.Sentence{{"b"}, {"c"}})
	require.NoError(t, err)

	hits, err := e.Nearest(ctx, e.Tokenize("good  x"), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].Text)
	for _, h := range hits {
		assert.NotEqual(t, "good x", h.Text)
	}
}

func TestEngine_CachedProviderSkipsRepeats(t *testing.T) {
	e, p, _ := newTestEngine(t, true)
	ctx := context.Background()

	_, err := e.Embed(ctx, []types.Sentence{{"a"}, {"b"}})
	require.NoError(t, err)
	_, err = e.Embed(ctx, []types.Sentence{{"a"}, {"b"}})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats["sentences"])
}

func TestEngine_CloseOnce(t *testing.T) {
	e, p, _ := newTestEngine(t, false)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 1, p.closed)
}

func TestNew_ProviderSelection(t *testing.T) {
	dir := t.TempDir()

	_, err := New(&types.Config{DBPath: filepath.Join(dir, "x.db")}, zerolog.Nop())
	assert.ErrorContains(t, err, "extract command")

	_, err = New(&types.Config{DBPath: filepath.Join(dir, "x.db"), EmbeddingProvider: "openai"}, zerolog.Nop())
	assert.ErrorContains(t, err, "API key")

	_, err = New(&types.Config{DBPath: filepath.Join(dir, "x.db"), EmbeddingProvider: "ollama"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown embedding provider")

	e, err := New(&types.Config{DBPath: filepath.Join(dir, "x.db"), ExtractCommand: "cat"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "command:cat;max_tokens=1000", e.Model())
	require.NoError(t, e.Close())
}
