// Package core provides the sentbench engine
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/internal/bridge"
	"github.com/constantino-dev/sentbench/internal/db"
	"github.com/constantino-dev/sentbench/internal/embeddings"
	"github.com/constantino-dev/sentbench/internal/score"
	"github.com/constantino-dev/sentbench/internal/subword"
	"github.com/constantino-dev/sentbench/internal/tasks"
	"github.com/constantino-dev/sentbench/pkg/types"
)

var ErrUndefinedSimilarity = errors.New("similarity undefined for a zero vector")

// Engine coordinates storage, the embedding provider and the tasks
type Engine struct {
	db       *db.DB
	provider embeddings.Provider
	config   *types.Config
	log      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates an engine with the provider described by cfg
func New(cfg *types.Config, log zerolog.Logger) (*Engine, error) {
	provider, err := newProvider(cfg, log)
	if err != nil {
		return nil, err
	}
	e, err := NewWithProvider(cfg, provider, log)
	if err != nil {
		provider.Close()
		return nil, err
	}
	return e, nil
}

// NewWithProvider creates an engine around an existing provider. The engine
// takes ownership of it and closes it on Close.
func NewWithProvider(cfg *types.Config, provider embeddings.Provider, log zerolog.Logger) (*Engine, error) {
	// Ensure data directory exists
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.CacheEmbeddings {
		provider = embeddings.NewCached(provider, database, log)
	}

	return &Engine{
		db:       database,
		provider: provider,
		config:   cfg,
		log:      log.With().Str("component", "engine").Logger(),
	}, nil
}

func newProvider(cfg *types.Config, log zerolog.Logger) (embeddings.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "command", "":
		if cfg.ExtractCommand == "" {
			return nil, fmt.Errorf("extract command required (set extract_command or SENTBENCH_EXTRACT_COMMAND)")
		}
		opts := bridge.Options{
			MaxTokens:   cfg.MaxTokens,
			GracePeriod: time.Duration(cfg.ShutdownGraceSecs) * time.Second,
			Logger:      log,
		}
		if cfg.BPEModel != "" {
			enc, err := subword.Load(cfg.BPEModel, cfg.Language)
			if err != nil {
				return nil, err
			}
			opts.Encoder = enc
		}
		timeout := time.Duration(cfg.ReplyTimeoutSecs) * time.Second
		return embeddings.NewSubprocess(cfg.ExtractCommand, timeout, opts), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return embeddings.NewOpenAI(embeddings.OpenAIOptions{
			APIKey:   cfg.OpenAIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			Language: cfg.Language,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
	}
}

// Close shuts the embedding provider down and closes the database. Only the
// first call has an effect.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = errors.Join(e.provider.Close(), e.db.Close())
	})
	return e.closeErr
}

// Model returns the name of the active embedding model
func (e *Engine) Model() string {
	return e.provider.Model()
}

// Tokenize splits raw text the way the configured language expects
func (e *Engine) Tokenize(text string) types.Sentence {
	return tasks.Tokenize(text, e.config.Language)
}

// Evaluate runs the named tasks (all known tasks when names is empty) in
// order and records the run. On failure the run is stored as failed and
// returned together with the error.
func (e *Engine) Evaluate(ctx context.Context, names []string, params types.EvalParams) (*types.Run, error) {
	if len(names) == 0 {
		names = tasks.Names()
	}

	cfg := tasks.Config{DataDir: e.config.TaskPath, Language: e.config.Language, Logger: e.log}
	todo := make([]tasks.Task, 0, len(names))
	for _, name := range names {
		t, err := tasks.New(name, cfg)
		if err != nil {
			return nil, err
		}
		todo = append(todo, t)
	}

	run := &types.Run{
		ID:        newRunID(),
		Model:     e.provider.Model(),
		Tasks:     names,
		Params:    tasks.Defaults(params),
		Status:    types.RunRunning,
		CreatedAt: timeNow(),
	}
	if err := e.db.SaveRun(run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	log := e.log.With().Str("run", run.ID).Logger()
	log.Info().Strs("tasks", names).Str("model", run.Model).Msg("evaluation started")

	for _, t := range todo {
		start := timeNow()
		metrics, err := t.Run(ctx, e.provider, run.Params)
		if err != nil {
			log.Error().Err(err).Str("task", t.Name()).Msg("task failed")
			return run, e.finish(run, err)
		}

		res := types.TaskResult{
			Task:      t.Name(),
			Metrics:   metrics,
			Duration:  timeNow().Sub(start),
			CreatedAt: timeNow(),
		}
		if err := e.db.SaveResult(run.ID, res); err != nil {
			return run, e.finish(run, fmt.Errorf("failed to save result: %w", err))
		}
		run.Results = append(run.Results, res)
		log.Info().Str("task", t.Name()).Interface("metrics", metrics).Dur("elapsed", res.Duration).Msg("task finished")
	}

	return run, e.finish(run, nil)
}

// finish marks run completed or failed and persists it. The returned error
// is cause, or the persistence error if there was no cause.
func (e *Engine) finish(run *types.Run, cause error) error {
	now := timeNow()
	run.FinishedAt = &now
	run.Status = types.RunCompleted
	if cause != nil {
		run.Status = types.RunFailed
		run.Error = cause.Error()
	}
	if err := e.db.SaveRun(run); err != nil {
		if cause != nil {
			e.log.Warn().Err(err).Str("run", run.ID).Msg("failed to record run failure")
			return cause
		}
		return fmt.Errorf("failed to save run: %w", err)
	}
	return cause
}

// Embed embeds sentences with the active provider. Vectors are stored for
// later Nearest lookups.
func (e *Engine) Embed(ctx context.Context, sentences []types.Sentence) ([]types.Vector, error) {
	vecs, err := e.provider.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, err
	}
	if !e.config.CacheEmbeddings {
		// the cache decorator already stored them otherwise
		for i, s := range sentences {
			if err := e.db.SaveEmbedding(e.provider.Model(), s.Text(), vecs[i]); err != nil {
				e.log.Warn().Err(err).Msg("failed to store embedding")
			}
		}
	}
	return vecs, nil
}

// Similarity returns the cosine similarity of two sentences
func (e *Engine) Similarity(ctx context.Context, a, b types.Sentence) (float64, error) {
	vecs, err := e.Embed(ctx, []types.Sentence{a, b})
	if err != nil {
		return 0, err
	}
	sim, ok := score.Cosine(vecs[0], vecs[1])
	if !ok {
		return 0, ErrUndefinedSimilarity
	}
	return sim, nil
}

// Nearest returns up to k previously embedded sentences closest to s,
// excluding s itself
func (e *Engine) Nearest(ctx context.Context, s types.Sentence, k int) ([]types.Neighbor, error) {
	if k <= 0 {
		k = 5
	}
	vecs, err := e.Embed(ctx, []types.Sentence{s})
	if err != nil {
		return nil, err
	}

	hits, err := e.db.VectorSearch(vecs[0], k+1)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	text, model := s.Text(), e.provider.Model()
	out := make([]types.Neighbor, 0, k)
	for _, h := range hits {
		if h.Text == text && h.Model == model {
			continue
		}
		if len(out) == k {
			break
		}
		out = append(out, h)
	}
	return out, nil
}

// GetRun retrieves a run with its results, or nil if it does not exist
func (e *Engine) GetRun(id string) (*types.Run, error) {
	return e.db.GetRun(id)
}

// ListRuns returns the most recent runs first
func (e *Engine) ListRuns(limit int) ([]*types.Run, error) {
	return e.db.ListRuns(limit)
}

// DeleteRun removes a run and its results
func (e *Engine) DeleteRun(id string) error {
	return e.db.DeleteRun(id)
}

// Stats returns engine statistics
func (e *Engine) Stats() (map[string]int, error) {
	return e.db.Stats()
}
