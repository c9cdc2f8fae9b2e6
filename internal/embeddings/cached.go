package embeddings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// Store is the embedding cache used by Cached. *db.DB implements it.
type Store interface {
	GetEmbedding(model, text string) (types.Vector, error)
	SaveEmbedding(model, text string, vec types.Vector) error
}

// Cached wraps a provider with a persistent embedding cache keyed by model
// and sentence text. Only cache misses reach the wrapped provider.
type Cached struct {
	inner Provider
	store Store
	log   zerolog.Logger
}

// NewCached creates a caching decorator around inner
func NewCached(inner Provider, store Store, log zerolog.Logger) *Cached {
	return &Cached{
		inner: inner,
		store: store,
		log:   log.With().Str("component", "cache").Logger(),
	}
}

// EmbedBatch serves hits from the store and embeds all misses in a single
// call to the wrapped provider, preserving order
func (c *Cached) EmbedBatch(ctx context.Context, batch []types.Sentence) ([]types.Vector, error) {
	model := c.inner.Model()
	out := make([]types.Vector, len(batch))

	var missing []types.Sentence
	missAt := map[string][]int{}
	for i, s := range batch {
		text := s.Text()
		if idx, ok := missAt[text]; ok {
			missAt[text] = append(idx, i)
			continue
		}
		vec, err := c.store.GetEmbedding(model, text)
		if err != nil {
			c.log.Warn().Err(err).Msg("cache lookup failed")
		}
		if vec != nil {
			out[i] = vec
			continue
		}
		missAt[text] = []int{i}
		missing = append(missing, s)
	}

	c.log.Debug().Int("hits", len(batch)-len(missing)).Int("misses", len(missing)).Msg("embedding cache")
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("provider returned %d vectors for %d sentences", len(vecs), len(missing))
	}

	for j, s := range missing {
		text := s.Text()
		for _, i := range missAt[text] {
			out[i] = vecs[j]
		}
		if err := c.store.SaveEmbedding(model, text, vecs[j]); err != nil {
			c.log.Warn().Err(err).Str("text", text).Msg("failed to cache embedding")
		}
	}
	return out, nil
}

// Model returns the wrapped provider's model
func (c *Cached) Model() string {
	return c.inner.Model()
}

// Close closes the wrapped provider
func (c *Cached) Close() error {
	return c.inner.Close()
}
