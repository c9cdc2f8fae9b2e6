package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constantino-dev/sentbench/pkg/types"
)

type memStore struct {
	vecs    map[string]types.Vector
	saveErr error
}

func (m *memStore) GetEmbedding(model, text string) (types.Vector, error) {
	return m.vecs[model+"|"+text], nil
}

func (m *memStore) SaveEmbedding(model, text string, vec types.Vector) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.vecs[model+"|"+text] = vec
	return nil
}

// lengthProvider embeds a sentence as its token count and records calls.
type lengthProvider struct {
	calls  [][]string
	closed bool
}

func (p *lengthProvider) EmbedBatch(_ context.Context, batch []types.Sentence) ([]types.Vector, error) {
	var texts []string
	out := make([]types.Vector, len(batch))
	for i, s := range batch {
		texts = append(texts, s.Text())
		out[i] = types.Vector{float64(len(s))}
	}
	p.calls = append(p.calls, texts)
	return out, nil
}

func (p *lengthProvider) Model() string { return "len" }

func (p *lengthProvider) Close() error {
	p.closed = true
	return nil
}

func TestCached_EmbedsOnlyMisses(t *testing.T) {
	store := &memStore{vecs: map[string]types.Vector{"len|a b": {99}}}
	inner := &lengthProvider{}
	c := NewCached(inner, store, zerolog.Nop())

	batch := []types.Sentence{{"a", "b"}, {"c"}, {"d", "e", "f"}, {"c"}}
	vecs, err := c.EmbedBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{99}, {1}, {3}, {1}}, vecs)
	assert.Equal(t, [][]string{{"c", "d e f"}}, inner.calls)

	// Everything is cached now.
	vecs, err = c.EmbedBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{99}, {1}, {3}, {1}}, vecs)
	assert.Len(t, inner.calls, 1)

	assert.Equal(t, "len", c.Model())
	require.NoError(t, c.Close())
	assert.True(t, inner.closed)
}

func TestCached_SaveFailureIsNotFatal(t *testing.T) {
	store := &memStore{vecs: map[string]types.Vector{}, saveErr: errors.New("disk full")}
	c := NewCached(&lengthProvider{}, store, zerolog.Nop())

	vecs, err := c.EmbedBatch(context.Background(), []types.Sentence{{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{2}}, vecs)
}
