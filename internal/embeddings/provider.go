// Package embeddings provides the sentence embedding backends used by the
// evaluation harness
package embeddings

import (
	"context"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// Provider defines the interface for embedding generation
type Provider interface {
	// EmbedBatch returns one vector per sentence, in order
	EmbedBatch(ctx context.Context, batch []types.Sentence) ([]types.Vector, error)

	// Model returns the name the vectors are cached under
	Model() string

	// Close releases the backend (for subprocess embedders, the process group)
	Close() error
}
