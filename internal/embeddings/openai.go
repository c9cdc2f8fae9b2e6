package embeddings

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/constantino-dev/sentbench/pkg/types"
)

const defaultModel = "text-embedding-3-small"

// OpenAIOptions configures the OpenAI provider
type OpenAIOptions struct {
	APIKey   string
	BaseURL  string // Any OpenAI-compatible endpoint (default: api.openai.com)
	Model    string
	Language string // Decides how tokens are joined back into text
}

// OpenAI implements the Provider interface using OpenAI's API
type OpenAI struct {
	client *openai.Client
	model  string
	lang   string
}

// NewOpenAI creates a new OpenAI embedding provider
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		lang:   opts.Language,
	}
}

// EmbedBatch generates embeddings for multiple sentences
func (o *OpenAI) EmbedBatch(ctx context.Context, batch []types.Sentence) ([]types.Vector, error) {
	if len(batch) == 0 {
		return []types.Vector{}, nil
	}

	texts := make([]string, len(batch))
	for i, s := range batch {
		texts[i] = s.Join(o.lang)
		if texts[i] == "" {
			// the endpoint rejects empty input
			texts[i] = " "
		}
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai batch embedding error: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(batch))
	}

	out := make([]types.Vector, len(batch))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(out) || out[data.Index] != nil {
			return nil, fmt.Errorf("openai returned bad embedding index %d", data.Index)
		}
		vec := make(types.Vector, len(data.Embedding))
		for i, f := range data.Embedding {
			vec[i] = float64(f)
		}
		out[data.Index] = vec
	}
	return out, nil
}

// Model returns the model name
func (o *OpenAI) Model() string {
	return "openai:" + o.model
}

// Close is a no-op; the HTTP client holds no resources of its own
func (o *OpenAI) Close() error {
	return nil
}
