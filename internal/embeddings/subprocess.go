package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/constantino-dev/sentbench/internal/bridge"
	"github.com/constantino-dev/sentbench/pkg/types"
)

// Subprocess implements Provider with an external embedder command spoken to
// through the line protocol of package bridge
type Subprocess struct {
	bridge  *bridge.Bridge
	timeout time.Duration
	model   string
}

// fingerprinter is implemented by encoders whose model contents identify them.
type fingerprinter interface {
	Fingerprint() string
}

// NewSubprocess creates a provider for command. The command is not started
// until the first batch.
func NewSubprocess(command string, timeoutPerItem time.Duration, opts bridge.Options) *Subprocess {
	b := bridge.New(command, opts)
	model := fmt.Sprintf("command:%s;max_tokens=%d", command, b.MaxTokens())
	if fp, ok := opts.Encoder.(fingerprinter); ok {
		model += ";bpe=" + fp.Fingerprint()
	}
	return &Subprocess{
		bridge:  b,
		timeout: timeoutPerItem,
		model:   model,
	}
}

// EmbedBatch embeds the batch through the external process
func (s *Subprocess) EmbedBatch(ctx context.Context, batch []types.Sentence) ([]types.Vector, error) {
	return s.bridge.Embed(ctx, batch, s.timeout)
}

// Model identifies the embedder by its command line and by everything that
// changes the text it receives.
func (s *Subprocess) Model() string {
	return s.model
}

// Close shuts the embedder process group down
func (s *Subprocess) Close() error {
	return s.bridge.Close()
}
