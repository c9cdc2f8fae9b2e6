// Package bridge turns batches of tokenized sentences into embeddings by
// talking to an external embedder process over a line protocol: one request
// line per sentence on stdin, one "Sequence embedding: ..." reply line per
// sentence on stdout, in the same order.
//
// Replies are matched to requests purely by position. This is only correct
// if the embedder answers requests in the order it received them; the bridge
// cannot verify that and relies on it.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/constantino-dev/sentbench/internal/process"
	"github.com/constantino-dev/sentbench/pkg/types"
)

const (
	DefaultMaxTokens = 1000
	DefaultTimeout   = 60 * time.Second
)

// Encoder rewrites a sentence into sub-word units before it is sent.
type Encoder interface {
	Encode(s types.Sentence) (types.Sentence, error)
}

// EncoderFunc adapts a function to an Encoder.
type EncoderFunc func(s types.Sentence) (types.Sentence, error)

// Encode implements Encoder for EncoderFunc.
func (f EncoderFunc) Encode(s types.Sentence) (types.Sentence, error) { return f(s) }

// Options configures a Bridge.
type Options struct {
	MaxTokens   int           // Truncation threshold per sentence (default: 1000)
	Timeout     time.Duration // Per-reply wait when Embed gets no explicit timeout (default: 60s)
	GracePeriod time.Duration // Time the embedder group gets to exit on Shutdown
	Encoder     Encoder       // Optional sub-word step applied before truncation
	Logger      zerolog.Logger
}

// Bridge implements the batch request/response protocol on top of a
// process.Supervisor. Embed calls are serialized.
type Bridge struct {
	command string
	opts    Options
	sup     *process.Supervisor
	log     zerolog.Logger

	mu      sync.Mutex
	dims    int
	pending int // replies owed for lines already written
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// New creates a bridge for command. The process is launched lazily by the
// first Embed call.
func New(command string, opts Options) *Bridge {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	log := opts.Logger.With().Str("component", "bridge").Logger()
	sup := process.NewSupervisor(
		process.WithLogger(opts.Logger),
		process.WithGracePeriod(opts.GracePeriod),
	)

	return &Bridge{
		command: command,
		opts:    opts,
		sup:     sup,
		log:     log,
	}
}

// Command returns the embedder command line.
func (b *Bridge) Command() string {
	return b.command
}

// MaxTokens returns the effective truncation threshold.
func (b *Bridge) MaxTokens() int {
	return b.opts.MaxTokens
}

// Dimensions returns the vector length seen so far, or 0 before the first
// reply.
func (b *Bridge) Dimensions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dims
}

// Embed sends every sentence of batch to the embedder and returns one vector
// per sentence, in batch order. Each reply may take up to timeoutPerItem
// (the configured default when <= 0). On any error no vectors are returned
// and the embedder keeps running; replies still owed to the failed batch are
// skipped by the next call.
func (b *Bridge) Embed(ctx context.Context, batch []types.Sentence, timeoutPerItem time.Duration) (vecs []types.Vector, err error) {
	if len(batch) == 0 {
		return []types.Vector{}, nil
	}
	if timeoutPerItem <= 0 {
		timeoutPerItem = b.opts.Timeout
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	defer func() { observeBatch(start, err) }()

	// Render the whole batch first so an encoder failure cannot leave a
	// partially written batch in the pipe.
	lines := make([]string, len(batch))
	for i, s := range batch {
		if lines[i], err = b.render(s); err != nil {
			return nil, fmt.Errorf("bridge: encode sentence %d: %w", i, err)
		}
	}

	if err := b.sup.Start(b.command); err != nil {
		return nil, err
	}

	out, err := b.exchange(ctx, b.sup.ReadLines(), lines, timeoutPerItem)
	if err != nil {
		if b.pending > 0 {
			b.log.Warn().Err(err).Int("owed", b.pending).Msg("batch abandoned")
		}
		return nil, err
	}

	b.log.Debug().Int("size", len(batch)).Dur("elapsed", time.Since(start)).Msg("embedded batch")
	return out, nil
}

// Shutdown terminates the embedder process group. Safe to call repeatedly.
func (b *Bridge) Shutdown() {
	b.sup.Shutdown()
}

// Close lets Bridge satisfy io.Closer.
func (b *Bridge) Close() error {
	b.Shutdown()
	return nil
}

// ------------------------- internals -------------------------

// exchange writes every line and collects one reply per line. Replies owed
// to an abandoned batch arrive first and are dropped.
func (b *Bridge) exchange(ctx context.Context, replies *process.LineQueue, lines []string, timeout time.Duration) ([]types.Vector, error) {
	stale := b.pending
	for _, line := range lines {
		if err := b.sup.WriteLine(line); err != nil {
			return nil, err
		}
		b.pending++
	}
	sentencesTotal.Add(float64(len(lines)))

	for i := 0; i < stale; i++ {
		line, err := b.nextReply(ctx, replies, i, timeout)
		if err != nil {
			return nil, fmt.Errorf("bridge: skipping %d replies of an abandoned batch: %w", stale-i, err)
		}
		discardedTotal.Inc()
		b.log.Debug().Str("line", line).Msg("dropped late reply")
	}

	out := make([]types.Vector, len(lines))
	for i := range lines {
		vec, err := b.receive(ctx, replies, i, timeout)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// render encodes, truncates and joins one sentence into a request line.
func (b *Bridge) render(s types.Sentence) (string, error) {
	tokens := s
	if b.opts.Encoder != nil {
		encoded, err := b.opts.Encoder.Encode(s)
		if err != nil {
			return "", err
		}
		tokens = encoded
	}
	if len(tokens) > b.opts.MaxTokens {
		truncatedTotal.Inc()
		tokens = tokens[:b.opts.MaxTokens]
	}
	return lineBreaks.Replace(strings.Join(tokens, " ")), nil
}

// receive parses the reply for position pos.
func (b *Bridge) receive(ctx context.Context, replies *process.LineQueue, pos int, timeout time.Duration) (types.Vector, error) {
	line, err := b.nextReply(ctx, replies, pos, timeout)
	if err != nil {
		return nil, err
	}

	vec, err := ParseReply(line)
	if err != nil {
		return nil, err
	}
	if b.dims == 0 {
		b.dims = len(vec)
	} else if len(vec) != b.dims {
		return nil, &ProtocolError{
			Line:   line,
			Reason: fmt.Sprintf("got %d dimensions, expected %d", len(vec), b.dims),
		}
	}
	return vec, nil
}

// nextReply pops lines until one carries the reply marker.
func (b *Bridge) nextReply(ctx context.Context, replies *process.LineQueue, pos int, timeout time.Duration) (string, error) {
	itemCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		line, err := replies.Pop(itemCtx)
		switch {
		case err == nil:
		case errors.Is(err, process.ErrProcessExited):
			return "", fmt.Errorf("bridge: embedder exited before reply %d: %w", pos, err)
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return "", &TimeoutError{Position: pos, After: timeout}
		default:
			return "", err
		}

		if !IsReply(line) {
			discardedTotal.Inc()
			b.log.Debug().Str("line", line).Msg("embedder output")
			continue
		}
		b.pending--
		return line, nil
	}
}
