package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constantino-dev/sentbench/internal/process"
	"github.com/constantino-dev/sentbench/pkg/types"
)

// indexEcho replies with the zero-based index of each request line.
const indexEcho = `i=0; while IFS= read -r l; do echo "Sequence embedding: $i"; i=$((i+1)); done`

// tokenCount replies with the number of space separated tokens received.
const tokenCount = `while IFS= read -r l; do set -- $l; echo "Sequence embedding: $#"; done`

func newTestBridge(t *testing.T, command string, opts Options) *Bridge {
	t.Helper()
	if opts.GracePeriod == 0 {
		opts.GracePeriod = 500 * time.Millisecond
	}
	opts.Logger = zerolog.Nop()
	b := New(command, opts)
	t.Cleanup(b.Shutdown)
	return b
}

func sentences(texts ...string) []types.Sentence {
	out := make([]types.Sentence, len(texts))
	for i, t := range texts {
		out[i] = strings.Fields(t)
	}
	return out
}

func TestBridge_EmbedPreservesOrder(t *testing.T) {
	b := newTestBridge(t, indexEcho, Options{})

	vecs, err := b.Embed(context.Background(), sentences("a b", "c"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{0}, {1}}, vecs)
	assert.Equal(t, 1, b.Dimensions())

	// The same process serves the next batch.
	vecs, err = b.Embed(context.Background(), sentences("d", "e", "f"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{2}, {3}, {4}}, vecs)
}

func TestBridge_EmptyBatch(t *testing.T) {
	b := newTestBridge(t, "exit 1", Options{})

	vecs, err := b.Embed(context.Background(), nil, time.Second)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.NotNil(t, vecs)
}

func TestBridge_TruncatesLongSentences(t *testing.T) {
	b := newTestBridge(t, tokenCount, Options{MaxTokens: 3})

	vecs, err := b.Embed(context.Background(), sentences("a b", "a b c d e"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{2}, {3}}, vecs)
}

func TestBridge_AppliesEncoderBeforeTruncation(t *testing.T) {
	split := EncoderFunc(func(s types.Sentence) (types.Sentence, error) {
		var out types.Sentence
		for _, w := range s {
			out = append(out, "▁"+w, "x")
		}
		return out, nil
	})
	b := newTestBridge(t, tokenCount, Options{MaxTokens: 5, Encoder: split})

	vecs, err := b.Embed(context.Background(), sentences("a", "a b c"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{2}, {5}}, vecs)
}

func TestBridge_EncoderErrorWritesNothing(t *testing.T) {
	b := newTestBridge(t, indexEcho, Options{
		Encoder: EncoderFunc(func(s types.Sentence) (types.Sentence, error) {
			if s.Text() == "bad" {
				return nil, errors.New("no vocabulary")
			}
			return s, nil
		}),
	})

	_, err := b.Embed(context.Background(), sentences("ok", "bad"), time.Second)
	require.Error(t, err)

	vecs, err := b.Embed(context.Background(), sentences("ok"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{0}}, vecs)
}

func TestBridge_NewlinesInTokensStayOnOneLine(t *testing.T) {
	b := newTestBridge(t, indexEcho, Options{})

	batch := []types.Sentence{{"a\nb"}, {"c\r\nd"}}
	vecs, err := b.Embed(context.Background(), batch, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{0}, {1}}, vecs)
}

func TestBridge_SkipsNoiseLines(t *testing.T) {
	cmd := `i=0; while IFS= read -r l; do echo "loading model"; echo "Sequence embedding: $i 0.5"; i=$((i+1)); done`
	b := newTestBridge(t, cmd, Options{})

	vecs, err := b.Embed(context.Background(), sentences("a", "b"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{0, 0.5}, {1, 0.5}}, vecs)
}

func TestBridge_TimeoutReturnsNoVectors(t *testing.T) {
	b := newTestBridge(t, `read -r l; echo "Sequence embedding: 1"; cat >/dev/null`, Options{})

	vecs, err := b.Embed(context.Background(), sentences("a", "b"), 100*time.Millisecond)
	assert.Nil(t, vecs)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Position)
	assert.Equal(t, 100*time.Millisecond, te.After)
}

func TestBridge_LateReplyIsNotHandedToNextBatch(t *testing.T) {
	cmd := `i=0; while IFS= read -r l; do [ $i -eq 1 ] && sleep 0.3; echo "Sequence embedding: $i"; i=$((i+1)); done`
	b := newTestBridge(t, cmd, Options{})

	vecs, err := b.Embed(context.Background(), sentences("a", "b"), 100*time.Millisecond)
	assert.Nil(t, vecs)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Position)

	select {
	case <-b.sup.Done():
		t.Fatal("embedder stopped after a timed-out batch")
	default:
	}

	// Reply 1 arrives late and must be dropped; "c" is answered by reply 2.
	vecs, err = b.Embed(context.Background(), sentences("c"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{2}}, vecs)

	vecs, err = b.Embed(context.Background(), sentences("d", "e"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{3}, {4}}, vecs)
}

func TestBridge_MalformedReply(t *testing.T) {
	cmd := `read -r l; echo "Sequence embedding: 1 oops"; while read -r l; do echo "Sequence embedding: 7"; done`
	b := newTestBridge(t, cmd, Options{})

	_, err := b.Embed(context.Background(), sentences("a"), time.Second)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)

	// The malformed line answered "a", so "b" gets its own reply.
	vecs, err := b.Embed(context.Background(), sentences("b"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []types.Vector{{7}}, vecs)
}

func TestBridge_DimensionMismatch(t *testing.T) {
	cmd := `read -r l; echo "Sequence embedding: 1 2"; read -r l; echo "Sequence embedding: 3"; cat >/dev/null`
	b := newTestBridge(t, cmd, Options{})

	_, err := b.Embed(context.Background(), sentences("a", "b"), time.Second)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "expected 2")
}

func TestBridge_EmbedderExits(t *testing.T) {
	b := newTestBridge(t, `read -r l; exit 0`, Options{})

	_, err := b.Embed(context.Background(), sentences("a"), time.Second)
	require.ErrorIs(t, err, process.ErrProcessExited)
}

func TestBridge_EmbedAfterShutdown(t *testing.T) {
	b := newTestBridge(t, indexEcho, Options{})
	b.Shutdown()

	_, err := b.Embed(context.Background(), sentences("a"), time.Second)
	require.ErrorIs(t, err, process.ErrClosed)
}

func TestBridge_ParentContextCanceled(t *testing.T) {
	b := newTestBridge(t, `cat >/dev/null`, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := b.Embed(ctx, sentences("a"), 10*time.Second)
	require.ErrorIs(t, err, context.Canceled)

	// The reply owed for "a" never comes, so the next batch waits for it first.
	_, err = b.Embed(context.Background(), sentences("b"), 100*time.Millisecond)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.ErrorContains(t, err, "abandoned batch")
}
