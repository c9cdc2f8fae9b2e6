// Package subword encodes tokenized sentences with a sentencepiece BPE model
// before they are sent to an embedder.
package subword

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/eliben/go-sentencepiece"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// WordBoundary prefixes pieces that start a word.
const WordBoundary = "▁"

// ErrUnsupportedModel is returned for models the processor cannot load.
// Models must disable add_dummy_prefix and remove_extra_whitespaces explicitly.
var ErrUnsupportedModel = errors.New("unsupported bpe model")

// Encoder segments sentences for one language with a BPE model.
type Encoder struct {
	proc        *sentencepiece.Processor
	lang        string
	fingerprint string
}

// Load reads a sentencepiece .model file.
func Load(path, lang string) (*Encoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bpe model: %w", err)
	}
	enc, err := New(data, lang)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return enc, nil
}

// New creates an encoder from a serialized sentencepiece model. For "ja"
// the tokens of a sentence are concatenated before encoding, otherwise they
// are joined with spaces.
func New(model []byte, lang string) (*Encoder, error) {
	proc, err := newProcessor(model)
	if err != nil {
		return nil, fmt.Errorf("load bpe model: %w", err)
	}
	sum := sha256.Sum256(model)
	return &Encoder{
		proc:        proc,
		lang:        lang,
		fingerprint: hex.EncodeToString(sum[:6]),
	}, nil
}

// Fingerprint identifies the model contents.
func (e *Encoder) Fingerprint() string {
	return e.fingerprint
}

// Encode returns the pieces for s.
func (e *Encoder) Encode(s types.Sentence) (types.Sentence, error) {
	text := s.Join(e.lang)
	if text == "" {
		return types.Sentence{}, nil
	}

	// The leading space becomes the word boundary of the first word.
	tokens := e.proc.Encode(" " + text)
	out := make(types.Sentence, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out, nil
}

// newProcessor guards against models whose normalizer settings leave the
// whitespace options unset, which the processor dereferences unchecked.
func newProcessor(model []byte) (proc *sentencepiece.Processor, err error) {
	defer func() {
		if r := recover(); r != nil {
			proc, err = nil, fmt.Errorf("%w: %v", ErrUnsupportedModel, r)
		}
	}()
	return sentencepiece.NewProcessor(bytes.NewReader(model))
}
