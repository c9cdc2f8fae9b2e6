package subword

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/constantino-dev/sentbench/pkg/types"
)

const (
	pieceNormal  = 1
	pieceUnknown = 2
	modelBPE     = 2
)

// buildModel serializes a minimal BPE ModelProto. Every piece after <unk>
// is a normal piece; later pieces score lower.
func buildModel(pieces ...string) []byte {
	var model []byte
	all := append([]string{"<unk>"}, pieces...)
	for i, p := range all {
		typ := uint64(pieceNormal)
		if i == 0 {
			typ = pieceUnknown
		}
		var msg []byte
		msg = protowire.AppendTag(msg, 1, protowire.BytesType)
		msg = protowire.AppendString(msg, p)
		msg = protowire.AppendTag(msg, 2, protowire.Fixed32Type)
		msg = protowire.AppendFixed32(msg, math.Float32bits(-float32(i)))
		msg = protowire.AppendTag(msg, 3, protowire.VarintType)
		msg = protowire.AppendVarint(msg, typ)

		model = protowire.AppendTag(model, 1, protowire.BytesType)
		model = protowire.AppendBytes(model, msg)
	}

	var trainer []byte
	trainer = protowire.AppendTag(trainer, 3, protowire.VarintType)
	trainer = protowire.AppendVarint(trainer, modelBPE)
	model = protowire.AppendTag(model, 2, protowire.BytesType)
	model = protowire.AppendBytes(model, trainer)

	var normalizer []byte
	normalizer = protowire.AppendTag(normalizer, 3, protowire.VarintType)
	normalizer = protowire.AppendVarint(normalizer, 0)
	normalizer = protowire.AppendTag(normalizer, 4, protowire.VarintType)
	normalizer = protowire.AppendVarint(normalizer, 0)
	model = protowire.AppendTag(model, 3, protowire.BytesType)
	model = protowire.AppendBytes(model, normalizer)
	return model
}

func testModel() []byte {
	return buildModel(
		"▁", "h", "e", "l", "o", "w", "r", "d",
		"▁h", "▁he", "▁hel", "▁hell", "▁hello",
		"▁w", "▁wo", "▁wor", "▁worl", "▁world",
	)
}

func TestEncoder_English(t *testing.T) {
	enc, err := New(testModel(), "en")
	require.NoError(t, err)

	got, err := enc.Encode(types.Sentence{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, types.Sentence{"▁hello", "▁world"}, got)
}

func TestEncoder_UnknownRunesKeepSurface(t *testing.T) {
	enc, err := New(testModel(), "en")
	require.NoError(t, err)

	got, err := enc.Encode(types.Sentence{"hex"})
	require.NoError(t, err)
	assert.Equal(t, types.Sentence{"▁he", "x"}, got)
}

func TestEncoder_JapaneseConcatenatesTokens(t *testing.T) {
	enc, err := New(testModel(), "ja")
	require.NoError(t, err)

	got, err := enc.Encode(types.Sentence{"hel", "lo"})
	require.NoError(t, err)
	assert.Equal(t, types.Sentence{"▁hello"}, got)
}

func TestEncoder_EmptySentence(t *testing.T) {
	enc, err := New(testModel(), "en")
	require.NoError(t, err)

	got, err := enc.Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sp.model")
	require.NoError(t, os.WriteFile(path, testModel(), 0644))

	enc, err := Load(path, "en")
	require.NoError(t, err)
	assert.Len(t, enc.Fingerprint(), 12)

	other, err := New(buildModel("▁", "a"), "en")
	require.NoError(t, err)
	assert.NotEqual(t, enc.Fingerprint(), other.Fingerprint())

	_, err = Load(filepath.Join(t.TempDir(), "missing.model"), "en")
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(t.TempDir(), "bad.model")
	require.NoError(t, os.WriteFile(garbage, []byte("not a model"), 0644))
	_, err = Load(garbage, "en")
	assert.Error(t, err)
}

func TestNew_MissingNormalizerOptions(t *testing.T) {
	var model []byte
	var unk []byte
	unk = protowire.AppendTag(unk, 1, protowire.BytesType)
	unk = protowire.AppendString(unk, "<unk>")
	unk = protowire.AppendTag(unk, 3, protowire.VarintType)
	unk = protowire.AppendVarint(unk, pieceUnknown)
	model = protowire.AppendTag(model, 1, protowire.BytesType)
	model = protowire.AppendBytes(model, unk)

	var trainer []byte
	trainer = protowire.AppendTag(trainer, 3, protowire.VarintType)
	trainer = protowire.AppendVarint(trainer, modelBPE)
	model = protowire.AppendTag(model, 2, protowire.BytesType)
	model = protowire.AppendBytes(model, trainer)

	_, err := New(model, "en")
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}
