package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// tableEmbedder looks vectors up by sentence text and records batch sizes.
type tableEmbedder struct {
	vecs    map[string]types.Vector
	batches []int
}

func (e *tableEmbedder) EmbedBatch(_ context.Context, batch []types.Sentence) ([]types.Vector, error) {
	e.batches = append(e.batches, len(batch))
	out := make([]types.Vector, len(batch))
	for i, s := range batch {
		v, ok := e.vecs[s.Text()]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", s.Text())
		}
		out[i] = v
	}
	return out, nil
}

// prefixEmbedder maps a sentence to the vector registered for its first
// token.
type prefixEmbedder map[string]types.Vector

func (e prefixEmbedder) EmbedBatch(_ context.Context, batch []types.Sentence) ([]types.Vector, error) {
	out := make([]types.Vector, len(batch))
	for i, s := range batch {
		if len(s) == 0 {
			return nil, fmt.Errorf("empty sentence")
		}
		v, ok := e[s[0]]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", s.Text())
		}
		out[i] = append(types.Vector(nil), v...)
	}
	return out, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNew_UnknownTask(t *testing.T) {
	_, err := New("SST", Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BEAN")
	assert.Equal(t, []string{"BEAN", "FormalityJa", "MASC", "RITE2", "StyleSim"}, Names())
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, types.Sentence{"a", "b"}, Tokenize(" a  b\n", "en"))
	assert.Equal(t, types.Sentence{"今", "日", "は"}, Tokenize("今日 は", "ja"))
}

func TestDefaults(t *testing.T) {
	p := Defaults(types.EvalParams{KFold: 5})
	assert.Equal(t, types.EvalParams{BatchSize: 512, KFold: 5, Seed: 1111}, p)
}

func TestFormality_BEAN(t *testing.T) {
	dir := t.TempDir()
	emb := &tableEmbedder{vecs: map[string]types.Vector{}}

	var scores, sents strings.Builder
	for i := 0; i < 30; i++ {
		s := float64(i) / 30
		text := fmt.Sprintf("sentence number %d", i)
		fmt.Fprintf(&scores, "%g\tignored\n", s)
		fmt.Fprintf(&sents, "%s\n", text)
		emb.vecs[text] = types.Vector{1 - s, s}
	}
	writeFile(t, filepath.Join(dir, "BEAN", "scores"), scores.String())
	writeFile(t, filepath.Join(dir, "BEAN", "bean-tokenized-sentences"), sents.String())

	task, err := New("BEAN", Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, "BEAN", task.Name())

	m, err := task.Run(context.Background(), emb, types.EvalParams{BatchSize: 8})
	require.NoError(t, err)
	assert.Equal(t, 30.0, m["n"])
	assert.Greater(t, m["spearman"], 0.8)
	assert.Equal(t, []int{8, 8, 8, 6}, emb.batches)
}

func TestFormality_MASCPaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "MASC", "naacl-2015-style-scores", "formality", "human", "sentence-scores"), "not-a-number\n")
	writeFile(t, filepath.Join(dir, "MASC", "masc-tokenized-sentences"), "a b\n")

	task, err := New("MASC", Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = task.Run(context.Background(), &tableEmbedder{}, types.EvalParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentence-scores:1")
}

func TestFormality_MissingData(t *testing.T) {
	task, err := New("BEAN", Config{DataDir: t.TempDir(), Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = task.Run(context.Background(), &tableEmbedder{}, types.EvalParams{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStyleSim(t *testing.T) {
	dir := t.TempDir()
	emb := &tableEmbedder{vecs: map[string]types.Vector{
		"a":    {1, 0},
		"b":    {1, 0.1},
		"c":    {0, 1},
		"d":    {1, 1},
		"zero": {0, 0},
	}}

	csv := "sent1,sent2,x,y,sim\n" +
		"a,b,,,0.9\n" +
		"a,c,,,0.1\n" +
		"a,d,,,0.5\n" +
		"a,zero,,,0.3\n"
	writeFile(t, filepath.Join(dir, "StyleSim", "stylistic_sentsim_dev.csv"), csv)
	writeFile(t, filepath.Join(dir, "StyleSim", "stylistic_sentsim_test.csv"), csv)

	task, err := New("StyleSim", Config{DataDir: dir, Language: "en", Logger: zerolog.Nop()})
	require.NoError(t, err)

	m, err := task.Run(context.Background(), emb, types.EvalParams{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m["spearman_dev"], 1e-9)
	assert.Equal(t, 3.0, m["n_dev"])
	assert.InDelta(t, 1.0, m["spearman_test"], 1e-9)
	assert.Equal(t, 3.0, m["n_test"])
}

func TestStyleSim_ShortRow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "StyleSim", "stylistic_sentsim_dev.csv"), "h1,h2\na,b\n")

	task, err := New("StyleSim", Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = task.Run(context.Background(), &tableEmbedder{}, types.EvalParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5 columns")
}

func TestFormalityJa(t *testing.T) {
	dir := t.TempDir()
	emb := prefixEmbedder{"丁": {10, 0}, "普": {-5, 8.7}, "砕": {-5, -8.7}}

	var sents, labels strings.Builder
	for i := 0; i < 20; i++ {
		for _, c := range []struct{ prefix, label string }{{"丁", "formal"}, {"普", "neutral"}, {"砕", "casual"}} {
			fmt.Fprintf(&sents, "%s%d\n", c.prefix, i)
			fmt.Fprintf(&labels, "%s\n", c.label)
		}
	}
	writeFile(t, filepath.Join(dir, "FormalityJa", "sentences.txt"), sents.String())
	writeFile(t, filepath.Join(dir, "FormalityJa", "formality-labels.txt"), labels.String())

	task, err := New("FormalityJa", Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	m, err := task.Run(context.Background(), emb, types.EvalParams{KFold: 3})
	require.NoError(t, err)
	assert.Equal(t, 30.0, m["ntest"])
	assert.Equal(t, 100.0, m["devacc"])
	assert.Equal(t, 100.0, m["acc"])
}

func TestFormalityJa_WrongLabelCount(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "FormalityJa", "sentences.txt"), "あ\nい\n")
	writeFile(t, filepath.Join(dir, "FormalityJa", "formality-labels.txt"), "formal\ncasual\n")

	task, err := New("FormalityJa", Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = task.Run(context.Background(), prefixEmbedder{}, types.EvalParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 3 formality labels")
}

func TestSplitHalf(t *testing.T) {
	data := []int{0, 1, 2, 3, 4}
	train, test := splitHalf(data, 1111)
	assert.Len(t, test, 3)
	assert.Len(t, train, 2)
	assert.ElementsMatch(t, data, append(append([]int{}, train...), test...))

	train2, test2 := splitHalf(data, 1111)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func writeRITE(t *testing.T, path string, from, to int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<dataset>\n")
	for i := from; i < to; i++ {
		if i%2 == 0 {
			fmt.Fprintf(&b, "<pair id=\"%d\" label=\"Y\"><t1>犬%d</t1><t2>犬%d</t2></pair>\n", i, i, i)
		} else {
			fmt.Fprintf(&b, "<pair id=\"%d\" label=\"N\"><t1>犬%d</t1><t2>猫%d</t2></pair>\n", i, i, i)
		}
	}
	b.WriteString("</dataset>\n")
	writeFile(t, path, b.String())
}

func TestRITE(t *testing.T) {
	dir := t.TempDir()
	writeRITE(t, filepath.Join(dir, "RITE2", "RITE2_JA_dev_bc", "RITE2_JA_dev_bc.xml"), 0, 20)
	writeRITE(t, filepath.Join(dir, "RITE2", "RITE2_JA_testlabel_bc", "RITE2_JA_testlabel_bc.xml"), 20, 40)

	task, err := New("RITE2", Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	m, err := task.Run(context.Background(), prefixEmbedder{"犬": {1, 0}, "猫": {0, 1}}, types.EvalParams{KFold: 4})
	require.NoError(t, err)
	assert.Equal(t, 40.0, m["n"])
	assert.Equal(t, 100.0, m["devacc"])
	assert.Equal(t, 100.0, m["acc"])
}

func TestRITE_UnknownLabel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "RITE2", "RITE2_JA_dev_bc", "RITE2_JA_dev_bc.xml"),
		`<dataset><pair label="C"><t1>a</t1><t2>b</t2></pair></dataset>`)

	task, err := New("RITE2", Config{DataDir: dir, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = task.Run(context.Background(), prefixEmbedder{}, types.EvalParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown label "C"`)
}

func TestPairFeatures(t *testing.T) {
	f, err := pairFeatures(types.Vector{1, 4}, types.Vector{3, 2})
	require.NoError(t, err)
	assert.Equal(t, types.Vector{2, 2, 3, 8}, f)

	_, err = pairFeatures(types.Vector{1}, types.Vector{1, 2})
	assert.Error(t, err)
}
