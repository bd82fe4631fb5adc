package lm

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bigram = `
\data\
ngram 1=3
ngram 2=1

\1-grams:
-1.0 <s> -0.5
-0.5 a -0.3
-0.7 b

\2-grams:
-0.2 <s> a

\end\
`

func TestReadARPA_Backoff(t *testing.T) {
	m, err := ReadARPA("lm", strings.NewReader(bigram), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Order())
	assert.Equal(t, "lm", m.Name())

	lp, _ := m.Score([]string{"<s>", "a"})
	assert.InDelta(t, -0.2*math.Ln10, lp, 1e-9)
	assert.Equal(t, 2, m.NGramLength([]string{"<s>", "a"}))

	lp, _ = m.Score([]string{"a", "b"})
	assert.InDelta(t, (-0.3-0.7)*math.Ln10, lp, 1e-9, "backoff of a, then unigram b")
	assert.Equal(t, 1, m.NGramLength([]string{"a", "b"}))

	lp, _ = m.Score([]string{"<s>", "zzz"})
	assert.InDelta(t, -0.5*math.Ln10+unknownLogProb, lp, 1e-9)
	assert.Equal(t, 0, m.NGramLength([]string{"<s>", "zzz"}))
}

func TestARPA_State(t *testing.T) {
	m, err := ReadARPA("lm", strings.NewReader(bigram), 0)
	require.NoError(t, err)

	_, s1 := m.Score([]string{"<s>", "a"})
	_, s2 := m.Score([]string{"b", "a"})
	_, s3 := m.Score([]string{"a", "b"})
	_, unknown := m.Score([]string{"a", "zzz"})
	assert.Equal(t, s1, s2, "only the last word conditions a bigram model")
	assert.NotEqual(t, s1, s3)
	assert.NotEqual(t, s1, unknown)
}

func TestReadARPA_MaxOrder(t *testing.T) {
	m, err := ReadARPA("lm", strings.NewReader(bigram), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Order())

	lp, _ := m.Score([]string{"<s>", "a"})
	assert.InDelta(t, -0.5*math.Ln10, lp, 1e-9, "only the unigram is consulted")
}

func TestReadARPA_Errors(t *testing.T) {
	_, err := ReadARPA("lm", strings.NewReader("\\1-grams:\n-1 a\n"), 0)
	assert.ErrorContains(t, err, "no n-gram counts")

	_, err = ReadARPA("lm", strings.NewReader("\\data\\\nngram 1=1\n\\1-grams:\nx a\n"), 0)
	assert.ErrorContains(t, err, "line 4")

	_, err = ReadARPA("lm", strings.NewReader("\\data\\\nngram 1=1\n\\2-grams:\n-1 a\n"), 0)
	assert.ErrorContains(t, err, "expected 2 words")
}

func TestLoadARPA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lm.arpa")
	require.NoError(t, os.WriteFile(path, []byte(bigram), 0o644))

	m, err := LoadARPA("lm", path, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBOS, m.BOS())
	assert.Equal(t, DefaultEOS, m.EOS())

	_, err = LoadARPA("lm", filepath.Join(t.TempDir(), "missing.arpa"), 0)
	assert.Error(t, err)
}
