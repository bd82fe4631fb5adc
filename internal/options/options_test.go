package options_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"derivo/internal/derivation"
	"derivo/internal/derivation/derivationtest"
	"derivo/internal/lm"
	"derivo/internal/options"
	"derivo/internal/phrase"
	"derivo/internal/reorder"
	"derivo/internal/score"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableYAML = `
name: tm
num_scores: 2
entries:
  - source: das
    target: the
    scores: [-0.1, -0.2]
  - source: das
    target: a
    scores: [-1.0, -1.0]
  - source: haus
    target: house
    scores: [-0.2, -0.1]
    reordering: [-0.1, -0.5, -0.9]
  - source: das haus
    target: the house
    scores: [-0.1, -0.1]
  - source: ist klein
    target: is small
    scores: [-0.3, -0.3]
`

func model(t *testing.T, table *options.Table) *derivation.Model {
	t.Helper()
	l, err := lm.ReadARPA("lm", strings.NewReader(derivationtest.ToyARPA), 0)
	require.NoError(t, err)
	m, err := derivation.NewModel(derivation.ModelOptions{
		LMs:        []lm.LanguageModel{l},
		Reordering: []derivation.ReorderingModel{reorder.NewMSD("msd")},
		Extra:      []score.Producer{table},
		Weights: map[string][]float64{
			"distortion":   {0.3},
			"word_penalty": {-0.5},
			"lm":           {0.5},
			"msd":          {0.2, 0.2, 0.2},
			"tm":           {1.0, 0.5},
		},
	})
	require.NoError(t, err)
	return m
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tableYAML), 0o644))

	table, err := options.LoadTable(path)
	require.NoError(t, err)

	assert.Equal(t, "tm", table.Name())
	assert.Equal(t, 2, table.NumScoreComponents())
	assert.Equal(t, 2, table.MaxSourceLength())
	assert.Len(t, table.Lookup(phrase.ParsePhrase("das")), 2)
	assert.Empty(t, table.Lookup(phrase.ParsePhrase("klein")))
	assert.Equal(t, []string{"das", "das haus", "haus", "ist klein"}, table.Sources())

	_, err = options.LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseTable_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"no scores", "num_scores: 0\n", "num_scores"},
		{"score count", "num_scores: 2\nentries:\n  - {source: a, target: b, scores: [1]}\n", "has 1 scores"},
		{"empty source", "num_scores: 1\nentries:\n  - {source: '', target: b, scores: [1]}\n", "empty source"},
		{"reordering", "num_scores: 1\nentries:\n  - {source: a, target: b, scores: [1], reordering: [1]}\n", "reordering"},
		{"syntax", "num_scores: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := options.ParseTable([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestCollect(t *testing.T) {
	table, err := options.ParseTable([]byte(tableYAML))
	require.NoError(t, err)
	m := model(t, table)

	sentence := phrase.ParsePhrase("das haus ist klein")
	c := options.Collect(m, table, sentence, options.CollectOptions{})
	assert.Equal(t, 2, c.MaxPhraseLength())
	assert.Equal(t, sentence, c.Sentence())

	das := c.Options(phrase.NewRange(0, 0))
	require.Len(t, das, 2)
	assert.Equal(t, "the", das[0].Target.String(), "best estimate first")
	assert.Greater(t, das[0].FutureScore, das[1].FutureScore)
	assert.Equal(t, []float64{-0.1, -0.2}, das[0].Scores.Get(m.Index, table))

	haus := c.Options(phrase.NewRange(1, 1))
	require.Len(t, haus, 1)
	assert.Equal(t, []float64{-0.1, -0.5, -0.9}, haus[0].Reordering)

	// unknown single words pass through
	ist := c.Options(phrase.NewRange(2, 2))
	require.Len(t, ist, 1)
	assert.Equal(t, "ist", ist[0].Target.String())
	assert.Equal(t, []float64{0, 0}, ist[0].Scores.Get(m.Index, table))

	assert.Len(t, c.Options(phrase.NewRange(2, 3)), 1)
	assert.Empty(t, c.Options(phrase.NewRange(1, 2)), "unknown multi-word spans have no options")
	assert.Empty(t, c.Options(phrase.NewRange(0, 2)), "longer than the phrase limit")
	assert.Empty(t, c.Options(phrase.NoRange()))

	limited := options.Collect(m, table, sentence, options.CollectOptions{TableLimit: 1, MaxPhraseLength: 1})
	assert.Len(t, limited.Options(phrase.NewRange(0, 0)), 1)
	assert.Empty(t, limited.Options(phrase.NewRange(0, 1)))
}

func TestEstimate(t *testing.T) {
	table, err := options.ParseTable([]byte(tableYAML))
	require.NoError(t, err)
	m := model(t, table)
	c := options.Collect(m, table, phrase.ParsePhrase("das haus"), options.CollectOptions{})

	att := c.Options(phrase.NewRange(0, 1))[0]
	// p(the) unigram, p(house|the) bigram
	lmScore := -0.5*math.Ln10 + -0.3*math.Ln10
	expected := 1.0*-0.1 + 0.5*-0.1 + -0.5*-2 + 0.5*lmScore
	assert.InDelta(t, expected, att.FutureScore, 1e-9)
	assert.InDelta(t, lmScore, options.IsolatedLMScore(m.LMs[0], att.Target), 1e-9)
}

func TestFutureCostMatrix(t *testing.T) {
	best := map[phrase.Range]float64{
		phrase.NewRange(0, 0): -1,
		phrase.NewRange(1, 1): -2,
		phrase.NewRange(2, 2): -3,
		phrase.NewRange(0, 1): -2.5,
		phrase.NewRange(1, 2): -6,
	}
	f := options.NewFutureCostMatrix(3, func(r phrase.Range) (float64, bool) {
		v, ok := best[r]
		return v, ok
	})

	assert.Equal(t, -2.5, f.Cost(phrase.NewRange(0, 1)))
	assert.Equal(t, -5.0, f.Cost(phrase.NewRange(1, 2)), "splitting beats the phrase")
	assert.Equal(t, -5.5, f.Cost(phrase.NewRange(0, 2)))
	assert.Equal(t, 0.0, f.Cost(phrase.NewRange(2, 1)))

	cov := phrase.NewCoverage(3)
	assert.Equal(t, -5.5, f.FutureScore(cov))
	cov.Set(phrase.NewRange(1, 1))
	assert.Equal(t, -4.0, f.FutureScore(cov), "gaps are costed separately")
	cov.Set(phrase.NewRange(0, 2))
	assert.Equal(t, 0.0, f.FutureScore(cov))
}

func TestFutureCostMatrix_Unreachable(t *testing.T) {
	f := options.NewFutureCostMatrix(2, func(r phrase.Range) (float64, bool) {
		return -1, r == phrase.NewRange(0, 0)
	})
	assert.True(t, math.IsInf(f.Cost(phrase.NewRange(0, 1)), -1))
}

func TestCollection_FutureScore(t *testing.T) {
	table, err := options.ParseTable([]byte(tableYAML))
	require.NoError(t, err)
	m := model(t, table)
	c := options.Collect(m, table, phrase.ParsePhrase("das haus ist klein"), options.CollectOptions{})

	cov := phrase.NewCoverage(4)
	full := c.FutureScore(cov)
	assert.InDelta(t, c.FutureCost().Cost(phrase.NewRange(0, 3)), full, 1e-12)
	assert.GreaterOrEqual(t, full,
		c.FutureCost().Cost(phrase.NewRange(0, 1))+c.FutureCost().Cost(phrase.NewRange(2, 3))-1e-12)

	cov.Set(phrase.NewRange(0, 3))
	assert.Zero(t, c.FutureScore(cov))
}
