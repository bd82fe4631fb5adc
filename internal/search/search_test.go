package search_test

import (
	"context"
	"strings"
	"testing"

	"derivo/internal/derivation"
	"derivo/internal/derivation/derivationtest"
	"derivo/internal/lm"
	"derivo/internal/options"
	"derivo/internal/phrase"
	"derivo/internal/reorder"
	"derivo/internal/score"
	"derivo/internal/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableYAML = `
num_scores: 1
entries:
  - {source: das, target: the, scores: [-0.1]}
  - {source: das, target: a, scores: [-0.4]}
  - {source: haus, target: house, scores: [-0.1]}
  - {source: das haus, target: the house, scores: [-0.2]}
  - {source: ist, target: is, scores: [-0.3]}
  - {source: klein, target: small, scores: [-0.3]}
  - {source: klein, target: little, scores: [-0.6]}
  - {source: ist klein, target: is small, scores: [-0.5]}
`

func setup(t *testing.T, sentence string) (*derivation.Model, *options.Collection) {
	t.Helper()
	table, err := options.ParseTable([]byte(tableYAML))
	require.NoError(t, err)
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
			"tm":           {1.0},
		},
	})
	require.NoError(t, err)
	return m, options.Collect(m, table, phrase.ParsePhrase(sentence), options.CollectOptions{})
}

func decode(t *testing.T, cfg search.Config, sentence string) (*derivation.Arena, *search.Result) {
	t.Helper()
	m, c := setup(t, sentence)
	a := derivation.NewArena(m, c.Sentence().Len())
	res, err := search.New(cfg, nil).Decode(context.Background(), a, c)
	require.NoError(t, err)
	return a, res
}

func TestDecode_FindsBestTranslation(t *testing.T) {
	a, res := decode(t, search.Config{StackSize: 50, NBest: 5, DistortionLimit: -1}, "das haus ist klein")

	require.NotEqual(t, derivation.Nil, res.Best)
	assert.Equal(t, "the house is small", a.Translation(res.Best).String())
	assert.True(t, a.Node(res.Best).Coverage.IsComplete())
	assert.Greater(t, res.Stats.Created, 0)
	assert.Greater(t, res.Stats.Recombined, 0, "\"the\"+\"house\" and \"the house\" are equivalent")

	require.NotEmpty(t, res.NBest)
	assert.LessOrEqual(t, len(res.NBest), 5)
	assert.Equal(t, res.Best, res.NBest[0])
	for i := 1; i < len(res.NBest); i++ {
		assert.GreaterOrEqual(t, a.Node(res.NBest[i-1]).Total, a.Node(res.NBest[i]).Total)
		assert.True(t, a.Node(res.NBest[i]).Coverage.IsComplete())
	}
}

func TestDecode_DistortionLimitZeroIsMonotone(t *testing.T) {
	a, res := decode(t, search.Config{StackSize: 50, NBest: 10, DistortionLimit: 0}, "das haus ist klein")

	require.NotEmpty(t, res.NBest)
	for _, h := range res.NBest {
		end := -1
		var chain []derivation.Handle
		for cur := h; a.Node(cur).Att != nil; cur = a.Node(cur).Prev {
			chain = append([]derivation.Handle{cur}, chain...)
		}
		for _, cur := range chain {
			assert.Equal(t, end+1, a.Node(cur).Source.Start)
			end = a.Node(cur).Source.End
		}
	}
}

func TestDecode_Constraint(t *testing.T) {
	cfg := search.Config{StackSize: 50, NBest: 3, DistortionLimit: -1, Constraint: phrase.ParsePhrase("a house is little")}
	a, res := decode(t, cfg, "das haus ist klein")

	require.NotEqual(t, derivation.Nil, res.Best)
	for _, h := range res.NBest {
		assert.Equal(t, "a house is little", a.Translation(h).String())
	}

	cfg.Constraint = phrase.ParsePhrase("the cat")
	_, res = decode(t, cfg, "das haus ist klein")
	assert.Equal(t, derivation.Nil, res.Best)
	assert.Empty(t, res.NBest)
}

func TestDecode_EarlyDiscard(t *testing.T) {
	a, res := decode(t, search.Config{StackSize: 50, NBest: 1, DistortionLimit: -1, EarlyDiscard: 0.01}, "das haus ist klein")

	assert.Greater(t, res.Stats.Discarded, 0)
	assert.Equal(t, "the house is small", a.Translation(res.Best).String())
}

func TestDecode_StackPruning(t *testing.T) {
	_, wide := decode(t, search.Config{StackSize: 100, NBest: 1, DistortionLimit: -1}, "das haus ist klein")
	_, narrow := decode(t, search.Config{StackSize: 1, NBest: 1, DistortionLimit: -1}, "das haus ist klein")

	assert.Zero(t, wide.Stats.Pruned)
	assert.Greater(t, narrow.Stats.Pruned, 0)
	assert.Less(t, narrow.Stats.Created, wide.Stats.Created)
}

func TestDecode_Errors(t *testing.T) {
	m, c := setup(t, "das haus")

	_, err := search.New(search.Config{}, nil).Decode(context.Background(), derivation.NewArena(m, 3), c)
	assert.ErrorContains(t, err, "sized")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = search.New(search.Config{}, nil).Decode(ctx, derivation.NewArena(m, 2), c)
	assert.ErrorIs(t, err, context.Canceled)
}
