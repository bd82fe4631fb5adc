// Package derivationtest provides a small scoring model and attachment
// builders for tests of the derivation, sample and sampler packages.
package derivationtest

import (
	"strings"
	"testing"

	"derivo/internal/derivation"
	"derivo/internal/lm"
	"derivo/internal/phrase"
	"derivo/internal/reorder"
	"derivo/internal/score"

	"github.com/stretchr/testify/require"
)

// ToyARPA is a bigram model over a handful of words.
const ToyARPA = `
\data\
ngram 1=8
ngram 2=6

\1-grams:
-1.0 <s> -0.5
-1.0 </s>
-0.5 the -0.3
-0.7 house -0.2
-0.9 is -0.1
-1.2 small -0.2
-1.1 little
-1.5 a -0.4

\2-grams:
-0.2 <s> the
-0.3 the house
-0.4 house is
-0.3 is small
-0.3 small </s>
-0.6 a house

\end\
`

// Translation stands in for the phrase-table features.
type Translation struct{}

func (Translation) Name() string            { return "tm" }
func (Translation) NumScoreComponents() int { return 1 }

// Options tweaks the fixture model.
type Options struct {
	SourceStartPosMatters bool
	ComputeLMStats        bool
	ArcMultiplier         int
	NoLM                  bool
}

// NewModel builds a model with the toy LM, one MSD reordering model and a
// single translation feature.
func NewModel(t testing.TB, opts Options) *derivation.Model {
	t.Helper()

	var lms []lm.LanguageModel
	weights := map[string][]float64{
		"distortion":   {0.3},
		"word_penalty": {-0.5},
		"msd":          {0.2, 0.2, 0.2},
		"tm":           {1.0},
	}
	if !opts.NoLM {
		model, err := lm.ReadARPA("lm", strings.NewReader(ToyARPA), 0)
		require.NoError(t, err)
		lms = append(lms, model)
		weights["lm"] = []float64{0.5}
	}

	m, err := derivation.NewModel(derivation.ModelOptions{
		LMs:                   lms,
		Reordering:            []derivation.ReorderingModel{reorder.NewMSD("msd")},
		Extra:                 []score.Producer{Translation{}},
		Weights:               weights,
		SourceStartPosMatters: opts.SourceStartPosMatters,
		ComputeLMStats:        opts.ComputeLMStats,
		ArcMultiplier:         opts.ArcMultiplier,
	})
	require.NoError(t, err)
	return m
}

// Att builds an attachment over source [start, end] emitting target, with a
// translation score of tm.
func Att(m *derivation.Model, start, end int, target string, tm float64) *phrase.Attachment {
	scores := m.Index.NewBreakdown()
	scores.Add(m.Index, Translation{}, tm)
	return &phrase.Attachment{
		Source:      phrase.NewRange(start, end),
		Target:      phrase.ParsePhrase(target),
		Scores:      scores,
		FutureScore: tm,
	}
}

// FlatFuture charges a fixed cost per uncovered position.
type FlatFuture float64

func (f FlatFuture) FutureScore(c *phrase.Coverage) float64 {
	return float64(f) * float64(c.Size()-c.NumCovered())
}

// Chain creates and scores a derivation that attaches atts in order.
func Chain(a *derivation.Arena, atts ...*phrase.Attachment) []derivation.Handle {
	hs := []derivation.Handle{a.Root()}
	for _, att := range atts {
		h, ok := a.Create(hs[len(hs)-1], att, nil)
		if !ok {
			panic("derivationtest: unconstrained creation failed")
		}
		a.CalcScore(h, FlatFuture(-1))
		hs = append(hs, h)
	}
	return hs
}
