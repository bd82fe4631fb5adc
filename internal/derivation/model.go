package derivation

import (
	"fmt"

	"derivo/internal/lm"
	"derivo/internal/phrase"
	"derivo/internal/reorder"
	"derivo/internal/score"
)

// DefaultArcMultiplier bounds arc lists to this many times the n-best size.
const DefaultArcMultiplier = 5

// WordPenalty charges -1 per emitted target word.
type WordPenalty struct{}

func (WordPenalty) Name() string            { return "word_penalty" }
func (WordPenalty) NumScoreComponents() int { return 1 }

// ReorderingModel scores the attachment of a span after a node covering prev.
type ReorderingModel interface {
	score.Producer
	Score(prev phrase.Range, att *phrase.Attachment) []float64
}

// FutureCostEstimator gives an admissible estimate of the score still
// obtainable from the positions a coverage record leaves open.
type FutureCostEstimator interface {
	FutureScore(c *phrase.Coverage) float64
}

// Model bundles the weights and the loaded scoring components. It is built
// once and shared read-only by every sentence worker.
type Model struct {
	Index       *score.Index
	Weights     score.Weights
	LMs         []lm.LanguageModel
	Distortion  reorder.Distortion
	WordPenalty WordPenalty
	Reordering  []ReorderingModel

	// SourceStartPosMatters makes recombination sensitive to the start of the
	// last translated source span.
	SourceStartPosMatters bool
	// ComputeLMStats records the n-gram length each LM actually used.
	ComputeLMStats bool
	// ArcMultiplier times the n-best size is the arc list bound.
	ArcMultiplier int
}

// ModelOptions describes the components to register.
type ModelOptions struct {
	LMs        []lm.LanguageModel
	Reordering []ReorderingModel
	// Extra producers whose scores arrive precomputed on attachments, such as
	// the phrase-table translation features.
	Extra   []score.Producer
	Weights map[string][]float64

	SourceStartPosMatters bool
	ComputeLMStats        bool
	ArcMultiplier         int
}

// NewModel registers every producer in a fixed order (distortion, word
// penalty, language models, reordering models, extras) and lays out weights.
func NewModel(opts ModelOptions) (*Model, error) {
	m := &Model{
		Index:                 score.NewIndex(),
		LMs:                   opts.LMs,
		Reordering:            opts.Reordering,
		SourceStartPosMatters: opts.SourceStartPosMatters,
		ComputeLMStats:        opts.ComputeLMStats,
		ArcMultiplier:         opts.ArcMultiplier,
	}
	if m.ArcMultiplier <= 0 {
		m.ArcMultiplier = DefaultArcMultiplier
	}

	producers := []score.Producer{m.Distortion, m.WordPenalty}
	for _, l := range opts.LMs {
		producers = append(producers, l)
	}
	for _, r := range opts.Reordering {
		producers = append(producers, r)
	}
	producers = append(producers, opts.Extra...)

	for _, p := range producers {
		if err := m.Index.Register(p); err != nil {
			return nil, err
		}
	}

	w, err := score.NewWeights(m.Index, opts.Weights)
	if err != nil {
		return nil, fmt.Errorf("failed to lay out weights: %w", err)
	}
	m.Weights = w
	return m, nil
}
