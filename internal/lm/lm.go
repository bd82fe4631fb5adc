// Package lm defines the narrow language-model interface consumed by the
// derivation scorer, plus a backoff n-gram model read from ARPA files.
package lm

import "derivo/internal/score"

// State identifies the history a model conditions the next word on. Two
// derivations with equal states for every model score future words identically.
type State uint64

// UnknownState is the state of a node no model has scored yet.
const UnknownState State = 0

const (
	DefaultBOS = "<s>"
	DefaultEOS = "</s>"
)

// LanguageModel scores single n-grams.
type LanguageModel interface {
	score.Producer

	// Order is the maximum n-gram length.
	Order() int

	// Score returns the natural-log probability of the last word of ngram given
	// the preceding words, and the state for conditioning the next word.
	// len(ngram) never exceeds Order().
	Score(ngram []string) (float64, State)

	BOS() string
	EOS() string
}

// BackoffReporter is implemented by models that can tell how long the n-gram
// actually used for a prediction was. It feeds the optional backoff statistics.
type BackoffReporter interface {
	NGramLength(ngram []string) int
}
