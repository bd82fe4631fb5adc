// Package phrase defines the positional primitives of a derivation: word
// ranges, coverage records, phrases and the candidate attachments supplied by
// the phrase table.
package phrase

import (
	"fmt"
	"strings"

	"derivo/internal/score"
)

// NotFound marks an unset position. The root node's source range uses it on
// both ends, which keys the root before every real source position.
const NotFound = -1

// Range is an inclusive [Start, End] span of word positions. A range with
// End == Start-1 is empty; target ranges of deletion attachments look like that.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewRange builds an inclusive range.
func NewRange(start, end int) Range {
	return Range{Start: start, End: end}
}

// NoRange is the unset range carried by the root node on the source side.
func NoRange() Range {
	return Range{Start: NotFound, End: NotFound}
}

// IsSet reports whether the range refers to real positions.
func (r Range) IsSet() bool { return r.Start != NotFound }

// NumWords is the number of positions covered.
func (r Range) NumWords() int {
	if !r.IsSet() || r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether pos lies inside the range.
func (r Range) Contains(pos int) bool {
	return r.IsSet() && pos >= r.Start && pos <= r.End
}

// Overlaps reports whether two set ranges share a position.
func (r Range) Overlaps(o Range) bool {
	if r.NumWords() == 0 || o.NumWords() == 0 {
		return false
	}
	return r.Start <= o.End && o.Start <= r.End
}

// Less orders ranges by start, then end.
func (r Range) Less(o Range) bool {
	return r.Start < o.Start || (r.Start == o.Start && r.End < o.End)
}

// Shift moves both ends by d.
func (r Range) Shift(d int) Range {
	return Range{Start: r.Start + d, End: r.End + d}
}

func (r Range) String() string {
	if !r.IsSet() {
		return "[-]"
	}
	return fmt.Sprintf("[%d..%d]", r.Start, r.End)
}

// Phrase is a sequence of surface words.
type Phrase []string

// ParsePhrase splits on whitespace.
func ParsePhrase(s string) Phrase {
	return Phrase(strings.Fields(s))
}

// Len is the number of words.
func (p Phrase) Len() int { return len(p) }

// SubString returns the words at positions [r.Start, r.End] (0-based).
func (p Phrase) SubString(r Range) Phrase {
	return p[r.Start : r.End+1]
}

// IsCompatible reports whether two phrases of equal length agree on every
// position. An empty word matches anything.
func (p Phrase) IsCompatible(o Phrase) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] == "" || o[i] == "" {
			continue
		}
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Equal compares word by word.
func (p Phrase) Equal(o Phrase) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

func (p Phrase) String() string {
	return strings.Join(p, " ")
}

// Orientation indexes the cached lexical-reordering scores of an attachment.
type Orientation int

const (
	Monotone Orientation = iota
	Swap
	Discontinuous
	NumOrientations
)

func (o Orientation) String() string {
	switch o {
	case Monotone:
		return "monotone"
	case Swap:
		return "swap"
	case Discontinuous:
		return "discontinuous"
	default:
		return "unknown"
	}
}

// Attachment is one candidate pairing of a source span with a target phrase.
// Attachments are produced by the candidate supplier and never mutated.
type Attachment struct {
	Source       Range           `json:"source"`
	SourcePhrase Phrase          `json:"source_phrase,omitempty"`
	Target       Phrase          `json:"target"`
	Scores       score.Breakdown `json:"scores"`
	FutureScore  float64         `json:"future_score"`
	Deletion     bool            `json:"deletion,omitempty"`
	// Reordering holds log probabilities per Orientation, or nil when the
	// table carries no lexical reordering information for this pair.
	Reordering []float64 `json:"reordering,omitempty"`
}

func (a *Attachment) String() string {
	return fmt.Sprintf("%s %q -> %q", a.Source, a.SourcePhrase.String(), a.Target.String())
}
