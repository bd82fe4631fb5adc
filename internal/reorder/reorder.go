// Package reorder scores how a newly attached source span moves relative to
// the previously translated one: linear distortion and a lexicalised
// monotone/swap/discontinuous model.
package reorder

import (
	"derivo/internal/phrase"
)

// Distortion is the single-feature linear distortion cost.
type Distortion struct{}

func (Distortion) Name() string            { return "distortion" }
func (Distortion) NumScoreComponents() int { return 1 }

// Distance is the jump from the end of prev to the start of curr. A prev that
// covers nothing (the root) jumps from the sentence start.
func Distance(prev, curr phrase.Range) int {
	var d int
	if prev.NumWords() == 0 {
		d = curr.Start
	} else {
		d = prev.End - curr.Start + 1
	}
	if d < 0 {
		return -d
	}
	return d
}

// Score is the (non-positive) distortion feature value.
func (Distortion) Score(prev, curr phrase.Range) float64 {
	return -float64(Distance(prev, curr))
}

// Orient classifies curr relative to prev.
func Orient(prev, curr phrase.Range) phrase.Orientation {
	if prev.NumWords() == 0 {
		if curr.Start == 0 {
			return phrase.Monotone
		}
		return phrase.Discontinuous
	}
	switch {
	case prev.End+1 == curr.Start:
		return phrase.Monotone
	case curr.End+1 == prev.Start:
		return phrase.Swap
	default:
		return phrase.Discontinuous
	}
}

// MSD is a lexicalised reordering model whose probabilities are cached on the
// attachments by the candidate supplier. It has one feature per orientation.
type MSD struct {
	name string
}

// NewMSD creates a model registered under name.
func NewMSD(name string) *MSD {
	return &MSD{name: name}
}

func (m *MSD) Name() string            { return m.name }
func (m *MSD) NumScoreComponents() int { return int(phrase.NumOrientations) }

// Score returns the feature vector for attaching att after a node whose source
// range is prev. Attachments without cached scores contribute nothing.
func (m *MSD) Score(prev phrase.Range, att *phrase.Attachment) []float64 {
	out := make([]float64, phrase.NumOrientations)
	if att == nil || len(att.Reordering) < int(phrase.NumOrientations) {
		return out
	}
	o := Orient(prev, att.Source)
	out[o] = att.Reordering[o]
	return out
}
