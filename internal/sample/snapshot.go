package sample

import (
	"fmt"

	"derivo/internal/derivation"
	"derivo/internal/phrase"
	"derivo/internal/score"
)

// Clone returns an independent copy, arena included.
func (s *Sample) Clone() *Sample {
	return &Sample{
		arena:       s.arena.Clone(),
		root:        s.root,
		targetLast:  s.targetLast,
		sourceLast:  s.sourceLast,
		sourceIndex: append([]Handle(nil), s.sourceIndex...),
		features:    s.features.Clone(),
	}
}

// Snapshot is the serializable form of a sample: its attachments in target
// order and the running feature total. Node links are rebuilt on restore.
type Snapshot struct {
	SourceLen   int                  `json:"source_len"`
	Attachments []*phrase.Attachment `json:"attachments"`
	Features    []float64            `json:"features"`
}

// Snapshot captures the current derivation.
func (s *Sample) Snapshot() *Snapshot {
	snap := &Snapshot{
		SourceLen: len(s.sourceIndex),
		Features:  s.features.Clone(),
	}
	for _, h := range s.TargetOrder() {
		snap.Attachments = append(snap.Attachments, s.node(h).Att)
	}
	return snap
}

// Restore rebuilds a sample from snap in a fresh arena.
func Restore(m *derivation.Model, snap *Snapshot) (*Sample, error) {
	if len(snap.Features) != m.Index.Size() {
		return nil, fmt.Errorf("snapshot has %d feature values, model expects %d", len(snap.Features), m.Index.Size())
	}
	arena := derivation.NewArena(m, snap.SourceLen)
	h := arena.Root()
	cov := phrase.NewCoverage(snap.SourceLen)
	for _, att := range snap.Attachments {
		src := att.Source
		if !src.IsSet() || src.Start < 0 || src.End >= snap.SourceLen || src.End < src.Start {
			return nil, fmt.Errorf("attachment span %s outside a %d-word sentence", src, snap.SourceLen)
		}
		if cov.Overlaps(src) {
			return nil, fmt.Errorf("attachment span %s covered twice", src)
		}
		cov.Set(src)
		h = arena.Extend(h, att)
	}
	if !cov.IsComplete() {
		return nil, fmt.Errorf("snapshot leaves %v untranslated", cov.Gaps())
	}

	s := New(arena, h)
	s.features = score.Breakdown(snap.Features).Clone()
	return s, nil
}
