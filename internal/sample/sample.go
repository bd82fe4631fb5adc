// Package sample re-expresses a completed derivation as two independent total
// orders over the same nodes, target emission order and source coverage
// order, so that local edits can replace nodes without re-deriving the rest.
//
// Both orders are intrusive doubly linked lists threaded through the arena
// nodes: target order uses Prev/Next, source order SrcPrev/SrcNext. The root
// node heads both. A position table maps every source position to the node
// that currently covers it.
package sample

import (
	"fmt"
	"iter"
	"strings"

	"derivo/internal/derivation"
	"derivo/internal/phrase"
	"derivo/internal/score"
)

type Handle = derivation.Handle

const Nil = derivation.Nil

// Sample is one derivation under local search.
type Sample struct {
	arena *derivation.Arena

	root       Handle
	targetLast Handle
	sourceLast Handle
	// sourceIndex[i] is the node covering source position i.
	sourceIndex []Handle

	features score.Breakdown
}

// New builds a sample from the predecessor chain ending at final, which must
// cover the whole sentence. The running feature total starts from final's
// accumulated scores.
func New(arena *derivation.Arena, final Handle) *Sample {
	n := arena.SourceLen()
	s := &Sample{
		arena:       arena,
		root:        Nil,
		targetLast:  final,
		sourceIndex: make([]Handle, n),
		features:    arena.Node(final).Scores.Clone(),
	}
	for i := range s.sourceIndex {
		s.sourceIndex[i] = Nil
	}

	// Bucket every node by the start of its source span. Slot 0 is reserved
	// for the root, whose span starts at NotFound.
	buckets := make([]Handle, n+1)
	for i := range buckets {
		buckets[i] = Nil
	}

	next := Nil
	for h := final; h != Nil; h = arena.Node(h).Prev {
		node := arena.Node(h)
		key := node.Source.Start + 1
		if key < 0 || key > n {
			panic(fmt.Sprintf("sample: node %d has source span %s outside a %d-word sentence", node.ID, node.Source, n))
		}
		if buckets[key] != Nil {
			panic(fmt.Sprintf("sample: two nodes start at source position %d", node.Source.Start))
		}
		buckets[key] = h
		s.indexSource(h)
		node.Next = next
		next = h
		s.root = h
	}
	if arena.Node(s.root).Att != nil {
		panic("sample: predecessor chain does not end at a root node")
	}

	prev := Nil
	for _, h := range buckets {
		if h == Nil {
			continue
		}
		arena.Node(h).SrcPrev = prev
		if prev != Nil {
			arena.Node(prev).SrcNext = h
		}
		s.sourceLast = h
		prev = h
	}

	// The orders are authoritative from here on: cut the loose ends.
	arena.Node(s.sourceLast).SrcNext = Nil
	arena.Node(s.targetLast).Next = Nil
	arena.Node(s.root).SrcPrev = Nil
	arena.Node(s.root).Prev = Nil

	s.mustBeConsistent()
	return s
}

func (s *Sample) node(h Handle) *derivation.Node { return s.arena.Node(h) }

// Arena returns the arena holding the sample's nodes.
func (s *Sample) Arena() *derivation.Arena { return s.arena }

// Root is the sentinel heading both orders.
func (s *Sample) Root() Handle { return s.root }

// TargetLast is the node emitted last.
func (s *Sample) TargetLast() Handle { return s.targetLast }

// SourceLast is the node covering the end of the sentence.
func (s *Sample) SourceLast() Handle { return s.sourceLast }

// SourceLen is the number of source words.
func (s *Sample) SourceLen() int { return len(s.sourceIndex) }

// Features is the running feature total. Callers must not modify it.
func (s *Sample) Features() score.Breakdown { return s.features }

// Score is the weighted feature total.
func (s *Sample) Score() float64 {
	return s.features.InnerProduct(s.arena.Model().Weights)
}

// NodeAtSourceIndex returns the node covering source position i. Position -1
// is the root; positions past the sentence have no node.
func (s *Sample) NodeAtSourceIndex(i int) Handle {
	if i == phrase.NotFound {
		return s.root
	}
	if i < 0 || i >= len(s.sourceIndex) {
		return Nil
	}
	return s.sourceIndex[i]
}

func (s *Sample) indexSource(h Handle) {
	node := s.node(h)
	if !node.Source.IsSet() {
		return
	}
	for i := node.Source.Start; i <= node.Source.End; i++ {
		s.sourceIndex[i] = h
	}
}

// TargetOrder lists the real nodes (root excluded) in emission order.
func (s *Sample) TargetOrder() []Handle {
	var hs []Handle
	for h := s.node(s.root).Next; h != Nil; h = s.node(h).Next {
		hs = append(hs, h)
	}
	return hs
}

// SourceOrder lists the real nodes (root excluded) by source position.
func (s *Sample) SourceOrder() []Handle {
	var hs []Handle
	for h := s.node(s.root).SrcNext; h != Nil; h = s.node(h).SrcNext {
		hs = append(hs, h)
	}
	return hs
}

// Len is the number of real nodes.
func (s *Sample) Len() int {
	return len(s.TargetOrder())
}

// Words yields the target words in emission order. Every call starts over.
func (s *Sample) Words() iter.Seq[string] {
	return func(yield func(string) bool) {
		for h := s.node(s.root).Next; h != Nil; h = s.node(h).Next {
			for _, w := range s.arena.Words(h) {
				if !yield(w) {
					return
				}
			}
		}
	}
}

// LinearizeTargetWords returns the target words in emission order.
func (s *Sample) LinearizeTargetWords() []string {
	var words []string
	for w := range s.Words() {
		words = append(words, w)
	}
	return words
}

// Translation is the linearized target as a single string.
func (s *Sample) Translation() string {
	return strings.Join(s.LinearizeTargetWords(), " ")
}

// String renders the sample for logs and collectors. The format is not stable.
func (s *Sample) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%q", s.Translation())
	for _, h := range s.TargetOrder() {
		node := s.node(h)
		fmt.Fprintf(&sb, " |%d-%d|", node.Source.Start, node.Source.End)
	}
	fmt.Fprintf(&sb, " [total=%.4f] %s", s.Score(), s.arena.Model().Index.Format(s.features))
	return sb.String()
}
