// Package derivation implements the nodes of a phrase-based derivation: their
// creation from a predecessor and an attachment, their incremental scoring,
// and the recombination bookkeeping a beam search needs.
//
// Nodes live in a per-sentence Arena and refer to each other by Handle. A
// node's predecessor is shared and never owned; its arc list (dominated
// alternatives) is owned exclusively and moves to the winner on recombination.
package derivation

import (
	"fmt"
	"strings"

	"derivo/internal/lm"
	"derivo/internal/phrase"
	"derivo/internal/score"
)

// Handle addresses a node inside its Arena.
type Handle int32

// Nil is the absent handle.
const Nil Handle = -1

type stage uint8

const (
	unscored stage = iota
	estimated
	scored
)

// Node is a single step of a derivation.
type Node struct {
	ID uint64

	// Prev is the predecessor. Inside a sample it doubles as the target-order
	// previous link.
	Prev Handle
	// Next, SrcPrev and SrcNext are only used once the node belongs to a sample.
	Next    Handle
	SrcPrev Handle
	SrcNext Handle

	Att      *phrase.Attachment
	Source   phrase.Range
	Target   phrase.Range
	Coverage *phrase.Coverage
	LMStates []lm.State
	Scores   score.Breakdown
	Total    float64
	Future   float64
	Deleted  bool

	// Arcs are the recombined-away equivalents of this node.
	Arcs   []Handle
	Winner Handle
	// LMStats holds, per language model, the n-gram length used for every
	// prediction this node made. Nil unless the model asks for it.
	LMStats [][]int

	recombined bool
	stage      stage
}

// Arena owns every node of one sentence. Pointers returned by Node stay valid
// only until the next allocation.
type Arena struct {
	model     *Model
	sourceLen int
	nodes     []Node
	nextID    uint64
}

// NewArena creates an arena for a sentence of sourceLen words.
func NewArena(m *Model, sourceLen int) *Arena {
	return &Arena{
		model:     m,
		sourceLen: sourceLen,
		nodes:     make([]Node, 0, 256),
	}
}

func (a *Arena) Model() *Model  { return a.model }
func (a *Arena) SourceLen() int { return a.sourceLen }
func (a *Arena) Len() int       { return len(a.nodes) }

// Node dereferences h.
func (a *Arena) Node(h Handle) *Node {
	if h == Nil {
		panic("derivation: dereference of nil handle")
	}
	return &a.nodes[h]
}

// Reset drops every node at once, keeping the backing storage.
func (a *Arena) Reset(sourceLen int) {
	a.nodes = a.nodes[:0]
	a.nextID = 0
	a.sourceLen = sourceLen
}

// Clone copies the arena and every node in it. Attachments are shared; they
// are immutable once built.
func (a *Arena) Clone() *Arena {
	c := &Arena{
		model:     a.model,
		sourceLen: a.sourceLen,
		nodes:     make([]Node, len(a.nodes), cap(a.nodes)),
		nextID:    a.nextID,
	}
	for i, n := range a.nodes {
		n.Coverage = n.Coverage.Clone()
		n.Scores = n.Scores.Clone()
		n.LMStates = append([]lm.State(nil), n.LMStates...)
		if n.Arcs != nil {
			n.Arcs = append([]Handle(nil), n.Arcs...)
		}
		if n.LMStats != nil {
			stats := make([][]int, len(n.LMStats))
			for j, s := range n.LMStats {
				stats[j] = append([]int(nil), s...)
			}
			n.LMStats = stats
		}
		c.nodes[i] = n
	}
	return c
}

func (a *Arena) alloc(n Node) Handle {
	n.ID = a.nextID
	a.nextID++
	a.nodes = append(a.nodes, n)
	return Handle(len(a.nodes) - 1)
}

// Root creates the sentinel node with nothing covered. Its target range is
// the empty range ending at position 0, so the first real word is at 1.
func (a *Arena) Root() Handle {
	return a.alloc(Node{
		Prev:     Nil,
		Next:     Nil,
		SrcPrev:  Nil,
		SrcNext:  Nil,
		Source:   phrase.NoRange(),
		Target:   phrase.NewRange(1, 0),
		Coverage: phrase.NewCoverage(a.sourceLen),
		LMStates: make([]lm.State, len(a.model.LMs)),
		Scores:   a.model.Index.NewBreakdown(),
		Winner:   Nil,
	})
}

// Create extends prev with att. When constraint is non-nil the attachment's
// words must match the constraint at the offset where they would be emitted;
// otherwise no node is created and ok is false.
func (a *Arena) Create(prev Handle, att *phrase.Attachment, constraint phrase.Phrase) (h Handle, ok bool) {
	p := a.Node(prev)
	if constraint != nil {
		start := p.Target.End + 1
		end := start + att.Target.Len() - 1
		if end > constraint.Len() {
			return Nil, false
		}
		if !constraint.SubString(phrase.NewRange(start-1, end-1)).IsCompatible(att.Target) {
			return Nil, false
		}
	}
	if p.Coverage.Overlaps(att.Source) {
		panic(fmt.Sprintf("derivation: attachment %s overlaps coverage %s of node %d", att.Source, p.Coverage, p.ID))
	}
	return a.Extend(prev, att), true
}

// Extend appends a node for att after prev without checking coverage. Sample
// edits use it: their predecessors come from a complete derivation whose
// coverage records no longer describe a left-to-right prefix.
func (a *Arena) Extend(prev Handle, att *phrase.Attachment) Handle {
	p := a.Node(prev)
	cov := p.Coverage.Clone()
	cov.Set(att.Source)
	scores := p.Scores.Clone()
	scores.PlusEquals(att.Scores)
	states := make([]lm.State, len(p.LMStates))
	copy(states, p.LMStates)

	return a.alloc(Node{
		Prev:     prev,
		Next:     Nil,
		SrcPrev:  Nil,
		SrcNext:  Nil,
		Att:      att,
		Source:   att.Source,
		Target:   phrase.NewRange(p.Target.End+1, p.Target.End+att.Target.Len()),
		Coverage: cov,
		LMStates: states,
		Scores:   scores,
		Deleted:  att.Deletion,
		Winner:   Nil,
	})
}

// Words returns the target phrase emitted by h itself.
func (a *Arena) Words(h Handle) phrase.Phrase {
	n := a.Node(h)
	if n.Att == nil {
		return nil
	}
	return n.Att.Target
}

// history returns the last k target words emitted up to and including h,
// left-padded with bos.
func (a *Arena) history(h Handle, k int, bos string) []string {
	out := make([]string, k)
	i := k - 1
	for cur := h; cur != Nil && i >= 0; cur = a.nodes[cur].Prev {
		words := a.Words(cur)
		for j := len(words) - 1; j >= 0 && i >= 0; j-- {
			out[i] = words[j]
			i--
		}
	}
	for ; i >= 0; i-- {
		out[i] = bos
	}
	return out
}

// Translation concatenates the target words along the predecessor chain.
func (a *Arena) Translation(h Handle) phrase.Phrase {
	var chain []Handle
	for cur := h; cur != Nil; cur = a.nodes[cur].Prev {
		chain = append(chain, cur)
	}
	var out phrase.Phrase
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, a.Words(chain[i])...)
	}
	return out
}

// String renders a node for logs: translation, coverage, score and features.
func (a *Arena) String(h Handle) string {
	n := a.Node(h)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%q [%s] [total=%.4f]", a.Translation(h).String(), n.Coverage, n.Total)
	sb.WriteByte(' ')
	sb.WriteString(a.model.Index.Format(n.Scores))
	return sb.String()
}
