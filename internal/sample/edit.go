package sample

import (
	"fmt"

	"derivo/internal/phrase"
	"derivo/internal/score"
)

// create extends prevTarget with att and makes the new node its target-order
// successor. The caller finishes the links.
func (s *Sample) create(prevTarget Handle, att *phrase.Attachment) Handle {
	h := s.arena.Extend(prevTarget, att)
	s.node(prevTarget).Next = h
	s.indexSource(h)
	return h
}

// linkTarget makes next follow h in target order. Either may be Nil.
func (s *Sample) linkTarget(h, next Handle) {
	if h != Nil {
		s.node(h).Next = next
	}
	if next != Nil {
		s.node(next).Prev = h
	}
}

// linkSource makes h follow prev in source order. Either may be Nil.
func (s *Sample) linkSource(prev, h Handle) {
	if h != Nil {
		s.node(h).SrcPrev = prev
	}
	if prev != Nil {
		s.node(prev).SrcNext = h
	}
}

// shiftTargets moves every node after h in target order by delta positions.
func (s *Sample) shiftTargets(h Handle, delta int) {
	if delta == 0 {
		return
	}
	for cur := s.node(h).Next; cur != Nil; cur = s.node(cur).Next {
		node := s.node(cur)
		node.Target = node.Target.Shift(delta)
	}
}

func (s *Sample) replaceLast(old, repl Handle) {
	if s.targetLast == old {
		s.targetLast = repl
	}
	if s.sourceLast == old {
		s.sourceLast = repl
	}
}

// at returns the real node covering position i, panicking if there is none.
func (s *Sample) at(i int) Handle {
	h := s.NodeAtSourceIndex(i)
	if h == Nil || h == s.root {
		panic(fmt.Sprintf("sample: no node covers source position %d", i))
	}
	return h
}

func (s *Sample) mustSpan(h Handle, want phrase.Range, op string) {
	if got := s.node(h).Source; got != want {
		panic(fmt.Sprintf("sample: %s expects a node over %s, found %s", op, want, got))
	}
}

// ChangeTarget replaces the node whose source span equals att.Source with a
// node for att, keeping its place in both orders, and adds delta to the
// feature total.
func (s *Sample) ChangeTarget(att *phrase.Attachment, delta score.Breakdown) {
	curr := s.at(att.Source.Start)
	s.mustSpan(curr, att.Source, "change")

	h := s.create(s.node(curr).Prev, att)
	old := s.node(curr)

	s.linkTarget(h, old.Next)
	s.linkSource(old.SrcPrev, h)
	s.linkSource(h, old.SrcNext)
	s.replaceLast(curr, h)

	s.shiftTargets(h, att.Target.Len()-old.Target.NumWords())
	s.features.PlusEquals(delta)
}

// MergeTarget replaces the two nodes covering att.Source, which must be
// adjacent in both orders, with a single node for att. The new node takes
// the target slot of whichever of the two came first.
func (s *Sample) MergeTarget(att *phrase.Attachment, delta score.Breakdown) {
	first := s.at(att.Source.Start)
	second := s.at(att.Source.End)
	if first == second {
		panic(fmt.Sprintf("sample: merge over %s needs two nodes", att.Source))
	}
	f, g := s.node(first), s.node(second)
	if f.Source.Start != att.Source.Start || g.Source.End != att.Source.End || f.SrcNext != second {
		panic(fmt.Sprintf("sample: merge over %s does not match two source-adjacent nodes (%s, %s)", att.Source, f.Source, g.Source))
	}
	if f.Next != second && g.Next != first {
		panic(fmt.Sprintf("sample: merge of %s and %s which are not target-adjacent", f.Source, g.Source))
	}
	oldWords := f.Target.NumWords() + g.Target.NumWords()

	var h Handle
	if f.Next == second {
		h = s.create(f.Prev, att)
		s.linkTarget(h, s.node(second).Next)
	} else {
		h = s.create(g.Prev, att)
		s.linkTarget(h, s.node(first).Next)
	}
	if s.targetLast == first || s.targetLast == second {
		s.targetLast = h
	}

	s.linkSource(s.node(first).SrcPrev, h)
	s.linkSource(h, s.node(second).SrcNext)
	if s.sourceLast == second {
		s.sourceLast = h
	}

	s.shiftTargets(h, att.Target.Len()-oldWords)
	s.features.PlusEquals(delta)
}

// SplitTarget replaces the node covering left and right with two nodes, left
// then right in both orders. The spans must be source-adjacent and together
// equal the replaced node's span.
func (s *Sample) SplitTarget(left, right *phrase.Attachment, delta score.Breakdown) {
	if left.Source.End+1 != right.Source.Start {
		panic(fmt.Sprintf("sample: split into %s and %s is not monotone and adjacent", left.Source, right.Source))
	}
	curr := s.at(left.Source.Start)
	s.mustSpan(curr, phrase.NewRange(left.Source.Start, right.Source.End), "split")

	l := s.create(s.node(curr).Prev, left)
	r := s.create(l, right)
	old := s.node(curr)

	s.linkTarget(r, old.Next)
	s.linkSource(old.SrcPrev, l)
	s.linkSource(l, r)
	s.linkSource(r, old.SrcNext)
	if s.targetLast == curr {
		s.targetLast = r
	}
	if s.sourceLast == curr {
		s.sourceLast = r
	}

	s.shiftTargets(r, left.Target.Len()+right.Target.Len()-old.Target.NumWords())
	s.features.PlusEquals(delta)
}

// FlipNodes swaps the target order of two nodes. leftAtt is the attachment
// that will be emitted first; it replaces the node that is currently later.
// prevTarget must be the target predecessor of the currently earlier node and
// nextTarget the successor of the currently later one. Nodes in between keep
// their order and are renumbered.
func (s *Sample) FlipNodes(leftAtt, rightAtt *phrase.Attachment, prevTarget, nextTarget Handle, delta score.Breakdown) {
	oldRight := s.at(leftAtt.Source.Start)
	oldLeft := s.at(rightAtt.Source.Start)
	if oldLeft == oldRight {
		panic("sample: flip of a node with itself")
	}
	s.mustSpan(oldRight, leftAtt.Source, "flip")
	s.mustSpan(oldLeft, rightAtt.Source, "flip")
	if s.node(oldLeft).Prev != prevTarget {
		panic(fmt.Sprintf("sample: flip predecessor does not precede %s", s.node(oldLeft).Source))
	}
	if s.node(oldRight).Next != nextTarget {
		panic(fmt.Sprintf("sample: flip successor does not follow %s", s.node(oldRight).Source))
	}
	oldWords := s.node(oldLeft).Target.NumWords() + s.node(oldRight).Target.NumWords()

	newLeft := s.create(prevTarget, leftAtt)

	pred := s.node(oldRight).Prev
	if pred == oldLeft {
		pred = newLeft
	} else {
		between := s.node(oldLeft).Next
		s.linkTarget(newLeft, between)
		pos := s.node(newLeft).Target.End
		for cur := between; cur != oldRight; cur = s.node(cur).Next {
			if cur == Nil {
				panic("sample: flip nodes are not in target order")
			}
			node := s.node(cur)
			size := node.Target.NumWords()
			node.Target = phrase.NewRange(pos+1, pos+size)
			pos += size
		}
	}

	newRight := s.create(pred, rightAtt)
	s.linkTarget(newRight, nextTarget)

	for _, h := range []Handle{newLeft, newRight} {
		src := s.node(h).Source
		s.linkSource(s.NodeAtSourceIndex(src.Start-1), h)
		s.linkSource(h, s.NodeAtSourceIndex(src.End+1))
	}

	if s.targetLast == oldRight {
		s.targetLast = newRight
	}
	switch s.sourceLast {
	case oldRight:
		s.sourceLast = newLeft
	case oldLeft:
		s.sourceLast = newRight
	}

	s.shiftTargets(newRight, leftAtt.Target.Len()+rightAtt.Target.Len()-oldWords)
	s.features.PlusEquals(delta)
}
