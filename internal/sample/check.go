package sample

import (
	"fmt"

	"derivo/internal/phrase"
)

// Check verifies the structural invariants: both orders start at the root and
// visit the same nodes, target ranges are contiguous from position 1, source
// spans tile the sentence in order, and the position table agrees with the
// nodes. It is meant for tests and debug runs; edits assume it holds.
func (s *Sample) Check() error {
	root := s.node(s.root)
	if root.Prev != Nil || root.SrcPrev != Nil {
		return fmt.Errorf("root has a predecessor")
	}

	inTarget := make(map[Handle]bool)
	prev, end, last := s.root, root.Target.End, s.root
	for h := root.Next; h != Nil; h = s.node(h).Next {
		if inTarget[h] {
			return fmt.Errorf("target order revisits node %d", h)
		}
		inTarget[h] = true
		node := s.node(h)
		if node.Prev != prev {
			return fmt.Errorf("target back link of %s is broken", node.Source)
		}
		if node.Target.Start != end+1 || node.Target.NumWords() != node.Att.Target.Len() {
			return fmt.Errorf("target range %s of %s does not follow position %d", node.Target, node.Source, end)
		}
		end = node.Target.End
		prev, last = h, h
	}
	if last != s.targetLast {
		return fmt.Errorf("target order ends at %d, expected %d", last, s.targetLast)
	}

	count := 0
	prev, pos, last := s.root, phrase.NotFound, s.root
	for h := root.SrcNext; h != Nil; h = s.node(h).SrcNext {
		node := s.node(h)
		if !inTarget[h] {
			return fmt.Errorf("source order visits %s which is not in target order", node.Source)
		}
		count++
		if node.SrcPrev != prev {
			return fmt.Errorf("source back link of %s is broken", node.Source)
		}
		if node.Source.Start != pos+1 || node.Source.End < node.Source.Start {
			return fmt.Errorf("source span %s does not follow position %d", node.Source, pos)
		}
		for i := node.Source.Start; i <= node.Source.End; i++ {
			if s.sourceIndex[i] != h {
				return fmt.Errorf("position %d is not indexed to %s", i, node.Source)
			}
		}
		pos = node.Source.End
		prev, last = h, h
	}
	if count != len(inTarget) {
		return fmt.Errorf("source order has %d nodes, target order %d", count, len(inTarget))
	}
	if pos != len(s.sourceIndex)-1 {
		return fmt.Errorf("source coverage stops at %d of %d", pos, len(s.sourceIndex))
	}
	if last != s.sourceLast {
		return fmt.Errorf("source order ends at %d, expected %d", last, s.sourceLast)
	}
	return nil
}

func (s *Sample) mustBeConsistent() {
	if err := s.Check(); err != nil {
		panic("sample: " + err.Error())
	}
}
