package gibbs

import (
	"derivo/internal/phrase"
	"derivo/internal/sample"
	"derivo/internal/score"
)

// TranslationSwap re-translates one node at a time, keeping its span and its
// place in target order.
type TranslationSwap struct{}

func (TranslationSwap) Name() string { return "translation_swap" }

func (op TranslationSwap) Sweep(s *sample.Sample, env *Env) int {
	changed := 0
	for pos := 0; pos < s.SourceLen(); {
		h := s.NodeAtSourceIndex(pos)
		cur := s.Arena().Node(h).Att
		pos = cur.Source.End + 1

		hs, seq := segments(s)
		i := indexOf(hs, h)

		choices := []choice{env.keep()}
		for _, att := range env.Supplier.Options(cur.Source) {
			if att == cur {
				continue
			}
			choices = append(choices, choice{
				delta: env.Scorer.Delta(seq, Edit{From: i, To: i + 1, Insert: []*phrase.Attachment{att}}),
				apply: func(d score.Breakdown) { s.ChangeTarget(att, d) },
			})
		}
		if env.decide(op.Name(), choices) {
			changed++
		}
	}
	return changed
}

// MergeSplit visits every boundary between adjacent source positions. A node
// spanning the boundary may be re-translated whole or split there into two
// target-adjacent nodes; two nodes meeting at the boundary may be merged into
// one if they are also adjacent in target order.
type MergeSplit struct{}

func (MergeSplit) Name() string { return "merge_split" }

func (op MergeSplit) Sweep(s *sample.Sample, env *Env) int {
	changed := 0
	for b := 1; b < s.SourceLen(); b++ {
		left, right := s.NodeAtSourceIndex(b-1), s.NodeAtSourceIndex(b)
		hs, seq := segments(s)
		choices := []choice{env.keep()}

		if left == right {
			i := indexOf(hs, left)
			cur := seq[i]
			span := cur.Source
			for _, att := range env.Supplier.Options(span) {
				if att == cur {
					continue
				}
				choices = append(choices, choice{
					delta: env.Scorer.Delta(seq, Edit{From: i, To: i + 1, Insert: []*phrase.Attachment{att}}),
					apply: func(d score.Breakdown) { s.ChangeTarget(att, d) },
				})
			}
			lefts := env.Supplier.Options(phrase.NewRange(span.Start, b-1))
			rights := env.Supplier.Options(phrase.NewRange(b, span.End))
			for _, la := range lefts {
				for _, ra := range rights {
					choices = append(choices, choice{
						delta: env.Scorer.Delta(seq, Edit{From: i, To: i + 1, Insert: []*phrase.Attachment{la, ra}}),
						apply: func(d score.Breakdown) { s.SplitTarget(la, ra, d) },
					})
				}
			}
		} else {
			il, ir := indexOf(hs, left), indexOf(hs, right)
			lo := min(il, ir)
			merged := phrase.NewRange(seq[il].Source.Start, seq[ir].Source.End)
			if il-ir == 1 || ir-il == 1 {
				for _, att := range env.Supplier.Options(merged) {
					choices = append(choices, choice{
						delta: env.Scorer.Delta(seq, Edit{From: lo, To: lo + 2, Insert: []*phrase.Attachment{att}}),
						apply: func(d score.Breakdown) { s.MergeTarget(att, d) },
					})
				}
			}
		}

		if env.decide(op.Name(), choices) {
			changed++
		}
	}
	return changed
}

// Flip visits every pair of nodes and may swap their target positions,
// keeping the nodes between them in place.
type Flip struct{}

func (Flip) Name() string { return "flip" }

func (op Flip) Sweep(s *sample.Sample, env *Env) int {
	changed := 0
	n := s.Len()
	for x := 0; x < n; x++ {
		for y := x + 1; y < n; y++ {
			hs, seq := segments(s)
			insert := make([]*phrase.Attachment, 0, y-x+1)
			insert = append(insert, seq[y])
			insert = append(insert, seq[x+1:y]...)
			insert = append(insert, seq[x])
			edit := Edit{From: x, To: y + 1, Insert: insert}

			choices := []choice{env.keep()}
			if env.withinLimit(edit.Apply(seq), x, y+1) {
				leftAtt, rightAtt := seq[y], seq[x]
				prevTarget := s.Arena().Node(hs[x]).Prev
				nextTarget := s.Arena().Node(hs[y]).Next
				choices = append(choices, choice{
					delta: env.Scorer.Delta(seq, edit),
					apply: func(d score.Breakdown) {
						s.FlipNodes(leftAtt, rightAtt, prevTarget, nextTarget, d)
					},
				})
			}
			if env.decide(op.Name(), choices) {
				changed++
			}
		}
	}
	return changed
}
