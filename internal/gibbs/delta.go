// Package gibbs runs Markov chain Monte Carlo over complete derivations.
// Operators propose every local alternative at a site of the current sample,
// score each by its feature delta alone and draw one in proportion to the
// exponentiated weighted delta.
package gibbs

import (
	"derivo/internal/derivation"
	"derivo/internal/phrase"
	"derivo/internal/score"
)

// Edit replaces the target-order window [From, To) of a derivation with
// Insert. Every sample edit can be written this way, including flips over
// non-adjacent nodes, whose window carries the nodes in between.
type Edit struct {
	From, To int
	Insert   []*phrase.Attachment
}

// Apply returns a new sequence with the edit applied.
func (e Edit) Apply(seq []*phrase.Attachment) []*phrase.Attachment {
	out := make([]*phrase.Attachment, 0, len(seq)-(e.To-e.From)+len(e.Insert))
	out = append(out, seq[:e.From]...)
	out = append(out, e.Insert...)
	return append(out, seq[e.To:]...)
}

// DeltaScorer computes feature changes of edits without rescoring the whole
// derivation: only the replaced attachments, the reordering pairs at and
// inside the window, and the LM n-grams whose history reaches into it.
type DeltaScorer struct {
	model *derivation.Model
}

func NewDeltaScorer(m *derivation.Model) *DeltaScorer {
	return &DeltaScorer{model: m}
}

// Model returns the scoring model.
func (d *DeltaScorer) Model() *derivation.Model { return d.model }

// Weighted is the model score of a feature vector.
func (d *DeltaScorer) Weighted(b score.Breakdown) float64 {
	return b.InnerProduct(d.model.Weights)
}

// Delta returns features(e applied to seq) - features(seq).
func (d *DeltaScorer) Delta(seq []*phrase.Attachment, e Edit) score.Breakdown {
	m := d.model
	ix := m.Index
	next := e.Apply(seq)
	b := ix.NewBreakdown()

	for _, att := range seq[e.From:e.To] {
		b.MinusEquals(att.Scores)
		b.Add(ix, m.WordPenalty, float64(att.Target.Len()))
	}
	for _, att := range e.Insert {
		b.PlusEquals(att.Scores)
		b.Add(ix, m.WordPenalty, -float64(att.Target.Len()))
	}

	d.addPairs(b, seq, e.From, e.To, -1)
	d.addPairs(b, next, e.From, e.From+len(e.Insert), 1)

	wordsFrom := numWords(seq[:e.From])
	d.addLM(b, words(seq), wordsFrom, wordsFrom+numWords(seq[e.From:e.To]), -1)
	d.addLM(b, words(next), wordsFrom, wordsFrom+numWords(e.Insert), 1)
	return b
}

// Features scores a complete target-ordered derivation from scratch. It
// agrees with the incremental scores of the derivation package.
func (d *DeltaScorer) Features(seq []*phrase.Attachment) score.Breakdown {
	m := d.model
	ix := m.Index
	b := ix.NewBreakdown()
	for _, att := range seq {
		b.PlusEquals(att.Scores)
		b.Add(ix, m.WordPenalty, -float64(att.Target.Len()))
	}
	d.addPairs(b, seq, 0, len(seq), 1)
	ws := words(seq)
	d.addLM(b, ws, 0, len(ws)+1, 1)
	return b
}

// addPairs adds the distortion and reordering features of every
// (predecessor, node) pair whose node index lies in [from, to].
func (d *DeltaScorer) addPairs(b score.Breakdown, seq []*phrase.Attachment, from, to int, sign float64) {
	m := d.model
	for k := from; k <= to && k < len(seq); k++ {
		prev := phrase.NoRange()
		if k > 0 {
			prev = seq[k-1].Source
		}
		b.Add(m.Index, m.Distortion, sign*m.Distortion.Score(prev, seq[k].Source))
		for _, r := range m.Reordering {
			vs := r.Score(prev, seq[k])
			for i := range vs {
				vs[i] *= sign
			}
			b.AddAll(m.Index, r, vs)
		}
	}
}

// addLM adds, per language model, the n-grams predicting word positions
// [from, to+order-1) of ws, where position len(ws) is the end marker.
func (d *DeltaScorer) addLM(b score.Breakdown, ws []string, from, to int, sign float64) {
	for _, model := range d.model.LMs {
		order := model.Order()
		padded := make([]string, 0, order-1+len(ws)+1)
		for i := 0; i < order-1; i++ {
			padded = append(padded, model.BOS())
		}
		padded = append(padded, ws...)
		padded = append(padded, model.EOS())

		end := min(to+order-1, len(ws)+1)
		var total float64
		for k := from; k < end; k++ {
			lp, _ := model.Score(padded[k : k+order])
			total += lp
		}
		b.Add(d.model.Index, model, sign*total)
	}
}

func numWords(seq []*phrase.Attachment) int {
	n := 0
	for _, att := range seq {
		n += att.Target.Len()
	}
	return n
}

func words(seq []*phrase.Attachment) []string {
	out := make([]string, 0, numWords(seq))
	for _, att := range seq {
		out = append(out, att.Target...)
	}
	return out
}
