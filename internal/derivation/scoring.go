package derivation

import (
	"fmt"

	"derivo/internal/lm"
)

func (a *Arena) mustBeUnscored(h Handle) *Node {
	n := a.Node(h)
	if n.Att == nil {
		panic("derivation: the root node is never scored")
	}
	if n.stage != unscored {
		panic(fmt.Sprintf("derivation: node %d scored twice", n.ID))
	}
	return n
}

// CalcScore accumulates every feature of h and sets its total and future
// scores. It must run exactly once per node, before any comparison.
func (a *Arena) CalcScore(h Handle, fc FutureCostEstimator) {
	n := a.mustBeUnscored(h)
	m := a.model

	a.CalcLMScore(h)
	a.calcDistortionScore(n)
	n.Scores.Add(m.Index, m.WordPenalty, -float64(n.Target.NumWords()))
	n.Future = fc.FutureScore(n.Coverage)
	a.calcReorderingScore(n)

	n.Total = n.Scores.InnerProduct(m.Weights) + n.Future
	n.stage = scored
}

// CalcExpectedScore is the cheap first pass used for early discarding. It
// scores everything except the language models, standing in the attachment's
// precomputed LM estimate for them, and returns the resulting total. Finish
// the node with CalcRemainingScore if it survives.
func (a *Arena) CalcExpectedScore(h Handle, fc FutureCostEstimator) float64 {
	n := a.mustBeUnscored(h)
	m := a.model

	a.calcDistortionScore(n)
	estimatedLM := n.Att.FutureScore - n.Att.Scores.InnerProduct(m.Weights)
	n.Future = fc.FutureScore(n.Coverage)
	a.calcReorderingScore(n)

	n.stage = estimated
	return n.Scores.InnerProduct(m.Weights) + n.Future + estimatedLM
}

// CalcRemainingScore adds the language model and word penalty features to a
// node that went through CalcExpectedScore.
func (a *Arena) CalcRemainingScore(h Handle) {
	n := a.Node(h)
	if n.stage != estimated {
		panic(fmt.Sprintf("derivation: node %d has no expected score to complete", n.ID))
	}
	m := a.model

	a.CalcLMScore(h)
	n.Scores.Add(m.Index, m.WordPenalty, -float64(n.Target.NumWords()))

	n.Total = n.Scores.InnerProduct(m.Weights) + n.Future
	n.stage = scored
}

// IsScored reports whether the node has a final total score.
func (a *Arena) IsScored(h Handle) bool {
	return a.Node(h).stage == scored
}

// CalcLMScore adds, for every language model, the log probability of the
// words h emits given at most order-1 preceding words. Words emitted by
// predecessors are never rescored. A complete node also scores the
// end-of-sentence marker and keeps the resulting state.
func (a *Arena) CalcLMScore(h Handle) {
	n := a.Node(h)
	m := a.model
	words := n.Att.Target
	complete := n.Coverage.IsComplete()

	if m.ComputeLMStats {
		n.LMStats = make([][]int, len(m.LMs))
	}

	for idx, model := range m.LMs {
		order := model.Order()
		reporter, _ := model.(lm.BackoffReporter)

		seq := a.history(n.Prev, order-1, model.BOS())
		seq = append(seq, words...)

		var lmScore float64
		for j := 0; j < len(words); j++ {
			ngram := seq[j : j+order]
			lp, st := model.Score(ngram)
			lmScore += lp
			n.LMStates[idx] = st
			if n.LMStats != nil && reporter != nil {
				n.LMStats[idx] = append(n.LMStats[idx], reporter.NGramLength(ngram))
			}
		}

		if complete {
			ngram := make([]string, 0, order)
			ngram = append(ngram, seq[len(seq)-(order-1):]...)
			ngram = append(ngram, model.EOS())
			lp, st := model.Score(ngram)
			lmScore += lp
			n.LMStates[idx] = st
			if n.LMStats != nil && reporter != nil {
				n.LMStats[idx] = append(n.LMStats[idx], reporter.NGramLength(ngram))
			}
		}

		n.Scores.Add(m.Index, model, lmScore)
	}
}

func (a *Arena) calcDistortionScore(n *Node) {
	prev := a.Node(n.Prev)
	n.Scores.Add(a.model.Index, a.model.Distortion, a.model.Distortion.Score(prev.Source, n.Source))
}

func (a *Arena) calcReorderingScore(n *Node) {
	prev := a.Node(n.Prev)
	for _, r := range a.model.Reordering {
		n.Scores.AddAll(a.model.Index, r, r.Score(prev.Source, n.Att))
	}
}
