package gibbs

import (
	"math"
	"math/rand/v2"

	"derivo/internal/derivation"
	"derivo/internal/options"
	"derivo/internal/phrase"
	"derivo/internal/reorder"
	"derivo/internal/sample"
	"derivo/internal/score"
	"derivo/internal/telemetry"
)

// Operator is one kind of local move. Sweep visits every site of the sample
// once, applies the drawn alternative at each and returns how many sites
// changed.
type Operator interface {
	Name() string
	Sweep(s *sample.Sample, env *Env) int
}

// Env is what operators share during a run.
type Env struct {
	Scorer   *DeltaScorer
	Supplier options.Supplier
	Rand     *rand.Rand
	// Temperature divides every weighted delta before exponentiation.
	Temperature float64
	// DistortionLimit rejects proposals with a longer source jump; negative
	// disables it.
	DistortionLimit int
}

// choice is one proposal at a site. A nil apply keeps the sample unchanged.
type choice struct {
	delta score.Breakdown
	apply func(delta score.Breakdown)
}

// draw samples one of the choices in proportion to exp(w·delta / T).
func (env *Env) draw(choices []choice) int {
	if len(choices) == 1 {
		return 0
	}
	t := env.Temperature
	if t <= 0 {
		t = 1
	}
	logits := make([]float64, len(choices))
	top := math.Inf(-1)
	for i, c := range choices {
		logits[i] = env.Scorer.Weighted(c.delta) / t
		top = max(top, logits[i])
	}
	var sum float64
	for i := range logits {
		logits[i] = math.Exp(logits[i] - top)
		sum += logits[i]
	}
	r := env.Rand.Float64() * sum
	for i, p := range logits {
		if r < p {
			return i
		}
		r -= p
	}
	return len(choices) - 1
}

// decide draws among choices, applies the result and records the move.
func (env *Env) decide(op string, choices []choice) bool {
	k := env.draw(choices)
	if choices[k].apply == nil {
		telemetry.Moves.WithLabelValues(op, "kept").Inc()
		return false
	}
	choices[k].apply(choices[k].delta)
	telemetry.Moves.WithLabelValues(op, "changed").Inc()
	return true
}

// withinLimit checks the source jumps into positions [from, to] of seq.
func (env *Env) withinLimit(seq []*phrase.Attachment, from, to int) bool {
	if env.DistortionLimit < 0 {
		return true
	}
	for k := from; k <= to && k < len(seq); k++ {
		prev := phrase.NoRange()
		if k > 0 {
			prev = seq[k-1].Source
		}
		if reorder.Distance(prev, seq[k].Source) > env.DistortionLimit {
			return false
		}
	}
	return true
}

func (env *Env) keep() choice {
	return choice{delta: env.Scorer.Model().Index.NewBreakdown()}
}

// segments lists the nodes of s in target order with their attachments.
func segments(s *sample.Sample) ([]derivation.Handle, []*phrase.Attachment) {
	hs := s.TargetOrder()
	atts := make([]*phrase.Attachment, len(hs))
	for i, h := range hs {
		atts[i] = s.Arena().Node(h).Att
	}
	return hs, atts
}

func indexOf(hs []derivation.Handle, h derivation.Handle) int {
	for i, x := range hs {
		if x == h {
			return i
		}
	}
	panic("gibbs: node is not in target order")
}
