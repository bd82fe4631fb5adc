// Package search is a phrase-based stack decoder. It builds derivations left
// to right in target order, one stack per number of covered source words,
// and produces the initial derivation the sampler starts from.
package search

import (
	"context"
	"fmt"
	"sort"

	"derivo/internal/derivation"
	"derivo/internal/options"
	"derivo/internal/phrase"
	"derivo/internal/reorder"
	"derivo/internal/telemetry"

	"github.com/sirupsen/logrus"
)

// Config holds the search limits.
type Config struct {
	// StackSize is the histogram pruning limit per stack.
	StackSize int
	// NBest is the number of completed derivations to return. It also sizes
	// the arc lists kept for recombined nodes.
	NBest int
	// DistortionLimit bounds the jump between consecutive source spans; a
	// negative value disables it.
	DistortionLimit int
	// EarlyDiscard, when positive, drops a new node whose estimated total
	// falls more than this far below the best node of its target stack,
	// before the language models score it.
	EarlyDiscard float64
	// NeedAllArcs keeps every arc for later n-best extraction.
	NeedAllArcs bool
	// Constraint, when set, restricts the output to this target sentence.
	Constraint phrase.Phrase
}

// Stats counts what happened during one search.
type Stats struct {
	Created    int
	Recombined int
	Pruned     int
	Discarded  int
	ArcsPruned int
}

// Result is the outcome of decoding one sentence.
type Result struct {
	// Best is the highest scoring complete derivation, or Nil when none
	// exists (for example under an unreachable constraint).
	Best derivation.Handle
	// NBest lists complete derivations, best first.
	NBest []derivation.Handle
	Stats Stats
}

// Decoder runs the stack search for one sentence at a time.
type Decoder struct {
	cfg Config
	log *logrus.Entry
}

// New creates a decoder.
func New(cfg Config, log *logrus.Entry) *Decoder {
	if cfg.NBest <= 0 {
		cfg.NBest = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Decoder{cfg: cfg, log: log}
}

// Decode searches arena's sentence using the options of sup. The arena must
// be empty and sized for the sentence. ctx is checked between stacks.
func (d *Decoder) Decode(ctx context.Context, a *derivation.Arena, sup options.Supplier) (*Result, error) {
	n := sup.Sentence().Len()
	if a.SourceLen() != n {
		return nil, fmt.Errorf("arena sized for %d words, sentence has %d", a.SourceLen(), n)
	}

	stacks := make([]*stack, n+1)
	for i := range stacks {
		stacks[i] = newStack(a)
	}
	stacks[0].add(a.Root())

	res := &Result{Best: derivation.Nil}
	for covered := 0; covered < n; covered++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st := stacks[covered]
		res.Stats.Pruned += st.prune(d.cfg.StackSize)
		hs := st.sorted()
		for _, h := range hs {
			res.Stats.ArcsPruned += a.CleanupArcList(h, d.cfg.NBest, d.cfg.NeedAllArcs)
		}
		for _, h := range hs {
			d.expand(a, sup, h, stacks, &res.Stats)
		}
		d.log.WithFields(logrus.Fields{
			"stack": covered,
			"size":  len(hs),
		}).Debug("expanded stack")
	}

	final := stacks[n]
	res.Stats.Pruned += final.prune(d.cfg.StackSize)
	for _, h := range final.sorted() {
		if d.cfg.Constraint != nil && a.Node(h).Target.End != d.cfg.Constraint.Len() {
			continue
		}
		res.Stats.ArcsPruned += a.CleanupArcList(h, d.cfg.NBest, d.cfg.NeedAllArcs)
		res.NBest = append(res.NBest, h)
	}
	d.collectArcs(a, res)
	if len(res.NBest) > 0 {
		res.Best = res.NBest[0]
	}

	telemetry.NodesCreated.Add(float64(res.Stats.Created))
	telemetry.SearchOutcomes.WithLabelValues("recombined").Add(float64(res.Stats.Recombined))
	telemetry.SearchOutcomes.WithLabelValues("pruned").Add(float64(res.Stats.Pruned))
	telemetry.SearchOutcomes.WithLabelValues("discarded").Add(float64(res.Stats.Discarded))
	telemetry.SearchOutcomes.WithLabelValues("arcs_pruned").Add(float64(res.Stats.ArcsPruned))

	d.log.WithFields(logrus.Fields{
		"words":      n,
		"created":    res.Stats.Created,
		"recombined": res.Stats.Recombined,
		"pruned":     res.Stats.Pruned,
		"discarded":  res.Stats.Discarded,
		"complete":   len(res.NBest),
	}).Debug("search finished")
	return res, nil
}

// collectArcs widens the n-best list with the recombined alternatives of the
// completed nodes, which are complete derivations too.
func (d *Decoder) collectArcs(a *derivation.Arena, res *Result) {
	seen := len(res.NBest)
	for _, h := range res.NBest[:seen] {
		for _, arc := range a.Node(h).Arcs {
			if d.cfg.Constraint != nil && a.Node(arc).Target.End != d.cfg.Constraint.Len() {
				continue
			}
			res.NBest = append(res.NBest, arc)
		}
	}
	sort.SliceStable(res.NBest, func(i, j int) bool {
		return a.Node(res.NBest[i]).Total > a.Node(res.NBest[j]).Total
	})
	if len(res.NBest) > d.cfg.NBest {
		res.NBest = res.NBest[:d.cfg.NBest]
	}
}

// expand attaches every reachable option to h.
func (d *Decoder) expand(a *derivation.Arena, sup options.Supplier, h derivation.Handle, stacks []*stack, stats *Stats) {
	node := a.Node(h)
	cov := node.Coverage
	prevSource := node.Source
	n := cov.Size()
	maxLen := sup.MaxPhraseLength()

	for start := 0; start < n; start++ {
		if cov.Covered(start) {
			continue
		}
		for end := start; end < n && end-start < maxLen; end++ {
			if cov.Covered(end) {
				break
			}
			span := phrase.NewRange(start, end)
			if !d.reachable(cov, prevSource, span) {
				continue
			}
			for _, att := range sup.Options(span) {
				d.attach(a, sup, h, att, stacks, stats)
			}
		}
	}
}

// reachable applies the distortion limit: the jump to span must be within
// the limit, and so must the jump back to the first gap afterwards.
func (d *Decoder) reachable(cov *phrase.Coverage, prev, span phrase.Range) bool {
	limit := d.cfg.DistortionLimit
	if limit < 0 {
		return true
	}
	if reorder.Distance(prev, span) > limit {
		return false
	}
	gap := cov.FirstGap()
	if gap != phrase.NotFound && gap < span.Start {
		return span.End-gap+1 <= limit
	}
	return true
}

func (d *Decoder) attach(a *derivation.Arena, sup options.Supplier, prev derivation.Handle, att *phrase.Attachment, stacks []*stack, stats *Stats) {
	h, ok := a.Create(prev, att, d.cfg.Constraint)
	if !ok {
		return
	}
	stats.Created++
	target := stacks[a.Node(h).Coverage.NumCovered()]

	if d.cfg.EarlyDiscard > 0 && !target.empty {
		if a.CalcExpectedScore(h, sup) < target.best-d.cfg.EarlyDiscard {
			stats.Discarded++
			return
		}
		a.CalcRemainingScore(h)
	} else {
		a.CalcScore(h, sup)
	}

	if _, recombined := target.add(h); recombined {
		stats.Recombined++
	}
}
