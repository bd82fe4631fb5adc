package gibbs

import (
	"context"
	"fmt"
	"math/rand/v2"

	"derivo/internal/options"
	"derivo/internal/sample"
	"derivo/internal/telemetry"

	"github.com/sirupsen/logrus"
)

// Phase is the sampler's lifecycle state.
type Phase int

const (
	NotStarted Phase = iota
	Burnin
	Sampling
	Done
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case Burnin:
		return "burnin"
	case Sampling:
		return "sampling"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Collector observes the sample after every sampling iteration.
type Collector interface {
	Collect(s *sample.Sample)
}

// Config controls one sampler run.
type Config struct {
	BurnIn          int
	Iterations      int
	Temperature     float64
	DistortionLimit int
	Seed            uint64
}

// Sampler drives the operators over one sentence.
type Sampler struct {
	cfg        Config
	ops        []Operator
	collectors []Collector
	env        *Env
	log        *logrus.Entry

	phase     Phase
	iteration int
}

// NewSampler prepares a run. Operators are swept in the given order on every
// iteration.
func NewSampler(cfg Config, scorer *DeltaScorer, sup options.Supplier, ops []Operator, collectors []Collector, log *logrus.Entry) *Sampler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sampler{
		cfg:        cfg,
		ops:        ops,
		collectors: collectors,
		env: &Env{
			Scorer:          scorer,
			Supplier:        sup,
			Rand:            rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
			Temperature:     cfg.Temperature,
			DistortionLimit: cfg.DistortionLimit,
		},
		log: log,
	}
}

// Phase returns the current lifecycle state.
func (sm *Sampler) Phase() Phase { return sm.phase }

// Iteration is the number of iterations run so far, burn-in included.
func (sm *Sampler) Iteration() int { return sm.iteration }

// Run burns in and then samples s, calling every collector after each
// sampling iteration. The context is checked between iterations only; on
// cancellation the sampler stays in the phase it was in.
func (sm *Sampler) Run(ctx context.Context, s *sample.Sample) error {
	if sm.phase != NotStarted {
		return fmt.Errorf("sampler already ran (phase %s)", sm.phase)
	}

	sm.phase = Burnin
	for i := 0; i < sm.cfg.BurnIn; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sm.sweep(s)
	}

	sm.phase = Sampling
	for i := 0; i < sm.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sm.sweep(s)
		for _, c := range sm.collectors {
			c.Collect(s)
		}
	}

	sm.phase = Done
	sm.log.WithFields(logrus.Fields{
		"iterations": sm.iteration,
		"score":      s.Score(),
	}).Debug("sampling finished")
	return nil
}

func (sm *Sampler) sweep(s *sample.Sample) {
	sm.iteration++
	for _, op := range sm.ops {
		changed := op.Sweep(s, sm.env)
		sm.log.WithFields(logrus.Fields{
			"iteration": sm.iteration,
			"operator":  op.Name(),
			"changed":   changed,
		}).Trace("sweep")
	}
	telemetry.Sweeps.WithLabelValues(sm.phase.String()).Inc()
}

// DefaultOperators returns the operator set in sweep order.
func DefaultOperators() []Operator {
	return []Operator{MergeSplit{}, TranslationSwap{}, Flip{}}
}

// OperatorsByName resolves configured operator names.
func OperatorsByName(names []string) ([]Operator, error) {
	if len(names) == 0 {
		return DefaultOperators(), nil
	}
	known := make(map[string]Operator)
	for _, op := range DefaultOperators() {
		known[op.Name()] = op
	}
	var ops []Operator
	for _, name := range names {
		op, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", name)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
