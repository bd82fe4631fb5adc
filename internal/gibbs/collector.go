package gibbs

import (
	"context"
	"fmt"
	"io"
	"sort"

	"derivo/internal/sample"
	"derivo/internal/storage"
)

// PrintCollector writes one line per sample: iteration, model score,
// translation and feature values, tab separated.
type PrintCollector struct {
	w         io.Writer
	iteration int
	err       error
}

func NewPrintCollector(w io.Writer) *PrintCollector {
	return &PrintCollector{w: w}
}

func (c *PrintCollector) Collect(s *sample.Sample) {
	c.iteration++
	if c.err != nil {
		return
	}
	ix := s.Arena().Model().Index
	_, c.err = fmt.Fprintf(c.w, "%d\t%.4f\t%s\t%s\n", c.iteration, s.Score(), s.Translation(), ix.Format(s.Features()))
}

// Err returns the first write error.
func (c *PrintCollector) Err() error { return c.err }

// TranslationFrequency is how often a translation was sampled.
type TranslationFrequency struct {
	Translation string
	Count       int
	BestScore   float64
}

// MaxTransCollector counts the distinct translations sampled.
type MaxTransCollector struct {
	seen  map[string]*TranslationFrequency
	order []string
	total int
}

func NewMaxTransCollector() *MaxTransCollector {
	return &MaxTransCollector{seen: make(map[string]*TranslationFrequency)}
}

func (c *MaxTransCollector) Collect(s *sample.Sample) {
	tr := s.Translation()
	score := s.Score()
	c.total++
	f, ok := c.seen[tr]
	if !ok {
		f = &TranslationFrequency{Translation: tr, BestScore: score}
		c.seen[tr] = f
		c.order = append(c.order, tr)
	}
	f.Count++
	f.BestScore = max(f.BestScore, score)
}

// Total is the number of samples collected.
func (c *MaxTransCollector) Total() int { return c.total }

// Distribution lists the translations by count, most frequent first. Ties
// keep the order in which translations were first seen.
func (c *MaxTransCollector) Distribution() []TranslationFrequency {
	out := make([]TranslationFrequency, len(c.order))
	for i, tr := range c.order {
		out[i] = *c.seen[tr]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Max returns the most frequently sampled translation.
func (c *MaxTransCollector) Max() (TranslationFrequency, bool) {
	d := c.Distribution()
	if len(d) == 0 {
		return TranslationFrequency{}, false
	}
	return d[0], true
}

// SampleSink is the part of the store the StoreCollector writes to.
type SampleSink interface {
	SaveSamples(ctx context.Context, recs []storage.SampleRecord) error
	SaveCheckpoint(ctx context.Context, runID string, sentence, iteration int, snap *sample.Snapshot) (string, error)
}

// StoreCollector persists every sample of one sentence in batches and
// checkpoints the sample every CheckpointEvery iterations. Collect cannot
// fail, so the first error is kept and later samples are dropped; check Err
// after Flush.
type StoreCollector struct {
	ctx      context.Context
	sink     SampleSink
	runID    string
	sentence int

	// BatchSize is the number of samples written per transaction.
	BatchSize int
	// CheckpointEvery, when positive, snapshots the sample periodically.
	CheckpointEvery int

	iteration   int
	pending     []storage.SampleRecord
	checkpoints []string
	err         error
}

func NewStoreCollector(ctx context.Context, sink SampleSink, runID string, sentence int) *StoreCollector {
	return &StoreCollector{
		ctx:       ctx,
		sink:      sink,
		runID:     runID,
		sentence:  sentence,
		BatchSize: 100,
	}
}

func (c *StoreCollector) Collect(s *sample.Sample) {
	c.iteration++
	if c.err != nil {
		return
	}
	c.pending = append(c.pending, storage.SampleRecord{
		RunID:       c.runID,
		Sentence:    c.sentence,
		Iteration:   c.iteration,
		Translation: s.Translation(),
		Score:       s.Score(),
		Features:    s.Features().Clone(),
	})
	if len(c.pending) >= max(c.BatchSize, 1) {
		c.err = c.Flush()
		if c.err != nil {
			return
		}
	}
	if c.CheckpointEvery > 0 && c.iteration%c.CheckpointEvery == 0 {
		digest, err := c.sink.SaveCheckpoint(c.ctx, c.runID, c.sentence, c.iteration, s.Snapshot())
		if err != nil {
			c.err = fmt.Errorf("checkpoint at iteration %d: %w", c.iteration, err)
			return
		}
		c.checkpoints = append(c.checkpoints, digest)
	}
}

// Flush writes the pending samples.
func (c *StoreCollector) Flush() error {
	if len(c.pending) == 0 {
		return nil
	}
	if err := c.sink.SaveSamples(c.ctx, c.pending); err != nil {
		return fmt.Errorf("failed to store samples of sentence %d: %w", c.sentence, err)
	}
	c.pending = c.pending[:0]
	return nil
}

// Err returns the first error met while collecting.
func (c *StoreCollector) Err() error { return c.err }

// Checkpoints lists the digests of the snapshots taken, in order.
func (c *StoreCollector) Checkpoints() []string { return c.checkpoints }
