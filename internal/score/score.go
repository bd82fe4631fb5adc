// Package score holds the additive feature-score container shared by every
// scoring component and the slot registry that maps producers onto it.
package score

import (
	"fmt"
	"strings"
)

// Producer is anything that contributes feature values to a Breakdown.
type Producer interface {
	Name() string
	NumScoreComponents() int
}

// Index assigns each registered producer a contiguous range of slots.
// It is built once at startup and read-only afterwards.
type Index struct {
	producers []Producer
	begin     map[string]int
	size      int
}

// NewIndex creates an empty slot registry.
func NewIndex() *Index {
	return &Index{
		begin: make(map[string]int),
	}
}

// Register appends a producer's slots to the index.
func (ix *Index) Register(p Producer) error {
	if _, ok := ix.begin[p.Name()]; ok {
		return fmt.Errorf("score producer %q registered twice", p.Name())
	}
	if p.NumScoreComponents() <= 0 {
		return fmt.Errorf("score producer %q has no score components", p.Name())
	}
	ix.begin[p.Name()] = ix.size
	ix.producers = append(ix.producers, p)
	ix.size += p.NumScoreComponents()
	return nil
}

// Begin returns the first slot of p. Unknown producers are a programming error.
func (ix *Index) Begin(p Producer) int {
	b, ok := ix.begin[p.Name()]
	if !ok {
		panic(fmt.Sprintf("score: producer %q not registered", p.Name()))
	}
	return b
}

// Lookup returns the registered producer with the given name.
func (ix *Index) Lookup(name string) (Producer, bool) {
	for _, p := range ix.producers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Size is the total number of slots.
func (ix *Index) Size() int { return ix.size }

// Producers returns the producers in registration order.
func (ix *Index) Producers() []Producer { return ix.producers }

// NewBreakdown returns a zeroed vector sized for this index.
func (ix *Index) NewBreakdown() Breakdown {
	return make(Breakdown, ix.size)
}

// Format renders a breakdown as "name=v1,v2 name=v1".
func (ix *Index) Format(b Breakdown) string {
	var sb strings.Builder
	for i, p := range ix.producers {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(p.Name())
		sb.WriteByte('=')
		vals := b.Get(ix, p)
		for j, v := range vals {
			if j > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%.4f", v)
		}
	}
	return sb.String()
}

// Breakdown is the unweighted feature vector of a (partial) derivation.
type Breakdown []float64

// Clone returns an independent copy.
func (b Breakdown) Clone() Breakdown {
	if b == nil {
		return nil
	}
	out := make(Breakdown, len(b))
	copy(out, b)
	return out
}

// PlusEquals adds o into b element-wise.
func (b Breakdown) PlusEquals(o Breakdown) {
	for i := range o {
		b[i] += o[i]
	}
}

// MinusEquals subtracts o from b element-wise.
func (b Breakdown) MinusEquals(o Breakdown) {
	for i := range o {
		b[i] -= o[i]
	}
}

// Add adds v to the first slot of p.
func (b Breakdown) Add(ix *Index, p Producer, v float64) {
	b[ix.Begin(p)] += v
}

// AddAll adds vs to consecutive slots of p.
func (b Breakdown) AddAll(ix *Index, p Producer, vs []float64) {
	begin := ix.Begin(p)
	n := p.NumScoreComponents()
	if len(vs) > n {
		panic(fmt.Sprintf("score: %d values for producer %q with %d components", len(vs), p.Name(), n))
	}
	for i, v := range vs {
		b[begin+i] += v
	}
}

// Get returns the slice of b belonging to p.
func (b Breakdown) Get(ix *Index, p Producer) []float64 {
	begin := ix.Begin(p)
	return b[begin : begin+p.NumScoreComponents()]
}

// InnerProduct is the dot product with a weight vector.
func (b Breakdown) InnerProduct(w Weights) float64 {
	var total float64
	for i, v := range b {
		if i < len(w) {
			total += v * w[i]
		}
	}
	return total
}

// Weights is the global, read-only weight vector aligned with an Index.
type Weights []float64

// NewWeights lays out named per-producer weights onto the index slots.
// Every registered producer must be given exactly as many weights as it has
// score components.
func NewWeights(ix *Index, named map[string][]float64) (Weights, error) {
	w := make(Weights, ix.size)
	for _, p := range ix.producers {
		vals, ok := named[p.Name()]
		if !ok {
			return nil, fmt.Errorf("no weights for score producer %q", p.Name())
		}
		if len(vals) != p.NumScoreComponents() {
			return nil, fmt.Errorf("score producer %q expects %d weights, got %d", p.Name(), p.NumScoreComponents(), len(vals))
		}
		copy(w[ix.begin[p.Name()]:], vals)
	}
	return w, nil
}
