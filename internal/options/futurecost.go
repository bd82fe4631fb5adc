package options

import (
	"math"

	"derivo/internal/phrase"
)

// FutureCostMatrix holds, for every source span, the best score any
// segmentation of that span into known options can reach in isolation.
type FutureCostMatrix struct {
	n    int
	cost []float64
}

// NewFutureCostMatrix fills the matrix for an n-word sentence. best returns
// the best single-option score for a span, or false when it has no options.
// Spans that cannot be segmented at all get -Inf.
func NewFutureCostMatrix(n int, best func(r phrase.Range) (float64, bool)) *FutureCostMatrix {
	f := &FutureCostMatrix{n: n, cost: make([]float64, n*n)}
	for length := 1; length <= n; length++ {
		for start := 0; start+length <= n; start++ {
			end := start + length - 1
			c := math.Inf(-1)
			if v, ok := best(phrase.NewRange(start, end)); ok {
				c = v
			}
			for mid := start; mid < end; mid++ {
				if split := f.at(start, mid) + f.at(mid+1, end); split > c {
					c = split
				}
			}
			f.cost[start*n+end] = c
		}
	}
	return f
}

func (f *FutureCostMatrix) at(start, end int) float64 {
	return f.cost[start*f.n+end]
}

// Cost returns the estimate for a single span.
func (f *FutureCostMatrix) Cost(r phrase.Range) float64 {
	if r.NumWords() == 0 {
		return 0
	}
	return f.at(r.Start, r.End)
}

// FutureScore sums the estimates of the maximal uncovered runs of c.
func (f *FutureCostMatrix) FutureScore(c *phrase.Coverage) float64 {
	var total float64
	for _, gap := range c.Gaps() {
		total += f.Cost(gap)
	}
	return total
}
