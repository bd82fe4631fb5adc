package phrase

import (
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Coverage records which source positions a (partial) derivation has translated.
type Coverage struct {
	size int
	bits *bitset.BitSet
}

// NewCoverage creates an empty record for a sentence of n words.
func NewCoverage(n int) *Coverage {
	return &Coverage{size: n, bits: bitset.New(uint(n))}
}

// Clone returns an independent copy.
func (c *Coverage) Clone() *Coverage {
	return &Coverage{size: c.size, bits: c.bits.Clone()}
}

// Size is the sentence length.
func (c *Coverage) Size() int { return c.size }

// Covered reports whether position i is translated.
func (c *Coverage) Covered(i int) bool {
	if i < 0 || i >= c.size {
		return false
	}
	return c.bits.Test(uint(i))
}

// Set marks every position in r covered.
func (c *Coverage) Set(r Range) {
	for i := r.Start; i <= r.End; i++ {
		c.bits.Set(uint(i))
	}
}

// Clear marks every position in r uncovered.
func (c *Coverage) Clear(r Range) {
	for i := r.Start; i <= r.End; i++ {
		c.bits.Clear(uint(i))
	}
}

// Overlaps reports whether any position of r is already covered.
func (c *Coverage) Overlaps(r Range) bool {
	if !r.IsSet() {
		return false
	}
	for i := r.Start; i <= r.End; i++ {
		if c.bits.Test(uint(i)) {
			return true
		}
	}
	return false
}

// NumCovered counts the covered positions.
func (c *Coverage) NumCovered() int {
	return int(c.bits.Count())
}

// IsComplete reports whether every position is covered.
func (c *Coverage) IsComplete() bool {
	return c.NumCovered() == c.size
}

// FirstGap returns the first uncovered position, or NotFound.
func (c *Coverage) FirstGap() int {
	i, ok := c.bits.NextClear(0)
	if !ok || int(i) >= c.size {
		return NotFound
	}
	return int(i)
}

// Gaps returns the maximal runs of uncovered positions in order.
func (c *Coverage) Gaps() []Range {
	var gaps []Range
	start := NotFound
	for i := 0; i < c.size; i++ {
		if !c.bits.Test(uint(i)) {
			if start == NotFound {
				start = i
			}
			continue
		}
		if start != NotFound {
			gaps = append(gaps, NewRange(start, i-1))
			start = NotFound
		}
	}
	if start != NotFound {
		gaps = append(gaps, NewRange(start, c.size-1))
	}
	return gaps
}

// Compare orders coverage records by content: -1, 0 or +1.
func (c *Coverage) Compare(o *Coverage) int {
	if c.size != o.size {
		if c.size < o.size {
			return -1
		}
		return 1
	}
	for i := 0; i < c.size; i++ {
		a, b := c.bits.Test(uint(i)), o.bits.Test(uint(i))
		if a == b {
			continue
		}
		if !a {
			return -1
		}
		return 1
	}
	return 0
}

func (c *Coverage) String() string {
	var sb strings.Builder
	for i := 0; i < c.size; i++ {
		if c.bits.Test(uint(i)) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
