package search

import (
	"sort"

	"derivo/internal/derivation"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
)

// stack holds the nodes covering the same number of source words. Nodes are
// keyed by recombination equivalence, so at most one node per equivalence
// class survives.
type stack struct {
	arena *derivation.Arena
	set   *treemap.Map
	best  float64
	empty bool
}

func newStack(a *derivation.Arena) *stack {
	cmp := utils.Comparator(func(x, y interface{}) int {
		return a.NGramCompare(x.(derivation.Handle), y.(derivation.Handle))
	})
	return &stack{arena: a, set: treemap.NewWith(cmp), empty: true}
}

// add inserts h, recombining it with an equivalent node if there is one. It
// reports whether h is kept as the class representative.
func (s *stack) add(h derivation.Handle) (kept, recombined bool) {
	total := s.arena.Node(h).Total
	if v, found := s.set.Get(h); found {
		other := v.(derivation.Handle)
		if s.arena.Node(other).Total >= total {
			s.arena.AddArc(other, h)
			return false, true
		}
		s.set.Remove(other)
		s.set.Put(h, h)
		s.arena.AddArc(h, other)
		s.track(total)
		return true, true
	}
	s.set.Put(h, h)
	s.track(total)
	return true, false
}

func (s *stack) track(total float64) {
	if s.empty || total > s.best {
		s.best = total
		s.empty = false
	}
}

func (s *stack) size() int { return s.set.Size() }

// sorted returns the nodes best first.
func (s *stack) sorted() []derivation.Handle {
	values := s.set.Values()
	hs := make([]derivation.Handle, len(values))
	for i, v := range values {
		hs[i] = v.(derivation.Handle)
	}
	sort.SliceStable(hs, func(i, j int) bool {
		return s.arena.Node(hs[i]).Total > s.arena.Node(hs[j]).Total
	})
	return hs
}

// prune keeps the limit best nodes and returns how many were dropped.
func (s *stack) prune(limit int) int {
	if limit <= 0 || s.size() <= limit {
		return 0
	}
	hs := s.sorted()
	for _, h := range hs[limit:] {
		s.set.Remove(h)
	}
	return len(hs) - limit
}
