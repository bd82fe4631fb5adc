package derivation

import "fmt"

// NGramCompare orders nodes for recombination. A zero result means the two
// nodes are search-equivalent: they agree on every LM state, on coverage, on
// the end of the last translated span and, when the model asks for it, on
// its start.
func (a *Arena) NGramCompare(x, y Handle) int {
	nx, ny := a.Node(x), a.Node(y)

	for i := range nx.LMStates {
		if nx.LMStates[i] < ny.LMStates[i] {
			return -1
		}
		if nx.LMStates[i] > ny.LMStates[i] {
			return 1
		}
	}

	if c := nx.Coverage.Compare(ny.Coverage); c != 0 {
		return c
	}

	if nx.Source.End < ny.Source.End {
		return -1
	}
	if nx.Source.End > ny.Source.End {
		return 1
	}

	if !a.model.SourceStartPosMatters {
		return 0
	}
	if nx.Source.Start < ny.Source.Start {
		return -1
	}
	if nx.Source.Start > ny.Source.Start {
		return 1
	}
	return 0
}

// AddArc records loser as a dominated alternative of winner. Any arcs the
// loser already owned move to the winner and the loser's list is cleared.
func (a *Arena) AddArc(winner, loser Handle) {
	if winner == loser {
		panic("derivation: node recombined into itself")
	}
	w, l := a.Node(winner), a.Node(loser)
	if l.recombined {
		panic(fmt.Sprintf("derivation: node %d is already a dominated alternative", l.ID))
	}

	if l.Arcs != nil {
		if w.Arcs == nil {
			w.Arcs = l.Arcs
		} else {
			w.Arcs = append(w.Arcs, l.Arcs...)
		}
		l.Arcs = nil
	}
	w.Arcs = append(w.Arcs, loser)
	l.recombined = true
}

// CleanupArcList bounds the arc list of h and points every survivor at h.
// Unless needAllArcs is set, a list longer than ArcMultiplier*maxKept is cut
// down to that many entries, the best by total score, using a partial
// selection. It returns the number of arcs discarded.
func (a *Arena) CleanupArcList(h Handle, maxKept int, needAllArcs bool) int {
	n := a.Node(h)
	n.Winner = h
	if len(n.Arcs) == 0 {
		return 0
	}

	pruned := 0
	limit := a.model.ArcMultiplier * maxKept
	if limit < 0 {
		limit = 0
	}
	if !needAllArcs && len(n.Arcs) > limit {
		a.selectBest(n.Arcs, limit)
		pruned = len(n.Arcs) - limit
		n.Arcs = n.Arcs[:limit:limit]
	}

	for _, arc := range n.Arcs {
		a.nodes[arc].Winner = h
	}
	return pruned
}

// better is the arc ranking: higher total first, lower id on ties.
func (a *Arena) better(x, y Handle) bool {
	nx, ny := &a.nodes[x], &a.nodes[y]
	if nx.Total != ny.Total {
		return nx.Total > ny.Total
	}
	return nx.ID < ny.ID
}

// selectBest reorders hs so that its first k entries are the k best, in no
// particular order (quickselect).
func (a *Arena) selectBest(hs []Handle, k int) {
	lo, hi := 0, len(hs)-1
	for k > 0 && k < len(hs) && lo < hi {
		p := a.partition(hs, lo, hi)
		switch {
		case p == k-1 || p == k:
			return
		case p < k:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition places the pivot (middle element) at its final rank within
// hs[lo..hi] and returns that index.
func (a *Arena) partition(hs []Handle, lo, hi int) int {
	mid := lo + (hi-lo)/2
	hs[mid], hs[hi] = hs[hi], hs[mid]
	pivot := hs[hi]
	store := lo
	for i := lo; i < hi; i++ {
		if a.better(hs[i], pivot) {
			hs[i], hs[store] = hs[store], hs[i]
			store++
		}
	}
	hs[store], hs[hi] = hs[hi], hs[store]
	return store
}
