package sample_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"derivo/internal/derivation"
	"derivo/internal/derivation/derivationtest"
	"derivo/internal/phrase"
	"derivo/internal/sample"
	"derivo/internal/score"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spans(s *sample.Sample, hs []derivation.Handle) []phrase.Range {
	out := make([]phrase.Range, len(hs))
	for i, h := range hs {
		out[i] = s.Arena().Node(h).Source
	}
	return out
}

func targets(s *sample.Sample) []phrase.Range {
	var out []phrase.Range
	for _, h := range s.TargetOrder() {
		out = append(out, s.Arena().Node(h).Target)
	}
	return out
}

func fromChain(t *testing.T, n int, atts func(m *derivation.Model) []*phrase.Attachment) (*derivation.Model, *sample.Sample) {
	t.Helper()
	m := derivationtest.NewModel(t, derivationtest.Options{})
	a := derivation.NewArena(m, n)
	hs := derivationtest.Chain(a, atts(m)...)
	s := sample.New(a, hs[len(hs)-1])
	require.NoError(t, s.Check())
	return m, s
}

func delta(m *derivation.Model, tm float64) score.Breakdown {
	d := m.Index.NewBreakdown()
	d.Add(m.Index, derivationtest.Translation{}, tm)
	return d
}

func TestNew_BuildsBothOrders(t *testing.T) {
	_, s := fromChain(t, 4, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 2, 3, "is small", -1),
			derivationtest.Att(m, 0, 0, "the", -1),
			derivationtest.Att(m, 1, 1, "house", -1),
		}
	})

	assert.Equal(t, []string{"is", "small", "the", "house"}, s.LinearizeTargetWords())
	assert.Equal(t, "is small the house", s.Translation())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t,
		[]phrase.Range{phrase.NewRange(2, 3), phrase.NewRange(0, 0), phrase.NewRange(1, 1)},
		spans(s, s.TargetOrder()))
	assert.Equal(t,
		[]phrase.Range{phrase.NewRange(0, 0), phrase.NewRange(1, 1), phrase.NewRange(2, 3)},
		spans(s, s.SourceOrder()))
	assert.Equal(t,
		[]phrase.Range{phrase.NewRange(1, 2), phrase.NewRange(3, 3), phrase.NewRange(4, 4)},
		targets(s))

	assert.Equal(t, s.Root(), s.NodeAtSourceIndex(-1))
	assert.Equal(t, sample.Nil, s.NodeAtSourceIndex(4))
	assert.Equal(t, sample.Nil, s.NodeAtSourceIndex(-2))
	assert.Equal(t, s.NodeAtSourceIndex(2), s.NodeAtSourceIndex(3))
	assert.Equal(t, s.SourceLast(), s.NodeAtSourceIndex(3))
	assert.Equal(t, s.TargetLast(), s.NodeAtSourceIndex(1))

	assert.InDelta(t, -3.0, s.Features().Get(s.Arena().Model().Index, derivationtest.Translation{})[0], 1e-9)
}

func TestNew_IncompleteChainPanics(t *testing.T) {
	m := derivationtest.NewModel(t, derivationtest.Options{})
	a := derivation.NewArena(m, 3)
	hs := derivationtest.Chain(a, derivationtest.Att(m, 0, 1, "the house", 0))

	assert.Panics(t, func() { sample.New(a, hs[1]) })
}

func TestWords_StopsEarly(t *testing.T) {
	_, s := fromChain(t, 2, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 0, 0, "the", 0),
			derivationtest.Att(m, 1, 1, "house is", 0),
		}
	})

	var got []string
	for w := range s.Words() {
		got = append(got, w)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"the", "house"}, got)
}

func TestFlipNodes_TwoWords(t *testing.T) {
	m, s := fromChain(t, 2, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 0, 0, "the", 0),
			derivationtest.Att(m, 1, 1, "house", 0),
		}
	})
	before := s.Features().Clone()

	s.FlipNodes(
		derivationtest.Att(m, 1, 1, "house", 0),
		derivationtest.Att(m, 0, 0, "the", 0),
		s.Root(), sample.Nil, delta(m, -0.5))

	require.NoError(t, s.Check())
	assert.Equal(t, []string{"house", "the"}, s.LinearizeTargetWords())
	assert.Equal(t, []phrase.Range{phrase.NewRange(1, 1), phrase.NewRange(0, 0)}, spans(s, s.TargetOrder()))
	assert.Equal(t, []phrase.Range{phrase.NewRange(0, 0), phrase.NewRange(1, 1)}, spans(s, s.SourceOrder()))
	assert.Equal(t, []phrase.Range{phrase.NewRange(1, 1), phrase.NewRange(2, 2)}, targets(s))

	ix := m.Index
	assert.InDelta(t, before.Get(ix, derivationtest.Translation{})[0]-0.5,
		s.Features().Get(ix, derivationtest.Translation{})[0], 1e-9)
}

func TestFlipNodes_RejectsWrongNeighbours(t *testing.T) {
	m, s := fromChain(t, 3, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 0, 0, "the", 0),
			derivationtest.Att(m, 1, 1, "house", 0),
			derivationtest.Att(m, 2, 2, "small", 0),
		}
	})
	assert.Panics(t, func() {
		s.FlipNodes(
			derivationtest.Att(m, 1, 1, "house", 0),
			derivationtest.Att(m, 0, 0, "the", 0),
			s.Root(), sample.Nil, delta(m, 0))
	})
}

func TestMergeTarget_ShrinksAndShifts(t *testing.T) {
	m, s := fromChain(t, 3, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 0, 0, "the", -1),
			derivationtest.Att(m, 1, 1, "house", -1),
			derivationtest.Att(m, 2, 2, "small", -1),
		}
	})
	require.Equal(t, 3, s.Len())

	s.MergeTarget(derivationtest.Att(m, 0, 1, "the big house", -1.5), delta(m, 0.5))

	require.NoError(t, s.Check())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, "the big house small", s.Translation())
	// one extra word moves the trailing node by newLen-2
	assert.Equal(t, []phrase.Range{phrase.NewRange(1, 3), phrase.NewRange(4, 4)}, targets(s))
	assert.Equal(t, s.NodeAtSourceIndex(0), s.NodeAtSourceIndex(1))
	assert.InDelta(t, -2.5, s.Features().Get(m.Index, derivationtest.Translation{})[0], 1e-9)
}

func TestMergeTarget_InvertedTargetOrder(t *testing.T) {
	m, s := fromChain(t, 3, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 2, 2, "small", 0),
			derivationtest.Att(m, 1, 1, "house", 0),
			derivationtest.Att(m, 0, 0, "the", 0),
		}
	})

	s.MergeTarget(derivationtest.Att(m, 0, 1, "home", 0), delta(m, 0))

	require.NoError(t, s.Check())
	assert.Equal(t, "small home", s.Translation())
	assert.Equal(t, s.TargetLast(), s.NodeAtSourceIndex(0))
	assert.Equal(t, s.SourceLast(), s.NodeAtSourceIndex(2))
}

func TestMergeTarget_RequiresAdjacency(t *testing.T) {
	m, s := fromChain(t, 3, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 0, 0, "the", 0),
			derivationtest.Att(m, 2, 2, "small", 0),
			derivationtest.Att(m, 1, 1, "house", 0),
		}
	})
	// source-adjacent but separated in target order
	assert.Panics(t, func() {
		s.MergeTarget(derivationtest.Att(m, 0, 1, "the house", 0), delta(m, 0))
	})
	// a single node
	assert.Panics(t, func() {
		s.MergeTarget(derivationtest.Att(m, 2, 2, "small", 0), delta(m, 0))
	})
}

func TestSplitTarget(t *testing.T) {
	m, s := fromChain(t, 3, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 2, 2, "small", 0),
			derivationtest.Att(m, 0, 1, "the house", 0),
		}
	})

	s.SplitTarget(
		derivationtest.Att(m, 0, 0, "the", 0),
		derivationtest.Att(m, 1, 1, "big house", 0),
		delta(m, 1))

	require.NoError(t, s.Check())
	assert.Equal(t, "small the big house", s.Translation())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, s.TargetLast(), s.NodeAtSourceIndex(1))
	assert.Equal(t, s.SourceLast(), s.NodeAtSourceIndex(2))

	assert.Panics(t, func() {
		s.SplitTarget(
			derivationtest.Att(m, 1, 1, "big", 0),
			derivationtest.Att(m, 0, 0, "the", 0),
			delta(m, 0))
	}, "the left part must precede the right part in the source")
}

func TestChangeTarget(t *testing.T) {
	m, s := fromChain(t, 3, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 0, 0, "the", 0),
			derivationtest.Att(m, 1, 1, "house", 0),
			derivationtest.Att(m, 2, 2, "small", 0),
		}
	})
	old := s.NodeAtSourceIndex(1)

	s.ChangeTarget(derivationtest.Att(m, 1, 1, "big house", 0), delta(m, 0))

	require.NoError(t, s.Check())
	assert.NotEqual(t, old, s.NodeAtSourceIndex(1))
	assert.Equal(t, "the big house small", s.Translation())
	assert.Equal(t, phrase.NewRange(4, 4), s.Arena().Node(s.TargetLast()).Target)

	s.ChangeTarget(derivationtest.Att(m, 2, 2, "", 0), delta(m, 0))
	require.NoError(t, s.Check())
	assert.Equal(t, "the big house", s.Translation())

	assert.Panics(t, func() {
		s.ChangeTarget(derivationtest.Att(m, 0, 1, "the house", 0), delta(m, 0))
	}, "the span must match an existing node")
}

// words emits n copies of prefix+i.
func words(prefix string, i, n int) string {
	ws := make([]string, n)
	for j := range ws {
		ws[j] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(ws, " ")
}

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for at := 0; at <= len(p); at++ {
			q := make([]int, 0, n)
			q = append(q, p[:at]...)
			q = append(q, n-1)
			q = append(q, p[at:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestFlipNodes_EveryPairOfEveryOrder(t *testing.T) {
	for _, n := range []int{3, 4} {
		for _, order := range permutations(n) {
			m, base := fromChain(t, n, func(m *derivation.Model) []*phrase.Attachment {
				var atts []*phrase.Attachment
				for _, pos := range order {
					atts = append(atts, derivationtest.Att(m, pos, pos, words("w", pos, 1+pos%2), 0))
				}
				return atts
			})

			for x := 0; x < n; x++ {
				for y := x + 1; y < n; y++ {
					name := fmt.Sprintf("%v/%d-%d", order, x, y)
					s := base.Clone()
					tgt := s.TargetOrder()
					oldLeft, oldRight := tgt[x], tgt[y]
					lp := s.Arena().Node(oldRight).Source.Start
					rp := s.Arena().Node(oldLeft).Source.Start

					// replacements change length so the renumbering is exercised
					leftAtt := derivationtest.Att(m, lp, lp, words("n", lp, 2-lp%2), 0)
					rightAtt := derivationtest.Att(m, rp, rp, words("n", rp, 2-rp%2), 0)
					s.FlipNodes(leftAtt, rightAtt,
						s.Arena().Node(oldLeft).Prev, s.Arena().Node(oldRight).Next, delta(m, 0))

					require.NoError(t, s.Check(), name)

					var expected []string
					for i, pos := range order {
						switch i {
						case x:
							expected = append(expected, strings.Fields(words("n", lp, 2-lp%2))...)
						case y:
							expected = append(expected, strings.Fields(words("n", rp, 2-rp%2))...)
						default:
							expected = append(expected, strings.Fields(words("w", pos, 1+pos%2))...)
						}
					}
					assert.Equal(t, expected, s.LinearizeTargetWords(), name)
					assert.Equal(t, n, s.Len(), name)

					// the base sample is untouched
					require.NoError(t, base.Check(), name)
					assert.Len(t, base.TargetOrder(), n, name)
				}
			}
		}
	}
}

func TestClone_IsIndependent(t *testing.T) {
	m, s := fromChain(t, 2, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 0, 0, "the", 0),
			derivationtest.Att(m, 1, 1, "house", 0),
		}
	})
	c := s.Clone()
	c.ChangeTarget(derivationtest.Att(m, 0, 0, "a", 0), delta(m, 2))

	assert.Equal(t, "the house", s.Translation())
	assert.Equal(t, "a house", c.Translation())
	assert.NotEqual(t, s.Features(), c.Features())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	m, s := fromChain(t, 3, func(m *derivation.Model) []*phrase.Attachment {
		return []*phrase.Attachment{
			derivationtest.Att(m, 1, 2, "house is", -1),
			derivationtest.Att(m, 0, 0, "the", -2),
		}
	})
	s.FlipNodes(
		derivationtest.Att(m, 0, 0, "the", -2),
		derivationtest.Att(m, 1, 2, "house is", -1),
		s.Root(), sample.Nil, delta(m, 0))

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var snap sample.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	r, err := sample.Restore(m, &snap)
	require.NoError(t, err)

	require.NoError(t, r.Check())
	assert.Equal(t, s.Translation(), r.Translation())
	assert.InDeltaSlice(t, s.Features(), r.Features(), 1e-12)
	assert.Equal(t, spans(s, s.SourceOrder()), spans(r, r.SourceOrder()))
}

func TestRestore_Rejects(t *testing.T) {
	m := derivationtest.NewModel(t, derivationtest.Options{})
	features := make([]float64, m.Index.Size())

	_, err := sample.Restore(m, &sample.Snapshot{
		SourceLen: 2,
		Features:  features,
		Attachments: []*phrase.Attachment{
			derivationtest.Att(m, 0, 1, "the house", 0),
			derivationtest.Att(m, 1, 1, "house", 0),
		},
	})
	assert.ErrorContains(t, err, "covered twice")

	_, err = sample.Restore(m, &sample.Snapshot{
		SourceLen:   2,
		Features:    features,
		Attachments: []*phrase.Attachment{derivationtest.Att(m, 0, 0, "the", 0)},
	})
	assert.ErrorContains(t, err, "untranslated")

	_, err = sample.Restore(m, &sample.Snapshot{SourceLen: 0, Features: []float64{1}})
	assert.ErrorContains(t, err, "feature values")
}
