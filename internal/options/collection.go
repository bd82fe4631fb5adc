package options

import (
	"sort"

	"derivo/internal/derivation"
	"derivo/internal/lm"
	"derivo/internal/phrase"
)

// Supplier hands out the candidate attachments of one sentence.
type Supplier interface {
	derivation.FutureCostEstimator

	Sentence() phrase.Phrase
	// Options returns the attachments over exactly r, best estimate first.
	Options(r phrase.Range) []*phrase.Attachment
	MaxPhraseLength() int
}

// CollectOptions bounds the candidates gathered per span.
type CollectOptions struct {
	MaxPhraseLength int
	// TableLimit keeps only the best options of each span; 0 keeps all.
	TableLimit int
}

// Collection is the Supplier for one sentence built from a Table.
type Collection struct {
	sentence phrase.Phrase
	maxLen   int
	// spans[start][length-1]
	spans  [][][]*phrase.Attachment
	future *FutureCostMatrix
}

var _ Supplier = (*Collection)(nil)

// Collect gathers every option of sentence from t. Single words the table
// does not know are passed through untranslated with zero translation scores.
func Collect(m *derivation.Model, t *Table, sentence phrase.Phrase, opts CollectOptions) *Collection {
	maxLen := opts.MaxPhraseLength
	if maxLen <= 0 {
		maxLen = max(t.MaxSourceLength(), 1)
	}
	n := sentence.Len()
	c := &Collection{
		sentence: sentence,
		maxLen:   maxLen,
		spans:    make([][][]*phrase.Attachment, n),
	}

	for start := 0; start < n; start++ {
		c.spans[start] = make([][]*phrase.Attachment, min(maxLen, n-start))
		for length := 1; length <= maxLen && start+length <= n; length++ {
			r := phrase.NewRange(start, start+length-1)
			src := sentence.SubString(r)

			var atts []*phrase.Attachment
			for _, e := range t.Lookup(src) {
				atts = append(atts, newAttachment(m, t, r, src, phrase.ParsePhrase(e.Target), e.Scores, e.Reordering))
			}
			if len(atts) == 0 && length == 1 {
				atts = append(atts, newAttachment(m, t, r, src, src, nil, nil))
			}

			sort.SliceStable(atts, func(i, j int) bool {
				return atts[i].FutureScore > atts[j].FutureScore
			})
			if opts.TableLimit > 0 && len(atts) > opts.TableLimit {
				atts = atts[:opts.TableLimit]
			}
			c.spans[start][length-1] = atts
		}
	}

	c.future = NewFutureCostMatrix(n, func(r phrase.Range) (float64, bool) {
		atts := c.Options(r)
		if len(atts) == 0 {
			return 0, false
		}
		return atts[0].FutureScore, true
	})
	return c
}

func newAttachment(m *derivation.Model, t *Table, r phrase.Range, src, tgt phrase.Phrase, scores, reordering []float64) *phrase.Attachment {
	b := m.Index.NewBreakdown()
	if scores != nil {
		b.AddAll(m.Index, t, scores)
	}
	att := &phrase.Attachment{
		Source:       r,
		SourcePhrase: src,
		Target:       tgt,
		Scores:       b,
		Reordering:   reordering,
	}
	att.FutureScore = Estimate(m, att)
	return att
}

// Estimate is the context-free score of an attachment: its translation
// features, its word penalty and the language models scoring its words with
// only the history the phrase itself provides, all weighted.
func Estimate(m *derivation.Model, att *phrase.Attachment) float64 {
	total := att.Scores.InnerProduct(m.Weights)
	total += m.Weights[m.Index.Begin(m.WordPenalty)] * -float64(att.Target.Len())
	for _, model := range m.LMs {
		total += m.Weights[m.Index.Begin(model)] * IsolatedLMScore(model, att.Target)
	}
	return total
}

// IsolatedLMScore scores words without any preceding context.
func IsolatedLMScore(model lm.LanguageModel, words phrase.Phrase) float64 {
	order := model.Order()
	var total float64
	for j := range words {
		lp, _ := model.Score(words[max(0, j-order+1) : j+1])
		total += lp
	}
	return total
}

func (c *Collection) Sentence() phrase.Phrase { return c.sentence }
func (c *Collection) MaxPhraseLength() int    { return c.maxLen }

// Options returns the attachments over exactly r.
func (c *Collection) Options(r phrase.Range) []*phrase.Attachment {
	length := r.NumWords()
	if length == 0 || r.Start < 0 || r.Start >= len(c.spans) || length > len(c.spans[r.Start]) {
		return nil
	}
	return c.spans[r.Start][length-1]
}

// FutureScore implements derivation.FutureCostEstimator.
func (c *Collection) FutureScore(cov *phrase.Coverage) float64 {
	return c.future.FutureScore(cov)
}

// FutureCost exposes the span matrix.
func (c *Collection) FutureCost() *FutureCostMatrix { return c.future }
