package lm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// unknownLogProb is used when even the unigram is missing and the model has
// no <unk> entry.
const unknownLogProb = -100.0

type arpaEntry struct {
	prob    float64
	backoff float64
}

// ARPA is a read-only backoff n-gram model. Probabilities are stored as
// natural logs.
type ARPA struct {
	name    string
	order   int
	entries map[string]arpaEntry
	unk     float64
}

// LoadARPA reads an ARPA file from disk.
func LoadARPA(name, path string, maxOrder int) (*ARPA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open language model %s: %w", path, err)
	}
	defer f.Close()

	m, err := ReadARPA(name, f, maxOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to read language model %s: %w", path, err)
	}
	return m, nil
}

// ReadARPA parses ARPA text. maxOrder <= 0 keeps the order declared in the file.
func ReadARPA(name string, r io.Reader, maxOrder int) (*ARPA, error) {
	m := &ARPA{
		name:    name,
		entries: make(map[string]arpaEntry),
		unk:     unknownLogProb,
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	section := 0
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == `\data\`:
			section = 0
			continue
		case line == `\end\`:
			section = -1
			continue
		case strings.HasPrefix(line, "ngram "):
			n, err := parseCountLine(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if n > m.order {
				m.order = n
			}
			continue
		case strings.HasPrefix(line, `\`) && strings.HasSuffix(line, "-grams:"):
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(line, `\`), "-grams:"))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad section header %q", lineNo, line)
			}
			section = n
			continue
		}

		if section <= 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < section+1 {
			return nil, fmt.Errorf("line %d: expected %d words", lineNo, section)
		}
		prob, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad probability: %w", lineNo, err)
		}
		var backoff float64
		if len(fields) > section+1 {
			backoff, err = strconv.ParseFloat(fields[section+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad backoff: %w", lineNo, err)
			}
		}
		key := strings.Join(fields[1:section+1], " ")
		m.entries[key] = arpaEntry{prob: prob * math.Ln10, backoff: backoff * math.Ln10}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if m.order == 0 {
		return nil, fmt.Errorf("no n-gram counts found")
	}
	if maxOrder > 0 && maxOrder < m.order {
		m.order = maxOrder
	}
	if e, ok := m.entries["<unk>"]; ok {
		m.unk = e.prob
	}
	return m, nil
}

func parseCountLine(line string) (int, error) {
	counts := strings.TrimSpace(strings.TrimPrefix(line, "ngram "))
	parts := strings.SplitN(counts, "=", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad count line %q", line)
	}
	return strconv.Atoi(strings.TrimSpace(parts[0]))
}

func (m *ARPA) Name() string            { return m.name }
func (m *ARPA) NumScoreComponents() int { return 1 }
func (m *ARPA) Order() int              { return m.order }
func (m *ARPA) BOS() string             { return DefaultBOS }
func (m *ARPA) EOS() string             { return DefaultEOS }

// Score implements LanguageModel with standard backoff.
func (m *ARPA) Score(ngram []string) (float64, State) {
	lp, _ := m.logProb(ngram)
	return lp, m.state(ngram)
}

// NGramLength implements BackoffReporter.
func (m *ARPA) NGramLength(ngram []string) int {
	_, n := m.logProb(ngram)
	return n
}

func (m *ARPA) logProb(ngram []string) (float64, int) {
	if len(ngram) > m.order {
		ngram = ngram[len(ngram)-m.order:]
	}
	var total float64
	for start := 0; start < len(ngram); start++ {
		if e, ok := m.entries[strings.Join(ngram[start:], " ")]; ok {
			return total + e.prob, len(ngram) - start
		}
		if start < len(ngram)-1 {
			if ctx, ok := m.entries[strings.Join(ngram[start:len(ngram)-1], " ")]; ok {
				total += ctx.backoff
			}
		}
	}
	return total + m.unk, 0
}

// state hashes the longest known suffix of the last order-1 words.
func (m *ARPA) state(ngram []string) State {
	hist := ngram
	if limit := m.order - 1; len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	for start := 0; start < len(hist); start++ {
		key := strings.Join(hist[start:], " ")
		if _, ok := m.entries[key]; ok {
			return State(xxhash.Sum64String(key))
		}
	}
	return State(xxhash.Sum64String(""))
}
