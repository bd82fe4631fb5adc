// Package options supplies translation candidates for a sentence: a phrase
// table loaded from YAML, the per-sentence collection of attachments over
// every source span, and the future-cost estimate derived from it.
package options

import (
	"fmt"
	"os"
	"sort"

	"derivo/internal/phrase"

	"gopkg.in/yaml.v3"
)

// Entry is one phrase pair of the table file.
type Entry struct {
	Source     string    `yaml:"source"`
	Target     string    `yaml:"target"`
	Scores     []float64 `yaml:"scores"`
	Reordering []float64 `yaml:"reordering,omitempty"`
}

// TableFile is the on-disk layout of a phrase table.
type TableFile struct {
	Name      string  `yaml:"name"`
	NumScores int     `yaml:"num_scores"`
	Entries   []Entry `yaml:"entries"`
}

// Table is an in-memory phrase table. It is also the score producer for its
// translation features, registered with the model under its name.
type Table struct {
	name      string
	numScores int
	bySource  map[string][]Entry
	maxSource int
}

// LoadTable reads a phrase table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML phrase table.
func ParseTable(data []byte) (*Table, error) {
	var f TableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse phrase table: %w", err)
	}
	return NewTable(f)
}

// NewTable indexes the entries of f by source phrase.
func NewTable(f TableFile) (*Table, error) {
	if f.Name == "" {
		f.Name = "tm"
	}
	if f.NumScores <= 0 {
		return nil, fmt.Errorf("phrase table %q: num_scores must be positive", f.Name)
	}

	t := &Table{
		name:      f.Name,
		numScores: f.NumScores,
		bySource:  make(map[string][]Entry),
	}
	for i, e := range f.Entries {
		src := phrase.ParsePhrase(e.Source)
		if src.Len() == 0 {
			return nil, fmt.Errorf("phrase table %q: entry %d has an empty source", f.Name, i)
		}
		if len(e.Scores) != f.NumScores {
			return nil, fmt.Errorf("phrase table %q: entry %d has %d scores, want %d", f.Name, i, len(e.Scores), f.NumScores)
		}
		if e.Reordering != nil && len(e.Reordering) != int(phrase.NumOrientations) {
			return nil, fmt.Errorf("phrase table %q: entry %d has %d reordering scores, want %d", f.Name, i, len(e.Reordering), phrase.NumOrientations)
		}
		key := src.String()
		t.bySource[key] = append(t.bySource[key], e)
		t.maxSource = max(t.maxSource, src.Len())
	}
	return t, nil
}

func (t *Table) Name() string            { return t.name }
func (t *Table) NumScoreComponents() int { return t.numScores }

// MaxSourceLength is the longest source phrase in the table.
func (t *Table) MaxSourceLength() int { return t.maxSource }

// Lookup returns the entries for a source phrase.
func (t *Table) Lookup(src phrase.Phrase) []Entry {
	return t.bySource[src.String()]
}

// Sources lists the distinct source phrases, sorted.
func (t *Table) Sources() []string {
	keys := make([]string, 0, len(t.bySource))
	for k := range t.bySource {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
