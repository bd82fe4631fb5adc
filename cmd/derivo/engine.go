package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"derivo/internal/config"
	"derivo/internal/derivation"
	"derivo/internal/lm"
	"derivo/internal/options"
	"derivo/internal/phrase"
	"derivo/internal/reorder"
	"derivo/internal/score"
	"derivo/internal/search"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
)

// engine holds what every sentence worker shares read-only.
type engine struct {
	cfg   *config.Config
	model *derivation.Model
	table *options.Table
}

func newEngine(cfg *config.Config) (*engine, error) {
	table, err := options.LoadTable(cfg.PhraseTable)
	if err != nil {
		return nil, err
	}

	var lms []lm.LanguageModel
	for _, l := range cfg.LM {
		start := time.Now()
		model, err := lm.LoadARPA(l.Name, l.Path, l.Order)
		if err != nil {
			return nil, fmt.Errorf("failed to load language model %s: %w", l.Name, err)
		}
		logrus.WithFields(logrus.Fields{
			"lm":      l.Name,
			"order":   model.Order(),
			"elapsed": time.Since(start),
		}).Debug("language model loaded")
		lms = append(lms, model)
	}

	var reordering []derivation.ReorderingModel
	if cfg.Reordering != "" {
		reordering = append(reordering, reorder.NewMSD(cfg.Reordering))
	}

	model, err := derivation.NewModel(derivation.ModelOptions{
		LMs:                   lms,
		Reordering:            reordering,
		Extra:                 []score.Producer{table},
		Weights:               cfg.Weights,
		SourceStartPosMatters: cfg.SourceStartPosMatters,
		ComputeLMStats:        cfg.LMStats,
		ArcMultiplier:         cfg.NBest.ArcMultiplier,
	})
	if err != nil {
		return nil, err
	}
	return &engine{cfg: cfg, model: model, table: table}, nil
}

func (e *engine) collect(sentence phrase.Phrase) *options.Collection {
	return options.Collect(e.model, e.table, sentence, options.CollectOptions{
		MaxPhraseLength: e.cfg.MaxPhraseLength,
		TableLimit:      e.cfg.TableLimit,
	})
}

// decode runs the stack search over one sentence in a fresh arena.
func (e *engine) decode(ctx context.Context, sentence phrase.Phrase, log *logrus.Entry) (*derivation.Arena, *options.Collection, *search.Result, error) {
	sup := e.collect(sentence)
	a := derivation.NewArena(e.model, sentence.Len())
	dec := search.New(search.Config{
		StackSize:       e.cfg.Search.StackSize,
		NBest:           e.cfg.NBest.Size,
		DistortionLimit: e.cfg.DistortionLimit,
		EarlyDiscard:    e.cfg.Search.EarlyDiscard,
		NeedAllArcs:     e.cfg.NBest.NeedAllArcs,
	}, log)
	res, err := dec.Decode(ctx, a, sup)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, sup, res, nil
}

// readSentences reads one sentence per non-blank line from every file the
// patterns match, in order, or from stdin when there are no patterns.
func readSentences(patterns []string, stdin io.Reader) ([]phrase.Phrase, error) {
	if len(patterns) == 0 {
		return scanSentences(stdin, nil)
	}

	var out []phrase.Phrase
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad input pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no input matches %q", pattern)
		}
		for _, path := range matches {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			out, err = scanSentences(f, out)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		}
	}
	return out, nil
}

func scanSentences(r io.Reader, out []phrase.Phrase) ([]phrase.Phrase, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if p := phrase.ParsePhrase(sc.Text()); p.Len() > 0 {
			out = append(out, p)
		}
	}
	return out, sc.Err()
}
