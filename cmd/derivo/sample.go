package main

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"derivo/internal/derivation"
	"derivo/internal/gibbs"
	"derivo/internal/sample"
	"derivo/internal/storage"
	"derivo/internal/telemetry"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type sampled struct {
	initial  string
	best     gibbs.TranslationFrequency
	distinct int
	total    int
	printed  bytes.Buffer
}

var sampleCmd = &cobra.Command{
	Use:   "sample [files...]",
	Short: "Decode every sentence, then Gibbs-sample its derivations",
	Long:  "Sample starts each sentence from the best derivation of the stack search, runs the configured operators and stores every sample under a new run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sentences, err := readSentences(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		ops, err := gibbs.OperatorsByName(cfg.Gibbs.Operators)
		if err != nil {
			return err
		}
		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}

		store, err := storage.NewSQLiteStore(databasePath())
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		settings, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		run, err := store.CreateRun(ctx, "sample", string(settings))
		if err != nil {
			return err
		}
		logrus.WithField("run", run.ID).Info("sampling started")

		results := make([]*sampled, len(sentences))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for i, sentence := range sentences {
			g.Go(func() error {
				start := time.Now()
				log := logrus.WithFields(logrus.Fields{"run": run.ID, "sentence": i})

				a, sup, res, err := eng.decode(gctx, sentence, log)
				if err != nil {
					return fmt.Errorf("sentence %d: %w", i, err)
				}
				if res.Best == derivation.Nil {
					return fmt.Errorf("sentence %d: no complete derivation to start from", i)
				}
				s := sample.New(a, res.Best)
				out := &sampled{initial: s.Translation()}

				counts := gibbs.NewMaxTransCollector()
				sink := gibbs.NewStoreCollector(gctx, store, run.ID, i)
				sink.CheckpointEvery = cfg.Gibbs.CheckpointEvery
				collectors := []gibbs.Collector{counts, sink}
				var printer *gibbs.PrintCollector
				if cfg.Gibbs.Print {
					printer = gibbs.NewPrintCollector(&out.printed)
					collectors = append(collectors, printer)
				}

				sm := gibbs.NewSampler(gibbs.Config{
					BurnIn:          cfg.Gibbs.BurnIn,
					Iterations:      cfg.Gibbs.Iterations,
					Temperature:     cfg.Gibbs.Temperature,
					DistortionLimit: cfg.DistortionLimit,
					Seed:            cfg.Gibbs.Seed + uint64(i),
				}, gibbs.NewDeltaScorer(eng.model), sup, ops, collectors, log)
				if err := sm.Run(gctx, s); err != nil {
					return fmt.Errorf("sentence %d: %w", i, err)
				}
				if err := sink.Flush(); err != nil {
					return err
				}
				if err := sink.Err(); err != nil {
					return err
				}
				if printer != nil {
					if err := printer.Err(); err != nil {
						return err
					}
				}

				out.best, _ = counts.Max()
				out.distinct = len(counts.Distribution())
				out.total = counts.Total()
				results[i] = out

				log.WithFields(logrus.Fields{
					"checkpoints": len(sink.Checkpoints()),
					"distinct":    out.distinct,
				}).Debug("sentence sampled")
				telemetry.SentenceDuration.WithLabelValues("sample").Observe(time.Since(start).Seconds())
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for i, r := range results {
			if r.printed.Len() > 0 {
				fmt.Fprintf(w, "# sentence %d\n", i)
				if _, err := io.Copy(w, &r.printed); err != nil {
					return err
				}
			}
		}

		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Sentence", "Initial", "Most Frequent", "Count", "Distinct", "Best Score"})
		table.SetAutoWrapText(false)
		for i, r := range results {
			table.Append([]string{
				strconv.Itoa(i),
				r.initial,
				r.best.Translation,
				fmt.Sprintf("%d/%d", r.best.Count, r.total),
				strconv.Itoa(r.distinct),
				strconv.FormatFloat(r.best.BestScore, 'f', 4, 64),
			})
		}
		table.Render()
		fmt.Fprintf(w, "run %s\n", run.ID)
		return nil
	},
}
