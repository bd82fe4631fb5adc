package main

import (
	"fmt"
	"strconv"
	"time"

	"derivo/internal/derivation"
	"derivo/internal/telemetry"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type hypothesis struct {
	translation string
	total       float64
	features    string
}

var decodeCmd = &cobra.Command{
	Use:   "decode [files...]",
	Short: "Decode every sentence and print the n-best derivations",
	Long:  "Decode reads one sentence per line from the given files or glob patterns (stdin when none) and runs the stack search on each.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sentences, err := readSentences(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}

		nbest := make([][]hypothesis, len(sentences))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for i, sentence := range sentences {
			g.Go(func() error {
				start := time.Now()
				log := logrus.WithField("sentence", i)
				a, _, res, err := eng.decode(gctx, sentence, log)
				if err != nil {
					return fmt.Errorf("sentence %d: %w", i, err)
				}
				for _, h := range res.NBest {
					n := a.Node(h)
					nbest[i] = append(nbest[i], hypothesis{
						translation: a.Translation(h).String(),
						total:       n.Total,
						features:    eng.model.Index.Format(n.Scores),
					})
				}
				if res.Best == derivation.Nil {
					log.Warn("no complete derivation")
				}
				telemetry.SentenceDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Sentence", "Rank", "Score", "Translation", "Features"})
		table.SetAutoWrapText(false)
		for i, hyps := range nbest {
			for rank, h := range hyps {
				table.Append([]string{
					strconv.Itoa(i),
					strconv.Itoa(rank + 1),
					strconv.FormatFloat(h.total, 'f', 4, 64),
					h.translation,
					h.features,
				})
			}
		}
		table.Render()
		return nil
	},
}
