package main

import (
	"fmt"
	"strconv"

	"derivo/internal/sample"
	"derivo/internal/storage"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var topN int

var samplesCmd = &cobra.Command{
	Use:         "samples <run-id>",
	Short:       "List the most frequently sampled translations of a run",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewSQLiteStore(databasePath())
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		counts, err := store.TopTranslations(ctx, run.ID, topN)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "run %s (%s, %s)\n", run.ID, run.Command, run.CreatedAt.Format("2006-01-02 15:04:05"))
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Sentence", "Translation", "Count", "Best Score"})
		table.SetAutoWrapText(false)
		for _, c := range counts {
			table.Append([]string{
				strconv.Itoa(c.Sentence),
				c.Translation,
				strconv.Itoa(c.Count),
				strconv.FormatFloat(c.BestScore, 'f', 4, 64),
			})
		}
		table.Render()
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <digest>",
	Short: "Restore a stored sample and print its derivation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}
		store, err := storage.NewSQLiteStore(databasePath())
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		cp, snap, err := store.LoadCheckpoint(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		s, err := sample.Restore(eng.model, snap)
		if err != nil {
			return fmt.Errorf("failed to restore checkpoint: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "run %s sentence %d iteration %d (%d bytes)\n", cp.RunID, cp.Sentence, cp.Iteration, cp.Size)
		fmt.Fprintln(w, s.Translation())
		fmt.Fprintln(w, s.String())
		return nil
	},
}

func init() {
	samplesCmd.Flags().IntVarP(&topN, "top", "n", 3, "Translations listed per sentence (0 lists all)")
}
