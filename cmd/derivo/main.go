package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"derivo/internal/config"
	"derivo/internal/logging"
	"derivo/internal/telemetry"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// skipConfig marks commands that only need the database.
const skipConfig = "skip-config"

var (
	rootCmd = &cobra.Command{
		Use:           "derivo",
		Short:         "Phrase-based decoding and Gibbs sampling of translation derivations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	configPath  string
	dbPath      string
	metricsAddr string
	verbose     bool

	// cfg is loaded before every command that needs it.
	cfg *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "derivo.yaml", "Path to the model and sampler configuration")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the SQLite database for runs and samples (overrides storage.db)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(samplesCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func setup(cmd *cobra.Command) error {
	logOpts := logging.Options{Level: os.Getenv("DERIVO_LOG_LEVEL"), Verbose: verbose}
	if cmd.Annotations[skipConfig] == "" {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
		logOpts = logging.Options{Level: c.Log.Level, Verbose: verbose, JSON: c.Log.JSON, Dir: c.Log.Dir}
	}
	if err := logging.Init(logOpts); err != nil {
		return err
	}

	if metricsAddr != "" {
		go func() {
			if err := telemetry.Serve(cmd.Context(), metricsAddr); err != nil {
				logrus.WithError(err).Warn("metrics server stopped")
			}
		}()
	}
	return nil
}

// databasePath resolves the flag, then the config, then the environment.
func databasePath() string {
	if dbPath != "" {
		return dbPath
	}
	if cfg != nil {
		return cfg.Storage.DB
	}
	if db := os.Getenv("DERIVO_DB"); db != "" {
		return db
	}
	return config.Default().Storage.DB
}
