// Package telemetry exposes decoder and sampler counters to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "derivo"

var (
	// NodesCreated counts derivation nodes created by the stack search.
	NodesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "nodes_created_total",
		Help:      "Derivation nodes created during search",
	})

	// SearchOutcomes counts what happened to created nodes.
	// Labels: outcome (recombined, pruned, discarded, arcs_pruned)
	SearchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "node_outcomes_total",
		Help:      "Nodes recombined, pruned from stacks or discarded early, and arcs pruned",
	}, []string{"outcome"})

	// Moves counts sampler moves.
	// Labels: operator, result (changed, kept)
	Moves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gibbs",
		Name:      "moves_total",
		Help:      "Sampled moves per operator",
	}, []string{"operator", "result"})

	// Sweeps counts sampler iterations.
	// Labels: phase (burnin, sampling)
	Sweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gibbs",
		Name:      "sweeps_total",
		Help:      "Sampler iterations per phase",
	}, []string{"phase"})

	// SentenceDuration measures the time spent per sentence.
	// Labels: command (decode, sample)
	SentenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sentence_duration_seconds",
		Help:      "Wall time per sentence",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"command"})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
