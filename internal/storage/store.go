package storage

import (
	"context"
	"time"

	"derivo/internal/sample"
)

// Store combines run, sample and checkpoint persistence.
type Store interface {
	RunStore
	SampleStore
	CheckpointStore
	Close() error
}

// Run is one invocation of the decoder or sampler.
type Run struct {
	ID        string
	Command   string
	Settings  string
	CreatedAt time.Time
}

// SampleRecord is one collected sample of one sentence.
type SampleRecord struct {
	RunID       string
	Sentence    int
	Iteration   int
	Translation string
	Score       float64
	Features    []float64
}

// TranslationCount aggregates the samples of one sentence by translation.
type TranslationCount struct {
	Sentence    int
	Translation string
	Count       int
	BestScore   float64
}

// Checkpoint describes a stored sample snapshot.
type Checkpoint struct {
	Digest    string
	RunID     string
	Sentence  int
	Iteration int
	Size      int
	CreatedAt time.Time
}

// RunStore defines operations for run bookkeeping.
type RunStore interface {
	// CreateRun registers a new run and assigns it an id.
	CreateRun(ctx context.Context, command, settings string) (*Run, error)

	// GetRun retrieves a run by id.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]*Run, error)
}

// SampleStore defines operations for collected samples.
type SampleStore interface {
	// SaveSamples persists a batch of samples in one transaction.
	SaveSamples(ctx context.Context, recs []SampleRecord) error

	// TopTranslations returns, per sentence, the most frequently sampled
	// translations of a run, at most limit per sentence.
	TopTranslations(ctx context.Context, runID string, limit int) ([]TranslationCount, error)
}

// CheckpointStore defines operations for content-addressed sample snapshots.
type CheckpointStore interface {
	// SaveCheckpoint stores snap and returns its digest. Saving the same
	// snapshot twice stores it once.
	SaveCheckpoint(ctx context.Context, runID string, sentence, iteration int, snap *sample.Snapshot) (string, error)

	// LoadCheckpoint retrieves a snapshot by digest.
	LoadCheckpoint(ctx context.Context, digest string) (*Checkpoint, *sample.Snapshot, error)

	// ListCheckpoints returns the checkpoints of a run in save order.
	ListCheckpoints(ctx context.Context, runID string) ([]*Checkpoint, error)
}
