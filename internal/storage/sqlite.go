package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"derivo/internal/sample"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Sentence workers share the store; one connection serialises their writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			command TEXT,
			settings TEXT,
			created_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS samples (
			run_id TEXT,
			sentence INTEGER,
			iteration INTEGER,
			translation TEXT,
			score REAL,
			features JSON,
			PRIMARY KEY (run_id, sentence, iteration)
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			digest TEXT PRIMARY KEY,
			run_id TEXT,
			sentence INTEGER,
			iteration INTEGER,
			size INTEGER,
			blob BLOB,
			created_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_samples_translation ON samples(run_id, sentence, translation);`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- RunStore Implementation ---

func (s *SQLiteStore) CreateRun(ctx context.Context, command, settings string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Command:   command,
		Settings:  settings,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, settings, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Command, run.Settings, run.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, command, settings, created_at FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, command, settings, created_at FROM runs ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var created int64
	if err := row.Scan(&run.ID, &run.Command, &run.Settings, &created); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(created, 0).UTC()
	return &run, nil
}

// --- SampleStore Implementation ---

func (s *SQLiteStore) SaveSamples(ctx context.Context, recs []SampleRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, sentence, iteration, translation, score, features)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, sentence, iteration) DO UPDATE SET
			translation=excluded.translation,
			score=excluded.score,
			features=excluded.features
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		features, err := json.Marshal(rec.Features)
		if err != nil {
			return fmt.Errorf("failed to marshal features: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.RunID, rec.Sentence, rec.Iteration, rec.Translation, rec.Score, features); err != nil {
			return fmt.Errorf("failed to save sample: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) TopTranslations(ctx context.Context, runID string, limit int) ([]TranslationCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sentence, translation, COUNT(*) AS n, MAX(score)
		FROM samples
		WHERE run_id = ?
		GROUP BY sentence, translation
		ORDER BY sentence, n DESC, MAX(score) DESC, translation
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []TranslationCount
	perSentence := make(map[int]int)
	for rows.Next() {
		var tc TranslationCount
		if err := rows.Scan(&tc.Sentence, &tc.Translation, &tc.Count, &tc.BestScore); err != nil {
			return nil, fmt.Errorf("failed to scan sample count: %w", err)
		}
		if limit > 0 && perSentence[tc.Sentence] >= limit {
			continue
		}
		perSentence[tc.Sentence]++
		out = append(out, tc)
	}
	return out, rows.Err()
}

// --- CheckpointStore Implementation ---

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, runID string, sentence, iteration int, snap *sample.Snapshot) (string, error) {
	blob, digest, err := EncodeSnapshot(snap)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (digest, run_id, sentence, iteration, size, blob, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`, digest, runID, sentence, iteration, len(blob), blob, time.Now().UTC().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return digest, nil
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, digest string) (*Checkpoint, *sample.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT digest, run_id, sentence, iteration, size, created_at, blob FROM checkpoints WHERE digest = ?", digest)

	var blob []byte
	cp, err := scanCheckpoint(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("checkpoint %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	snap, err := DecodeSnapshot(blob, cp.Digest)
	if err != nil {
		return nil, nil, err
	}
	return cp, snap, nil
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, runID string) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT digest, run_id, sentence, iteration, size, created_at FROM checkpoints WHERE run_id = ? ORDER BY rowid", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func scanCheckpoint(row scanner, blob *[]byte) (*Checkpoint, error) {
	var cp Checkpoint
	var created int64
	dest := []any{&cp.Digest, &cp.RunID, &cp.Sentence, &cp.Iteration, &cp.Size, &created}
	if blob != nil {
		dest = append(dest, blob)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	cp.CreatedAt = time.Unix(created, 0).UTC()
	return &cp, nil
}
