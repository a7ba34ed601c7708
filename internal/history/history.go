// Package history keeps a SQLite ledger of training runs and their per-epoch
// losses.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const DefaultFile = "charrnn-history.db"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrRunNotFound = errors.New("history: run not found")

// Run describes one invocation of the trainer.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	Status       string
	Corpus       string
	Epochs       int
	SeqLength    int
	BatchSize    int
	EmbeddingDim int
	RNNUnits     int
	VocabSize    int
	LearningRate float64
	Error        string
}

// Epoch is the record of one completed epoch of a run.
type Epoch struct {
	RunID    string
	Epoch    int
	Loss     float64
	Batches  int
	Duration time.Duration
	At       time.Time
}

type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs(
		id TEXT PRIMARY KEY,
		started_at REAL NOT NULL,
		finished_at REAL,
		status TEXT NOT NULL,
		corpus TEXT NOT NULL,
		epochs INTEGER NOT NULL,
		seq_length INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		embedding_dim INTEGER NOT NULL,
		rnn_units INTEGER NOT NULL,
		vocab_size INTEGER NOT NULL,
		learning_rate REAL NOT NULL,
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS epochs(
		run_id TEXT NOT NULL REFERENCES runs(id),
		epoch INTEGER NOT NULL,
		loss REAL NOT NULL,
		batches INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		ts REAL NOT NULL,
		PRIMARY KEY(run_id, epoch)
	)`,
}

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toTS(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}

func fromTS(ts float64) time.Time {
	return time.UnixMilli(int64(ts*1000 + 0.5)).UTC()
}

// BeginRun records a new run in the running state and returns it with a
// fresh id.
func (s *Store) BeginRun(ctx context.Context, r Run) (Run, error) {
	r.ID = uuid.NewString()
	r.StartedAt = time.Now().UTC().Truncate(time.Millisecond)
	r.Status = StatusRunning
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs(id, started_at, status, corpus, epochs, seq_length,
		batch_size, embedding_dim, rnn_units, vocab_size, learning_rate)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, toTS(r.StartedAt), r.Status, r.Corpus, r.Epochs, r.SeqLength,
		r.BatchSize, r.EmbeddingDim, r.RNNUnits, r.VocabSize, r.LearningRate)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return r, nil
}

// RecordEpoch stores e under runID. e.RunID and e.At are ignored; the
// record is timestamped now.
func (s *Store) RecordEpoch(ctx context.Context, runID string, e Epoch) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO epochs(run_id, epoch, loss, batches, duration_ms, ts)
		VALUES(?,?,?,?,?,?)`,
		runID, e.Epoch, e.Loss, e.Batches, e.Duration.Milliseconds(), toTS(time.Now()))
	if err != nil {
		return fmt.Errorf("record epoch %d: %w", e.Epoch, err)
	}
	return nil
}

// FinishRun marks runID completed, or failed when runErr is non-nil.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusCompleted, sql.NullString{}
	if runErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		toTS(time.Now()), status, msg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, corpus, epochs, seq_length,
	batch_size, embedding_dim, rnn_units, vocab_size, learning_rate, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r        Run
		started  float64
		finished sql.NullFloat64
		errMsg   sql.NullString
	)
	err := row.Scan(&r.ID, &started, &finished, &r.Status, &r.Corpus, &r.Epochs, &r.SeqLength,
		&r.BatchSize, &r.EmbeddingDim, &r.RNNUnits, &r.VocabSize, &r.LearningRate, &errMsg)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = fromTS(started)
	if finished.Valid {
		r.FinishedAt = fromTS(finished.Float64)
	}
	r.Error = errMsg.String
	return r, nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// Epochs returns the recorded epochs of runID in order.
func (s *Store) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT epoch, loss, batches, duration_ms, ts FROM epochs
		WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("list epochs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Epoch
	for rows.Next() {
		var (
			e  Epoch
			ms int64
			ts float64
		)
		if err := rows.Scan(&e.Epoch, &e.Loss, &e.Batches, &ms, &ts); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		e.RunID = runID
		e.Duration = time.Duration(ms) * time.Millisecond
		e.At = fromTS(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
