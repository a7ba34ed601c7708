package history

import (
	"context"
	"errors"
	"go/build"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), DefaultFile))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	run, err := s.BeginRun(ctx, Run{
		Corpus:       "words.txt",
		Epochs:       2,
		SeqLength:    100,
		BatchSize:    64,
		EmbeddingDim: 256,
		RNNUnits:     1024,
		VocabSize:    66,
		LearningRate: 0.001,
	})
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.ID == "" || run.Status != StatusRunning {
		t.Fatalf("unexpected run %+v", run)
	}

	for i, loss := range []float64{2.5, 1.75} {
		e := Epoch{Epoch: i + 1, Loss: loss, Batches: 10, Duration: 1500 * time.Millisecond}
		if err := s.RecordEpoch(ctx, run.ID, e); err != nil {
			t.Fatalf("RecordEpoch: %v", err)
		}
	}
	if err := s.FinishRun(ctx, run.ID, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusCompleted || got.FinishedAt.IsZero() || got.VocabSize != 66 || got.Corpus != "words.txt" {
		t.Fatalf("unexpected stored run %+v", got)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Fatalf("started_at = %v, want %v", got.StartedAt, run.StartedAt)
	}

	epochs, err := s.Epochs(ctx, run.ID)
	if err != nil {
		t.Fatalf("Epochs: %v", err)
	}
	if len(epochs) != 2 {
		t.Fatalf("expected 2 epochs, got %d", len(epochs))
	}
	if epochs[0].Epoch != 1 || epochs[0].Loss != 2.5 || epochs[1].Loss != 1.75 {
		t.Fatalf("unexpected epochs %+v", epochs)
	}
	if epochs[0].Duration != 1500*time.Millisecond {
		t.Fatalf("duration = %v", epochs[0].Duration)
	}
}

func TestFinishRunFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	run, err := s.BeginRun(ctx, Run{Corpus: "c.txt", Epochs: 1})
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := s.FinishRun(ctx, run.ID, errors.New("loss is not finite")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusFailed || got.Error != "loss is not finite" {
		t.Fatalf("unexpected run %+v", got)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	var ids []string
	for range 3 {
		r, err := s.BeginRun(ctx, Run{Corpus: "c.txt", Epochs: 1})
		if err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		ids = append(ids, r.ID)
	}
	runs, err := s.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("runs not newest first: %s %s", runs[0].ID, runs[1].ID)
	}
}

func TestUnknownRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := s.FinishRun(ctx, "missing", nil); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	epochs, err := s.Epochs(ctx, "missing")
	if err != nil || len(epochs) != 0 {
		t.Fatalf("Epochs(missing) = %v, %v", epochs, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultFile)
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	run, err := s.BeginRun(ctx, Run{Corpus: "c.txt", Epochs: 1})
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.GetRun(ctx, run.ID); err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
}

// TestNoTrainerDependency keeps the store usable from serving commands
// without linking the training graph.
func TestNoTrainerDependency(t *testing.T) {
	t.Parallel()
	pkg, err := build.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("ImportDir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if strings.HasSuffix(imp, "/internal/train") || strings.HasPrefix(imp, "gorgonia.org/") {
			t.Fatalf("history imports %s", imp)
		}
	}
}
