package train

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samcharles93/charrnn/internal/logger"
	"github.com/samcharles93/charrnn/internal/model"
)

const checkpointPrefix = "ckpt_"

// Checkpointer writes the weights after every epoch to Dir/ckpt_{epoch}.
type Checkpointer struct {
	Dir string
}

// CheckpointPath returns the checkpoint file for epoch inside dir.
func CheckpointPath(dir string, epoch int) string {
	return filepath.Join(dir, checkpointPrefix+strconv.Itoa(epoch))
}

func (c Checkpointer) OnEpochEnd(ctx context.Context, stats EpochStats, params *model.Params) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	path := CheckpointPath(c.Dir, stats.Epoch)
	meta := map[string]string{
		"epoch":    strconv.Itoa(stats.Epoch),
		"loss":     strconv.FormatFloat(stats.Loss, 'g', -1, 64),
		"saved_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := params.Save(path, meta); err != nil {
		return err
	}
	logger.FromContext(ctx).Debug("checkpoint saved", "path", path, "epoch", stats.Epoch)
	return nil
}

// LatestCheckpoint returns the checkpoint in dir with the highest epoch, or
// os.ErrNotExist when there is none.
func LatestCheckpoint(dir string) (string, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}
	best := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := CheckpointEpoch(e.Name()); ok {
			best = max(best, n)
		}
	}
	if best == 0 {
		return "", 0, fmt.Errorf("no checkpoint in %s: %w", dir, os.ErrNotExist)
	}
	return CheckpointPath(dir, best), best, nil
}

// CheckpointEpoch parses the epoch number from a checkpoint path.
func CheckpointEpoch(path string) (int, bool) {
	num, ok := strings.CutPrefix(filepath.Base(path), checkpointPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
