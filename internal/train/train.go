// Package train fits model parameters to a character corpus with backpropagation
// through time and the Adam optimiser.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/samcharles93/charrnn/internal/dataset"
	"github.com/samcharles93/charrnn/internal/logger"
	"github.com/samcharles93/charrnn/internal/model"
)

const DefaultLearningRate = 0.001

var ErrNonFiniteLoss = errors.New("train: loss is not finite")

// Config controls a training run.
type Config struct {
	Epochs       int
	LearningRate float64
	Seed         int64
	// StartEpoch is the number of epochs already completed, used when
	// resuming from a checkpoint so epoch numbering continues.
	StartEpoch int
}

func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.LearningRate <= 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0):
		return fmt.Errorf("learning rate must be positive, got %v", c.LearningRate)
	case c.StartEpoch < 0:
		return fmt.Errorf("start epoch must not be negative, got %d", c.StartEpoch)
	}
	return nil
}

// EpochStats summarises one completed epoch. Epoch is 1-based.
type EpochStats struct {
	Epoch    int
	Loss     float64
	Batches  int
	Duration time.Duration
}

// History is the per-epoch record of a run.
type History struct {
	Epochs []EpochStats
}

// FinalLoss returns the loss of the last epoch, or NaN if none completed.
func (h History) FinalLoss() float64 {
	if len(h.Epochs) == 0 {
		return math.NaN()
	}
	return h.Epochs[len(h.Epochs)-1].Loss
}

// Callback is notified after every epoch once params hold the learned values.
type Callback interface {
	OnEpochEnd(ctx context.Context, stats EpochStats, params *model.Params) error
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(ctx context.Context, stats EpochStats, params *model.Params) error

func (f CallbackFunc) OnEpochEnd(ctx context.Context, stats EpochStats, params *model.Params) error {
	return f(ctx, stats, params)
}

// Run trains params in place on the batches produced by pipeline. Each epoch
// reshuffles the pipeline, takes one optimiser step per batch and then calls
// every callback in order. A callback error or cancellation of ctx stops the
// run; the history of completed epochs is returned alongside the error.
func Run(ctx context.Context, cfg Config, params *model.Params, pipeline *dataset.Pipeline, callbacks ...Callback) (History, error) {
	var hist History
	if err := cfg.Validate(); err != nil {
		return hist, err
	}
	if err := params.Config.Validate(); err != nil {
		return hist, err
	}
	if !pipeline.DropRemainder {
		return hist, errors.New("train: pipeline must drop partial batches")
	}
	if pipeline.BatchesPerEpoch() == 0 {
		return hist, fmt.Errorf("corpus too small: no full batch of %d examples", pipeline.BatchSize)
	}
	seqLength := len(pipeline.Examples[0].Input)

	log := logger.FromContext(ctx).With("component", "train")
	g, err := newGraph(params, pipeline.BatchSize, seqLength, cfg.LearningRate)
	if err != nil {
		return hist, err
	}
	defer g.close()

	log.Info("training started",
		"epochs", cfg.Epochs,
		"batches_per_epoch", pipeline.BatchesPerEpoch(),
		"batch_size", pipeline.BatchSize,
		"seq_length", seqLength,
		"params", params.Count(),
	)

	rng := rand.New(rand.NewSource(cfg.Seed))
	for e := 1; e <= cfg.Epochs; e++ {
		epoch := cfg.StartEpoch + e
		start := time.Now()
		it := pipeline.Epoch(rng)
		var sum float64
		batches := 0
		for {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			batch, ok := it.Next()
			if !ok {
				break
			}
			loss, err := g.step(batch)
			if err != nil {
				return hist, fmt.Errorf("epoch %d batch %d: %w", epoch, batches+1, err)
			}
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return hist, fmt.Errorf("epoch %d batch %d: %w", epoch, batches+1, ErrNonFiniteLoss)
			}
			sum += loss
			batches++
			log.Debug("batch", "epoch", epoch, "batch", batches, "loss", loss)
		}

		if err := g.syncParams(params); err != nil {
			return hist, err
		}
		stats := EpochStats{
			Epoch:    epoch,
			Loss:     sum / float64(batches),
			Batches:  batches,
			Duration: time.Since(start),
		}
		hist.Epochs = append(hist.Epochs, stats)
		log.Info("epoch complete",
			"epoch", epoch,
			"loss", stats.Loss,
			"batches", batches,
			"duration", stats.Duration.Round(time.Millisecond),
		)
		for _, cb := range callbacks {
			if err := cb.OnEpochEnd(ctx, stats, params); err != nil {
				return hist, fmt.Errorf("epoch %d callback: %w", epoch, err)
			}
		}
	}
	return hist, nil
}
