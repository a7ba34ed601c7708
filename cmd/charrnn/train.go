package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/samcharles93/charrnn/internal/dataset"
	"github.com/samcharles93/charrnn/internal/history"
	"github.com/samcharles93/charrnn/internal/logger"
	"github.com/samcharles93/charrnn/internal/model"
	"github.com/samcharles93/charrnn/internal/tokenizer"
	"github.com/samcharles93/charrnn/internal/train"
	"github.com/urfave/cli/v3"
)

func trainCmd() *cli.Command {
	var (
		resume string
		serve  bool
	)

	flags := append(trainingFlags(), artifactFlags()...)
	flags = append(flags, samplingFlags()...)
	flags = append(flags, serveFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "resume",
			Usage:       `checkpoint to continue from ("latest" picks the newest in --checkpoint-dir)`,
			Destination: &resume,
		},
		&cli.BoolFlag{
			Name:        "serve",
			Usage:       "serve the trained model over HTTP when training finishes",
			Destination: &serve,
		},
	)

	return &cli.Command{
		Name:      "train",
		Usage:     "Train the model on a corpus and export it",
		ArgsUsage: "<epochs>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, configFile)
			log := logger.FromContext(ctx)

			epochs, err := parseCount(cmd.Args().First(), "epochs")
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if epochs == 0 {
				return cli.Exit("epochs must be at least 1", 1)
			}

			bundle, err := runTraining(ctx, epochs, resume)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if !serve {
				return nil
			}

			svc, err := newService(bundle, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Info("serving trained model", "address", addr)
			return serveHTTP(ctx, svc, addr, readTimeout)
		},
	}
}

func parseCount(raw, name string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing <%s> argument", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

// runTraining reads the corpus, trains for epochs and writes checkpoints, the
// history record and the exported bundle.
func runTraining(ctx context.Context, epochs int, resume string) (model.Bundle, error) {
	log := logger.FromContext(ctx)

	corpus := resolvePath(corpusPath)
	text, err := os.ReadFile(corpus)
	if err != nil {
		return model.Bundle{}, fmt.Errorf("read corpus: %w", err)
	}
	tok := tokenizer.NewCharTokenizer(string(text))
	ids, err := tok.Encode(string(text))
	if err != nil {
		return model.Bundle{}, err
	}
	log.Info("corpus loaded", "path", corpus, "chars", len(ids), "vocab_size", tok.VocabSize())

	examples, err := dataset.Windows(ids, int(seqLength))
	if err != nil {
		return model.Bundle{}, err
	}
	pipeline := &dataset.Pipeline{
		Examples:      examples,
		BatchSize:     int(batchSize),
		BufferSize:    int(bufferSize),
		DropRemainder: true,
	}

	runSeed := seed
	if runSeed < 0 {
		runSeed = time.Now().UnixNano()
	}
	cfg := model.Config{
		VocabSize:    tok.VocabSize(),
		EmbeddingDim: int(embeddingDim),
		RNNUnits:     int(rnnUnits),
	}
	params, err := model.NewParams(cfg, runSeed)
	if err != nil {
		return model.Bundle{}, err
	}

	ckptDir := resolvePath(checkpointDir)
	startEpoch, err := resumeFrom(ctx, params, ckptDir, resume)
	if err != nil {
		return model.Bundle{}, err
	}

	store, err := history.Open(ctx, resolvePath(historyDB))
	if err != nil {
		return model.Bundle{}, err
	}
	defer func() { _ = store.Close() }()
	run, err := store.BeginRun(ctx, history.Run{
		Corpus:       corpus,
		Epochs:       epochs,
		SeqLength:    int(seqLength),
		BatchSize:    int(batchSize),
		EmbeddingDim: cfg.EmbeddingDim,
		RNNUnits:     cfg.RNNUnits,
		VocabSize:    cfg.VocabSize,
		LearningRate: learningRate,
	})
	if err != nil {
		return model.Bundle{}, err
	}
	log = log.With("run_id", run.ID)

	hist, trainErr := train.Run(logger.WithContext(ctx, log), train.Config{
		Epochs:       epochs,
		LearningRate: learningRate,
		Seed:         runSeed,
		StartEpoch:   startEpoch,
	}, params, pipeline,
		train.Checkpointer{Dir: ckptDir},
		historyRecorder(store, run.ID),
	)
	// Record the outcome even when ctx was cancelled.
	if err := store.FinishRun(context.WithoutCancel(ctx), run.ID, trainErr); err != nil {
		log.Warn("failed to finish history record", "error", err)
	}
	if trainErr != nil {
		return model.Bundle{}, fmt.Errorf("training failed: %w", trainErr)
	}

	bundle := model.Bundle{
		Params:      params,
		Tokenizer:   tok,
		Temperature: float32(temperature),
		Epochs:      startEpoch + epochs,
	}
	dir := resolvePath(bundleDir)
	if err := model.SaveBundle(dir, bundle); err != nil {
		return model.Bundle{}, err
	}
	log.Info("training complete",
		"epochs", len(hist.Epochs),
		"final_loss", hist.FinalLoss(),
		"bundle", dir,
	)
	return bundle, nil
}

// resumeFrom loads the checkpoint named by resume into params and returns the
// number of epochs it already covers.
func resumeFrom(ctx context.Context, params *model.Params, ckptDir, resume string) (int, error) {
	if resume == "" {
		return 0, nil
	}
	path := resolvePath(resume)
	epoch := 0
	if resume == "latest" {
		p, n, err := train.LatestCheckpoint(ckptDir)
		if errors.Is(err, os.ErrNotExist) {
			logger.FromContext(ctx).Warn("no checkpoint to resume from, starting fresh", "dir", ckptDir)
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		path, epoch = p, n
	} else if n, ok := train.CheckpointEpoch(path); ok {
		epoch = n
	}
	if err := params.LoadInto(path); err != nil {
		return 0, fmt.Errorf("resume: %w", err)
	}
	logger.FromContext(ctx).Info("resumed from checkpoint", "path", path, "epoch", epoch)
	return epoch, nil
}

// historyRecorder returns a training callback that records every epoch of
// runID in store.
func historyRecorder(store *history.Store, runID string) train.Callback {
	return train.CallbackFunc(func(ctx context.Context, stats train.EpochStats, _ *model.Params) error {
		return store.RecordEpoch(ctx, runID, history.Epoch{
			Epoch:    stats.Epoch,
			Loss:     stats.Loss,
			Batches:  stats.Batches,
			Duration: stats.Duration,
		})
	})
}
