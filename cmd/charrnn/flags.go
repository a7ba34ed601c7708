package main

import (
	"time"

	"github.com/samcharles93/charrnn/internal/dataset"
	"github.com/samcharles93/charrnn/internal/history"
	"github.com/samcharles93/charrnn/internal/model"
	"github.com/samcharles93/charrnn/internal/train"
	"github.com/urfave/cli/v3"
)

var (
	corpusPath    string
	checkpointDir string
	bundleDir     string
	historyDB     string

	seqLength    int64
	batchSize    int64
	bufferSize   int64
	embeddingDim int64
	rnnUnits     int64
	learningRate float64

	temperature float64
	topK        int64
	topP        float64
	seed        int64

	addr        string
	readTimeout time.Duration

	logLevel  string
	logFormat string
	debug     bool
)

const (
	defaultCorpus        = "words.txt"
	defaultCheckpointDir = "training_checkpoints"
	defaultBundleDir     = "one_step"
	defaultAddr          = "127.0.0.1:5000"
)

func artifactFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "checkpoint-dir",
			Usage:       "directory for per-epoch checkpoints",
			Value:       defaultCheckpointDir,
			Destination: &checkpointDir,
		},
		&cli.StringFlag{
			Name:        "bundle-dir",
			Usage:       "directory of the exported generation model",
			Value:       defaultBundleDir,
			Destination: &bundleDir,
		},
		&cli.StringFlag{
			Name:        "history-db",
			Usage:       "SQLite file recording training runs",
			Value:       history.DefaultFile,
			Destination: &historyDB,
		},
	}
}

func trainingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "corpus",
			Usage:       "UTF-8 text file to train on",
			Value:       defaultCorpus,
			Destination: &corpusPath,
		},
		&cli.Int64Flag{
			Name:        "seq-length",
			Usage:       "characters per training example",
			Value:       dataset.DefaultSeqLength,
			Destination: &seqLength,
		},
		&cli.Int64Flag{
			Name:        "batch-size",
			Usage:       "examples per optimiser step",
			Value:       dataset.DefaultBatchSize,
			Destination: &batchSize,
		},
		&cli.Int64Flag{
			Name:        "buffer-size",
			Usage:       "shuffle buffer size",
			Value:       dataset.DefaultBufferSize,
			Destination: &bufferSize,
		},
		&cli.Int64Flag{
			Name:        "embedding-dim",
			Usage:       "character embedding width",
			Value:       model.DefaultEmbeddingDim,
			Destination: &embeddingDim,
		},
		&cli.Int64Flag{
			Name:        "rnn-units",
			Usage:       "GRU hidden units",
			Value:       model.DefaultRNNUnits,
			Destination: &rnnUnits,
		},
		&cli.Float64Flag{
			Name:        "learning-rate",
			Aliases:     []string{"lr"},
			Usage:       "Adam learning rate",
			Value:       train.DefaultLearningRate,
			Destination: &learningRate,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       1.0,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "sample from the k most likely characters (0 = all)",
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "nucleus sampling threshold (0 or 1 = off)",
			Destination: &topP,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (-1 = time based)",
			Value:       -1,
			Destination: &seed,
		},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       defaultAddr,
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
