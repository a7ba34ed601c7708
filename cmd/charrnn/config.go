package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envConfigPath = "CHARRNN_CONFIG"

// Config represents the charrnn configuration file
// (~/.config/charrnn/config.yaml). Pointer fields distinguish "not set" from
// zero values.
type Config struct {
	Corpus        string `yaml:"corpus"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	BundleDir     string `yaml:"bundle_dir"`
	HistoryDB     string `yaml:"history_db"`

	// Training
	SeqLength    *int64   `yaml:"seq_length"`
	BatchSize    *int64   `yaml:"batch_size"`
	BufferSize   *int64   `yaml:"buffer_size"`
	EmbeddingDim *int64   `yaml:"embedding_dim"`
	RNNUnits     *int64   `yaml:"rnn_units"`
	LearningRate *float64 `yaml:"learning_rate"`

	// Sampling
	Temperature *float64 `yaml:"temperature"`
	TopK        *int64   `yaml:"top_k"`
	TopP        *float64 `yaml:"top_p"`
	Seed        *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "charrnn", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig applies config file defaults to the flag variables whose flags
// were not set explicitly.
func applyConfig(c *cli.Command, cfg Config) {
	setString := func(flag, v string, dst *string) {
		if v != "" && !c.IsSet(flag) {
			*dst = v
		}
	}
	setInt := func(flag string, v *int64, dst *int64) {
		if v != nil && !c.IsSet(flag) {
			*dst = *v
		}
	}
	setFloat := func(flag string, v *float64, dst *float64) {
		if v != nil && !c.IsSet(flag) {
			*dst = *v
		}
	}

	setString("corpus", cfg.Corpus, &corpusPath)
	setString("checkpoint-dir", cfg.CheckpointDir, &checkpointDir)
	setString("bundle-dir", cfg.BundleDir, &bundleDir)
	setString("history-db", cfg.HistoryDB, &historyDB)
	setString("log-level", cfg.LogLevel, &logLevel)
	setString("log-format", cfg.LogFormat, &logFormat)
	setString("addr", cfg.ServerAddress, &addr)

	setInt("seq-length", cfg.SeqLength, &seqLength)
	setInt("batch-size", cfg.BatchSize, &batchSize)
	setInt("buffer-size", cfg.BufferSize, &bufferSize)
	setInt("embedding-dim", cfg.EmbeddingDim, &embeddingDim)
	setInt("rnn-units", cfg.RNNUnits, &rnnUnits)
	setInt("top-k", cfg.TopK, &topK)
	setInt("seed", cfg.Seed, &seed)

	setFloat("learning-rate", cfg.LearningRate, &learningRate)
	setFloat("temperature", cfg.Temperature, &temperature)
	setFloat("top-p", cfg.TopP, &topP)
}
