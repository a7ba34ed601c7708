package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samcharles93/charrnn/internal/tokenizer"
	"gopkg.in/yaml.v3"
)

const (
	WeightsFile = "weights.safetensors"
	VocabFile   = "vocab.json"
	ConfigFile  = "model.yaml"

	bundleFormat = "charrnn/v1"
)

// Bundle is everything needed to generate text: weights, the vocabulary they
// were trained with and the default sampling temperature.
type Bundle struct {
	Params      *Params
	Tokenizer   *tokenizer.CharTokenizer
	Temperature float32
	Epochs      int
}

type bundleManifest struct {
	Format      string    `yaml:"format"`
	Model       Config    `yaml:"model"`
	Temperature float32   `yaml:"temperature"`
	Epochs      int       `yaml:"epochs,omitempty"`
	SavedAt     time.Time `yaml:"saved_at"`
}

// SaveBundle writes b into dir, creating it if needed.
func SaveBundle(dir string, b Bundle) error {
	if b.Params == nil || b.Tokenizer == nil {
		return fmt.Errorf("save bundle: params and tokenizer are required")
	}
	if got, want := b.Params.Config.VocabSize, b.Tokenizer.VocabSize(); got != want {
		return fmt.Errorf("save bundle: model vocab %d, tokenizer vocab %d: %w", got, want, ErrShapeMismatch)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save bundle: %w", err)
	}
	if err := b.Params.Save(filepath.Join(dir, WeightsFile), nil); err != nil {
		return err
	}
	if err := b.Tokenizer.Save(filepath.Join(dir, VocabFile)); err != nil {
		return fmt.Errorf("save bundle vocab: %w", err)
	}
	manifest := bundleManifest{
		Format:      bundleFormat,
		Model:       b.Params.Config,
		Temperature: b.Temperature,
		Epochs:      b.Epochs,
		SavedAt:     time.Now().UTC(),
	}
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("save bundle manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ConfigFile), data, 0o644)
}

// LoadBundle reads a bundle written by SaveBundle. It fails when the weights,
// vocabulary and manifest disagree on the architecture.
func LoadBundle(dir string) (Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return Bundle{}, fmt.Errorf("load bundle: %w", err)
	}
	var manifest bundleManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Bundle{}, fmt.Errorf("load bundle manifest: %w", err)
	}
	if manifest.Format != bundleFormat {
		return Bundle{}, fmt.Errorf("load bundle: unsupported format %q", manifest.Format)
	}

	tok, err := tokenizer.LoadCharTokenizer(filepath.Join(dir, VocabFile))
	if err != nil {
		return Bundle{}, fmt.Errorf("load bundle vocab: %w", err)
	}
	params, _, err := LoadParams(filepath.Join(dir, WeightsFile))
	if err != nil {
		return Bundle{}, fmt.Errorf("load bundle weights: %w", err)
	}
	if params.Config != manifest.Model {
		return Bundle{}, fmt.Errorf("load bundle: weights %+v, manifest %+v: %w", params.Config, manifest.Model, ErrShapeMismatch)
	}
	if params.Config.VocabSize != tok.VocabSize() {
		return Bundle{}, fmt.Errorf("load bundle: embedding rows %d, vocab size %d: %w", params.Config.VocabSize, tok.VocabSize(), ErrShapeMismatch)
	}
	return Bundle{
		Params:      params,
		Tokenizer:   tok,
		Temperature: manifest.Temperature,
		Epochs:      manifest.Epochs,
	}, nil
}
