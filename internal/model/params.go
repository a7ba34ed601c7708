package model

import (
	"fmt"
	"maps"
	"math/rand"
	"strconv"

	"github.com/samcharles93/charrnn/internal/safetensors"
	"github.com/samcharles93/charrnn/internal/tensor"
)

const (
	DefaultEmbeddingDim = 256
	DefaultRNNUnits     = 1024

	embeddingInitLimit = 0.05
)

// Config holds the architecture hyperparameters.
type Config struct {
	VocabSize    int `yaml:"vocab_size"`
	EmbeddingDim int `yaml:"embedding_dim"`
	RNNUnits     int `yaml:"rnn_units"`
}

func (c Config) Validate() error {
	switch {
	case c.VocabSize < 2:
		return fmt.Errorf("vocab size must be at least 2, got %d", c.VocabSize)
	case c.EmbeddingDim <= 0:
		return fmt.Errorf("embedding dim must be positive, got %d", c.EmbeddingDim)
	case c.RNNUnits <= 0:
		return fmt.Errorf("rnn units must be positive, got %d", c.RNNUnits)
	}
	return nil
}

// Params are the learnable tensors of the network in row-major input x output
// layout, the same layout the trainer multiplies with.
type Params struct {
	Config Config

	Embedding tensor.Mat // [V x E]

	Wz, Wr, Wn tensor.Mat // [E x H]
	Uz, Ur, Un tensor.Mat // [H x H]

	Bz, Br, Bn tensor.Mat // [1 x H]
	Bun        tensor.Mat // [1 x H], recurrent bias of the candidate gate

	DenseKernel tensor.Mat // [H x V]
	DenseBias   tensor.Mat // [1 x V]
}

// NewParams allocates and initialises parameters for cfg. Kernels use Glorot
// uniform initialisation, the embedding U(-0.05, 0.05) and biases zero.
func NewParams(cfg Config, seed int64) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := allocParams(cfg)
	rng := rand.New(rand.NewSource(seed))
	tensor.FillUniform(&p.Embedding, rng, embeddingInitLimit)
	for _, m := range []*tensor.Mat{&p.Wz, &p.Wr, &p.Wn, &p.Uz, &p.Ur, &p.Un, &p.DenseKernel} {
		tensor.FillGlorot(m, rng)
	}
	return p, nil
}

func allocParams(cfg Config) *Params {
	v, e, h := cfg.VocabSize, cfg.EmbeddingDim, cfg.RNNUnits
	return &Params{
		Config:      cfg,
		Embedding:   tensor.NewMat(v, e),
		Wz:          tensor.NewMat(e, h),
		Wr:          tensor.NewMat(e, h),
		Wn:          tensor.NewMat(e, h),
		Uz:          tensor.NewMat(h, h),
		Ur:          tensor.NewMat(h, h),
		Un:          tensor.NewMat(h, h),
		Bz:          tensor.NewMat(1, h),
		Br:          tensor.NewMat(1, h),
		Bn:          tensor.NewMat(1, h),
		Bun:         tensor.NewMat(1, h),
		DenseKernel: tensor.NewMat(h, v),
		DenseBias:   tensor.NewMat(1, v),
	}
}

type namedMat struct {
	name string
	m    *tensor.Mat
}

func (p *Params) named() []namedMat {
	return []namedMat{
		{"embedding", &p.Embedding},
		{"gru.wz", &p.Wz},
		{"gru.wr", &p.Wr},
		{"gru.wn", &p.Wn},
		{"gru.uz", &p.Uz},
		{"gru.ur", &p.Ur},
		{"gru.un", &p.Un},
		{"gru.bz", &p.Bz},
		{"gru.br", &p.Br},
		{"gru.bn", &p.Bn},
		{"gru.bun", &p.Bun},
		{"dense.kernel", &p.DenseKernel},
		{"dense.bias", &p.DenseBias},
	}
}

// Each calls fn for every parameter in a fixed order. It stops at the first
// error.
func (p *Params) Each(fn func(name string, m *tensor.Mat) error) error {
	for _, n := range p.named() {
		if err := fn(n.name, n.m); err != nil {
			return err
		}
	}
	return nil
}

// Tensor returns the parameter called name.
func (p *Params) Tensor(name string) (*tensor.Mat, bool) {
	for _, n := range p.named() {
		if n.name == name {
			return n.m, true
		}
	}
	return nil, false
}

// Count returns the total number of scalar parameters.
func (p *Params) Count() int {
	n := 0
	_ = p.Each(func(_ string, m *tensor.Mat) error {
		n += len(m.Data)
		return nil
	})
	return n
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	out := allocParams(p.Config)
	_ = p.Each(func(name string, m *tensor.Mat) error {
		dst, _ := out.Tensor(name)
		copy(dst.Data, m.Data)
		return nil
	})
	return out
}

// Save writes every parameter to path in safetensors layout. metadata is
// stored alongside the architecture hyperparameters.
func (p *Params) Save(path string, metadata map[string]string) error {
	meta := map[string]string{
		"vocab_size":    strconv.Itoa(p.Config.VocabSize),
		"embedding_dim": strconv.Itoa(p.Config.EmbeddingDim),
		"rnn_units":     strconv.Itoa(p.Config.RNNUnits),
	}
	maps.Copy(meta, metadata)
	var tensors []safetensors.Tensor
	_ = p.Each(func(name string, m *tensor.Mat) error {
		tensors = append(tensors, safetensors.Tensor{
			Name:  name,
			Shape: []int{m.R, m.C},
			Data:  m.Data,
		})
		return nil
	})
	if err := safetensors.Write(path, tensors, meta); err != nil {
		return fmt.Errorf("save params %s: %w", path, err)
	}
	return nil
}

// LoadParams reads parameters written by Save. The architecture is recovered
// from the tensor shapes. The file metadata is returned as well.
func LoadParams(path string) (*Params, map[string]string, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	emb, ok := f.Tensor("embedding")
	if !ok || len(emb.Shape) != 2 {
		return nil, nil, fmt.Errorf("%s: missing or malformed embedding: %w", path, ErrShapeMismatch)
	}
	dense, ok := f.Tensor("dense.kernel")
	if !ok || len(dense.Shape) != 2 {
		return nil, nil, fmt.Errorf("%s: missing or malformed dense.kernel: %w", path, ErrShapeMismatch)
	}
	cfg := Config{
		VocabSize:    emb.Shape[0],
		EmbeddingDim: emb.Shape[1],
		RNNUnits:     dense.Shape[0],
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	p := allocParams(cfg)
	if err := p.readFrom(f); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, f.Metadata, nil
}

// LoadInto overwrites p with the values stored at path. The stored
// architecture must match p.Config.
func (p *Params) LoadInto(path string) error {
	f, err := safetensors.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := p.readFrom(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (p *Params) readFrom(f *safetensors.File) error {
	return p.Each(func(name string, m *tensor.Mat) error {
		data, info, err := f.ReadTensorF32(name)
		if err != nil {
			return err
		}
		if len(info.Shape) != 2 || info.Shape[0] != m.R || info.Shape[1] != m.C {
			return fmt.Errorf("%s: shape %v, want [%d %d]: %w", name, info.Shape, m.R, m.C, ErrShapeMismatch)
		}
		copy(m.Data, data)
		return nil
	})
}
