package model

import (
	"fmt"

	"github.com/samcharles93/charrnn/internal/tensor"
)

// GRU runs the embedding, GRU and dense layers on the CPU. Kernels are stored
// transposed ([out x in]) so each gate is a single MatVec. A GRU is read-only
// after construction and safe for concurrent Forward calls.
type GRU struct {
	cfg Config

	emb tensor.Mat // [V x E]

	wz, wr, wn tensor.Mat // [H x E]
	uz, ur, un tensor.Mat // [H x H]

	bz, br, bn, bun []float32

	dense     tensor.Mat // [V x H]
	denseBias []float32
}

var _ Model = (*GRU)(nil)

// NewGRU builds an inference network from p. The parameters are copied, so
// later changes to p do not affect the returned model.
func NewGRU(p *Params) (*GRU, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	emb := tensor.NewMat(p.Embedding.R, p.Embedding.C)
	copy(emb.Data, p.Embedding.Data)
	return &GRU{
		cfg:       p.Config,
		emb:       emb,
		wz:        tensor.Transpose(&p.Wz),
		wr:        tensor.Transpose(&p.Wr),
		wn:        tensor.Transpose(&p.Wn),
		uz:        tensor.Transpose(&p.Uz),
		ur:        tensor.Transpose(&p.Ur),
		un:        tensor.Transpose(&p.Un),
		bz:        cloneRow(&p.Bz),
		br:        cloneRow(&p.Br),
		bn:        cloneRow(&p.Bn),
		bun:       cloneRow(&p.Bun),
		dense:     tensor.Transpose(&p.DenseKernel),
		denseBias: cloneRow(&p.DenseBias),
	}, nil
}

func cloneRow(m *tensor.Mat) []float32 {
	return append([]float32(nil), m.Row(0)...)
}

func (g *GRU) VocabSize() int { return g.cfg.VocabSize }

func (g *GRU) Config() Config { return g.cfg }

type gruScratch struct {
	xz, xr, xn []float32
	hz, hr, hn []float32
}

func newGRUScratch(h int) *gruScratch {
	buf := make([]float32, 6*h)
	return &gruScratch{
		xz: buf[0*h : 1*h],
		xr: buf[1*h : 2*h],
		xn: buf[2*h : 3*h],
		hz: buf[3*h : 4*h],
		hr: buf[4*h : 5*h],
		hn: buf[5*h : 6*h],
	}
}

func (g *GRU) Forward(ids [][]int, state State) ([][][]float32, State, error) {
	batch := len(ids)
	if batch == 0 {
		return nil, nil, fmt.Errorf("empty batch: %w", ErrShapeMismatch)
	}
	steps := len(ids[0])
	for b, row := range ids {
		if len(row) != steps {
			return nil, nil, fmt.Errorf("row %d has %d steps, want %d: %w", b, len(row), steps, ErrShapeMismatch)
		}
		for t, id := range row {
			if id < 0 || id >= g.cfg.VocabSize {
				return nil, nil, fmt.Errorf("ids[%d][%d]=%d: %w", b, t, id, ErrInvalidToken)
			}
		}
	}

	hidden := g.cfg.RNNUnits
	next := make(State, batch)
	switch {
	case state == nil:
		for b := range next {
			next[b] = make([]float32, hidden)
		}
	case len(state) != batch:
		return nil, nil, fmt.Errorf("state batch %d, want %d: %w", len(state), batch, ErrShapeMismatch)
	default:
		for b, h := range state {
			if len(h) != hidden {
				return nil, nil, fmt.Errorf("state[%d] has %d units, want %d: %w", b, len(h), hidden, ErrShapeMismatch)
			}
			next[b] = append([]float32(nil), h...)
		}
	}

	s := newGRUScratch(hidden)
	logits := make([][][]float32, batch)
	for b, row := range ids {
		h := next[b]
		logits[b] = make([][]float32, steps)
		for t, id := range row {
			g.step(s, h, g.emb.Row(id))
			out := make([]float32, g.cfg.VocabSize)
			tensor.MatVecAdd(out, &g.dense, h, g.denseBias)
			logits[b][t] = out
		}
	}
	return logits, next, nil
}

// step advances h in place by one input vector x.
func (g *GRU) step(s *gruScratch, h, x []float32) {
	tensor.MatVecAdd(s.xz, &g.wz, x, g.bz)
	tensor.MatVecAdd(s.xr, &g.wr, x, g.br)
	tensor.MatVecAdd(s.xn, &g.wn, x, g.bn)
	tensor.MatVec(s.hz, &g.uz, h)
	tensor.MatVec(s.hr, &g.ur, h)
	tensor.MatVecAdd(s.hn, &g.un, h, g.bun)

	for i := range h {
		z := tensor.Sigmoid(s.xz[i] + s.hz[i])
		r := tensor.Sigmoid(s.xr[i] + s.hr[i])
		n := tensor.Tanh(s.xn[i] + r*s.hn[i])
		h[i] = n + z*(h[i]-n)
	}
}
