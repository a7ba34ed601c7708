// Package logits turns next-token logits into a sampled token id.
package logits

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        int64
	Temperature float32 // <= 0 selects the most likely unmasked id
	TopK        int     // 0 disables top-k truncation
	TopP        float32 // 0 or >= 1 disables nucleus truncation
	Mask        []int   // ids that are never sampled
}

type candidate struct {
	id  int
	val float32
}

type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	masked []bool
	cands  []candidate
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if greedy {
		cfg.Temperature = 1
	}
	if cfg.TopK < 0 {
		cfg.TopK = 0
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	cfg.Mask = slices.Clone(cfg.Mask)
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Reseed restarts the random sequence from seed.
func (s *Sampler) Reseed(seed int64) {
	s.rng.Seed(seed)
}

func (s *Sampler) isMasked(vocab int) []bool {
	if len(s.masked) != vocab {
		s.masked = make([]bool, vocab)
		for _, id := range s.cfg.Mask {
			if id >= 0 && id < vocab {
				s.masked[id] = true
			}
		}
	}
	return s.masked
}

// Sample draws a single index from logits. logits is not modified.
//
//  1. Logits are divided by the temperature; masked ids are dropped, which
//     is the same as adding -Inf before the softmax.
//  2. In greedy mode the largest remaining logit wins.
//  3. Top-k keeps the k largest candidates, top-p the smallest prefix whose
//     cumulative probability reaches TopP.
//  4. One id is drawn from the renormalised categorical distribution.
//
// It returns -1 when every id is masked or logits is empty.
func (s *Sampler) Sample(logits []float32) int {
	masked := s.isMasked(len(logits))

	cands := s.cands[:0]
	for i, l := range logits {
		if masked[i] || math.IsNaN(float64(l)) || math.IsInf(float64(l), -1) {
			continue
		}
		cands = append(cands, candidate{id: i, val: l})
	}
	s.cands = cands
	if len(cands) == 0 {
		return -1
	}
	if s.greedy {
		return argmax(cands)
	}

	truncate := s.cfg.TopK > 0 && s.cfg.TopK < len(cands)
	if truncate || s.cfg.TopP < 1 {
		slices.SortStableFunc(cands, func(a, b candidate) int {
			return cmp.Compare(b.val, a.val)
		})
	}
	if truncate {
		cands = cands[:s.cfg.TopK]
	}

	maxv := cands[0].val
	for _, c := range cands[1:] {
		maxv = max(maxv, c.val)
	}
	if cap(s.prob) < len(cands) {
		s.prob = make([]float64, len(cands))
	}
	prob := s.prob[:len(cands)]
	// Scale after the shift, in float64: 1/temp overflows float32 for tiny
	// temperatures.
	temp := float64(s.cfg.Temperature)
	var sum float64
	for i, c := range cands {
		e := math.Exp((float64(c.val) - float64(maxv)) / temp)
		prob[i] = e
		sum += e
	}
	invSum := 1 / sum
	for i := range prob {
		prob[i] *= invSum
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
		var kept float64
		for _, p := range prob[:cut] {
			kept += p
		}
		for i := range prob[:cut] {
			prob[i] /= kept
		}
	}

	r := s.rng.Float64()
	var c float64
	for i := range cut {
		c += prob[i]
		if r < c {
			return cands[i].id
		}
	}
	return cands[cut-1].id
}

// argmax returns the id of the largest candidate, the lowest id on ties.
func argmax(cands []candidate) int {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.val > best.val {
			best = c
		}
	}
	return best.id
}
