// Package inference generates text from a trained model one character at a
// time.
package inference

import (
	"errors"
	"fmt"

	"github.com/samcharles93/charrnn/internal/logits"
	"github.com/samcharles93/charrnn/internal/model"
	"github.com/samcharles93/charrnn/internal/tensor"
)

var (
	ErrEmptyInput    = errors.New("inference: empty input")
	ErrVocabMismatch = errors.New("inference: model and vocabulary sizes differ")
	ErrNonFinite     = errors.New("inference: model produced non-finite logits")
)

// Vocabulary is the character mapping a OneStep needs.
type Vocabulary interface {
	Encode(text string) ([]int, error)
	Char(id int) (string, error)
	UnknownID() int
	VocabSize() int
}

// OneStep wraps a model so that each call consumes some characters and
// produces exactly one sampled character. The unknown token is never
// produced. A OneStep is not safe for concurrent use.
type OneStep struct {
	model   model.Model
	vocab   Vocabulary
	sampler *logits.Sampler
}

// NewOneStep returns a one-step generator. The unknown id is always added to
// cfg.Mask.
func NewOneStep(m model.Model, vocab Vocabulary, cfg logits.SamplerConfig) (*OneStep, error) {
	if m == nil || vocab == nil {
		return nil, errors.New("inference: model and vocabulary are required")
	}
	if m.VocabSize() != vocab.VocabSize() {
		return nil, fmt.Errorf("%w: model %d, vocabulary %d", ErrVocabMismatch, m.VocabSize(), vocab.VocabSize())
	}
	cfg.Mask = append(cfg.Mask, vocab.UnknownID())
	return &OneStep{
		model:   m,
		vocab:   vocab,
		sampler: logits.NewSampler(cfg),
	}, nil
}

// Reseed restarts the sampler's random sequence.
func (o *OneStep) Reseed(seed int64) {
	o.sampler.Reseed(seed)
}

// GenerateOneStep feeds input through the model starting from state and
// samples the character that follows it. A nil state starts a new sequence.
// The returned state continues after input and must be passed back together
// with the returned character to extend the sequence.
func (o *OneStep) GenerateOneStep(input string, state model.State) (string, model.State, error) {
	ids, err := o.vocab.Encode(input)
	if err != nil {
		return "", nil, fmt.Errorf("encode input: %w", err)
	}
	if len(ids) == 0 {
		return "", nil, ErrEmptyInput
	}

	out, next, err := safeForward(o.model, [][]int{ids}, state)
	if err != nil {
		return "", nil, fmt.Errorf("forward: %w", err)
	}
	last := out[0][len(ids)-1]
	if !tensor.AllFinite(last) {
		return "", nil, ErrNonFinite
	}

	id := o.sampler.Sample(last)
	if id < 0 {
		return "", nil, errors.New("inference: no sampleable character")
	}
	ch, err := o.vocab.Char(id)
	if err != nil {
		return "", nil, fmt.Errorf("decode id %d: %w", id, err)
	}
	return ch, next, nil
}

func safeForward(m model.Model, ids [][]int, state model.State) (out [][][]float32, next model.State, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Forward: %v", rec)
		}
	}()
	return m.Forward(ids, state)
}
