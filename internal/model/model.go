// Package model holds the character-level recurrent network: its parameters,
// the GRU forward pass used for generation, and the on-disk bundle format.
package model

import "errors"

// Model maps batches of token sequences to next-token logits.
type Model interface {
	// Forward runs ids, shaped (batch, time), through the network starting
	// from state and returns logits shaped (batch, time, vocab) together with
	// the state after the last timestep. A nil state is the zero state.
	Forward(ids [][]int, state State) ([][][]float32, State, error)
	VocabSize() int
}

// State is the recurrent hidden state with one row per batch element.
type State [][]float32

var (
	ErrShapeMismatch = errors.New("model: shape mismatch")
	ErrInvalidToken  = errors.New("model: token id out of range")
)
