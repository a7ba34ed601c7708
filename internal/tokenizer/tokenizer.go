// Package tokenizer converts text to model ids and back.
package tokenizer

// Tokenizer defines the minimal interface used by the sampler and trainer.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	VocabSize() int
}

var _ Tokenizer = (*CharTokenizer)(nil)
