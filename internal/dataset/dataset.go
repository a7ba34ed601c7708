// Package dataset slices an encoded corpus into shifted training windows and
// groups them into shuffled batches.
package dataset

import (
	"fmt"
	"math/rand"
)

const (
	DefaultSeqLength  = 100
	DefaultBatchSize  = 64
	DefaultBufferSize = 10000
)

// Example is one (input, target) pair. Target is Input shifted by one id.
type Example struct {
	Input  []int
	Target []int
}

// Batch holds BatchSize examples laid out as (batch, time).
type Batch struct {
	Inputs  [][]int
	Targets [][]int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int { return len(b.Inputs) }

// Windows partitions ids into consecutive non-overlapping blocks of
// seqLength+1 and splits each block into input and target. A trailing
// remainder shorter than a block is dropped.
func Windows(ids []int, seqLength int) ([]Example, error) {
	if seqLength <= 0 {
		return nil, fmt.Errorf("sequence length must be positive, got %d", seqLength)
	}
	block := seqLength + 1
	n := len(ids) / block
	out := make([]Example, 0, n)
	for i := range n {
		chunk := ids[i*block : (i+1)*block]
		out = append(out, Example{
			Input:  chunk[:seqLength],
			Target: chunk[1:],
		})
	}
	return out, nil
}

// Pipeline produces shuffled batches of examples, one pass per epoch.
type Pipeline struct {
	Examples      []Example
	BatchSize     int
	BufferSize    int
	DropRemainder bool
}

// NewPipeline returns a pipeline with the default batch and buffer sizes and
// partial batches dropped.
func NewPipeline(examples []Example) *Pipeline {
	return &Pipeline{
		Examples:      examples,
		BatchSize:     DefaultBatchSize,
		BufferSize:    DefaultBufferSize,
		DropRemainder: true,
	}
}

// BatchesPerEpoch returns how many batches one epoch yields.
func (p *Pipeline) BatchesPerEpoch() int {
	if p.BatchSize <= 0 {
		return 0
	}
	n := len(p.Examples) / p.BatchSize
	if !p.DropRemainder && len(p.Examples)%p.BatchSize != 0 {
		n++
	}
	return n
}

// Epoch starts a new pass over the examples. Each call reshuffles using rng.
func (p *Pipeline) Epoch(rng *rand.Rand) *Iterator {
	buf := max(p.BufferSize, 1)
	return &Iterator{
		p:      p,
		rng:    rng,
		buffer: make([]Example, 0, min(buf, len(p.Examples))),
		limit:  buf,
	}
}

// Iterator lazily yields batches for one epoch.
type Iterator struct {
	p      *Pipeline
	rng    *rand.Rand
	buffer []Example
	limit  int
	next   int
}

// Next returns the next batch, or false once the epoch is exhausted.
func (it *Iterator) Next() (Batch, bool) {
	size := it.p.BatchSize
	if size <= 0 {
		return Batch{}, false
	}
	b := Batch{
		Inputs:  make([][]int, 0, size),
		Targets: make([][]int, 0, size),
	}
	for b.Size() < size {
		ex, ok := it.shuffled()
		if !ok {
			break
		}
		b.Inputs = append(b.Inputs, ex.Input)
		b.Targets = append(b.Targets, ex.Target)
	}
	if b.Size() == 0 || (b.Size() < size && it.p.DropRemainder) {
		return Batch{}, false
	}
	return b, true
}

// shuffled emits a uniformly chosen element of the shuffle buffer and
// refills the vacated slot from the input stream.
func (it *Iterator) shuffled() (Example, bool) {
	for len(it.buffer) < it.limit && it.next < len(it.p.Examples) {
		it.buffer = append(it.buffer, it.p.Examples[it.next])
		it.next++
	}
	if len(it.buffer) == 0 {
		return Example{}, false
	}
	i := it.rng.Intn(len(it.buffer))
	ex := it.buffer[i]
	last := len(it.buffer) - 1
	it.buffer[i] = it.buffer[last]
	it.buffer = it.buffer[:last]
	return ex, true
}
