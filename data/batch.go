// Package data draws training batches from a token sequence.
package data

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrInsufficientData is returned when the sequence is not longer than one block.
var ErrInsufficientData = errors.New("insufficient data")

// Batch holds B windows of T tokens and the same windows shifted one
// position to the right.
type Batch struct {
	Inputs  [][]int
	Targets [][]int
}

// Size returns the batch and block dimensions.
func (b Batch) Size() (batch, block int) {
	if len(b.Inputs) == 0 {
		return 0, 0
	}
	return len(b.Inputs), len(b.Inputs[0])
}

// Sampler picks random windows. Seed its source once per process; it
// never reseeds.
type Sampler struct {
	rng *rand.Rand
}

func NewSampler(src rand.Source) *Sampler {
	return &Sampler{rng: rand.New(src)}
}

// Sample draws batchSize start offsets independently and uniformly from
// [0, len(data)-blockSize). Offsets may repeat.
func (s *Sampler) Sample(data []int, batchSize, blockSize int) (Batch, error) {
	if batchSize <= 0 || blockSize <= 0 {
		return Batch{}, fmt.Errorf("batch size %d and block size %d must be positive", batchSize, blockSize)
	}
	if len(data) <= blockSize {
		return Batch{}, fmt.Errorf("%w: %d tokens, need more than %d", ErrInsufficientData, len(data), blockSize)
	}

	b := Batch{
		Inputs:  make([][]int, batchSize),
		Targets: make([][]int, batchSize),
	}
	span := len(data) - blockSize
	for i := 0; i < batchSize; i++ {
		off := s.rng.IntN(span)
		b.Inputs[i] = append([]int(nil), data[off:off+blockSize]...)
		b.Targets[i] = append([]int(nil), data[off+1:off+blockSize+1]...)
	}
	return b, nil
}
