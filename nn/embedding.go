package nn

import (
	"fmt"
	"math/rand/v2"

	"gorgonia.org/tensor"
)

// Embedding maps token IDs to dense vectors.
type Embedding struct {
	vocab, dim int
	weights    *tensor.Dense // [vocab x dim]
}

func NewEmbedding(vocab, dim int, src rand.Source) *Embedding {
	rng := rand.New(src)
	w := make([]float64, vocab*dim)
	for i := range w {
		w[i] = rng.NormFloat64()
	}
	return &Embedding{
		vocab:   vocab,
		dim:     dim,
		weights: tensor.New(tensor.WithShape(vocab, dim), tensor.WithBacking(w)),
	}
}

func (e *Embedding) Dim() int { return e.dim }

// Lookup turns a (B,T) batch of token IDs into a (B,T,dim) tensor.
func (e *Embedding) Lookup(tokens [][]int) (*tensor.Dense, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("%w: empty token batch", ErrShapeMismatch)
	}
	B, T := len(tokens), len(tokens[0])
	w := e.weights.Data().([]float64)
	out := make([]float64, 0, B*T*e.dim)
	for b, row := range tokens {
		if len(row) != T {
			return nil, fmt.Errorf("%w: row %d has length %d, want %d", ErrShapeMismatch, b, len(row), T)
		}
		for _, id := range row {
			if id < 0 || id >= e.vocab {
				return nil, fmt.Errorf("%w: %d, vocab size %d", ErrTokenOutOfRange, id, e.vocab)
			}
			out = append(out, w[id*e.dim:(id+1)*e.dim]...)
		}
	}
	return tensor.New(tensor.WithShape(B, T, e.dim), tensor.WithBacking(out)), nil
}
