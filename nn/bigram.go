// Package nn holds the character models: a bigram lookup table and a
// single causal self-attention head.
package nn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	// ErrShapeMismatch is returned when two inputs disagree on shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrTokenOutOfRange is returned for token IDs outside [0, vocab size).
	ErrTokenOutOfRange = errors.New("token out of range")
)

// Bigram predicts the next character from the current one alone. Row i of
// the table holds the next-token logits for token i.
type Bigram struct {
	vocab int
	table *tensor.Dense // [vocab x vocab]
}

// NewBigram creates a model with N(0,1) logits.
func NewBigram(vocabSize int, src rand.Source) *Bigram {
	rng := rand.New(src)
	backing := make([]float64, vocabSize*vocabSize)
	for i := range backing {
		backing[i] = rng.NormFloat64()
	}
	return &Bigram{
		vocab: vocabSize,
		table: tensor.New(tensor.WithShape(vocabSize, vocabSize), tensor.WithBacking(backing)),
	}
}

// BigramFromTable restores a model from a row-major vocab x vocab table.
func BigramFromTable(vocabSize int, table []float64) (*Bigram, error) {
	if vocabSize <= 0 || len(table) != vocabSize*vocabSize {
		return nil, fmt.Errorf("%w: table of %d values for vocab size %d", ErrShapeMismatch, len(table), vocabSize)
	}
	backing := append([]float64(nil), table...)
	return &Bigram{
		vocab: vocabSize,
		table: tensor.New(tensor.WithShape(vocabSize, vocabSize), tensor.WithBacking(backing)),
	}, nil
}

func (m *Bigram) VocabSize() int { return m.vocab }

// Table returns a copy of the parameters in row-major order.
func (m *Bigram) Table() []float64 {
	return append([]float64(nil), m.weights()...)
}

// SetTable overwrites the parameters, e.g. after a solver step.
func (m *Bigram) SetTable(table []float64) error {
	w := m.weights()
	if len(table) != len(w) {
		return fmt.Errorf("%w: got %d values, want %d", ErrShapeMismatch, len(table), len(w))
	}
	copy(w, table)
	return nil
}

func (m *Bigram) weights() []float64 {
	return m.table.Data().([]float64)
}

// Learnable binds the table to a node of g for gradient-based training.
func (m *Bigram) Learnable(g *gorgonia.ExprGraph) *gorgonia.Node {
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(m.vocab, m.vocab),
		gorgonia.WithName("bigram_table"),
		gorgonia.WithValue(m.table),
	)
}

// Logits maps one-hot rows x [N x vocab] through the table node.
func (m *Bigram) Logits(x, table *gorgonia.Node) (*gorgonia.Node, error) {
	logits, err := gorgonia.Mul(x, table)
	if err != nil {
		return nil, fmt.Errorf("bigram lookup: %w", err)
	}
	return logits, nil
}

// Forward returns logits of shape (B,T,vocab). When targets is non-nil the
// mean cross-entropy over all B*T positions is returned as well.
func (m *Bigram) Forward(tokens, targets [][]int) (*tensor.Dense, float64, error) {
	B, T, err := m.checkTokens(tokens)
	if err != nil {
		return nil, 0, err
	}
	if targets != nil {
		tb, tt, err := m.checkTokens(targets)
		if err != nil {
			return nil, 0, fmt.Errorf("targets: %w", err)
		}
		if tb != B || tt != T {
			return nil, 0, fmt.Errorf("%w: targets (%d,%d) vs tokens (%d,%d)", ErrShapeMismatch, tb, tt, B, T)
		}
	}

	w := m.weights()
	out := make([]float64, B*T*m.vocab)
	for b, row := range tokens {
		for t, id := range row {
			dst := out[(b*T+t)*m.vocab : (b*T+t+1)*m.vocab]
			copy(dst, w[id*m.vocab:(id+1)*m.vocab])
		}
	}
	logits := tensor.New(tensor.WithShape(B, T, m.vocab), tensor.WithBacking(out))

	if targets == nil {
		return logits, 0, nil
	}

	var loss float64
	for b, row := range targets {
		for t, target := range row {
			loss += CrossEntropy(out[(b*T+t)*m.vocab:(b*T+t+1)*m.vocab], target)
		}
	}
	return logits, loss / float64(B*T), nil
}

// Generate extends every sequence in seed by exactly maxNewTokens tokens,
// sampling each one from the softmax of the last position's logits.
func (m *Bigram) Generate(seed [][]int, maxNewTokens int, src rand.Source) ([][]int, error) {
	if maxNewTokens < 0 {
		return nil, fmt.Errorf("max new tokens must be non-negative, got %d", maxNewTokens)
	}
	if _, _, err := m.checkTokens(seed); err != nil {
		return nil, err
	}

	seqs := make([][]int, len(seed))
	for i, s := range seed {
		seqs[i] = append(make([]int, 0, len(s)+maxNewTokens), s...)
	}

	for step := 0; step < maxNewTokens; step++ {
		logits, _, err := m.Forward(seqs, nil)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		data := logits.Data().([]float64)
		T := len(seqs[0])
		for b := range seqs {
			last := data[(b*T+T-1)*m.vocab : (b*T+T)*m.vocab]
			seqs[b] = append(seqs[b], SampleCategorical(Softmax(last), src))
		}
	}
	return seqs, nil
}

func (m *Bigram) checkTokens(tokens [][]int) (int, int, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return 0, 0, fmt.Errorf("%w: empty token batch", ErrShapeMismatch)
	}
	T := len(tokens[0])
	for b, row := range tokens {
		if len(row) != T {
			return 0, 0, fmt.Errorf("%w: row %d has length %d, want %d", ErrShapeMismatch, b, len(row), T)
		}
		for t, id := range row {
			if id < 0 || id >= m.vocab {
				return 0, 0, fmt.Errorf("%w: %d at (%d,%d), vocab size %d", ErrTokenOutOfRange, id, b, t, m.vocab)
			}
		}
	}
	return len(tokens), T, nil
}
