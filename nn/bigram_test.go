package nn

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

func TestBigramForwardShape(t *testing.T) {
	m := NewBigram(5, rand.NewPCG(1, 1))
	tokens := [][]int{{0, 1, 2}, {4, 3, 2}}

	logits, loss, err := m.Forward(tokens, nil)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !logits.Shape().Eq(tensor.Shape{2, 3, 5}) {
		t.Errorf("Expected shape (2,3,5), got %v", logits.Shape())
	}
	if loss != 0 {
		t.Errorf("Expected zero loss without targets, got %g", loss)
	}

	// Each position's logits are the table row of its token.
	table := m.Table()
	data := logits.Data().([]float64)
	for b, row := range tokens {
		for ti, id := range row {
			got := data[(b*3+ti)*5 : (b*3+ti+1)*5]
			if !slices.Equal(got, table[id*5:(id+1)*5]) {
				t.Errorf("Logits at (%d,%d) do not match table row %d", b, ti, id)
			}
		}
	}
}

func TestBigramLossMatchesUniform(t *testing.T) {
	const V = 4
	m, err := BigramFromTable(V, make([]float64, V*V))
	if err != nil {
		t.Fatal(err)
	}
	_, loss, err := m.Forward([][]int{{0, 1}, {2, 3}}, [][]int{{1, 2}, {3, 0}})
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if want := math.Log(V); math.Abs(loss-want) > 1e-12 {
		t.Errorf("Expected loss ln(%d)=%g for zero logits, got %g", V, want, loss)
	}
}

func TestBigramLossSanity(t *testing.T) {
	const V = 6
	m := NewBigram(V, rand.NewPCG(2, 2))
	table := m.Table()

	tokens := [][]int{{0, 1, 2}, {3, 4, 5}}
	best := make([][]int, len(tokens))
	worst := make([][]int, len(tokens))
	for b, row := range tokens {
		for _, id := range row {
			r := table[id*V : (id+1)*V]
			best[b] = append(best[b], floats.MaxIdx(r))
			worst[b] = append(worst[b], floats.MinIdx(r))
		}
	}

	_, good, err := m.Forward(tokens, best)
	if err != nil {
		t.Fatal(err)
	}
	_, bad, err := m.Forward(tokens, worst)
	if err != nil {
		t.Fatal(err)
	}
	if !(good < bad) {
		t.Errorf("Expected loss on highest-logit targets (%g) below adversarial targets (%g)", good, bad)
	}
}

func TestBigramForwardErrors(t *testing.T) {
	m := NewBigram(3, rand.NewPCG(3, 3))

	tests := []struct {
		name    string
		tokens  [][]int
		targets [][]int
		want    error
	}{
		{"targets shorter", [][]int{{0, 1}}, [][]int{{1}}, ErrShapeMismatch},
		{"targets extra row", [][]int{{0, 1}}, [][]int{{1, 2}, {0, 0}}, ErrShapeMismatch},
		{"ragged tokens", [][]int{{0, 1}, {2}}, nil, ErrShapeMismatch},
		{"empty", [][]int{}, nil, ErrShapeMismatch},
		{"token out of range", [][]int{{0, 3}}, nil, ErrTokenOutOfRange},
		{"target out of range", [][]int{{0, 1}}, [][]int{{1, -1}}, ErrTokenOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.Forward(tt.tokens, tt.targets)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBigramGenerate(t *testing.T) {
	m := NewBigram(7, rand.NewPCG(4, 4))
	seed := [][]int{{0}, {3}}

	out, err := m.Generate(seed, 25, rand.NewPCG(99, 1))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for b, row := range out {
		if len(row) != 26 {
			t.Fatalf("Row %d: expected 26 tokens, got %d", b, len(row))
		}
		if row[0] != seed[b][0] {
			t.Errorf("Row %d: seed token changed to %d", b, row[0])
		}
		for _, id := range row {
			if id < 0 || id >= 7 {
				t.Errorf("Row %d: token %d out of range", b, id)
			}
		}
	}
	if len(seed[0]) != 1 {
		t.Error("Generate modified its seed")
	}
}

func TestBigramGenerateDeterministic(t *testing.T) {
	m := NewBigram(10, rand.NewPCG(5, 5))
	seed := [][]int{{1, 2}}

	a, err := m.Generate(seed, 100, rand.NewPCG(1337, 0))
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Generate(seed, 100, rand.NewPCG(1337, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(a[0], b[0]) {
		t.Errorf("Expected identical output for identical seeds:\n%v\n%v", a[0], b[0])
	}
}

func TestBigramGenerateFollowsPeakedTable(t *testing.T) {
	// Token i almost surely follows with (i+1) mod V.
	const V = 4
	table := make([]float64, V*V)
	for i := 0; i < V; i++ {
		for j := 0; j < V; j++ {
			table[i*V+j] = -50
		}
		table[i*V+(i+1)%V] = 50
	}
	m, err := BigramFromTable(V, table)
	if err != nil {
		t.Fatal(err)
	}

	out, err := m.Generate([][]int{{0}}, 8, rand.NewPCG(6, 6))
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{0, 1, 2, 3, 0, 1, 2, 3, 0}; !slices.Equal(out[0], want) {
		t.Errorf("Expected %v, got %v", want, out[0])
	}
}

func TestBigramGenerateZeroTokens(t *testing.T) {
	m := NewBigram(3, rand.NewPCG(7, 7))
	out, err := m.Generate([][]int{{2}}, 0, rand.NewPCG(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(out[0], []int{2}) {
		t.Errorf("Expected seed unchanged, got %v", out[0])
	}

	if _, err := m.Generate([][]int{{2}}, -1, rand.NewPCG(1, 1)); err == nil {
		t.Error("Expected error for negative token count")
	}
}

func TestBigramFromTableRejectsBadSize(t *testing.T) {
	if _, err := BigramFromTable(3, make([]float64, 8)); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float64{1000, 999, -1000, 0})
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("Expected sum 1, got %g", sum)
	}
	if probs[0] <= probs[1] {
		t.Errorf("Expected larger logit to get larger probability: %v", probs)
	}
}
