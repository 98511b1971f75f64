package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Softmax computes softmax probabilities from logits
func Softmax(logits []float64) []float64 {
	lse := floats.LogSumExp(logits)
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(v - lse)
	}
	return probs
}

// CrossEntropy is -log softmax(logits)[target].
func CrossEntropy(logits []float64, target int) float64 {
	return floats.LogSumExp(logits) - logits[target]
}

// SampleCategorical draws one index from a probability vector.
func SampleCategorical(probs []float64, src rand.Source) int {
	return int(distuv.NewCategorical(probs, src).Rand())
}

// OneHot flattens a (B,T) batch of token IDs into a [B*T x vocab] matrix.
func OneHot(ids [][]int, vocab int) *tensor.Dense {
	var n int
	for _, row := range ids {
		n += len(row)
	}
	backing := make([]float64, n*vocab)
	i := 0
	for _, row := range ids {
		for _, id := range row {
			backing[i*vocab+id] = 1
			i++
		}
	}
	return tensor.New(tensor.WithShape(n, vocab), tensor.WithBacking(backing))
}

// CrossEntropyNode adds the mean cross-entropy between logits [N x V] and
// one-hot targets [N x V] to g. The row sum of the picked log-probabilities
// goes through a ones vector so the graph needs no broadcasting.
func CrossEntropyNode(g *gorgonia.ExprGraph, logits, targets *gorgonia.Node) (*gorgonia.Node, error) {
	shp := logits.Shape()
	if len(shp) != 2 || !shp.Eq(targets.Shape()) {
		return nil, fmt.Errorf("%w: logits %v vs targets %v", ErrShapeMismatch, shp, targets.Shape())
	}
	v := shp[1]
	ones := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(v, 1),
		gorgonia.WithName("xent_ones"),
		gorgonia.WithValue(filled(v, 1, 1)),
	)

	logProbs, err := gorgonia.LogSoftMax(logits)
	if err != nil {
		return nil, err
	}
	picked, err := gorgonia.HadamardProd(logProbs, targets)
	if err != nil {
		return nil, err
	}
	pickedSum, err := gorgonia.Mul(picked, ones)
	if err != nil {
		return nil, err
	}
	nll, err := gorgonia.Neg(pickedSum)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mean(nll)
}

func filled(rows, cols int, v float64) *tensor.Dense {
	backing := make([]float64, rows*cols)
	for i := range backing {
		backing[i] = v
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}
