package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrSequenceTooLong is returned when T exceeds the head's block size.
var ErrSequenceTooLong = errors.New("sequence too long")

// Head is a single causal self-attention head. The three projections
// have no bias; tril is the fixed lower-triangular mask.
type Head struct {
	embedDim, headSize, blockSize int

	query, key, value *tensor.Dense // [embedDim x headSize]
	tril              *tensor.Dense // [blockSize x blockSize]
}

// HeadNodes are the projections bound to one graph.
type HeadNodes struct {
	Query, Key, Value *gorgonia.Node
}

// NewHead initialises the projections uniformly in ±1/sqrt(embedDim).
func NewHead(embedDim, headSize, blockSize int, src rand.Source) *Head {
	rng := rand.New(src)
	bound := 1 / math.Sqrt(float64(embedDim))
	proj := func() *tensor.Dense {
		w := make([]float64, embedDim*headSize)
		for i := range w {
			w[i] = (2*rng.Float64() - 1) * bound
		}
		return tensor.New(tensor.WithShape(embedDim, headSize), tensor.WithBacking(w))
	}

	tril := make([]float64, blockSize*blockSize)
	for i := 0; i < blockSize; i++ {
		for j := 0; j <= i; j++ {
			tril[i*blockSize+j] = 1
		}
	}

	return &Head{
		embedDim:  embedDim,
		headSize:  headSize,
		blockSize: blockSize,
		key:       proj(),
		query:     proj(),
		value:     proj(),
		tril:      tensor.New(tensor.WithShape(blockSize, blockSize), tensor.WithBacking(tril)),
	}
}

func (h *Head) HeadSize() int  { return h.headSize }
func (h *Head) BlockSize() int { return h.blockSize }

// Learnables binds the query, key and value projections to g.
func (h *Head) Learnables(g *gorgonia.ExprGraph) HeadNodes {
	bind := func(name string, w *tensor.Dense) *gorgonia.Node {
		return gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(h.embedDim, h.headSize),
			gorgonia.WithName(name),
			gorgonia.WithValue(w),
		)
	}
	return HeadNodes{
		Query: bind("head_query", h.query),
		Key:   bind("head_key", h.key),
		Value: bind("head_value", h.value),
	}
}

// Attend adds attention over one sequence x [T x embedDim] to g and
// returns the output [T x headSize] and the weights [T x T].
func (h *Head) Attend(g *gorgonia.ExprGraph, x *gorgonia.Node, p HeadNodes) (out, weights *gorgonia.Node, err error) {
	shp := x.Shape()
	if len(shp) != 2 || shp[1] != h.embedDim {
		return nil, nil, fmt.Errorf("%w: input %v, want [T x %d]", ErrShapeMismatch, shp, h.embedDim)
	}
	T := shp[0]
	if T > h.blockSize {
		return nil, nil, fmt.Errorf("%w: T=%d exceeds block size %d", ErrSequenceTooLong, T, h.blockSize)
	}

	q, err := gorgonia.Mul(x, p.Query)
	if err != nil {
		return nil, nil, err
	}
	k, err := gorgonia.Mul(x, p.Key)
	if err != nil {
		return nil, nil, err
	}
	kT, err := gorgonia.Transpose(k)
	if err != nil {
		return nil, nil, err
	}
	raw, err := gorgonia.Mul(q, kT)
	if err != nil {
		return nil, nil, err
	}

	scale := constant(g, "scale", filled(T, T, 1/math.Sqrt(float64(h.headSize))))
	scaled, err := gorgonia.HadamardProd(raw, scale)
	if err != nil {
		return nil, nil, err
	}
	scores, err := gorgonia.Add(scaled, constant(g, "causal_mask", h.mask(T)))
	if err != nil {
		return nil, nil, err
	}

	// Row softmax. The diagonal is never masked, so every row has a finite
	// max and the -Inf entries come out as exactly 0.
	weights, err = gorgonia.SoftMax(scores)
	if err != nil {
		return nil, nil, err
	}

	v, err := gorgonia.Mul(x, p.Value)
	if err != nil {
		return nil, nil, err
	}
	out, err = gorgonia.Mul(weights, v)
	if err != nil {
		return nil, nil, err
	}
	return out, weights, nil
}

// Forward maps x of shape (B,T,embedDim) to (B,T,headSize).
func (h *Head) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	out, _, err := h.ForwardWithWeights(x)
	return out, err
}

// ForwardWithWeights also returns the attention weights, shape (B,T,T).
func (h *Head) ForwardWithWeights(x *tensor.Dense) (*tensor.Dense, *tensor.Dense, error) {
	shp := x.Shape()
	if len(shp) != 3 || shp[0] == 0 || shp[1] == 0 || shp[2] != h.embedDim {
		return nil, nil, fmt.Errorf("%w: input %v, want (B,T,%d)", ErrShapeMismatch, shp, h.embedDim)
	}
	B, T, C := shp[0], shp[1], shp[2]
	if T > h.blockSize {
		return nil, nil, fmt.Errorf("%w: T=%d exceeds block size %d", ErrSequenceTooLong, T, h.blockSize)
	}
	data, ok := x.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("%w: input dtype %v, want float64", ErrShapeMismatch, x.Dtype())
	}

	g := gorgonia.NewGraph()
	p := h.Learnables(g)
	outs := make([]gorgonia.Value, B)
	ws := make([]gorgonia.Value, B)
	for b := 0; b < B; b++ {
		seq := append([]float64(nil), data[b*T*C:(b+1)*T*C]...)
		xb := gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(T, C),
			gorgonia.WithName(fmt.Sprintf("x_%d", b)),
			gorgonia.WithValue(tensor.New(tensor.WithShape(T, C), tensor.WithBacking(seq))),
		)
		out, w, err := h.Attend(g, xb, p)
		if err != nil {
			return nil, nil, err
		}
		gorgonia.Read(out, &outs[b])
		gorgonia.Read(w, &ws[b])
	}

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("attention forward: %w", err)
	}

	outData := make([]float64, 0, B*T*h.headSize)
	wData := make([]float64, 0, B*T*T)
	for b := 0; b < B; b++ {
		outData = append(outData, outs[b].Data().([]float64)...)
		wData = append(wData, ws[b].Data().([]float64)...)
	}
	return tensor.New(tensor.WithShape(B, T, h.headSize), tensor.WithBacking(outData)),
		tensor.New(tensor.WithShape(B, T, T), tensor.WithBacking(wData)),
		nil
}

// mask restricts tril to its first T rows and columns as an additive
// mask: 0 where attention is allowed, -Inf for future positions.
func (h *Head) mask(T int) *tensor.Dense {
	tril := h.tril.Data().([]float64)
	m := make([]float64, T*T)
	for i := 0; i < T; i++ {
		for j := 0; j < T; j++ {
			if tril[i*h.blockSize+j] == 0 {
				m[i*T+j] = math.Inf(-1)
			}
		}
	}
	return tensor.New(tensor.WithShape(T, T), tensor.WithBacking(m))
}

func constant(g *gorgonia.ExprGraph, name string, v *tensor.Dense) *gorgonia.Node {
	shp := v.Shape()
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(shp[0], shp[1]),
		gorgonia.WithName(name),
		gorgonia.WithValue(v),
	)
}
