package data

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestSampleShapes(t *testing.T) {
	corpus := make([]int, 100)
	for i := range corpus {
		corpus[i] = i
	}
	s := NewSampler(rand.NewPCG(1337, 0))

	tests := []struct{ batch, block int }{
		{1, 1},
		{4, 8},
		{32, 8},
		{3, 99},
	}
	for _, tt := range tests {
		b, err := s.Sample(corpus, tt.batch, tt.block)
		if err != nil {
			t.Fatalf("Sample(%d, %d) failed: %v", tt.batch, tt.block, err)
		}
		if bs, ts := b.Size(); bs != tt.batch || ts != tt.block {
			t.Fatalf("Expected shape (%d,%d), got (%d,%d)", tt.batch, tt.block, bs, ts)
		}
		for i := range b.Inputs {
			if len(b.Targets[i]) != tt.block {
				t.Fatalf("Expected target length %d, got %d", tt.block, len(b.Targets[i]))
			}
			// Corpus values equal their offsets, so each target is its input + 1.
			if !slices.Equal(b.Inputs[i][1:], b.Targets[i][:tt.block-1]) {
				t.Errorf("Targets %v are not inputs %v shifted by one", b.Targets[i], b.Inputs[i])
			}
			last := b.Inputs[i][tt.block-1]
			if b.Targets[i][tt.block-1] != corpus[last+1] {
				t.Errorf("Expected trailing target %d, got %d", corpus[last+1], b.Targets[i][tt.block-1])
			}
		}
	}
}

func TestSampleInsufficientData(t *testing.T) {
	s := NewSampler(rand.NewPCG(1, 2))

	for _, n := range []int{0, 5, 8} {
		_, err := s.Sample(make([]int, n), 4, 8)
		if !errors.Is(err, ErrInsufficientData) {
			t.Errorf("len %d: expected ErrInsufficientData, got %v", n, err)
		}
	}

	if _, err := s.Sample(make([]int, 9), 4, 8); err != nil {
		t.Errorf("len 9 should be enough for block 8: %v", err)
	}
}

func TestSampleOffsetsCoverRange(t *testing.T) {
	corpus := []int{0, 1, 2, 3, 4}
	s := NewSampler(rand.NewPCG(7, 7))

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		b, err := s.Sample(corpus, 4, 2)
		if err != nil {
			t.Fatal(err)
		}
		for _, in := range b.Inputs {
			seen[in[0]] = true
		}
	}
	// Valid offsets are 0, 1 and 2; offset 3 would leave no target.
	for off := 0; off < 3; off++ {
		if !seen[off] {
			t.Errorf("Offset %d never drawn", off)
		}
	}
	if seen[3] || seen[4] {
		t.Error("Drew an offset past len(data)-blockSize")
	}
}

func TestSampleDeterministic(t *testing.T) {
	corpus := make([]int, 50)
	for i := range corpus {
		corpus[i] = i % 7
	}

	a := NewSampler(rand.NewPCG(42, 1))
	b := NewSampler(rand.NewPCG(42, 1))
	for i := 0; i < 5; i++ {
		ba, _ := a.Sample(corpus, 4, 8)
		bb, _ := b.Sample(corpus, 4, 8)
		for j := range ba.Inputs {
			if !slices.Equal(ba.Inputs[j], bb.Inputs[j]) {
				t.Fatalf("Draw %d differs between identically seeded samplers", i)
			}
		}
	}
}
