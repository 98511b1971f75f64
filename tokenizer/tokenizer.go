// Package tokenizer maps characters to integer token IDs and back.
package tokenizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnknownCharacter is returned by Encode for a character outside the vocabulary.
	ErrUnknownCharacter = errors.New("unknown character")
	// ErrUnknownToken is returned by Decode for an index outside the vocabulary.
	ErrUnknownToken = errors.New("unknown token")
)

// Vocabulary maps every character seen in a corpus to a small integer.
// Indices follow code point order, so the same corpus always produces
// the same mapping. A Vocabulary is never modified after construction.
type Vocabulary struct {
	toID   map[rune]int
	toChar []rune
}

// Build creates a character-level vocabulary from the corpus.
func Build(corpus string) *Vocabulary {
	seen := make(map[rune]struct{})
	for _, r := range corpus {
		seen[r] = struct{}{}
	}

	chars := make([]rune, 0, len(seen))
	for r := range seen {
		chars = append(chars, r)
	}
	slices.Sort(chars)

	v, _ := NewVocabulary(chars)
	return v
}

// NewVocabulary restores a vocabulary from its ordered character list,
// e.g. one saved next to a checkpoint.
func NewVocabulary(chars []rune) (*Vocabulary, error) {
	v := &Vocabulary{
		toID:   make(map[rune]int, len(chars)),
		toChar: slices.Clone(chars),
	}
	for i, r := range chars {
		if _, dup := v.toID[r]; dup {
			return nil, fmt.Errorf("duplicate character %q at index %d", r, i)
		}
		v.toID[r] = i
	}
	return v, nil
}

// Size returns the number of characters in the vocabulary.
func (v *Vocabulary) Size() int {
	return len(v.toChar)
}

// Chars returns the characters in index order.
func (v *Vocabulary) Chars() []rune {
	return slices.Clone(v.toChar)
}

// Encode converts text to token IDs.
func (v *Vocabulary) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for pos, r := range text {
		id, ok := v.toID[r]
		if !ok {
			return nil, fmt.Errorf("%w %q at byte %d", ErrUnknownCharacter, r, pos)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode converts token IDs back to text.
func (v *Vocabulary) Decode(ids []int) (string, error) {
	var sb strings.Builder
	sb.Grow(len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(v.toChar) {
			return "", fmt.Errorf("%w %d at position %d (vocab size %d)", ErrUnknownToken, id, i, len(v.toChar))
		}
		sb.WriteRune(v.toChar[id])
	}
	return sb.String(), nil
}
