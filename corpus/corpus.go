// Package corpus turns the reddit jokes dump into one training text.
package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultMaxLines is the number of lines kept from the assembled corpus.
const DefaultMaxLines = 50000

// Joke is one entry of the dataset. Missing fields decode as nil.
type Joke struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

// Decode reads a JSON array of jokes.
func Decode(r io.Reader) ([]Joke, error) {
	var jokes []Joke
	if err := json.NewDecoder(r).Decode(&jokes); err != nil {
		return nil, fmt.Errorf("decoding jokes: %w", err)
	}
	return jokes, nil
}

// LoadFile reads a joke dataset from disk.
func LoadFile(path string) ([]Joke, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	jokes, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jokes, nil
}

// Lines emits title, body and a blank separator for every joke that has
// both fields non-empty after trimming. Entry order is preserved.
func Lines(jokes []Joke) []string {
	var lines []string
	for _, j := range jokes {
		if j.Title == nil || j.Body == nil {
			continue
		}
		title := strings.TrimSpace(*j.Title)
		body := strings.TrimSpace(*j.Body)
		if title == "" || body == "" {
			continue
		}
		lines = append(lines, title, body, "")
	}
	return lines
}

// Assemble joins the first maxLines lines with newlines.
// A non-positive maxLines keeps everything.
func Assemble(jokes []Joke, maxLines int) string {
	lines := Lines(jokes)
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}

// Split divides tokens into a leading training part holding frac of the
// data and a trailing validation part.
func Split(tokens []int, frac float64) (train, val []int) {
	n := int(frac * float64(len(tokens)))
	n = max(0, min(n, len(tokens)))
	return tokens[:n], tokens[n:]
}

// Fingerprint identifies a corpus in checkpoint manifests.
func Fingerprint(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}
