package corpus

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const sample = `[
  {"title": "ab", "body": "ba", "id": "1", "score": 3},
  {"title": "no body", "id": "2"},
  {"body": "no title"},
  {"title": "   ", "body": "blank title"},
  {"title": "  Knock knock ", "body": "\tWho's there?\n"}
]`

func TestDecodeAndLines(t *testing.T) {
	jokes, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(jokes) != 5 {
		t.Fatalf("Expected 5 jokes, got %d", len(jokes))
	}

	want := []string{"ab", "ba", "", "Knock knock", "Who's there?", ""}
	if got := Lines(jokes); !slices.Equal(got, want) {
		t.Errorf("Expected lines %q, got %q", want, got)
	}
}

func TestAssemble(t *testing.T) {
	jokes, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	tests := []struct {
		maxLines int
		want     string
	}{
		{0, "ab\nba\n\nKnock knock\nWho's there?\n"},
		{3, "ab\nba\n"},
		{1, "ab"},
		{100, "ab\nba\n\nKnock knock\nWho's there?\n"},
	}
	for _, tt := range tests {
		if got := Assemble(jokes, tt.maxLines); got != tt.want {
			t.Errorf("Assemble(maxLines=%d) = %q, want %q", tt.maxLines, got, tt.want)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"title": "not an array"}`)); err == nil {
		t.Fatal("Expected error for non-array input")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jokes.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	jokes, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(Lines(jokes)) != 6 {
		t.Errorf("Expected 6 lines, got %d", len(Lines(jokes)))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSplit(t *testing.T) {
	tokens := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	train, val := Split(tokens, 0.9)
	if len(train) != 9 || len(val) != 1 {
		t.Errorf("Expected 9/1 split, got %d/%d", len(train), len(val))
	}

	train, val = Split(tokens, 1)
	if len(train) != 10 || len(val) != 0 {
		t.Errorf("Expected 10/0 split, got %d/%d", len(train), len(val))
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("abc") != Fingerprint("abc") {
		t.Error("Expected stable fingerprint")
	}
	if Fingerprint("abc") == Fingerprint("abd") {
		t.Error("Expected different fingerprints for different corpora")
	}
}
