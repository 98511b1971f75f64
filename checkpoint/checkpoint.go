// Package checkpoint persists a trained bigram model with its vocabulary.
package checkpoint

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jokegpt/nn"
	"jokegpt/tokenizer"
)

const (
	ModelFile    = "model.gob"
	ManifestFile = "manifest.json"
)

// Manifest records how a model was trained.
type Manifest struct {
	CorpusPath     string    `json:"corpus_path"`
	CorpusHash     string    `json:"corpus_hash"`
	MaxLines       int       `json:"max_lines"`
	BatchSize      int       `json:"batch_size"`
	BlockSize      int       `json:"block_size"`
	MaxIters       int       `json:"max_iters"`
	LearningRate   float64   `json:"learning_rate"`
	Optimizer      string    `json:"optimizer"`
	VocabSize      int       `json:"vocab_size"`
	Seed           uint64    `json:"seed"`
	FinalTrainLoss float64   `json:"final_train_loss"`
	FinalLoss      float64   `json:"final_val_loss,omitempty"` // unset without a validation split
	TrainedAt      time.Time `json:"trained_at"`
}

type params struct {
	Chars []rune
	Table []float64
}

// Save writes the model, its vocabulary and the manifest into dir.
func Save(dir string, vocab *tokenizer.Vocabulary, model *nn.Bigram, m Manifest) error {
	if vocab.Size() != model.VocabSize() {
		return fmt.Errorf("vocabulary has %d characters but model expects %d", vocab.Size(), model.VocabSize())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	p := params{Chars: vocab.Chars(), Table: model.Table()}
	if err := writeFile(filepath.Join(dir, ModelFile), func(f *os.File) error {
		return gob.NewEncoder(f).Encode(p)
	}); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}

	m.VocabSize = vocab.Size()
	if err := writeFile(filepath.Join(dir, ManifestFile), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

// Load restores the vocabulary and model saved by Save.
func Load(dir string) (*tokenizer.Vocabulary, *nn.Bigram, error) {
	f, err := os.Open(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var p params
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", ModelFile, err)
	}
	vocab, err := tokenizer.NewVocabulary(p.Chars)
	if err != nil {
		return nil, nil, fmt.Errorf("restoring vocabulary: %w", err)
	}
	model, err := nn.BigramFromTable(vocab.Size(), p.Table)
	if err != nil {
		return nil, nil, fmt.Errorf("restoring model: %w", err)
	}
	return vocab, model, nil
}

// ReadManifest loads the manifest saved next to a model.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding %s: %w", ManifestFile, err)
	}
	return m, nil
}

func writeFile(path string, encode func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
