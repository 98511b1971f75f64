package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"jokegpt/checkpoint"
	"jokegpt/config"
	"jokegpt/corpus"
	"jokegpt/data"
	"jokegpt/nn"
	"jokegpt/tokenizer"
	"jokegpt/train"
)

type trainOptions struct {
	configPath string
	out        string
	progress   bool
	flags      *config.Config // flag values, applied over the config file when set
}

// flagOverrides copies an explicitly set flag from src onto dst.
var flagOverrides = map[string]func(dst, src *config.Config){
	"corpus":         func(d, s *config.Config) { d.Corpus.Path = s.Corpus.Path },
	"max-lines":      func(d, s *config.Config) { d.Corpus.MaxLines = s.Corpus.MaxLines },
	"train-frac":     func(d, s *config.Config) { d.Corpus.TrainFrac = s.Corpus.TrainFrac },
	"batch-size":     func(d, s *config.Config) { d.Train.BatchSize = s.Train.BatchSize },
	"block-size":     func(d, s *config.Config) { d.Train.BlockSize = s.Train.BlockSize },
	"max-iters":      func(d, s *config.Config) { d.Train.MaxIters = s.Train.MaxIters },
	"eval-interval":  func(d, s *config.Config) { d.Train.EvalInterval = s.Train.EvalInterval },
	"eval-iters":     func(d, s *config.Config) { d.Train.EvalIters = s.Train.EvalIters },
	"lr":             func(d, s *config.Config) { d.Train.LearningRate = s.Train.LearningRate },
	"optimizer":      func(d, s *config.Config) { d.Train.Optimizer = s.Train.Optimizer },
	"max-new-tokens": func(d, s *config.Config) { d.Generate.MaxNewTokens = s.Generate.MaxNewTokens },
	"seed":           func(d, s *config.Config) { d.Seed = s.Seed },
}

func newTrainCmd() *cobra.Command {
	o := &trainOptions{flags: config.Default()}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a bigram model on a joke dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return runTrain(cmd, cfg, o)
		},
	}

	o.addFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (o *trainOptions) addFlags(f *pflag.FlagSet) {
	f.StringVar(&o.configPath, "config", "", "JSON config file; flags override its values")
	f.StringVar(&o.out, "out", "", "Output directory for the model (required)")
	f.BoolVar(&o.progress, "progress", true, "Show a progress bar on stderr")
	f.StringVar(&o.flags.Corpus.Path, "corpus", o.flags.Corpus.Path, "Path to the jokes JSON file")
	f.IntVar(&o.flags.Corpus.MaxLines, "max-lines", o.flags.Corpus.MaxLines, "Lines of assembled text to keep (0 keeps all)")
	f.Float64Var(&o.flags.Corpus.TrainFrac, "train-frac", o.flags.Corpus.TrainFrac, "Share of tokens used for training")
	f.IntVar(&o.flags.Train.BatchSize, "batch-size", o.flags.Train.BatchSize, "Sequences per training step")
	f.IntVar(&o.flags.Train.BlockSize, "block-size", o.flags.Train.BlockSize, "Context length")
	f.IntVar(&o.flags.Train.MaxIters, "max-iters", o.flags.Train.MaxIters, "Optimizer steps")
	f.IntVar(&o.flags.Train.EvalInterval, "eval-interval", o.flags.Train.EvalInterval, "Steps between loss estimates")
	f.IntVar(&o.flags.Train.EvalIters, "eval-iters", o.flags.Train.EvalIters, "Batches per loss estimate")
	f.Float64Var(&o.flags.Train.LearningRate, "lr", o.flags.Train.LearningRate, "Learning rate")
	f.StringVar(&o.flags.Train.Optimizer, "optimizer", o.flags.Train.Optimizer, "Optimizer: adam or sgd")
	f.IntVar(&o.flags.Generate.MaxNewTokens, "max-new-tokens", o.flags.Generate.MaxNewTokens, "Characters sampled after training")
	f.Uint64Var(&o.flags.Seed, "seed", o.flags.Seed, "Random seed")
}

// resolve layers explicitly set flags over the config file, or the defaults.
func (o *trainOptions) resolve(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := flagOverrides[f.Name]; ok {
			apply(cfg, o.flags)
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runTrain(cmd *cobra.Command, cfg *config.Config, o *trainOptions) error {
	klog.Infof("loading corpus from %s", cfg.Corpus.Path)
	jokes, err := corpus.LoadFile(cfg.Corpus.Path)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	text := corpus.Assemble(jokes, cfg.Corpus.MaxLines)
	if text == "" {
		return errors.New("corpus has no jokes with both a title and a body")
	}
	hash := corpus.Fingerprint(text)
	klog.Infof("corpus: %d jokes, %d characters, hash %s", len(jokes), len(text), hash)

	vocab := tokenizer.Build(text)
	tokens, err := vocab.Encode(text)
	if err != nil {
		return err
	}
	trainTokens, valTokens := corpus.Split(tokens, cfg.Corpus.TrainFrac)
	klog.Infof("vocabulary: %d characters; tokens: %d train, %d val", vocab.Size(), len(trainTokens), len(valTokens))

	// One generator, seeded once, feeds initialisation, batches and sampling.
	src := rand.NewPCG(cfg.Seed, cfg.Seed)
	model := nn.NewBigram(vocab.Size(), src)

	var opts []train.Option
	if o.progress {
		opts = append(opts, train.WithProgress(os.Stderr))
	}
	trainer, err := train.New(model, data.NewSampler(src), trainTokens, valTokens, cfg.Train, opts...)
	if err != nil {
		return err
	}
	report, err := trainer.Run()
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}
	final := report.Final()
	klog.Infof("training complete: train loss %.4f, val loss %.4f, perplexity %.2f",
		final.TrainLoss, final.ValLoss, final.Perplexity)

	manifest := checkpoint.Manifest{
		CorpusPath:     cfg.Corpus.Path,
		CorpusHash:     hash,
		MaxLines:       cfg.Corpus.MaxLines,
		BatchSize:      cfg.Train.BatchSize,
		BlockSize:      cfg.Train.BlockSize,
		MaxIters:       cfg.Train.MaxIters,
		LearningRate:   cfg.Train.LearningRate,
		Optimizer:      cfg.Train.Optimizer,
		Seed:           cfg.Seed,
		FinalTrainLoss: final.TrainLoss,
		FinalLoss:      final.ValLoss,
		TrainedAt:      time.Now().UTC(),
	}
	if err := checkpoint.Save(o.out, vocab, model, manifest); err != nil {
		return err
	}
	if err := report.WriteJSON(filepath.Join(o.out, train.MetricsFile)); err != nil {
		return fmt.Errorf("saving metrics: %w", err)
	}
	klog.Infof("model saved to %s", o.out)

	out, err := model.Generate([][]int{{0}}, cfg.Generate.MaxNewTokens, src)
	if err != nil {
		return err
	}
	sample, err := vocab.Decode(out[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sample)
	return nil
}
