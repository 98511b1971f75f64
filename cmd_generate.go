package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"jokegpt/checkpoint"
	"jokegpt/config"
)

type generateOptions struct {
	modelDir     string
	prompt       string
	maxNewTokens int
	samples      int
	seed         uint64
}

func newGenerateCmd() *cobra.Command {
	def := config.Default()
	o := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sample text from a trained model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.modelDir, "model", "", "Directory written by train (required)")
	f.StringVar(&o.prompt, "prompt", "", "Text to continue; empty starts from the first vocabulary character")
	f.IntVar(&o.maxNewTokens, "max-new-tokens", def.Generate.MaxNewTokens, "Characters to sample")
	f.IntVar(&o.samples, "samples", 1, "Independent samples to draw")
	f.Uint64Var(&o.seed, "seed", def.Seed, "Random seed")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runGenerate(cmd *cobra.Command, o *generateOptions) error {
	if o.samples < 1 {
		return fmt.Errorf("samples must be positive, got %d", o.samples)
	}
	vocab, model, err := checkpoint.Load(o.modelDir)
	if err != nil {
		return err
	}
	klog.V(1).Infof("loaded model from %s: vocabulary %d", o.modelDir, vocab.Size())

	prompt := []int{0}
	if o.prompt != "" {
		if prompt, err = vocab.Encode(o.prompt); err != nil {
			return fmt.Errorf("encoding prompt: %w", err)
		}
	}
	seed := make([][]int, o.samples)
	for i := range seed {
		seed[i] = prompt
	}

	out, err := model.Generate(seed, o.maxNewTokens, rand.NewPCG(o.seed, o.seed))
	if err != nil {
		return err
	}
	for i, ids := range out {
		text, err := vocab.Decode(ids)
		if err != nil {
			return err
		}
		if o.samples > 1 {
			fmt.Fprintf(cmd.OutOrStdout(), "--- sample %d ---\n", i+1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}
	return nil
}
