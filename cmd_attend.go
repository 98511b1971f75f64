package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"jokegpt/config"
	"jokegpt/nn"
	"jokegpt/tokenizer"
)

type attendOptions struct {
	text      string
	nEmbed    int
	headSize  int
	blockSize int
	seed      uint64
}

func newAttendCmd() *cobra.Command {
	def := config.Default()
	o := &attendOptions{}
	cmd := &cobra.Command{
		Use:   "attend",
		Short: "Print causal self-attention weights over a string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttend(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.text, "text", "", "Characters to attend over (required)")
	f.IntVar(&o.nEmbed, "n-embed", def.Train.NEmbed, "Embedding width")
	f.IntVar(&o.headSize, "head-size", def.Train.HeadSize, "Attention head size")
	f.IntVar(&o.blockSize, "block-size", 0, "Maximum context length (0 uses the text length)")
	f.Uint64Var(&o.seed, "seed", def.Seed, "Random seed")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func runAttend(cmd *cobra.Command, o *attendOptions) error {
	if o.nEmbed < 1 || o.headSize < 1 {
		return fmt.Errorf("n-embed and head-size must be positive, got %d and %d", o.nEmbed, o.headSize)
	}
	if o.blockSize < 0 {
		return fmt.Errorf("block-size must be positive, or 0 for the text length, got %d", o.blockSize)
	}
	vocab := tokenizer.Build(o.text)
	ids, err := vocab.Encode(o.text)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("text is empty")
	}
	block := o.blockSize
	if block == 0 {
		block = len(ids)
	}

	src := rand.NewPCG(o.seed, o.seed)
	emb := nn.NewEmbedding(vocab.Size(), o.nEmbed, src)
	head := nn.NewHead(o.nEmbed, o.headSize, block, src)
	klog.V(1).Infof("attending over %d characters: head size %d, block size %d", len(ids), head.HeadSize(), head.BlockSize())

	x, err := emb.Lookup([][]int{ids})
	if err != nil {
		return err
	}
	_, weights, err := head.ForwardWithWeights(x)
	if err != nil {
		return err
	}

	T := len(ids)
	w := weights.Data().([]float64)
	chars := []rune(o.text)
	var b strings.Builder
	b.WriteString("    ")
	for _, c := range chars {
		fmt.Fprintf(&b, " %6q", c)
	}
	b.WriteByte('\n')
	for i := 0; i < T; i++ {
		fmt.Fprintf(&b, "%-4q", chars[i])
		for j := 0; j < T; j++ {
			fmt.Fprintf(&b, " %6.3f", w[i*T+j])
		}
		b.WriteByte('\n')
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
	return err
}
