package main

import (
	"flag"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	if err := newRootCmd().Execute(); err != nil {
		klog.Flush()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jokegpt",
		Short: "Character-level joke generator",
		Long: "jokegpt trains a character-level bigram model on a reddit jokes dump,\n" +
			"samples new text from it, and demonstrates a causal self-attention head.",
		SilenceUsage: true,
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.AddCommand(newTrainCmd(), newGenerateCmd(), newAttendCmd())
	return root
}
