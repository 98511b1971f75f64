// Package train runs the bigram training loop on a gorgonia graph.
package train

import (
	"fmt"
	"io"
	"math"

	"github.com/schollz/progressbar/v3"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"

	"jokegpt/config"
	"jokegpt/data"
	"jokegpt/nn"
)

// Trainer owns one model and the token splits it learns from.
type Trainer struct {
	model    *nn.Bigram
	sampler  *data.Sampler
	cfg      config.TrainConfig
	train    []int
	val      []int
	progress io.Writer
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithProgress draws a progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(t *Trainer) {
		t.progress = w
	}
}

// New creates a trainer. The sampler's source must already be seeded;
// the trainer draws every batch, training and evaluation, from it.
func New(model *nn.Bigram, sampler *data.Sampler, train, val []int, cfg config.TrainConfig, opts ...Option) (*Trainer, error) {
	if len(train) <= cfg.BlockSize {
		return nil, fmt.Errorf("training split: %w: %d tokens for block size %d", data.ErrInsufficientData, len(train), cfg.BlockSize)
	}
	if len(val) > 0 && len(val) <= cfg.BlockSize {
		return nil, fmt.Errorf("validation split: %w: %d tokens for block size %d", data.ErrInsufficientData, len(val), cfg.BlockSize)
	}
	t := &Trainer{
		model:   model,
		sampler: sampler,
		cfg:     cfg,
		train:   train,
		val:     val,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Run performs exactly MaxIters optimizer steps. Losses are estimated
// every EvalInterval steps and once more at the end; they are reported,
// never used to stop early.
func (t *Trainer) Run() (*Report, error) {
	cfg := t.cfg
	vocab := t.model.VocabSize()
	n := cfg.BatchSize * cfg.BlockSize

	g := gorgonia.NewGraph()
	x := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(n, vocab), gorgonia.WithName("inputs"))
	y := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(n, vocab), gorgonia.WithName("targets"))
	table := t.model.Learnable(g)

	logits, err := t.model.Logits(x, table)
	if err != nil {
		return nil, err
	}
	cost, err := nn.CrossEntropyNode(g, logits, y)
	if err != nil {
		return nil, fmt.Errorf("building loss: %w", err)
	}
	if _, err := gorgonia.Grad(cost, table); err != nil {
		return nil, fmt.Errorf("differentiating loss: %w", err)
	}
	var costVal gorgonia.Value
	gorgonia.Read(cost, &costVal)

	learnables := gorgonia.Nodes{table}
	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...))
	defer vm.Close()
	solver := newSolver(cfg)

	var bar *progressbar.ProgressBar
	if t.progress != nil {
		bar = progressbar.NewOptions(cfg.MaxIters,
			progressbar.OptionSetWriter(t.progress),
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	report := &Report{}
	for iter := 0; iter < cfg.MaxIters; iter++ {
		if iter%cfg.EvalInterval == 0 {
			if err := t.evaluate(iter, table, report); err != nil {
				return nil, err
			}
		}

		batch, err := t.sampler.Sample(t.train, cfg.BatchSize, cfg.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", iter, err)
		}
		if err := gorgonia.Let(x, nn.OneHot(batch.Inputs, vocab)); err != nil {
			return nil, fmt.Errorf("step %d: setting inputs: %w", iter, err)
		}
		if err := gorgonia.Let(y, nn.OneHot(batch.Targets, vocab)); err != nil {
			return nil, fmt.Errorf("step %d: setting targets: %w", iter, err)
		}
		if err := vm.RunAll(); err != nil {
			return nil, fmt.Errorf("step %d: %w", iter, err)
		}
		report.LastBatchLoss = costVal.Data().(float64)
		klog.V(2).Infof("step %d: batch loss %.4f", iter, report.LastBatchLoss)

		if err := solver.Step(gorgonia.NodesToValueGrads(learnables)); err != nil {
			return nil, fmt.Errorf("step %d: solver: %w", iter, err)
		}
		vm.Reset()

		if bar != nil {
			bar.Describe(fmt.Sprintf("Training [loss %.4f]", report.LastBatchLoss))
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if err := t.evaluate(cfg.MaxIters, table, report); err != nil {
		return nil, err
	}
	return report, nil
}

// evaluate copies the solver's parameters back into the model and
// estimates the mean loss on both splits.
func (t *Trainer) evaluate(step int, table *gorgonia.Node, report *Report) error {
	weights, ok := table.Value().Data().([]float64)
	if !ok {
		return fmt.Errorf("step %d: unexpected parameter type %T", step, table.Value().Data())
	}
	if err := t.model.SetTable(weights); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}

	trainLoss, err := t.EstimateLoss(t.train)
	if err != nil {
		return fmt.Errorf("step %d: train loss: %w", step, err)
	}
	m := EvalMetrics{Step: step, TrainLoss: trainLoss, Perplexity: math.Exp(trainLoss)}
	if len(t.val) > 0 {
		valLoss, err := t.EstimateLoss(t.val)
		if err != nil {
			return fmt.Errorf("step %d: val loss: %w", step, err)
		}
		m.ValLoss = valLoss
		m.Perplexity = math.Exp(valLoss)
		klog.Infof("step %d: train loss %.4f, val loss %.4f", step, trainLoss, valLoss)
	} else {
		klog.Infof("step %d: train loss %.4f", step, trainLoss)
	}
	report.Evals = append(report.Evals, m)
	return nil
}

// EstimateLoss averages the model's loss over EvalIters random batches.
func (t *Trainer) EstimateLoss(tokens []int) (float64, error) {
	var sum float64
	for i := 0; i < t.cfg.EvalIters; i++ {
		batch, err := t.sampler.Sample(tokens, t.cfg.BatchSize, t.cfg.BlockSize)
		if err != nil {
			return 0, err
		}
		_, loss, err := t.model.Forward(batch.Inputs, batch.Targets)
		if err != nil {
			return 0, err
		}
		sum += loss
	}
	return sum / float64(t.cfg.EvalIters), nil
}

func newSolver(cfg config.TrainConfig) gorgonia.Solver {
	if cfg.Optimizer == config.OptimizerSGD {
		return gorgonia.NewVanillaSolver(gorgonia.WithLearnRate(cfg.LearningRate))
	}
	return gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearningRate))
}
