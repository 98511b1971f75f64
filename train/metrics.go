package train

import (
	"encoding/json"
	"os"
)

// MetricsFile is the name Report.WriteJSON uses inside a run directory.
const MetricsFile = "metrics.json"

// EvalMetrics is one loss estimate. ValLoss is omitted when the run has
// no validation split; Perplexity then derives from TrainLoss.
type EvalMetrics struct {
	Step       int     `json:"step"`
	TrainLoss  float64 `json:"train_loss"`
	ValLoss    float64 `json:"val_loss,omitempty"`
	Perplexity float64 `json:"perplexity"`
}

// Report summarises a training run.
type Report struct {
	Evals         []EvalMetrics `json:"evals"`
	LastBatchLoss float64       `json:"last_batch_loss"`
}

// Final returns the last loss estimate.
func (r *Report) Final() EvalMetrics {
	if len(r.Evals) == 0 {
		return EvalMetrics{}
	}
	return r.Evals[len(r.Evals)-1]
}

// WriteJSON saves the report to path.
func (r *Report) WriteJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
