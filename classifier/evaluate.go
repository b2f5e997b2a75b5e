package classifier

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/digits/dataset"
)

// logLossEpsilon floors the true-class probability so log loss stays finite.
const logLossEpsilon = 1e-12

// ErrNoSamples is returned when every held-out sample was skipped.
var ErrNoSamples = errors.New("classifier: no evaluable samples")

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	Workers int
}

// DefaultEvalConfig scores with one worker per available CPU.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{Workers: runtime.GOMAXPROCS(0)}
}

// Metrics summarizes a model's performance on a held-out set.
type Metrics struct {
	MicroAccuracy    float64   `json:"micro_accuracy"`
	MacroAccuracy    float64   `json:"macro_accuracy"`
	LogLoss          float64   `json:"log_loss"`
	LogLossReduction float64   `json:"log_loss_reduction"`
	PerClassLogLoss  []float64 `json:"per_class_log_loss"` // 0 for classes absent from the set
	PerClassSupport  []int     `json:"per_class_support"`
	ConfusionMatrix  [][]int   `json:"confusion_matrix"` // [true][predicted]
	Evaluated        int       `json:"evaluated"`
	Skipped          int       `json:"skipped"`
}

type outcome struct {
	class     int
	predicted int
	loss      float64
	unknown   error
}

// Evaluate scores every sample of ds against m. Samples whose label the
// model has never seen are logged and left out of the metrics; malformed
// feature vectors abort the evaluation.
func Evaluate(ctx context.Context, m *Model, ds *dataset.Dataset, cfg EvalConfig) (*Metrics, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	workers := max(cfg.Workers, 1)
	n := ds.Len()
	outcomes := make([]outcome, n)

	g, ctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				o, err := score(m, ds.Samples[i])
				if err != nil {
					return err
				}
				outcomes[i] = o
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(outcomes, m.Classes())
}

func score(m *Model, s dataset.Sample) (outcome, error) {
	class, err := m.Labels.Encode(s.Label)
	if err != nil {
		return outcome{unknown: err}, nil
	}
	x, err := dataset.Assemble(s.Features, m.Dim)
	if err != nil {
		return outcome{}, err
	}
	scores, err := m.Scores(x)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		class:     class,
		predicted: argmax(scores),
		loss:      -math.Log(max(scores[class], logLossEpsilon)),
	}, nil
}

func summarize(outcomes []outcome, k int) (*Metrics, error) {
	metrics := &Metrics{
		PerClassLogLoss: make([]float64, k),
		PerClassSupport: make([]int, k),
		ConfusionMatrix: make([][]int, k),
	}
	for c := range k {
		metrics.ConfusionMatrix[c] = make([]int, k)
	}

	correct := 0
	perClassCorrect := make([]int, k)
	var totalLoss float64
	for i, o := range outcomes {
		if o.unknown != nil {
			slog.Warn("Skipping sample with unknown label", "index", i, "error", o.unknown)
			metrics.Skipped++
			continue
		}
		metrics.Evaluated++
		metrics.PerClassSupport[o.class]++
		metrics.PerClassLogLoss[o.class] += o.loss
		metrics.ConfusionMatrix[o.class][o.predicted]++
		totalLoss += o.loss
		if o.predicted == o.class {
			correct++
			perClassCorrect[o.class]++
		}
	}
	if metrics.Evaluated == 0 {
		return nil, ErrNoSamples
	}

	total := float64(metrics.Evaluated)
	metrics.MicroAccuracy = float64(correct) / total
	metrics.LogLoss = totalLoss / total

	present := 0
	var priorLoss float64
	for c := range k {
		support := metrics.PerClassSupport[c]
		if support == 0 {
			continue
		}
		present++
		metrics.MacroAccuracy += float64(perClassCorrect[c]) / float64(support)
		metrics.PerClassLogLoss[c] /= float64(support)
		p := float64(support) / total
		priorLoss -= p * math.Log(p)
	}
	metrics.MacroAccuracy /= float64(present)
	if priorLoss > 0 {
		metrics.LogLossReduction = 1 - metrics.LogLoss/priorLoss
	}
	return metrics, nil
}
