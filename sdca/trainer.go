package sdca

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/dataset"
)

// Train fits a model on ds. The per-epoch shuffle is driven by cfg.Seed
// alone, so a fixed seed, epoch limit and dataset reproduce the same
// weights. ctx is checked between epochs only.
//
// A run that hits cfg.MaxEpochs still returns its model; the report then
// carries a ConvergenceWarning.
func Train(ctx context.Context, ds *dataset.Dataset, cfg Config) (*classifier.Model, *Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	labels, err := classifier.EncodeLabels(ds)
	if err != nil {
		return nil, nil, err
	}
	t, err := newTrainer(ds, labels, cfg.L2Regularization)
	if err != nil {
		return nil, nil, err
	}

	seed := uint64(cfg.Seed)
	rng := rand.New(rand.NewPCG(seed, seed))
	report := &Report{}
	prevNorm := 0.0
	var stats EpochStats

	for epoch := 1; epoch <= cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		start := time.Now()

		updates := 0
		for _, i := range rng.Perm(t.n) {
			if t.step(i) {
				updates++
			}
		}

		norm := t.weightNorm()
		dual, primal := t.dual(), t.primal()
		if !isFinite(norm) || !isFinite(dual) {
			return nil, nil, &DivergenceError{Epoch: epoch, Norm: norm, Dual: dual}
		}
		change := 1.0
		if epoch > 1 {
			change = relativeChange(prevNorm, norm)
		}
		stats = EpochStats{
			Epoch:      epoch,
			Dual:       dual,
			Primal:     primal,
			Gap:        primal - dual,
			WeightNorm: norm,
			Change:     change,
			Updates:    updates,
			Duration:   time.Since(start),
		}
		prevNorm = norm

		slog.Debug("SDCA epoch", "epoch", epoch, "dual", dual, "primal", primal,
			"gap", stats.Gap, "norm", norm, "change", stats.Change, "updates", updates)
		if cfg.Observer != nil {
			cfg.Observer.ObserveEpoch(stats)
		}

		report.Epochs = epoch
		if stats.Change < cfg.ConvergenceTolerance {
			report.Converged = true
			slog.Debug("SDCA converged", "epoch", epoch, "change", stats.Change)
			break
		}
	}

	report.Dual, report.Primal, report.Gap = stats.Dual, stats.Primal, stats.Gap
	if !report.Converged {
		report.Warning = &ConvergenceWarning{Epochs: report.Epochs, Change: stats.Change}
		slog.Warn("SDCA stopped before convergence", "epochs", report.Epochs, "change", stats.Change)
	}
	return t.model, report, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func relativeChange(prev, cur float64) float64 {
	den := max(prev, cur)
	if den == 0 {
		return 0
	}
	return math.Abs(cur-prev) / den
}

// trainer keeps the primal model in sync with the dual variables. For
// sample i with class yᵢ it stores qᵢ = e_yᵢ − αᵢ, which always lies on the
// probability simplex, instead of αᵢ itself; αᵢ = 0 means qᵢ = e_yᵢ.
//
// Primal-dual correspondence, with the bias acting as a constant feature:
//
//	W = 1/(λn) Σᵢ αᵢ xᵢᵀ    b = 1/(λn) Σᵢ αᵢ
type trainer struct {
	model   *classifier.Model
	lambda  float64
	n       int
	scale   float64 // 1/(λn)
	xs      []*mat.VecDense
	sqNorms []float64 // ‖xᵢ‖² + 1
	classes []int
	q       [][]float64
	entropy float64 // Σᵢ H(qᵢ)
}

func newTrainer(ds *dataset.Dataset, labels *classifier.LabelMap, lambda float64) (*trainer, error) {
	n := ds.Len()
	k := labels.Len()
	t := &trainer{
		model:   classifier.NewModel(labels, ds.Dim),
		lambda:  lambda,
		n:       n,
		scale:   1 / (lambda * float64(n)),
		xs:      make([]*mat.VecDense, n),
		sqNorms: make([]float64, n),
		classes: make([]int, n),
		q:       make([][]float64, n),
	}
	for i, s := range ds.Samples {
		x, err := dataset.Assemble(s.Features, ds.Dim)
		if err != nil {
			return nil, err
		}
		class, err := labels.Encode(s.Label)
		if err != nil {
			return nil, err
		}
		sq := mat.Dot(x, x) + 1
		if math.IsInf(sq, 0) {
			return nil, &dataset.DimensionMismatchError{Got: x.Len(), Want: ds.Dim,
				Reason: fmt.Sprintf("sample %d: squared norm overflows", i)}
		}
		t.xs[i] = x
		t.sqNorms[i] = sq
		t.classes[i] = class
		t.q[i] = make([]float64, k)
		t.q[i][class] = 1
	}
	return t, nil
}

// step maximizes the dual over sample i's block and applies the matching
// primal update. It reports whether the block moved; a block moves only
// when its subproblem objective strictly improves, so the dual never
// decreases.
func (t *trainer) step(i int) bool {
	x := t.xs[i]
	q0 := t.q[i]
	z := t.model.Logits(x).RawVector().Data
	rho := t.sqNorms[i] * t.scale

	a := make([]float64, len(q0))
	for c := range a {
		a[c] = z[c] + rho*q0[c] - 1
	}
	q := solveBlock(a, rho)
	if !(blockObjective(q, z, q0, rho) > blockObjective(q0, z, q0, rho)) {
		return false
	}

	// Δαᵢ = q₀ − q
	delta := make([]float64, len(q))
	for c := range delta {
		delta[c] = q0[c] - q[c]
	}
	dv := mat.NewVecDense(len(delta), delta)
	t.model.Weights.RankOne(t.model.Weights, t.scale, dv, x)
	t.model.Bias.AddScaledVec(t.model.Bias, t.scale, dv)

	t.entropy += entropy(q) - entropy(q0)
	t.q[i] = q
	return true
}

// sqWeightNorm returns ‖W‖²_F + ‖b‖².
func (t *trainer) sqWeightNorm() float64 {
	w := mat.Norm(t.model.Weights, 2)
	return w*w + mat.Dot(t.model.Bias, t.model.Bias)
}

// weightNorm returns √(‖W‖²_F + ‖b‖²), the norm of the weights with the
// bias as an extra column.
func (t *trainer) weightNorm() float64 {
	return math.Sqrt(t.sqWeightNorm())
}

// dual evaluates D(α) = 1/n Σᵢ H(qᵢ) − λ/2 (‖W‖² + ‖b‖²).
func (t *trainer) dual() float64 {
	return t.entropy/float64(t.n) - 0.5*t.lambda*t.sqWeightNorm()
}

// primal evaluates P(W, b) = λ/2 (‖W‖² + ‖b‖²) + 1/n Σᵢ ℓᵢ, with ℓᵢ the
// multinomial log loss of sample i.
func (t *trainer) primal() float64 {
	var loss float64
	for i, x := range t.xs {
		z := t.model.Logits(x).RawVector().Data
		loss += floats.LogSumExp(z) - z[t.classes[i]]
	}
	return 0.5*t.lambda*t.sqWeightNorm() + loss/float64(t.n)
}
