package sdca

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/dataset"
)

func constant(v float64) []float64 {
	x := make([]float64, dataset.FeatureDim)
	for i := range x {
		x[i] = v
	}
	return x
}

// twoBlobs has 20 all-zero images of class 0 and 20 all-16 images of class 1.
func twoBlobs(t *testing.T) *dataset.Dataset {
	t.Helper()
	var samples []dataset.Sample
	for range 20 {
		samples = append(samples, dataset.Sample{Features: constant(0), Label: 0})
	}
	for range 20 {
		samples = append(samples, dataset.Sample{Features: constant(16), Label: 1})
	}
	ds, err := dataset.New(samples, dataset.FeatureDim)
	require.NoError(t, err)
	return ds
}

// noisyDigits draws n samples around ten random 8x8 prototypes.
func noisyDigits(t *testing.T, n int, seed uint64) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 99))
	protoRng := rand.New(rand.NewPCG(42, 42))
	levels := []float64{0, 0, 4, 8, 16}
	protos := make([][]float64, 10)
	for c := range protos {
		protos[c] = make([]float64, dataset.FeatureDim)
		for j := range protos[c] {
			protos[c][j] = levels[protoRng.IntN(len(levels))]
		}
	}
	samples := make([]dataset.Sample, n)
	for i := range samples {
		c := i % 10
		x := make([]float64, dataset.FeatureDim)
		for j := range x {
			x[j] = math.Min(16, math.Max(0, protos[c][j]+rng.NormFloat64()*3))
		}
		samples[i] = dataset.Sample{Features: x, Label: c}
	}
	ds, err := dataset.New(samples, dataset.FeatureDim)
	require.NoError(t, err)
	return ds
}

func TestTrainSeparable(t *testing.T) {
	ds := twoBlobs(t)
	cfg := DefaultConfig()
	cfg.ConvergenceTolerance = 1e-6

	model, report, err := Train(context.Background(), ds, cfg)
	require.NoError(t, err)
	assert.True(t, report.Converged)
	assert.Nil(t, report.Warning)
	require.NoError(t, model.Validate())

	metrics, err := classifier.Evaluate(context.Background(), model, ds, classifier.DefaultEvalConfig())
	require.NoError(t, err)
	assert.Equal(t, 1.0, metrics.MicroAccuracy)
	assert.Equal(t, 1.0, metrics.MacroAccuracy)
	assert.Less(t, metrics.LogLoss, 0.01)
}

func TestTrainDualMonotone(t *testing.T) {
	ds := noisyDigits(t, 60, 1)
	labels, err := classifier.EncodeLabels(ds)
	require.NoError(t, err)
	tr, err := newTrainer(ds, labels, 1e-3)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 7))
	prev := tr.dual()
	assert.Equal(t, 0.0, prev)
	for range 3 {
		for _, i := range rng.Perm(tr.n) {
			tr.step(i)
			cur := tr.dual()
			require.GreaterOrEqual(t, cur, prev-1e-10*math.Max(1, math.Abs(prev)),
				"dual decreased after updating sample %d", i)
			prev = cur
		}
	}
	assert.GreaterOrEqual(t, tr.primal()-tr.dual(), -1e-9, "weak duality")
}

func TestTrainDeterministic(t *testing.T) {
	ds := noisyDigits(t, 100, 3)
	cfg := DefaultConfig()
	cfg.MaxEpochs = 5

	m1, r1, err := Train(context.Background(), ds, cfg)
	require.NoError(t, err)
	m2, r2, err := Train(context.Background(), ds, cfg)
	require.NoError(t, err)

	assert.Equal(t, m1.Weights.RawMatrix().Data, m2.Weights.RawMatrix().Data)
	assert.Equal(t, m1.Bias.RawVector().Data, m2.Bias.RawVector().Data)
	assert.Equal(t, r1.Dual, r2.Dual)
}

func TestTrainGeneralizes(t *testing.T) {
	train := noisyDigits(t, 300, 11)
	test := noisyDigits(t, 100, 12)

	model, report, err := Train(context.Background(), train, DefaultConfig())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Gap, -1e-9)

	metrics, err := classifier.Evaluate(context.Background(), model, test, classifier.DefaultEvalConfig())
	require.NoError(t, err)
	assert.Greater(t, metrics.MicroAccuracy, 0.9)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, model.Labels.Labels())
}

func TestTrainConvergenceWarning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEpochs = 1
	cfg.ConvergenceTolerance = 0

	model, report, err := Train(context.Background(), noisyDigits(t, 50, 5), cfg)
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.False(t, report.Converged)
	require.NotNil(t, report.Warning)
	assert.Equal(t, 1, report.Warning.Epochs)
	assert.Contains(t, report.Warning.Error(), "not converged")
}

// biasOnly has all-zero images labelled 0 and 1 at a 2:1 ratio, so only
// the bias can fit the data.
func biasOnly(t *testing.T) *dataset.Dataset {
	t.Helper()
	samples := make([]dataset.Sample, 30)
	for i := range samples {
		label := 0
		if i%3 == 0 {
			label = 1
		}
		samples[i] = dataset.Sample{Features: constant(0), Label: label}
	}
	ds, err := dataset.New(samples, dataset.FeatureDim)
	require.NoError(t, err)
	return ds
}

func trainingLogLoss(t *testing.T, m *classifier.Model, ds *dataset.Dataset) float64 {
	t.Helper()
	metrics, err := classifier.Evaluate(context.Background(), m, ds, classifier.DefaultEvalConfig())
	require.NoError(t, err)
	return metrics.LogLoss
}

func TestTrainBiasOnlyNotConvergedEarly(t *testing.T) {
	ds := biasOnly(t)
	prior := -(2.0/3)*math.Log(2.0/3) - (1.0/3)*math.Log(1.0/3)

	model, report, err := Train(context.Background(), ds, DefaultConfig())
	require.NoError(t, err)
	assert.Greater(t, report.Epochs, 1)
	if report.Converged {
		assert.Less(t, trainingLogLoss(t, model, ds), prior+0.01)
	} else {
		assert.NotNil(t, report.Warning)
	}
}

func TestTrainBiasOnlyFitsPrior(t *testing.T) {
	ds := biasOnly(t)
	prior := -(2.0/3)*math.Log(2.0/3) - (1.0/3)*math.Log(1.0/3)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.L2Regularization = 1e-2
	cfg.Observer = rec

	model, report, err := Train(context.Background(), ds, cfg)
	require.NoError(t, err)
	require.True(t, report.Converged, "stopped after %d epochs", report.Epochs)
	assert.Greater(t, report.Epochs, 1)
	assert.Equal(t, 1.0, rec.epochs[0].Change)

	assert.InDelta(t, prior, trainingLogLoss(t, model, ds), 0.01)
	b := model.Bias.RawVector().Data
	assert.InDelta(t, math.Log(2), b[0]-b[1], 0.1)
}

func TestRelativeChange(t *testing.T) {
	assert.Equal(t, 0.0, relativeChange(0, 0))
	assert.Equal(t, 1.0, relativeChange(0, 3))
	assert.Equal(t, 0.5, relativeChange(4, 2))
}

func TestTrainRejectsOverflowingFeatures(t *testing.T) {
	samples := make([]dataset.Sample, 10)
	for i := range samples {
		samples[i] = dataset.Sample{Features: constant(float64(i+1) * 1e160), Label: i % 2}
	}
	ds, err := dataset.New(samples, dataset.FeatureDim)
	require.NoError(t, err)

	model, report, err := Train(context.Background(), ds, DefaultConfig())
	assert.Nil(t, model)
	assert.Nil(t, report)
	var dm *dataset.DimensionMismatchError
	assert.True(t, errors.As(err, &dm), "got %v", err)
}

func TestWeightNormIncludesBias(t *testing.T) {
	ds := biasOnly(t)
	labels, err := classifier.EncodeLabels(ds)
	require.NoError(t, err)
	tr, err := newTrainer(ds, labels, 1e-2)
	require.NoError(t, err)

	tr.model.Bias.SetVec(0, 3)
	tr.model.Bias.SetVec(1, -4)
	assert.InDelta(t, 5.0, tr.weightNorm(), 1e-12)

	tr.model.Weights.Set(0, 0, math.Inf(1))
	assert.False(t, isFinite(tr.weightNorm()))
	assert.Contains(t, (&DivergenceError{Epoch: 3, Norm: math.Inf(1)}).Error(), "diverged at epoch 3")
}

type recorder struct {
	epochs []EpochStats
}

func (r *recorder) ObserveEpoch(s EpochStats) {
	r.epochs = append(r.epochs, s)
}

func TestTrainObserver(t *testing.T) {
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.MaxEpochs = 4
	cfg.ConvergenceTolerance = 0
	cfg.Observer = rec

	_, report, err := Train(context.Background(), noisyDigits(t, 40, 9), cfg)
	require.NoError(t, err)
	require.Len(t, rec.epochs, report.Epochs)
	for i, s := range rec.epochs {
		assert.Equal(t, i+1, s.Epoch)
		assert.GreaterOrEqual(t, s.Gap, -1e-9)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Dual, rec.epochs[i-1].Dual-1e-10)
		}
	}
	assert.Equal(t, 1.0, rec.epochs[0].Change)
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Train(ctx, twoBlobs(t), DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainSingleClass(t *testing.T) {
	ds, err := dataset.New([]dataset.Sample{
		{Features: constant(1), Label: 4},
		{Features: constant(2), Label: 4},
	}, dataset.FeatureDim)
	require.NoError(t, err)

	_, _, err = Train(context.Background(), ds, DefaultConfig())
	var ic *classifier.InsufficientClassesError
	assert.True(t, errors.As(err, &ic))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for _, mutate := range []func(*Config){
		func(c *Config) { c.L2Regularization = 0 },
		func(c *Config) { c.L2Regularization = math.NaN() },
		func(c *Config) { c.MaxEpochs = 0 },
		func(c *Config) { c.ConvergenceTolerance = -1 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestLambert(t *testing.T) {
	for _, s := range []float64{-800, -50, -1, 0, 0.5, 1, 2, 10, 1e3, 1e7} {
		u := lambert(s)
		if s < -700 {
			assert.GreaterOrEqual(t, u, 0.0)
			continue
		}
		require.Greater(t, u, 0.0, "s=%v", s)
		assert.InDelta(t, s, u+math.Log(u), 1e-9*math.Max(1, math.Abs(s)), "s=%v", s)
	}
}

func TestSolveBlock(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for range 500 {
		k := []int{2, 3, 10}[rng.IntN(3)]
		rho := math.Pow(10, -3+rng.Float64()*10)
		z := make([]float64, k)
		q0 := make([]float64, k)
		for c := range z {
			z[c] = rng.NormFloat64() * math.Pow(10, float64(rng.IntN(4)))
		}
		q0[rng.IntN(k)] = 1

		a := make([]float64, k)
		for c := range a {
			a[c] = z[c] + rho*q0[c] - 1
		}
		q := solveBlock(a, rho)

		var sum float64
		for _, v := range q {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)

		before := blockObjective(q0, z, q0, rho)
		after := blockObjective(q, z, q0, rho)
		assert.GreaterOrEqual(t, after, before-1e-9*math.Max(1, math.Abs(before)))
	}
}
