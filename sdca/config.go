// Package sdca fits multinomial logistic regression by stochastic dual
// coordinate ascent with L2 regularization.
package sdca

import (
	"fmt"
	"time"
)

// Config holds SDCA training hyperparameters.
type Config struct {
	L2Regularization     float64 // λ
	MaxEpochs            int
	ConvergenceTolerance float64 // relative change of ‖[W b]‖ between epochs
	Seed                 int64   // drives the per-epoch shuffle
	Observer             Observer
}

// DefaultConfig returns the default training config.
func DefaultConfig() Config {
	return Config{
		L2Regularization:     1e-4,
		MaxEpochs:            100,
		ConvergenceTolerance: 1e-4,
		Seed:                 1,
	}
}

// Validate rejects configs the trainer cannot run with.
func (c Config) Validate() error {
	if !(c.L2Regularization > 0) {
		return fmt.Errorf("sdca: l2 regularization must be > 0, got %v", c.L2Regularization)
	}
	if c.MaxEpochs < 1 {
		return fmt.Errorf("sdca: max epochs must be >= 1, got %d", c.MaxEpochs)
	}
	if c.ConvergenceTolerance < 0 {
		return fmt.Errorf("sdca: convergence tolerance must be >= 0, got %v", c.ConvergenceTolerance)
	}
	return nil
}

// EpochStats describes the optimizer state at an epoch boundary.
type EpochStats struct {
	Epoch      int
	Dual       float64
	Primal     float64
	Gap        float64
	WeightNorm float64 // ‖[W b]‖, Frobenius norm with the bias as an extra column
	Change     float64 // relative change of WeightNorm since the previous epoch; 1 in the first epoch
	Updates    int     // samples whose dual block moved
	Duration   time.Duration
}

// Observer receives epoch statistics as training progresses.
type Observer interface {
	ObserveEpoch(EpochStats)
}

// Report summarizes a finished training run.
type Report struct {
	Epochs    int
	Converged bool
	Dual      float64
	Primal    float64
	Gap       float64
	Warning   *ConvergenceWarning // nil when the tolerance was met
}

// ConvergenceWarning is a non-fatal signal that training stopped at the
// epoch limit before the tolerance was met.
type ConvergenceWarning struct {
	Epochs int
	Change float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("sdca: not converged after %d epochs (last relative change %.3g)", w.Epochs, w.Change)
}

// DivergenceError is returned when the weights or the dual objective stop
// being finite, typically because feature values are too large.
type DivergenceError struct {
	Epoch int
	Norm  float64
	Dual  float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("sdca: diverged at epoch %d (norm %v, dual %v)", e.Epoch, e.Norm, e.Dual)
}
