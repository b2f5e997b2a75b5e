// Package classifier holds the multinomial logistic-regression model for
// digit vectors: label encoding, scoring, prediction and evaluation.
package classifier

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model is a K-class linear classifier with a shared softmax link.
type Model struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Weights   *mat.Dense    // [K][Dim]
	Bias      *mat.VecDense // [K]
	Labels    *LabelMap
	Dim       int
}

// NewModel returns a zero-initialized model for the given labels.
func NewModel(labels *LabelMap, dim int) *Model {
	k := labels.Len()
	return &Model{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Weights:   mat.NewDense(k, dim, nil),
		Bias:      mat.NewVecDense(k, nil),
		Labels:    labels,
		Dim:       dim,
	}
}

// Classes returns K.
func (m *Model) Classes() int {
	return m.Labels.Len()
}

// Validate checks the shape invariants K == rows(W) == len(b) == |labels|.
func (m *Model) Validate() error {
	if m.Weights == nil || m.Bias == nil || m.Labels == nil {
		return fmt.Errorf("classifier: model not initialized")
	}
	k := m.Labels.Len()
	rows, cols := m.Weights.Dims()
	if rows != k || m.Bias.Len() != k {
		return fmt.Errorf("classifier: inconsistent class count: weights %d, bias %d, labels %d", rows, m.Bias.Len(), k)
	}
	if cols != m.Dim {
		return fmt.Errorf("classifier: weights have %d columns, model dimension is %d", cols, m.Dim)
	}
	return nil
}

// Logits computes W·x + b.
func (m *Model) Logits(x mat.Vector) *mat.VecDense {
	logits := mat.NewVecDense(m.Classes(), nil)
	logits.MulVec(m.Weights, x)
	logits.AddVec(logits, m.Bias)
	return logits
}

// Scores returns softmax(W·x + b). It fails with a ScoreOverflowError when
// any logit is not finite.
func (m *Model) Scores(x mat.Vector) ([]float64, error) {
	logits := m.Logits(x).RawVector().Data
	if err := checkLogits(logits); err != nil {
		return nil, err
	}
	return softmax(logits), nil
}

// softmax returns a fresh probability vector. Every entry is strictly
// positive: probabilities that underflow are floored at the smallest
// positive float.
func softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
		if probs[i] == 0 {
			probs[i] = math.SmallestNonzeroFloat64
		}
	}
	return probs
}

// argmax returns the index of the largest score, lowest index on ties.
func argmax(scores []float64) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}
