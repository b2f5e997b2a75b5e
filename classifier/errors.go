package classifier

import (
	"fmt"
	"math"
)

// InsufficientClassesError is returned when fewer than two distinct labels
// are available; classification is undefined with a single class.
type InsufficientClassesError struct {
	Found int
}

func (e *InsufficientClassesError) Error() string {
	return fmt.Sprintf("classifier: need at least 2 distinct labels, found %d", e.Found)
}

// UnknownLabelError reports a label that was not seen during training.
type UnknownLabelError struct {
	Label int
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("classifier: label %d not seen during training", e.Label)
}

// ScoreOverflowError reports a feature vector whose logits leave the
// float64 range, so no probability can be computed for it.
type ScoreOverflowError struct {
	Class int
	Logit float64
}

func (e *ScoreOverflowError) Error() string {
	return fmt.Sprintf("classifier: logit for class %d is %v; feature values too large", e.Class, e.Logit)
}

func checkLogits(logits []float64) error {
	for c, l := range logits {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return &ScoreOverflowError{Class: c, Logit: l}
		}
	}
	return nil
}
