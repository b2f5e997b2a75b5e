package classifier

import (
	"github.com/happyhackingspace/digits/dataset"
)

// Prediction is the scored output for one feature vector.
type Prediction struct {
	Scores []float64 `json:"scores"` // softmax output indexed by class
	Class  int       `json:"class"`
	Label  int       `json:"label"`
}

// Engine scores feature vectors against a frozen model. It never mutates
// the model, so one Engine may serve any number of goroutines.
type Engine struct {
	model *Model
}

// NewEngine wraps a model for prediction.
func NewEngine(m *Model) (*Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Engine{model: m}, nil
}

// Model returns the wrapped model.
func (e *Engine) Model() *Model {
	return e.model
}

// Predict validates features and returns the class probabilities.
func (e *Engine) Predict(features []float64) (*Prediction, error) {
	x, err := dataset.Assemble(features, e.model.Dim)
	if err != nil {
		return nil, err
	}
	scores, err := e.model.Scores(x)
	if err != nil {
		return nil, err
	}
	class := argmax(scores)
	label, err := e.model.Labels.Decode(class)
	if err != nil {
		return nil, err
	}
	return &Prediction{Scores: scores, Class: class, Label: label}, nil
}
