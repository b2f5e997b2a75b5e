package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/digits/classifier"
)

// artifact is the persisted form of a model, shared by both encodings.
type artifact struct {
	Version    int         `json:"version"`
	ID         uuid.UUID   `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	FeatureDim int         `json:"feature_dim"`
	ClassCount int         `json:"class_count"`
	Labels     []int       `json:"labels"`  // raw labels ordered by class index
	Weights    [][]float64 `json:"weights"` // [ClassCount][FeatureDim]
	Bias       []float64   `json:"bias"`    // [ClassCount]
}

func newArtifact(m *classifier.Model) *artifact {
	k := m.Classes()
	weights := make([][]float64, k)
	for c := range k {
		weights[c] = mat.Row(nil, c, m.Weights)
	}
	return &artifact{
		Version:    FormatVersion,
		ID:         m.ID,
		CreatedAt:  m.CreatedAt,
		FeatureDim: m.Dim,
		ClassCount: k,
		Labels:     m.Labels.Labels(),
		Weights:    weights,
		Bias:       mat.Col(nil, 0, m.Bias),
	}
}

// model rebuilds a classifier.Model, rejecting artifacts whose version or
// feature dimension this build does not handle.
func (a *artifact) model(featureDim int) (*classifier.Model, error) {
	if a.Version != FormatVersion {
		return nil, &SchemaMismatchError{Reason: fmt.Sprintf("format version %d, want %d", a.Version, FormatVersion)}
	}
	if a.FeatureDim != featureDim {
		return nil, &SchemaMismatchError{Reason: fmt.Sprintf("feature dimension %d, want %d", a.FeatureDim, featureDim)}
	}
	k := a.ClassCount
	if len(a.Labels) != k || len(a.Weights) != k || len(a.Bias) != k {
		return nil, &SchemaMismatchError{Reason: fmt.Sprintf(
			"class count %d disagrees with labels %d, weights %d, bias %d",
			k, len(a.Labels), len(a.Weights), len(a.Bias))}
	}

	labels, err := classifier.NewLabelMap(a.Labels)
	if err != nil {
		return nil, &SchemaMismatchError{Reason: err.Error()}
	}

	flat := make([]float64, 0, k*featureDim)
	for c, row := range a.Weights {
		if len(row) != featureDim {
			return nil, &SchemaMismatchError{Reason: fmt.Sprintf("weight row %d has %d values, want %d", c, len(row), featureDim)}
		}
		flat = append(flat, row...)
	}

	m := &classifier.Model{
		ID:        a.ID,
		CreatedAt: a.CreatedAt,
		Weights:   mat.NewDense(k, featureDim, flat),
		Bias:      mat.NewVecDense(k, append([]float64(nil), a.Bias...)),
		Labels:    labels,
		Dim:       featureDim,
	}
	return m, m.Validate()
}

func marshalJSON(m *classifier.Model) ([]byte, error) {
	data, err := json.MarshalIndent(newArtifact(m), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("storage: encode json: %w", err)
	}
	return data, nil
}

func unmarshalJSON(data []byte) (*artifact, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("storage: decode json: %w", err)
	}
	return &a, nil
}
