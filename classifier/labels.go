package classifier

import (
	"fmt"
	"slices"

	"github.com/happyhackingspace/digits/dataset"
)

// LabelMap is a bijection between raw labels and dense class indices in
// [0,K). Raw labels are kept sorted ascending, so the class index of a label
// is its position in that order.
type LabelMap struct {
	raw   []int
	index map[int]int
}

// EncodeLabels builds the label map from the distinct labels of ds. The
// result does not depend on record order.
func EncodeLabels(ds *dataset.Dataset) (*LabelMap, error) {
	seen := make(map[int]bool)
	var raw []int
	for _, s := range ds.Samples {
		if !seen[s.Label] {
			seen[s.Label] = true
			raw = append(raw, s.Label)
		}
	}
	if len(raw) < 2 {
		return nil, &InsufficientClassesError{Found: len(raw)}
	}
	slices.Sort(raw)
	return newLabelMap(raw), nil
}

// NewLabelMap rebuilds a label map from raw labels ordered by class index,
// as stored in a model artifact.
func NewLabelMap(raw []int) (*LabelMap, error) {
	if len(raw) < 2 {
		return nil, &InsufficientClassesError{Found: len(raw)}
	}
	for i := 1; i < len(raw); i++ {
		if raw[i] <= raw[i-1] {
			return nil, fmt.Errorf("classifier: labels must be strictly ascending, got %v", raw)
		}
	}
	return newLabelMap(slices.Clone(raw)), nil
}

func newLabelMap(raw []int) *LabelMap {
	index := make(map[int]int, len(raw))
	for i, l := range raw {
		index[l] = i
	}
	return &LabelMap{raw: raw, index: index}
}

// Encode returns the class index of a raw label.
func (m *LabelMap) Encode(label int) (int, error) {
	if idx, ok := m.index[label]; ok {
		return idx, nil
	}
	return -1, &UnknownLabelError{Label: label}
}

// Decode returns the raw label of a class index.
func (m *LabelMap) Decode(class int) (int, error) {
	if class < 0 || class >= len(m.raw) {
		return 0, fmt.Errorf("classifier: class index %d out of range [0,%d)", class, len(m.raw))
	}
	return m.raw[class], nil
}

// Len returns the number of classes K.
func (m *LabelMap) Len() int {
	return len(m.raw)
}

// Labels returns the raw labels ordered by class index.
func (m *LabelMap) Labels() []int {
	return slices.Clone(m.raw)
}
