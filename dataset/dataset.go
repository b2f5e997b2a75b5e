package dataset

import "slices"

// Sample is one labeled feature vector.
type Sample struct {
	Features []float64
	Label    int
}

// Dataset is an ordered collection of samples sharing one feature length.
// Samples keep the order of the source.
type Dataset struct {
	Samples []Sample
	Dim     int
}

// New builds a dataset from samples, copying their feature slices.
func New(samples []Sample, dim int) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySource
	}
	out := make([]Sample, len(samples))
	for i, s := range samples {
		if _, err := Assemble(s.Features, dim); err != nil {
			return nil, err
		}
		out[i] = Sample{Features: slices.Clone(s.Features), Label: s.Label}
	}
	return &Dataset{Samples: out, Dim: dim}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Samples)
}

// Labels returns the raw label of every sample in order.
func (d *Dataset) Labels() []int {
	labels := make([]int, len(d.Samples))
	for i, s := range d.Samples {
		labels[i] = s.Label
	}
	return labels
}
