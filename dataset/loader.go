package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

// LoadFile reads a dataset from a delimited text file.
func LoadFile(path string, schema Schema) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ds, err := Load(f, schema)
	if err != nil {
		return nil, err
	}
	slog.Debug("Dataset loaded", "path", path, "samples", ds.Len(), "dim", ds.Dim)
	return ds, nil
}

// Load parses every record of r according to schema. It fails on the first
// malformed record; nothing is truncated or coerced.
func Load(r io.Reader, schema Schema) (*Dataset, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(r)
	cr.Comma = schema.Separator
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	want := schema.FieldCount()
	dim := schema.Dim()
	var samples []Sample

	for first := true; ; first = false {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &DataFormatError{Line: pe.Line, Column: pe.Column, Reason: pe.Err.Error()}
			}
			return nil, fmt.Errorf("dataset: read: %w", err)
		}
		if first && schema.HasHeader {
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(record) != want {
			return nil, &DataFormatError{
				Line:   line,
				Column: -1,
				Reason: fmt.Sprintf("expected %d fields, got %d", want, len(record)),
			}
		}

		features := make([]float64, dim)
		for j := range dim {
			col := schema.Features.Start + j
			v, err := parseFloat(record[col])
			if err != nil {
				return nil, &DataFormatError{Line: line, Column: col, Reason: err.Error()}
			}
			features[j] = v
		}

		label, err := parseLabel(record[schema.Label.Start])
		if err != nil {
			return nil, &DataFormatError{Line: line, Column: schema.Label.Start, Reason: err.Error()}
		}
		samples = append(samples, Sample{Features: features, Label: label})
	}

	if len(samples) == 0 {
		return nil, ErrEmptySource
	}
	return &Dataset{Samples: samples, Dim: dim}, nil
}

// ParseVector parses a single delimited feature vector of length dim. When
// labeled is true the record carries one extra trailing label field, which
// is returned as well.
func ParseVector(line string, sep rune, dim int, labeled bool) ([]float64, int, error) {
	fields := strings.Split(strings.TrimSpace(line), string(sep))
	want := dim
	if labeled {
		want++
	}
	if len(fields) != want {
		return nil, 0, &DimensionMismatchError{Got: len(fields), Want: want}
	}
	features := make([]float64, dim)
	for j := range dim {
		v, err := parseFloat(fields[j])
		if err != nil {
			return nil, 0, &DataFormatError{Line: 1, Column: j, Reason: err.Error()}
		}
		features[j] = v
	}
	label := 0
	if labeled {
		l, err := parseLabel(fields[dim])
		if err != nil {
			return nil, 0, &DataFormatError{Line: 1, Column: dim, Reason: err.Error()}
		}
		label = l
	}
	return features, label, nil
}

func parseFloat(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", field)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", field)
	}
	return v, nil
}

// parseLabel accepts integers and integral floats such as "7.0".
func parseLabel(field string) (int, error) {
	s := strings.TrimSpace(field)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	v, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("label is not an integer: %q", field)
	}
	return int(v), nil
}
