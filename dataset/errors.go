package dataset

import (
	"errors"
	"fmt"
)

// ErrEmptySource is returned when a source yields no records.
var ErrEmptySource = errors.New("dataset: source contains no records")

// DataFormatError reports a malformed record. Line is 1-based; Column is
// 0-based and -1 when the whole record is at fault.
type DataFormatError struct {
	Line   int
	Column int
	Reason string
}

func (e *DataFormatError) Error() string {
	if e.Column < 0 {
		return fmt.Sprintf("dataset: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("dataset: line %d, column %d: %s", e.Line, e.Column, e.Reason)
}

// DimensionMismatchError reports a feature vector of the wrong shape.
type DimensionMismatchError struct {
	Got    int
	Want   int
	Reason string
}

func (e *DimensionMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("dataset: invalid feature vector: %s", e.Reason)
	}
	return fmt.Sprintf("dataset: feature vector has %d elements, want %d", e.Got, e.Want)
}
