// Package dataset loads labeled pixel vectors from delimited text.
//
// A Schema describes where the features and the label live in each record,
// so the loader never relies on struct tags or reflection:
//
//	ds, err := dataset.LoadFile("optdigits.tra", dataset.DigitSchema())
//	if err != nil {
//	    return err
//	}
//	fmt.Println(ds.Len(), ds.Dim)
package dataset

import "fmt"

// FeatureDim is the length of a down-sampled 8x8 digit image.
const FeatureDim = 64

// Kind is the value type of a column.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	default:
		return "unknown"
	}
}

// Column names a contiguous, inclusive range of fields in a record.
type Column struct {
	Name  string
	Kind  Kind
	Start int
	End   int
}

// Width returns the number of fields the column spans.
func (c Column) Width() int {
	return c.End - c.Start + 1
}

// Schema describes the layout of a delimited record.
type Schema struct {
	Features  Column
	Label     Column
	Separator rune
	HasHeader bool
}

// DigitSchema returns the layout of the optdigits files: 64 pixel values
// followed by the digit, comma separated, no header row.
func DigitSchema() Schema {
	return Schema{
		Features:  Column{Name: "PixelValues", Kind: KindFloat, Start: 0, End: FeatureDim - 1},
		Label:     Column{Name: "Number", Kind: KindInt, Start: FeatureDim, End: FeatureDim},
		Separator: ',',
	}
}

// FieldCount returns the exact number of fields a record must have.
func (s Schema) FieldCount() int {
	return max(s.Features.End, s.Label.End) + 1
}

// Dim returns the feature vector length.
func (s Schema) Dim() int {
	return s.Features.Width()
}

// Validate checks that the columns are well formed and do not overlap.
func (s Schema) Validate() error {
	if s.Features.Start < 0 || s.Features.End < s.Features.Start {
		return fmt.Errorf("schema: invalid feature range [%d,%d]", s.Features.Start, s.Features.End)
	}
	if s.Label.Start < 0 || s.Label.Width() != 1 {
		return fmt.Errorf("schema: label must be a single column, got [%d,%d]", s.Label.Start, s.Label.End)
	}
	if s.Label.Start >= s.Features.Start && s.Label.Start <= s.Features.End {
		return fmt.Errorf("schema: label column %d overlaps features", s.Label.Start)
	}
	if s.Separator == 0 {
		return fmt.Errorf("schema: separator not set")
	}
	return nil
}
