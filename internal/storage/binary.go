package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/happyhackingspace/digits/classifier"
)

// binaryMagic prefixes binary artifacts; the rest is protobuf wire format.
var binaryMagic = []byte("DGTM")

const (
	fieldVersion    protowire.Number = 1
	fieldID         protowire.Number = 2
	fieldCreatedAt  protowire.Number = 3 // unix nanoseconds, zigzag
	fieldFeatureDim protowire.Number = 4
	fieldClassCount protowire.Number = 5
	fieldLabels     protowire.Number = 6 // packed zigzag varints
	fieldWeights    protowire.Number = 7 // packed fixed64, row-major
	fieldBias       protowire.Number = 8 // packed fixed64
)

func marshalBinary(m *classifier.Model) []byte {
	a := newArtifact(m)
	b := append([]byte(nil), binaryMagic...)

	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Version))
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, a.ID[:])
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(a.CreatedAt.UnixNano()))
	b = protowire.AppendTag(b, fieldFeatureDim, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.FeatureDim))
	b = protowire.AppendTag(b, fieldClassCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.ClassCount))

	var labels []byte
	for _, l := range a.Labels {
		labels = protowire.AppendVarint(labels, protowire.EncodeZigZag(int64(l)))
	}
	b = protowire.AppendTag(b, fieldLabels, protowire.BytesType)
	b = protowire.AppendBytes(b, labels)

	var weights []byte
	for _, row := range a.Weights {
		weights = appendFloats(weights, row)
	}
	b = protowire.AppendTag(b, fieldWeights, protowire.BytesType)
	b = protowire.AppendBytes(b, weights)

	b = protowire.AppendTag(b, fieldBias, protowire.BytesType)
	b = protowire.AppendBytes(b, appendFloats(nil, a.Bias))
	return b
}

func appendFloats(b []byte, vs []float64) []byte {
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func unmarshalBinary(data []byte) (*artifact, error) {
	a := &artifact{}
	var weights []float64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, decodeError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			a.decodeVarint(num, v)
		case protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				if err := a.decodeBytes(num, v, &weights); err != nil {
					return nil, err
				}
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, decodeError(n)
		}
		data = data[n:]
	}

	if a.FeatureDim > 0 && len(weights)%a.FeatureDim == 0 {
		for start := 0; start < len(weights); start += a.FeatureDim {
			a.Weights = append(a.Weights, weights[start:start+a.FeatureDim])
		}
	} else if len(weights) > 0 {
		return nil, &SchemaMismatchError{Reason: fmt.Sprintf("%d weights do not divide into rows of %d", len(weights), a.FeatureDim)}
	}
	return a, nil
}

func (a *artifact) decodeVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldVersion:
		a.Version = int(v)
	case fieldCreatedAt:
		a.CreatedAt = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
	case fieldFeatureDim:
		a.FeatureDim = int(v)
	case fieldClassCount:
		a.ClassCount = int(v)
	}
}

func (a *artifact) decodeBytes(num protowire.Number, v []byte, weights *[]float64) error {
	switch num {
	case fieldID:
		id, err := uuid.FromBytes(v)
		if err != nil {
			return fmt.Errorf("storage: decode model id: %w", err)
		}
		a.ID = id
	case fieldLabels:
		for len(v) > 0 {
			l, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return decodeError(n)
			}
			a.Labels = append(a.Labels, int(protowire.DecodeZigZag(l)))
			v = v[n:]
		}
	case fieldWeights, fieldBias:
		vs, err := consumeFloats(v)
		if err != nil {
			return err
		}
		if num == fieldWeights {
			*weights = append(*weights, vs...)
		} else {
			a.Bias = append(a.Bias, vs...)
		}
	}
	return nil
}

func consumeFloats(v []byte) ([]float64, error) {
	out := make([]float64, 0, len(v)/8)
	for len(v) > 0 {
		bits, n := protowire.ConsumeFixed64(v)
		if n < 0 {
			return nil, decodeError(n)
		}
		out = append(out, math.Float64frombits(bits))
		v = v[n:]
	}
	return out, nil
}

func decodeError(n int) error {
	return fmt.Errorf("storage: decode binary artifact: %w", protowire.ParseError(n))
}
