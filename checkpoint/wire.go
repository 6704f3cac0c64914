package checkpoint

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldVersion   protowire.Number = 1
	fieldSession   protowire.Number = 2
	fieldEpoch     protowire.Number = 3
	fieldScope     protowire.Number = 4
	fieldCell      protowire.Number = 5
	fieldSavedAt   protowire.Number = 6
	fieldOptimStep protowire.Number = 7
	fieldTensor    protowire.Number = 8

	fieldTensorName protowire.Number = 1
	fieldTensorRows protowire.Number = 2
	fieldTensorCols protowire.Number = 3
	fieldTensorData protowire.Number = 4
)

// Marshal encodes c in the checkpoint wire format.
func Marshal(c *Checkpoint) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, FormatVersion)
	b = appendString(b, fieldSession, c.SessionID)
	b = protowire.AppendTag(b, fieldEpoch, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Epoch))
	b = appendString(b, fieldScope, c.Scope)
	b = appendString(b, fieldCell, c.Cell)
	b = protowire.AppendTag(b, fieldSavedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.SavedAt.UnixNano()))
	b = protowire.AppendTag(b, fieldOptimStep, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.OptimizerStep))

	for _, t := range c.Tensors {
		if t.Rows*t.Cols != len(t.Data) {
			return nil, fmt.Errorf("tensor %s: %dx%d shape holds %d values", t.Name, t.Rows, t.Cols, len(t.Data))
		}
		b = protowire.AppendTag(b, fieldTensor, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalTensor(t))
	}
	return b, nil
}

func marshalTensor(t Tensor) []byte {
	var b []byte
	b = appendString(b, fieldTensorName, t.Name)
	b = protowire.AppendTag(b, fieldTensorRows, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Rows))
	b = protowire.AppendTag(b, fieldTensorCols, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.Cols))

	packed := make([]byte, 0, 8*len(t.Data))
	for _, v := range t.Data {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, fieldTensorData, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes a checkpoint. Unknown fields are skipped.
func Unmarshal(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	version := uint64(0)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrFormat, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrFormat, num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldVersion:
				version = v
			case fieldEpoch:
				c.Epoch = int(v)
			case fieldSavedAt:
				c.SavedAt = time.Unix(0, protowire.DecodeZigZag(v))
			case fieldOptimStep:
				c.OptimizerStep = int(v)
			}

		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrFormat, num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldSession:
				c.SessionID = string(v)
			case fieldScope:
				c.Scope = string(v)
			case fieldCell:
				c.Cell = string(v)
			case fieldTensor:
				t, err := unmarshalTensor(v)
				if err != nil {
					return nil, err
				}
				c.Tensors = append(c.Tensors, t)
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrFormat, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if version == 0 {
		return nil, fmt.Errorf("%w: no format version", ErrFormat)
	}
	if version > FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrFormat, version)
	}
	return c, nil
}

func unmarshalTensor(b []byte) (Tensor, error) {
	var t Tensor
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return t, fmt.Errorf("%w: tensor: %v", ErrFormat, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTensorName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return t, fmt.Errorf("%w: tensor name: %v", ErrFormat, protowire.ParseError(n))
			}
			t.Name, b = v, b[n:]
		case (num == fieldTensorRows || num == fieldTensorCols) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return t, fmt.Errorf("%w: tensor shape: %v", ErrFormat, protowire.ParseError(n))
			}
			if num == fieldTensorRows {
				t.Rows = int(v)
			} else {
				t.Cols = int(v)
			}
			b = b[n:]
		case num == fieldTensorData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v)%8 != 0 {
				return t, fmt.Errorf("%w: tensor %s data is truncated", ErrFormat, t.Name)
			}
			t.Data = make([]float64, 0, len(v)/8)
			for p := v; len(p) > 0; {
				bits, m := protowire.ConsumeFixed64(p)
				t.Data = append(t.Data, math.Float64frombits(bits))
				p = p[m:]
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return t, fmt.Errorf("%w: tensor: %v", ErrFormat, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if t.Rows*t.Cols != len(t.Data) {
		return t, fmt.Errorf("%w: tensor %s: %dx%d shape holds %d values", ErrFormat, t.Name, t.Rows, t.Cols, len(t.Data))
	}
	return t, nil
}
