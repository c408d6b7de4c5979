package record

import (
	"errors"
	"math"

	"github.com/tuannm99/lunadb/pkg/bx"
)

var (
	ErrSchemaMismatch  = errors.New("record: schema/values mismatch")
	ErrBadBuffer       = errors.New("record: buffer underflow/overflow")
	ErrVarTooLong      = errors.New("record: variable length exceeds u16")
	ErrUnsupportedType = errors.New("record: unsupported column type")
)

// Row format:
//
//	[null bitmap, ceil(N/8) bytes, bit set => NULL]
//	[field 0][field 1]... for the non-NULL fields, in schema order
//
// Fixed-width fields are stored raw (little-endian); ColText and ColBytes
// are u16 length + data.

// EncodeRow serializes values (one per schema column, nil for NULL) into
// a fresh buffer.
func EncodeRow(s Schema, values []any) ([]byte, error) {
	nc := s.NumCols()
	if len(values) != nc {
		return nil, ErrSchemaMismatch
	}

	out := make([]byte, (nc+7)/8)

	for i, col := range s.Cols {
		v := values[i]
		if v == nil {
			if !col.Nullable {
				return nil, ErrSchemaMismatch
			}
			out[i/8] |= 1 << (uint(i) & 7)
			continue
		}

		switch col.Type {
		case ColInt32:
			x, ok := asInt32(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [4]byte
			bx.PutU32(b[:], uint32(x))
			out = append(out, b[:]...)

		case ColInt64:
			x, ok := asInt64(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			bx.PutU64(b[:], uint64(x))
			out = append(out, b[:]...)

		case ColBool:
			x, ok := v.(bool)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			if x {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}

		case ColFloat64:
			x, ok := asFloat64(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			bx.PutU64(b[:], math.Float64bits(x))
			out = append(out, b[:]...)

		case ColText:
			str, ok := v.(string)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			out, ok = appendVarlen(out, []byte(str))
			if !ok {
				return nil, ErrVarTooLong
			}

		case ColBytes:
			bs, ok := v.([]byte)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			out, ok = appendVarlen(out, bs)
			if !ok {
				return nil, ErrVarTooLong
			}

		default:
			return nil, ErrUnsupportedType
		}
	}
	return out, nil
}

func appendVarlen(out, bs []byte) ([]byte, bool) {
	if len(bs) > math.MaxUint16 {
		return out, false
	}
	var l [2]byte
	bx.PutU16(l[:], uint16(len(bs)))
	out = append(out, l[:]...)
	return append(out, bs...), true
}

// DecodeRow deserializes a row encoded with EncodeRow back into one value
// per column, with nil for NULL fields. ColBytes values are copied so the
// result never aliases buf (which is usually a pinned page).
func DecodeRow(s Schema, buf []byte) ([]any, error) {
	nc := s.NumCols()
	nbBytes := (nc + 7) / 8
	if len(buf) < nbBytes {
		return nil, ErrBadBuffer
	}
	nullmap := buf[:nbBytes]
	i := nbBytes

	out := make([]any, nc)
	for colIdx, col := range s.Cols {
		if (nullmap[colIdx/8]>>(uint(colIdx)&7))&1 == 1 {
			out[colIdx] = nil
			continue
		}

		switch col.Type {
		case ColInt32:
			if i+4 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = bx.I32(buf[i:])
			i += 4

		case ColInt64:
			if i+8 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = bx.I64(buf[i:])
			i += 8

		case ColBool:
			if i+1 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = buf[i] != 0
			i++

		case ColFloat64:
			if i+8 > len(buf) {
				return nil, ErrBadBuffer
			}
			out[colIdx] = math.Float64frombits(bx.U64(buf[i:]))
			i += 8

		case ColText:
			bs, next, err := readVarlen(buf, i)
			if err != nil {
				return nil, err
			}
			out[colIdx] = string(bs)
			i = next

		case ColBytes:
			bs, next, err := readVarlen(buf, i)
			if err != nil {
				return nil, err
			}
			cp := make([]byte, len(bs))
			copy(cp, bs)
			out[colIdx] = cp
			i = next

		default:
			return nil, ErrUnsupportedType
		}
	}
	// trailing bytes are tolerated; they would belong to columns added
	// after this row was written
	return out, nil
}

func readVarlen(buf []byte, i int) ([]byte, int, error) {
	if i+2 > len(buf) {
		return nil, 0, ErrBadBuffer
	}
	l := int(bx.U16(buf[i:]))
	i += 2
	if i+l > len(buf) {
		return nil, 0, ErrBadBuffer
	}
	return buf[i : i+l], i + l, nil
}

// Encode accepts int/int32/int64 (and float32/float64) interchangeably,
// since values typically arrive from the SQL layer as untyped literals.
func asInt32(v any) (int32, bool) {
	switch x := v.(type) {
	case int32:
		return x, true
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x), true
		}
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
