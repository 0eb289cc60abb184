package sim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is a dynamically-typed wire value: nil, bool, int32, float64,
// string, []Value, or map[string]Value (spec 6's primitive value
// encoding). Go's own dynamic typing stands in for the tagged union the
// source needs explicit tag bytes for; EncodeValue/DecodeValue below
// produce the identical byte-for-byte wire tags regardless.
type Value = any

// Wire tags for non-snapshot message payloads (spec 6).
const (
	tagNull   = 0
	tagFalse  = 1
	tagTrue   = 2
	tagI32    = 5
	tagF64    = 6
	tagString = 7
	tagArray  = 8
	tagObject = 9
	tagU8     = 10
	tagU16    = 11
	tagU32    = 12
)

// EncodeValue appends v's tagged wire encoding to buf and returns the
// extended slice (spec 6: "1-byte tag followed by payload").
func EncodeValue(buf []byte, v Value) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, tagNull), nil
	case bool:
		if x {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil
	case int32:
		return encodeInt(buf, int64(x)), nil
	case int:
		return encodeInt(buf, int64(x)), nil
	case int64:
		return encodeInt(buf, x), nil
	case float64:
		if isIntegral(x) {
			return encodeInt(buf, int64(x)), nil
		}
		buf = append(buf, tagF64)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(x))
		return append(buf, b[:]...), nil
	case string:
		buf = append(buf, tagString)
		var lb [2]byte
		binary.BigEndian.PutUint16(lb[:], uint16(len(x)))
		buf = append(buf, lb[:]...)
		return append(buf, x...), nil
	case []Value:
		buf = append(buf, tagArray)
		var lb [2]byte
		binary.BigEndian.PutUint16(lb[:], uint16(len(x)))
		buf = append(buf, lb[:]...)
		var err error
		for _, item := range x {
			buf, err = EncodeValue(buf, item)
			if err != nil {
				return buf, err
			}
		}
		return buf, nil
	case map[string]Value:
		// Key order here follows Go map iteration, which is randomized per
		// process — fine today since nothing on a determinism-sensitive
		// path (hash, snapshot) encodes a map through this tag; those go
		// through encoding/json, which sorts keys. Do not wire tagObject
		// into a cross-peer-comparison path without sorting keys first.
		buf = append(buf, tagObject)
		var lb [2]byte
		binary.BigEndian.PutUint16(lb[:], uint16(len(x)))
		buf = append(buf, lb[:]...)
		var err error
		for k, item := range x {
			buf, err = EncodeValue(buf, k)
			if err != nil {
				return buf, err
			}
			buf, err = EncodeValue(buf, item)
			if err != nil {
				return buf, err
			}
		}
		return buf, nil
	default:
		return buf, fmt.Errorf("wire: unsupported value type %T", v)
	}
}

func isIntegral(x float64) bool {
	return x == math.Trunc(x) && x >= math.MinInt32 && x <= math.MaxInt32
}

// encodeInt picks the smallest tag that fits n (spec 6: "Integers <=255
// encode as u8, <=65535 as u16, else i32, else f64").
func encodeInt(buf []byte, n int64) []byte {
	if n >= 0 && n <= 255 {
		return append(buf, tagU8, byte(n))
	}
	if n >= 0 && n <= 65535 {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		return append(append(buf, tagU16), b[:]...)
	}
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(n)))
		return append(append(buf, tagI32), b[:]...)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(float64(n)))
	return append(append(buf, tagF64), b[:]...)
}

// DecodeValue decodes one tagged value starting at buf[0], returning the
// value and the number of bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return nil, 0, fmt.Errorf("wire: empty buffer")
	}
	switch buf[0] {
	case tagNull:
		return nil, 1, nil
	case tagFalse:
		return false, 1, nil
	case tagTrue:
		return true, 1, nil
	case tagU8:
		if len(buf) < 2 {
			return nil, 0, fmt.Errorf("wire: truncated u8")
		}
		return int32(buf[1]), 2, nil
	case tagU16:
		if len(buf) < 3 {
			return nil, 0, fmt.Errorf("wire: truncated u16")
		}
		return int32(binary.BigEndian.Uint16(buf[1:3])), 3, nil
	case tagI32:
		if len(buf) < 5 {
			return nil, 0, fmt.Errorf("wire: truncated i32")
		}
		return int32(binary.BigEndian.Uint32(buf[1:5])), 5, nil
	case tagU32:
		if len(buf) < 5 {
			return nil, 0, fmt.Errorf("wire: truncated u32")
		}
		return int32(binary.BigEndian.Uint32(buf[1:5])), 5, nil
	case tagF64:
		if len(buf) < 9 {
			return nil, 0, fmt.Errorf("wire: truncated f64")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf[1:9])), 9, nil
	case tagString:
		if len(buf) < 3 {
			return nil, 0, fmt.Errorf("wire: truncated string length")
		}
		n := int(binary.BigEndian.Uint16(buf[1:3]))
		if len(buf) < 3+n {
			return nil, 0, fmt.Errorf("wire: truncated string body")
		}
		return string(buf[3 : 3+n]), 3 + n, nil
	case tagArray:
		if len(buf) < 3 {
			return nil, 0, fmt.Errorf("wire: truncated array length")
		}
		n := int(binary.BigEndian.Uint16(buf[1:3]))
		off := 3
		items := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			v, consumed, err := DecodeValue(buf[off:])
			if err != nil {
				return nil, 0, err
			}
			items = append(items, v)
			off += consumed
		}
		return items, off, nil
	case tagObject:
		if len(buf) < 3 {
			return nil, 0, fmt.Errorf("wire: truncated object length")
		}
		n := int(binary.BigEndian.Uint16(buf[1:3]))
		off := 3
		obj := make(map[string]Value, n)
		for i := 0; i < n; i++ {
			k, consumed, err := DecodeValue(buf[off:])
			if err != nil {
				return nil, 0, err
			}
			off += consumed
			key, ok := k.(string)
			if !ok {
				return nil, 0, fmt.Errorf("wire: object key is not a string")
			}
			v, consumed, err := DecodeValue(buf[off:])
			if err != nil {
				return nil, 0, err
			}
			off += consumed
			obj[key] = v
		}
		return obj, off, nil
	default:
		return nil, 0, fmt.Errorf("wire: unknown tag %d", buf[0])
	}
}
