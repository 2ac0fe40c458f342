package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeValues serialises data little-endian and returns the value count.
func encodeValues(dtype DType, data any) ([]byte, int, error) {
	switch v := data.(type) {
	case []float32:
		if dtype != Float32 {
			return nil, 0, fmt.Errorf("got []float32 for %s dataset", dtype)
		}
		raw := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(x))
		}
		return raw, len(v), nil
	case []float64:
		if dtype != Float64 {
			return nil, 0, fmt.Errorf("got []float64 for %s dataset", dtype)
		}
		raw := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
		}
		return raw, len(v), nil
	case []int32:
		if dtype != Int32 {
			return nil, 0, fmt.Errorf("got []int32 for %s dataset", dtype)
		}
		raw := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[4*i:], uint32(x))
		}
		return raw, len(v), nil
	default:
		return nil, 0, fmt.Errorf("unsupported value type %T", data)
	}
}

func decodeAs[T float32 | float64](dtype DType, raw []byte) ([]T, error) {
	switch dtype {
	case Float32:
		out := make([]T, len(raw)/4)
		for i := range out {
			out[i] = T(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
		}
		return out, nil
	case Float64:
		out := make([]T, len(raw)/8)
		for i := range out {
			out[i] = T(math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:])))
		}
		return out, nil
	case Int32:
		out := make([]T, len(raw)/4)
		for i := range out {
			out[i] = T(int32(binary.LittleEndian.Uint32(raw[4*i:])))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func decodeInt32(raw []byte) []int32 {
	out := make([]int32, len(raw)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}
