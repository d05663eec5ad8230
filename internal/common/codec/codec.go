// Package codec implements the binary layout used when a numeric series crosses into storage: a little-endian
// int32 element count followed by that many IEEE-754 float64 values.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	lengthSize  = 4
	elementSize = 8
)

// ErrMalformed is returned when a buffer does not hold exactly the number of values its header announces.
var ErrMalformed = errors.New("malformed float64 array")

// EncodedSize returns the number of bytes EncodeFloat64s produces for n values.
func EncodedSize(n int) int {
	return lengthSize + elementSize*n
}

// EncodeFloat64s encodes values. NaN payloads and infinities are kept bit for bit.
func EncodeFloat64s(values []float64) []byte {
	buf := make([]byte, EncodedSize(len(values)))
	binary.LittleEndian.PutUint32(buf, uint32(int32(len(values))))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[lengthSize+i*elementSize:], math.Float64bits(v))
	}
	return buf
}

// DecodeFloat64s reverses EncodeFloat64s. A nil or empty buffer decodes to an empty slice.
func DecodeFloat64s(buf []byte) ([]float64, error) {
	if len(buf) == 0 {
		return []float64{}, nil
	}
	if len(buf) < lengthSize {
		return nil, errors.Wrapf(ErrMalformed, "buffer of %d bytes is shorter than the length header", len(buf))
	}
	n := int32(binary.LittleEndian.Uint32(buf))
	if n < 0 {
		return nil, errors.Wrapf(ErrMalformed, "negative length %d", n)
	}
	if len(buf) != EncodedSize(int(n)) {
		return nil, errors.Wrapf(ErrMalformed, "header announces %d values (%d bytes) but buffer holds %d bytes", n, EncodedSize(int(n)), len(buf))
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[lengthSize+i*elementSize:]))
	}
	return values, nil
}
