// Package codec encodes embedding vectors into their compact binary form:
// a 4-byte little-endian length prefix followed by length float32 values.
// Decoding is strict; truncated or concatenated input never silently yields
// a wrong-length vector.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

// MaxDimension caps the decoded length prefix. Anything above it is treated
// as corrupt input rather than a very wide vector.
const MaxDimension = 10000

const headerSize = 4

var (
	ErrTooShort        = fmt.Errorf("%w: data shorter than length prefix", apperrors.ErrCodec)
	ErrZeroDimension   = fmt.Errorf("%w: zero dimension", apperrors.ErrCodec)
	ErrDimensionTooBig = fmt.Errorf("%w: dimension exceeds ceiling", apperrors.ErrCodec)
	ErrLengthMismatch  = fmt.Errorf("%w: payload length mismatch", apperrors.ErrCodec)
)

// Encode serializes a vector. The result is self-describing: its own prefix
// is enough to decode it.
func Encode(vec []float32) []byte {
	buf := make([]byte, headerSize+4*len(vec))
	binary.LittleEndian.PutUint32(buf, uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[headerSize+4*i:], math.Float32bits(v))
	}
	return buf
}

// Decode parses encoded bytes back into a vector.
func Decode(data []byte) ([]float32, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrTooShort, len(data))
	}
	dim := binary.LittleEndian.Uint32(data)
	if dim == 0 {
		return nil, ErrZeroDimension
	}
	if dim > MaxDimension {
		return nil, fmt.Errorf("%w: %d > %d", ErrDimensionTooBig, dim, MaxDimension)
	}
	payload := data[headerSize:]
	if len(payload) != int(dim)*4 {
		return nil, fmt.Errorf("%w: want %d payload bytes, got %d", ErrLengthMismatch, int(dim)*4, len(payload))
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return vec, nil
}
