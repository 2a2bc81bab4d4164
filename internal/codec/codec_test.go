package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/scriptvec/scriptvec/internal/pkg/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vectors := [][]float32{
		{0.1, -0.2, 0.3},
		{1},
		{0, 0, 0, 0},
		{3.4e38, -3.4e38, 1e-38},
	}
	for _, vec := range vectors {
		decoded, err := Decode(Encode(vec))
		require.NoError(t, err)
		require.Equal(t, vec, decoded)
	}
}

func TestDecodeRejectsShortInput(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTooShort)
	require.ErrorIs(t, err, apperrors.ErrCodec)

	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeRejectsZeroDimension(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 0})
	require.ErrorIs(t, err, ErrZeroDimension)
	require.ErrorIs(t, err, apperrors.ErrCodec)
}

func TestDecodeRejectsDimensionOverCeiling(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, MaxDimension+1)
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrDimensionTooBig)
	require.ErrorIs(t, err, apperrors.ErrCodec)
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	// Truncated payload: claims 3 floats, carries 2.
	data := Encode([]float32{1, 2, 3})
	_, err := Decode(data[:len(data)-4])
	require.ErrorIs(t, err, ErrLengthMismatch)

	// Concatenated payloads must not decode as one wide vector.
	double := append(Encode([]float32{1, 2}), Encode([]float32{3, 4})...)
	_, err = Decode(double)
	require.ErrorIs(t, err, ErrLengthMismatch)
	require.ErrorIs(t, err, apperrors.ErrCodec)
}

func TestErrorsAreDistinct(t *testing.T) {
	require.NotErrorIs(t, ErrTooShort, ErrZeroDimension)
	require.NotErrorIs(t, ErrZeroDimension, ErrDimensionTooBig)
	require.NotErrorIs(t, ErrDimensionTooBig, ErrLengthMismatch)
	require.NotErrorIs(t, ErrLengthMismatch, ErrTooShort)
}
