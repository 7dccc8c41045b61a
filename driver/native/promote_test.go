package native

import (
	"testing"

	"github.com/gofpga/goxrt/dtypes"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestPromoteScalar(t *testing.T) {
	promote := func(value any) promotedScalar {
		raw, dtype, err := dtypes.ScalarBytes(value)
		require.NoError(t, err)
		scalar, ok := promoteScalar(raw, dtype)
		require.Truef(t, ok, "promoting %T", value)
		return scalar
	}

	require.Equal(t, promotedScalar{class: class32, bits: 0xFFFFFFFF}, promote(int8(-1)))
	require.Equal(t, promotedScalar{class: class32, bits: 0xFFFFFFFE}, promote(int16(-2)))
	require.Equal(t, promotedScalar{class: class32, bits: 42}, promote(int32(42)))
	require.Equal(t, promotedScalar{class: class64, bits: 0xFFFFFFFFFFFFFFFD}, promote(int64(-3)))
	require.Equal(t, promotedScalar{class: class32, bits: 255}, promote(uint8(255)))
	require.Equal(t, promotedScalar{class: class32, bits: 1000}, promote(uint16(1000)))
	require.Equal(t, promotedScalar{class: class32, bits: 7}, promote(uint32(7)))
	require.Equal(t, promotedScalar{class: class64, bits: 1 << 40}, promote(uint64(1<<40)))

	// Floats are passed by their bit pattern, in the width of the argument.
	require.Equal(t, promotedScalar{class: class32, bits: 0x3F000000}, promote(float32(0.5)))
	require.Equal(t, promotedScalar{class: class64, bits: 0xBFF4000000000000}, promote(-1.25))
	require.Equal(t, promotedScalar{class: class32, bits: 0x3E00}, promote(float16.Fromfloat32(1.5)))

	// Size mismatch and invalid dtypes.
	_, ok := promoteScalar([]byte{1, 2}, dtypes.Uint32)
	require.False(t, ok)
	_, ok = promoteScalar([]byte{1}, dtypes.Invalid)
	require.False(t, ok)
}
