package dtypes

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	require.Equal(t, Float16, MapOfNames["Float16"])
	require.Equal(t, Float16, MapOfNames["float16"])
	require.Equal(t, Float16, MapOfNames["F16"])
	require.Equal(t, Float16, MapOfNames["f16"])

	require.Equal(t, Uint32, MapOfNames["Uint32"])
	require.Equal(t, Uint32, MapOfNames["uint32"])
	require.Equal(t, Uint32, MapOfNames["u32"])
	_, found := MapOfNames["int"]
	require.False(t, found)
}

func TestFromGenericsType(t *testing.T) {
	require.Equal(t, Int8, FromGenericsType[int8]())
	require.Equal(t, Uint64, FromGenericsType[uint64]())
	require.Equal(t, Float16, FromGenericsType[float16.Float16]())
	require.Equal(t, Float64, FromGenericsType[float64]())

	// Float16 has uint16 as its underlying type, but they must be told apart.
	require.Equal(t, Uint16, FromAny(uint16(1)))
	require.Equal(t, Float16, FromAny(float16.Fromfloat32(1)))
	require.Equal(t, Invalid, FromAny(1))
	require.Equal(t, Invalid, FromAny(nil))
	require.Equal(t, reflect.TypeFor[float32](), Float32.GoType())
	require.Nil(t, Invalid.GoType())
}

func TestSizes(t *testing.T) {
	require.Equal(t, 1, Uint8.Size())
	require.Equal(t, 2, Float16.Size())
	require.Equal(t, 4, Int32.Size())
	require.Equal(t, 8, Float64.Size())
	require.Equal(t, 0, Invalid.Size())
	require.Equal(t, "DType(42)", DType(42).String())
	require.Equal(t, "f32", Float32.ShortName())
}

func TestScalarBytes(t *testing.T) {
	raw, dtype, err := ScalarBytes(uint32(0x01020304))
	require.NoError(t, err)
	require.Equal(t, Uint32, dtype)
	require.Len(t, raw, 4)
	require.Equal(t, uint32(0x01020304), FromBytes[uint32](raw)[0])

	_, _, err = ScalarBytes(7)
	require.Error(t, err)
	_, _, err = ScalarBytes("seven")
	require.Error(t, err)
}

func TestSliceBytes(t *testing.T) {
	values := []float32{1, 2, 3}
	raw, dtype, err := SliceBytes(values)
	require.NoError(t, err)
	require.Equal(t, Float32, dtype)
	require.Len(t, raw, 12)
	require.Equal(t, values, FromBytes[float32](raw))

	// It's a view: changes to the values are visible.
	values[1] = 5
	require.Equal(t, float32(5), FromBytes[float32](raw)[1])

	raw, dtype, err = SliceBytes([]int64{})
	require.NoError(t, err)
	require.Equal(t, Int64, dtype)
	require.Empty(t, raw)

	_, _, err = SliceBytes([]int{1})
	require.Error(t, err)
	_, _, err = SliceBytes(uint32(1))
	require.Error(t, err)

	require.Equal(t, []uint16{1, 2}, FromBytes[uint16](UnsafeByteSlice([]uint16{1, 2})))
	require.Len(t, FromBytes[uint32](make([]byte, 7)), 1)
}

func TestMakeSlice(t *testing.T) {
	s, err := MakeSlice(Int16, 3)
	require.NoError(t, err)
	require.Equal(t, []int16{0, 0, 0}, s)
	_, err = MakeSlice(Invalid, 3)
	require.Error(t, err)
}

func TestFromNumber(t *testing.T) {
	v, err := FromNumber(Uint32, 16)
	require.NoError(t, err)
	require.Equal(t, uint32(16), v)

	v, err = FromNumber(Float32, 0.5)
	require.NoError(t, err)
	require.Equal(t, float32(0.5), v)

	v, err = FromNumber(Float16, 2)
	require.NoError(t, err)
	require.Equal(t, float16.Fromfloat32(2), v)

	v, err = FromNumber(Int64, -3)
	require.NoError(t, err)
	require.Equal(t, int64(-3), v)

	_, err = FromNumber(Uint8, 256)
	require.Error(t, err)
	_, err = FromNumber(Int8, -129)
	require.Error(t, err)
	_, err = FromNumber(Uint32, -1)
	require.Error(t, err)
	_, err = FromNumber(Int32, 1.5)
	require.Error(t, err)
	_, err = FromNumber(Int32, "1")
	require.Error(t, err)
}
