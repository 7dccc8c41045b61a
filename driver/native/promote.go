package native

import (
	"math"

	"github.com/gofpga/goxrt/dtypes"
	"github.com/x448/float16"
)

// scalarClass is the C type a scalar is passed as through the variadic xrtRunSetArg. XRT reads the va_list with the
// size of the kernel argument: va_arg(uint32_t) for arguments of up to 4 bytes, va_arg(uint64_t) for 8 bytes.
type scalarClass int

const (
	classInvalid scalarClass = iota
	// class32 is passed as an uint32_t: any scalar of up to 4 bytes, floats included.
	class32
	// class64 is passed as an uint64_t: 8 bytes scalars, float64 included.
	class64
)

// promotedScalar holds the bits to pass to xrtRunSetArg.
type promotedScalar struct {
	class scalarClass
	bits  uint64
}

// promoteScalar converts the host representation of a scalar of the given dtype to the value passed to
// xrtRunSetArg. Floats are passed by their bit pattern, never as a (promoted) double. Signed integers are
// sign-extended and half floats zero-extended: the low bytes kept by XRT are the same.
func promoteScalar(value []byte, dtype dtypes.DType) (promotedScalar, bool) {
	if !dtype.IsValid() || len(value) != dtype.Size() {
		return promotedScalar{}, false
	}
	switch dtype {
	case dtypes.Int8:
		return promotedScalar{class: class32, bits: uint64(uint32(int32(dtypes.FromBytes[int8](value)[0])))}, true
	case dtypes.Int16:
		return promotedScalar{class: class32, bits: uint64(uint32(int32(dtypes.FromBytes[int16](value)[0])))}, true
	case dtypes.Int32:
		return promotedScalar{class: class32, bits: uint64(uint32(dtypes.FromBytes[int32](value)[0]))}, true
	case dtypes.Int64:
		return promotedScalar{class: class64, bits: uint64(dtypes.FromBytes[int64](value)[0])}, true
	case dtypes.Uint8:
		return promotedScalar{class: class32, bits: uint64(value[0])}, true
	case dtypes.Uint16:
		return promotedScalar{class: class32, bits: uint64(dtypes.FromBytes[uint16](value)[0])}, true
	case dtypes.Uint32:
		return promotedScalar{class: class32, bits: uint64(dtypes.FromBytes[uint32](value)[0])}, true
	case dtypes.Uint64:
		return promotedScalar{class: class64, bits: dtypes.FromBytes[uint64](value)[0]}, true
	case dtypes.Float16:
		return promotedScalar{class: class32, bits: uint64(dtypes.FromBytes[float16.Float16](value)[0].Bits())}, true
	case dtypes.Float32:
		return promotedScalar{class: class32, bits: uint64(math.Float32bits(dtypes.FromBytes[float32](value)[0]))}, true
	case dtypes.Float64:
		return promotedScalar{class: class64, bits: math.Float64bits(dtypes.FromBytes[float64](value)[0])}, true
	}
	return promotedScalar{}, false
}
