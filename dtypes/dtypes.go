// Package dtypes lists the element types that can be passed to accelerator kernels, either as scalar
// arguments or as the element type of buffers, and converts Go values to/from their raw host representation.
package dtypes

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DType is the data type of a kernel scalar argument or of a buffer element.
type DType int

const (
	// Invalid represents an invalid (or not set) dtype.
	Invalid DType = iota

	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64

	// Float16 is the IEEE 754 half-precision float, represented in Go by github.com/x448/float16.
	Float16
	Float32
	Float64
)

// Supported lists the Go types that map to a DType.
type Supported interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float16.Float16 | float32 | float64
}

// Number lists the types that support Go arithmetic directly (Float16 requires conversion).
type Number interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

var dtypeNames = [...]string{
	Invalid: "Invalid",
	Int8:    "Int8",
	Int16:   "Int16",
	Int32:   "Int32",
	Int64:   "Int64",
	Uint8:   "Uint8",
	Uint16:  "Uint16",
	Uint32:  "Uint32",
	Uint64:  "Uint64",
	Float16: "Float16",
	Float32: "Float32",
	Float64: "Float64",
}

// shortNames are the abbreviations used in kernel names (e.g. "vscale_f32") and in configuration files.
var shortNames = [...]string{
	Int8:    "i8",
	Int16:   "i16",
	Int32:   "i32",
	Int64:   "i64",
	Uint8:   "u8",
	Uint16:  "u16",
	Uint32:  "u32",
	Uint64:  "u64",
	Float16: "f16",
	Float32: "f32",
	Float64: "f64",
}

var goTypes = [...]reflect.Type{
	Int8:    reflect.TypeFor[int8](),
	Int16:   reflect.TypeFor[int16](),
	Int32:   reflect.TypeFor[int32](),
	Int64:   reflect.TypeFor[int64](),
	Uint8:   reflect.TypeFor[uint8](),
	Uint16:  reflect.TypeFor[uint16](),
	Uint32:  reflect.TypeFor[uint32](),
	Uint64:  reflect.TypeFor[uint64](),
	Float16: reflect.TypeFor[float16.Float16](),
	Float32: reflect.TypeFor[float32](),
	Float64: reflect.TypeFor[float64](),
}

// MapOfNames maps the canonical name, its lower-case version and the short name (e.g. "f32") to the DType.
var MapOfNames = make(map[string]DType)

var goTypeToDType = make(map[reflect.Type]DType)

func init() {
	for dtype := Int8; dtype <= Float64; dtype++ {
		MapOfNames[dtypeNames[dtype]] = dtype
		MapOfNames[strings.ToLower(dtypeNames[dtype])] = dtype
		MapOfNames[shortNames[dtype]] = dtype
		MapOfNames[strings.ToUpper(shortNames[dtype])] = dtype
		goTypeToDType[goTypes[dtype]] = dtype
	}
}

// IsValid returns whether dtype is one of the defined values, and not Invalid.
func (dtype DType) IsValid() bool {
	return dtype > Invalid && dtype <= Float64
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < Invalid || dtype > Float64 {
		return fmt.Sprintf("DType(%d)", int(dtype))
	}
	return dtypeNames[dtype]
}

// ShortName returns the abbreviated name (e.g. "u32"), or "" for invalid dtypes.
func (dtype DType) ShortName() string {
	if !dtype.IsValid() {
		return ""
	}
	return shortNames[dtype]
}

// GoType returns the Go type for the dtype, or nil if it is not valid.
func (dtype DType) GoType() reflect.Type {
	if !dtype.IsValid() {
		return nil
	}
	return goTypes[dtype]
}

// Size returns the number of bytes of one element of the dtype, or 0 if it is not valid.
func (dtype DType) Size() int {
	if !dtype.IsValid() {
		return 0
	}
	return int(goTypes[dtype].Size())
}

// IsFloat returns whether dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool {
	return dtype >= Uint8 && dtype <= Uint64
}

// FromGenericsType returns the DType for the given generic Go type.
func FromGenericsType[T Supported]() DType {
	var t T
	return goTypeToDType[reflect.TypeOf(t)]
}

// FromGoType returns the DType for the given Go type, or Invalid if it is not supported.
func FromGoType(t reflect.Type) DType {
	if t == nil {
		return Invalid
	}
	return goTypeToDType[t]
}

// FromAny returns the DType of a scalar value, or Invalid if it is not supported.
// Notice that platform dependent types, like int and uint, are not supported.
func FromAny(value any) DType {
	return FromGoType(reflect.TypeOf(value))
}

// SliceDType returns the DType of the elements of a slice, or Invalid if flat is not a slice of a supported type.
func SliceDType(flat any) DType {
	t := reflect.TypeOf(flat)
	if t == nil || t.Kind() != reflect.Slice {
		return Invalid
	}
	return FromGoType(t.Elem())
}

// ScalarBytes returns a copy of the host representation of the scalar value.
func ScalarBytes(value any) ([]byte, DType, error) {
	dtype := FromAny(value)
	if !dtype.IsValid() {
		return nil, Invalid, errors.Errorf("scalar of type %T is not supported, use one of the sized numeric types (e.g. uint32, float32)", value)
	}
	rv := reflect.ValueOf(value)
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return unsafe.Slice((*byte)(ptr.UnsafePointer()), dtype.Size()), dtype, nil
}

// SliceBytes returns a view (not a copy) of the host representation of the elements of flat, which must be a slice of
// a supported type.
func SliceBytes(flat any) ([]byte, DType, error) {
	dtype := SliceDType(flat)
	if !dtype.IsValid() {
		return nil, Invalid, errors.Errorf("values of type %T are not supported, it must be a slice of a sized numeric type (e.g. []uint32)", flat)
	}
	rv := reflect.ValueOf(flat)
	if rv.Len() == 0 {
		return nil, dtype, nil
	}
	return unsafe.Slice((*byte)(rv.UnsafePointer()), rv.Len()*dtype.Size()), dtype, nil
}

// UnsafeByteSlice returns a view (not a copy) of the host representation of values.
func UnsafeByteSlice[T Supported](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(zero)))
}

// FromBytes copies the host representation in raw to a newly allocated slice of T.
// Trailing bytes that don't make a full element are ignored.
func FromBytes[T Supported](raw []byte) []T {
	var zero T
	n := len(raw) / int(unsafe.Sizeof(zero))
	values := make([]T, n)
	copy(UnsafeByteSlice(values), raw)
	return values
}

// MakeSlice creates a slice of the Go type of dtype with the given length, returned as any.
func MakeSlice(dtype DType, length int) (any, error) {
	if !dtype.IsValid() {
		return nil, errors.Errorf("cannot make slice of invalid dtype %s", dtype)
	}
	return reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(), nil
}

// FromNumber converts a number as decoded from a configuration file (int, int64, uint64 or float64) to a scalar
// of the Go type of dtype. It fails if the value doesn't fit the dtype.
func FromNumber(dtype DType, number any) (any, error) {
	var f float64
	switch v := number.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return nil, errors.Errorf("value %v (%T) is not a number", number, number)
	}
	if !dtype.IsFloat() {
		if f != math.Trunc(f) {
			return nil, errors.Errorf("value %v is not an integer, it can't be converted to %s", number, dtype)
		}
		if dtype.IsUnsigned() && f < 0 {
			return nil, errors.Errorf("value %v is negative, it can't be converted to %s", number, dtype)
		}
		bits := dtype.Size() * 8
		var low, high float64
		if dtype.IsUnsigned() {
			high = math.Exp2(float64(bits))
		} else {
			low, high = -math.Exp2(float64(bits-1)), math.Exp2(float64(bits-1))
		}
		if f < low || f >= high {
			return nil, errors.Errorf("value %v overflows %s", number, dtype)
		}
	}
	switch dtype {
	case Int8:
		return int8(f), nil
	case Int16:
		return int16(f), nil
	case Int32:
		return int32(f), nil
	case Int64:
		if v, ok := number.(int); ok {
			return int64(v), nil
		}
		return int64(f), nil
	case Uint8:
		return uint8(f), nil
	case Uint16:
		return uint16(f), nil
	case Uint32:
		return uint32(f), nil
	case Uint64:
		if v, ok := number.(uint64); ok {
			return v, nil
		}
		return uint64(f), nil
	case Float16:
		return float16.Fromfloat32(float32(f)), nil
	case Float32:
		return float32(f), nil
	case Float64:
		return f, nil
	}
	return nil, errors.Errorf("invalid dtype %s", dtype)
}
