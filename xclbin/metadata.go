package xclbin

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// AddressQualifier of a kernel argument, as listed in the build metadata.
type AddressQualifier int

const (
	// Scalar arguments are passed by value.
	Scalar AddressQualifier = 0
	// Global arguments are pointers to buffers in device global memory.
	Global AddressQualifier = 1
	// Constant arguments are pointers to read-only buffers.
	Constant AddressQualifier = 2
	Local    AddressQualifier = 3
	Stream   AddressQualifier = 4
)

// String implements fmt.Stringer.
func (q AddressQualifier) String() string {
	switch q {
	case Scalar:
		return "Scalar"
	case Global:
		return "Global"
	case Constant:
		return "Constant"
	case Local:
		return "Local"
	case Stream:
		return "Stream"
	}
	return fmt.Sprintf("AddressQualifier(%d)", int(q))
}

// ArgumentInfo describes one kernel argument.
type ArgumentInfo struct {
	Name  string
	Index int

	// Type as declared in the kernel source, e.g. "unsigned int" or "float*".
	Type string

	// Size in bytes of the value passed: for buffers this is the size of the pointer.
	Size int

	AddressQualifier AddressQualifier

	// MemoryGroup is the memory bank the argument is connected to, or -1 if the metadata doesn't say.
	MemoryGroup int
}

// IsBuffer returns whether the argument is passed as a buffer (as opposed to by value).
func (arg ArgumentInfo) IsBuffer() bool {
	return arg.AddressQualifier == Global || arg.AddressQualifier == Constant
}

// KernelInfo describes a kernel and its arguments, sorted by index.
type KernelInfo struct {
	Name      string
	Arguments []ArgumentInfo
}

// BuildMetadata returns the BUILD_METADATA section decoded as a generic JSON structure.
func (f *File) BuildMetadata() (*structpb.Struct, error) {
	raw, found := f.Section(BuildMetadata)
	if !found {
		return nil, ErrNoBuildMetadata
	}
	raw = bytes.TrimRight(raw, "\x00 \n\t\r")
	metadata := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, metadata); err != nil {
		return nil, errors.Wrapf(err, "decoding BUILD_METADATA JSON")
	}
	return metadata, nil
}

// Kernels returns the kernels listed in the build metadata, in order of appearance.
func (f *File) Kernels() ([]KernelInfo, error) {
	metadata, err := f.BuildMetadata()
	if err != nil {
		return nil, err
	}
	return KernelsFromMetadata(metadata)
}

// Kernel returns the description of the kernel with the given name.
func (f *File) Kernel(name string) (KernelInfo, error) {
	kernels, err := f.Kernels()
	if err != nil {
		return KernelInfo{}, err
	}
	for _, k := range kernels {
		if k.Name == name {
			return k, nil
		}
	}
	return KernelInfo{}, errors.Wrapf(ErrKernelNotFound, "kernel %q", name)
}

// KernelsFromMetadata extracts the kernels from a decoded BUILD_METADATA document:
// build_metadata.xclbin.user_regions[].kernels[].
func KernelsFromMetadata(metadata *structpb.Struct) ([]KernelInfo, error) {
	xclbinValue := lookup(metadata, "build_metadata", "xclbin")
	if xclbinValue == nil {
		return nil, errors.New("BUILD_METADATA has no build_metadata.xclbin entry")
	}
	var kernels []KernelInfo
	for _, region := range xclbinValue.GetStructValue().GetFields()["user_regions"].GetListValue().GetValues() {
		for _, kernelValue := range region.GetStructValue().GetFields()["kernels"].GetListValue().GetValues() {
			kernel, err := kernelFromValue(kernelValue.GetStructValue())
			if err != nil {
				return nil, err
			}
			kernels = append(kernels, kernel)
		}
	}
	return kernels, nil
}

func kernelFromValue(s *structpb.Struct) (KernelInfo, error) {
	fields := s.GetFields()
	kernel := KernelInfo{Name: fields["name"].GetStringValue()}
	if kernel.Name == "" {
		return kernel, errors.New("kernel entry in BUILD_METADATA has no name")
	}
	for ii, argValue := range fields["arguments"].GetListValue().GetValues() {
		argFields := argValue.GetStructValue().GetFields()
		arg := ArgumentInfo{
			Name:        argFields["name"].GetStringValue(),
			Type:        argFields["type"].GetStringValue(),
			Index:       ii,
			MemoryGroup: -1,
		}
		var err error
		if v, found := argFields["id"]; found {
			if arg.Index, err = intValue(v); err != nil {
				return kernel, errors.WithMessagef(err, "kernel %q argument #%d %q: invalid id", kernel.Name, ii, arg.Name)
			}
		}
		if v, found := argFields["size"]; found {
			if arg.Size, err = intValue(v); err != nil {
				return kernel, errors.WithMessagef(err, "kernel %q argument %q: invalid size", kernel.Name, arg.Name)
			}
		}
		if v, found := argFields["address_qualifier"]; found {
			var q int
			if q, err = intValue(v); err != nil {
				return kernel, errors.WithMessagef(err, "kernel %q argument %q: invalid address_qualifier", kernel.Name, arg.Name)
			}
			arg.AddressQualifier = AddressQualifier(q)
		}
		if v, found := argFields["memory_group"]; found {
			if arg.MemoryGroup, err = intValue(v); err != nil {
				return kernel, errors.WithMessagef(err, "kernel %q argument %q: invalid memory_group", kernel.Name, arg.Name)
			}
		}
		kernel.Arguments = append(kernel.Arguments, arg)
	}
	slices.SortFunc(kernel.Arguments, func(a, b ArgumentInfo) int { return a.Index - b.Index })
	return kernel, nil
}

// lookup follows the path of nested structures, returning nil if any of them is missing.
func lookup(s *structpb.Struct, path ...string) *structpb.Value {
	var value *structpb.Value
	for _, key := range path {
		value = s.GetFields()[key]
		if value == nil {
			return nil
		}
		s = value.GetStructValue()
	}
	return value
}

// intValue accepts numbers or strings, in decimal or in "0x" prefixed hexadecimal, the way xclbinutil writes them.
func intValue(v *structpb.Value) (int, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int(kind.NumberValue), nil
	case *structpb.Value_StringValue:
		i, err := strconv.ParseInt(kind.StringValue, 0, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parsing %q", kind.StringValue)
		}
		return int(i), nil
	}
	return 0, errors.Errorf("expected number or string, got %v", v)
}
