package emu

import (
	"os"
	"path/filepath"
	"unsafe"

	"github.com/gofpga/goxrt/dtypes"
	"github.com/gofpga/goxrt/xclbin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// KernelDef is a kernel implemented in Go, executed by the emulated accelerator.
type KernelDef struct {
	Name string

	// Arguments as they are written in the xclbin metadata by WriteBitstream. Buffer arguments with a
	// MemoryGroup >= 0 must be bound to buffers of that group.
	Arguments []xclbin.ArgumentInfo

	// Run executes the kernel: it reads and writes device memory only.
	Run func(args *Arguments) error
}

// Arguments bound to a run, as seen by the kernel implementation.
type Arguments struct {
	info   xclbin.KernelInfo
	values []argValue
}

// Scalar returns the raw value of the scalar argument, or nil if the argument is a buffer.
func (a *Arguments) Scalar(index int) []byte {
	return a.values[index].scalar
}

// Memory returns the device memory of the buffer argument, or nil if the argument is a scalar.
func (a *Arguments) Memory(index int) []byte {
	if a.values[index].buffer == nil {
		return nil
	}
	return a.values[index].buffer.mem
}

// ScalarAs returns the scalar argument converted to T.
func ScalarAs[T dtypes.Supported](a *Arguments, index int) T {
	var value T
	copy(dtypes.UnsafeByteSlice(unsafe.Slice(&value, 1)), a.Scalar(index))
	return value
}

// MemoryAs returns a view of the device memory of the buffer argument as a slice of T.
func MemoryAs[T dtypes.Supported](a *Arguments, index int) []T {
	mem := a.Memory(index)
	var zero T
	n := len(mem) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(mem))), n)
}

// cTypeNames are the argument types as they would be declared in the kernel source.
var cTypeNames = map[dtypes.DType]string{
	dtypes.Int32:   "int",
	dtypes.Int64:   "long",
	dtypes.Uint32:  "unsigned int",
	dtypes.Uint64:  "unsigned long",
	dtypes.Float16: "half",
	dtypes.Float32: "float",
	dtypes.Float64: "double",
}

func scalarArg(name string, index int, dtype dtypes.DType) xclbin.ArgumentInfo {
	return xclbin.ArgumentInfo{
		Name:             name,
		Index:            index,
		Type:             cTypeNames[dtype],
		Size:             dtype.Size(),
		AddressQualifier: xclbin.Scalar,
		MemoryGroup:      -1,
	}
}

func globalArg(name string, index int, dtype dtypes.DType, group int) xclbin.ArgumentInfo {
	return xclbin.ArgumentInfo{
		Name:             name,
		Index:            index,
		Type:             cTypeNames[dtype] + "*",
		Size:             8,
		AddressQualifier: xclbin.Global,
		MemoryGroup:      group,
	}
}

// Library returns the kernels available in every emulated accelerator:
//
//   - add(uint in_0, uint in_1, uint* out): out[0] = in_0 + in_1.
//   - vscale_<dtype>(uint size, T scale, T* in, T* out): out[i] = in[i] * scale for i < size, for
//     dtype in u32, i32, u64, i64, f16, f32 and f64. "vscale" is an alias to vscale_u32.
//
// Buffer inputs are in memory group 1 and outputs in memory group 2.
func Library() []*KernelDef {
	defs := []*KernelDef{
		{
			Name: "add",
			Arguments: []xclbin.ArgumentInfo{
				scalarArg("in_0", 0, dtypes.Uint32),
				scalarArg("in_1", 1, dtypes.Uint32),
				globalArg("out", 2, dtypes.Uint32, 1),
			},
			Run: add,
		},
		vscaleDef[uint32](vscale[uint32]),
		vscaleDef[int32](vscale[int32]),
		vscaleDef[uint64](vscale[uint64]),
		vscaleDef[int64](vscale[int64]),
		vscaleDef[float32](vscale[float32]),
		vscaleDef[float64](vscale[float64]),
		vscaleDef[float16.Float16](vscaleFloat16),
	}
	alias := *defs[1]
	alias.Name = "vscale"
	return append(defs, &alias)
}

func add(args *Arguments) error {
	out := MemoryAs[uint32](args, 2)
	if len(out) < 1 {
		return errors.New("add: output buffer must hold at least one uint32")
	}
	out[0] = ScalarAs[uint32](args, 0) + ScalarAs[uint32](args, 1)
	return nil
}

func vscaleDef[T dtypes.Supported](run func(args *Arguments) error) *KernelDef {
	dtype := dtypes.FromGenericsType[T]()
	return &KernelDef{
		Name: "vscale_" + dtype.ShortName(),
		Arguments: []xclbin.ArgumentInfo{
			scalarArg("size", 0, dtypes.Uint32),
			scalarArg("scale", 1, dtype),
			globalArg("in", 2, dtype, 1),
			globalArg("out", 3, dtype, 2),
		},
		Run: run,
	}
}

// vscaleBuffers returns the input and output views, checking they hold size elements.
func vscaleBuffers[T dtypes.Supported](args *Arguments) (in, out []T, err error) {
	size := int(ScalarAs[uint32](args, 0))
	in, out = MemoryAs[T](args, 2), MemoryAs[T](args, 3)
	if size > len(in) || size > len(out) {
		return nil, nil, errors.Errorf("vscale: size %d larger than input (%d elements) or output (%d elements)",
			size, len(in), len(out))
	}
	return in[:size], out[:size], nil
}

func vscale[T dtypes.Number](args *Arguments) error {
	in, out, err := vscaleBuffers[T](args)
	if err != nil {
		return err
	}
	scale := ScalarAs[T](args, 1)
	for ii, v := range in {
		out[ii] = v * scale
	}
	return nil
}

func vscaleFloat16(args *Arguments) error {
	in, out, err := vscaleBuffers[float16.Float16](args)
	if err != nil {
		return err
	}
	scale := ScalarAs[float16.Float16](args, 1).Float32()
	for ii, v := range in {
		out[ii] = float16.Fromfloat32(v.Float32() * scale)
	}
	return nil
}

// BitstreamBytes returns an xclbin with the given identity, describing the given kernels of the runtime's library.
func (rt *Runtime) BitstreamBytes(id uuid.UUID, kernelNames ...string) ([]byte, error) {
	builder := xclbin.NewBuilder(id)
	builder.Platform = "xilinx_goxrt_emulation"
	kernels := make([]xclbin.KernelInfo, 0, len(kernelNames))
	for _, name := range kernelNames {
		def, found := rt.library[name]
		if !found {
			return nil, errors.Errorf("kernel %q is not implemented by the emulated accelerator", name)
		}
		kernels = append(kernels, xclbin.KernelInfo{Name: def.Name, Arguments: def.Arguments})
	}
	return builder.AddBuildMetadata(kernels...).Bytes()
}

// WriteBitstream writes an xclbin with a new identity to path, describing the given kernels of the runtime's library.
// It returns the identity of the bitstream.
func (rt *Runtime) WriteBitstream(path string, kernelNames ...string) (uuid.UUID, error) {
	id := uuid.New()
	data, err := rt.BitstreamBytes(id, kernelNames...)
	if err != nil {
		return uuid.Nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return uuid.Nil, errors.Wrapf(err, "creating directory for xclbin %q", path)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return uuid.Nil, errors.Wrapf(err, "writing xclbin %q", path)
	}
	return id, nil
}
