package xrt

import (
	"testing"

	"github.com/gofpga/goxrt/driver/emu"
	"github.com/gofpga/goxrt/xclbin"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestOpenKernel(t *testing.T) {
	rt := emu.New()

	// Device without a bitstream.
	device := must.M1(OpenDevice(rt, 0))
	_, err := OpenKernel(device, "add")
	require.ErrorIs(t, err, ErrDeviceNotReady)
	require.Equal(t, KindNotReady, KindOf(err))
	device.Destroy()

	device = openReadyDevice(t, rt, "add", "vscale")
	kernel, err := OpenKernel(device, "vscale")
	require.NoError(t, err)
	require.True(t, kernel.IsValid())
	require.Equal(t, "vscale", kernel.Name())
	require.Equal(t, `Kernel("vscale")`, kernel.String())

	// Memory groups: scalars have none, "in" is in group 1 and "out" in group 2.
	require.Equal(t, 1, must.M1(kernel.MemoryGroupForArgument(2)))
	require.Equal(t, 2, must.M1(kernel.MemoryGroupForArgument(3)))
	_, err = kernel.MemoryGroupForArgument(0)
	require.ErrorIs(t, err, ErrArgumentGroupRetrieval)
	require.Equal(t, KindArgumentBinding, KindOf(err))

	// Kernel not in the bitstream, or not convertible to C string.
	_, err = OpenKernel(device, "fft")
	require.ErrorIs(t, err, ErrKernelCreation)
	_, err = OpenKernel(device, "add\x00")
	require.ErrorIs(t, err, ErrStringConversion)

	kernel.Destroy()
	require.False(t, kernel.IsValid())
	kernel.Destroy()
	_, err = kernel.MemoryGroupForArgument(2)
	require.ErrorIs(t, err, ErrKernelNotLoaded)
	_, err = kernel.CreateRun()
	require.ErrorIs(t, err, ErrKernelNotLoaded)

	device.Destroy()
	requireNoLeaks(t, rt)
}

func TestKernelWithArguments(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "vscale")
	fixed := must.M1(AllocateBuffer(device, 64, FlagsNone, 1))
	defer fixed.Destroy()

	kernel, err := device.Kernel("vscale").
		WithArgument(0, Passed{}).
		WithArgument(1, Passed{}).
		WithArgument(2, FixedBuffer{Buffer: fixed}).
		WithArgument(3, NeedsAllocation{Size: 64, Direction: Output}).
		Done()
	require.NoError(t, err)
	require.Equal(t, `Kernel("vscale", 4 mapped arguments)`, kernel.String())
	out, found := kernel.Buffer(3)
	require.True(t, found)
	require.Equal(t, 2, out.Group(), "owned buffer should be allocated in the memory group of its argument")
	require.Equal(t, 64, out.Size())
	got, found := kernel.Buffer(2)
	require.True(t, found)
	require.Same(t, fixed, got)
	_, found = kernel.Buffer(0)
	require.False(t, found)
	require.Equal(t, 2, rt.Stats().Buffers)

	// Destroying the kernel frees the owned buffers only.
	kernel.Destroy()
	require.False(t, out.IsValid())
	require.True(t, fixed.IsValid())
	require.Equal(t, 1, rt.Stats().Buffers)
}

func TestKernelWithArgumentsFailures(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "vscale")

	// Invalid specifications are reported by Done.
	_, err := device.Kernel("vscale").WithArgument(-1, Passed{}).Done()
	require.Error(t, err)
	_, err = device.Kernel("vscale").WithArgument(2, NeedsAllocation{Size: 0}).Done()
	require.ErrorIs(t, err, ErrAllocation)
	_, err = device.Kernel("vscale").WithArgument(2, FixedBuffer{}).Done()
	require.ErrorIs(t, err, ErrBufferNotAllocated)
	require.Zero(t, rt.Stats().Kernels)

	// Allocation of an owned buffer fails: the kernel is released.
	rt.FailNext(emu.OpAllocBuffer, 1)
	_, err = device.Kernel("vscale").
		WithArgument(2, NeedsAllocation{Size: 64, Direction: Input}).
		WithArgument(3, NeedsAllocation{Size: 64, Direction: Output}).
		Done()
	require.ErrorIs(t, err, ErrAllocation)
	require.Zero(t, rt.Stats().Kernels)
	require.Zero(t, rt.Stats().Buffers)

	// A scalar argument can't be allocated: it has no memory group.
	_, err = device.Kernel("vscale").WithArgument(0, NeedsAllocation{Size: 4}).Done()
	require.ErrorIs(t, err, ErrInvalidGroupID)
	require.Zero(t, rt.Stats().Kernels)

	device.Destroy()
	requireNoLeaks(t, rt)

	// Device without memory group 2 (used by "out"): the buffer allocated for "in" is released along with the kernel.
	rt = emu.New(emu.WithMemoryGroups(2))
	device = openReadyDevice(t, rt, "vscale")
	_, err = device.Kernel("vscale").
		WithArgument(2, NeedsAllocation{Size: 64, Direction: Input}).
		WithArgument(3, NeedsAllocation{Size: 64, Direction: Output}).
		Done()
	require.ErrorIs(t, err, ErrAllocation)
	device.Destroy()
	requireNoLeaks(t, rt)
}

func TestArgumentsFromKernelInfo(t *testing.T) {
	rt := emu.New()
	def, found := rt.KernelDef("vscale")
	require.True(t, found)
	info := xclbin.KernelInfo{Name: def.Name, Arguments: def.Arguments}

	m, err := ArgumentsFromKernelInfo(info, map[string]NeedsAllocation{
		"in":  {Size: 64, Direction: Input},
		"out": {Size: 64, Direction: Output},
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, m.Indices())
	require.Equal(t, Passed{}, m[0])
	require.Equal(t, NeedsAllocation{Size: 64, Direction: Output}, m[3])

	_, err = ArgumentsFromKernelInfo(info, map[string]NeedsAllocation{"in": {Size: 64}})
	require.ErrorIs(t, err, ErrUnresolvedArgument)
	_, err = ArgumentsFromKernelInfo(info, map[string]NeedsAllocation{
		"in": {Size: 64}, "out": {Size: 64}, "size": {Size: 4},
	})
	require.Error(t, err)

	// The derived map opens the kernel.
	device := openReadyDevice(t, rt, "vscale")
	kernel := must.M1(device.Kernel("vscale").WithArguments(m).Done())
	defer kernel.Destroy()
	require.NoError(t, kernel.Arguments().checkResolved())
	require.Error(t, ArgumentMap{0: NeedsAllocation{Size: 4}}.checkResolved())
}

func TestKernelCall(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "vscale_f32")
	const n = 8
	kernel := must.M1(device.Kernel("vscale_f32").
		WithArgument(2, NeedsAllocation{Size: n * 4, Direction: Input}).
		WithArgument(3, NeedsAllocation{Size: n * 4, Direction: Output}).
		Done())
	defer kernel.Destroy()

	input := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	run, state, err := kernel.Call(true, 1000, uint32(n), float32(0.5), input, nil)
	require.NoError(t, err)
	defer run.Destroy()
	require.Equal(t, StateCompleted, state)
	got := must.M1(ReadOutput[float32](kernel, 3))
	require.Equal(t, []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5}, got)

	// Missing scalar: the accelerator refuses to start it.
	run2, state, err := kernel.Call(true, 1000, uint32(n))
	require.NoError(t, err)
	defer run2.Destroy()
	require.Equal(t, StateError, state)

	// Values of the wrong type or size.
	_, _, err = kernel.Call(true, 1000, n, float32(0.5), input, nil)
	require.ErrorIs(t, err, ErrUnsupportedType)
	_, _, err = kernel.Call(true, 1000, uint64(n), float32(0.5), input, nil)
	require.ErrorIs(t, err, ErrArgumentSet)
	var setErr *ArgumentSetError
	require.ErrorAs(t, err, &setErr)
	require.Equal(t, 0, setErr.Index)
	require.Equal(t, uint64(n), setErr.Value)

	_, err = ReadOutput[float32](kernel, 0)
	require.ErrorIs(t, err, ErrBufferNotFound)
}
