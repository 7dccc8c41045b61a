package xrt

import (
	"testing"
	"time"

	"github.com/gofpga/goxrt/driver/emu"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestRunAdd(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "add")
	kernel := must.M1(OpenKernel(device, "add"))
	run, err := kernel.CreateRun()
	require.NoError(t, err)
	require.Equal(t, "add", run.KernelName())
	require.Equal(t, StateNew, must.M1(run.State()))

	require.NoError(t, run.SetScalarArgument(0, uint32(3)))
	require.NoError(t, run.SetScalarArgument(1, uint32(5)))
	out := must.M1(run.CreateReadBuffer(device, 2, 4))
	require.Equal(t, 1, out.Group())
	require.Len(t, run.Bindings(), 3)
	require.Equal(t, Scalar{Value: uint32(3)}, run.Bindings()[0])
	require.Equal(t, BufferRef{Buffer: out}, run.Bindings()[2])

	state, err := run.Start(true, 0)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)
	require.Equal(t, StateCompleted, must.M1(run.State()))
	got := must.M1(ReadBufferArgument[uint32](run, 2, 1))
	require.Equal(t, []uint32{8}, got)

	// Runs can be restarted, with new arguments.
	require.NoError(t, run.SetScalarArgument(1, uint32(39)))
	state = must.M1(run.Start(true, 1000))
	require.Equal(t, StateCompleted, state)
	got = must.M1(ReadBufferArgument[uint32](run, 2, 1))
	require.Equal(t, []uint32{42}, got)

	// Destroy in reverse order of creation, twice.
	run.Destroy()
	require.False(t, out.IsValid(), "buffers owned by the run should be freed with it")
	run.Destroy()
	kernel.Destroy()
	kernel.Destroy()
	device.Destroy()
	device.Destroy()
	requireNoLeaks(t, rt)
}

func TestRunVScale(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "vscale")
	kernel := must.M1(OpenKernel(device, "vscale"))
	defer kernel.Destroy()
	run := must.M1(kernel.CreateRun())
	defer run.Destroy()

	const size = 16
	input := make([]uint32, size)
	for ii := range input {
		input[ii] = 7
	}
	require.NoError(t, run.SetScalarArgument(0, uint32(size)))
	require.NoError(t, run.SetScalarArgument(1, uint32(6)))
	in := must.M1(run.WriteBufferArgument(device, 2, input))
	require.Equal(t, size*4, in.Size())
	require.Equal(t, 1, in.Group())
	must.M1(run.CreateReadBuffer(device, 3, size*4))

	state := must.M1(run.Start(true, 1000))
	require.Equal(t, StateCompleted, state)
	got := must.M1(ReadBufferArgument[uint32](run, 3, size))
	for ii, v := range got {
		require.Equalf(t, uint32(42), v, "output[%d]", ii)
	}
}

func testRunVScaleDType[T dtypes.Number](t *testing.T, kernelName string, scale T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, kernelName)
	kernel := must.M1(OpenKernel(device, kernelName))
	defer kernel.Destroy()
	run := must.M1(kernel.CreateRun())
	defer run.Destroy()

	input := []T{1, 2, 3, 4}
	require.NoError(t, run.SetScalarArgument(0, uint32(len(input))))
	require.NoError(t, run.SetScalarArgument(1, scale))
	must.M1(run.WriteBufferArgument(device, 2, input))
	must.M1(run.CreateReadBuffer(device, 3, len(input)*dtypes.FromGenericsType[T]().Size()))
	require.Equal(t, StateCompleted, must.M1(run.Start(true, 1000)))
	got := make([]T, len(input))
	require.NoError(t, run.ReadBufferArgumentInto(3, got))
	for ii := range input {
		require.Equal(t, input[ii]*scale, got[ii])
	}
}

func TestRunVScaleDTypes(t *testing.T) {
	t.Run("i32", func(t *testing.T) { testRunVScaleDType[int32](t, "vscale_i32", -3) })
	t.Run("u64", func(t *testing.T) { testRunVScaleDType[uint64](t, "vscale_u64", 1<<40) })
	t.Run("i64", func(t *testing.T) { testRunVScaleDType[int64](t, "vscale_i64", -5) })
	t.Run("f32", func(t *testing.T) { testRunVScaleDType[float32](t, "vscale_f32", 0.25) })
	t.Run("f64", func(t *testing.T) { testRunVScaleDType[float64](t, "vscale_f64", 1.5) })
	t.Run("f16", func(t *testing.T) {
		rt := emu.New()
		device := openReadyDevice(t, rt, "vscale_f16")
		kernel := must.M1(OpenKernel(device, "vscale_f16"))
		defer kernel.Destroy()
		run := must.M1(kernel.CreateRun())
		defer run.Destroy()
		input := []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(-2)}
		require.NoError(t, run.SetScalarArgument(0, uint32(2)))
		require.NoError(t, run.SetScalarArgument(1, float16.Fromfloat32(0.5)))
		must.M1(run.WriteBufferArgument(device, 2, input))
		must.M1(run.CreateReadBuffer(device, 3, 4))
		require.Equal(t, StateCompleted, must.M1(run.Start(true, 1000)))
		got := must.M1(ReadBufferArgument[float16.Float16](run, 3, 2))
		require.Equal(t, float32(0.5), got[0].Float32())
		require.Equal(t, float32(-1), got[1].Float32())
	})
}

func TestRunArgumentErrors(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "vscale")
	kernel := must.M1(OpenKernel(device, "vscale"))
	defer kernel.Destroy()
	run := must.M1(kernel.CreateRun())
	defer run.Destroy()

	// Unsupported scalar types.
	require.ErrorIs(t, run.SetScalarArgument(0, 16), ErrUnsupportedType)
	require.ErrorIs(t, run.SetScalarArgument(0, "16"), ErrUnsupportedType)

	// Wrong size for the argument.
	err := run.SetScalarArgument(0, uint64(16))
	require.ErrorIs(t, err, ErrArgumentSet)
	var setErr *ArgumentSetError
	require.ErrorAs(t, err, &setErr)
	require.Equal(t, 0, setErr.Index)

	// Buffer from the wrong memory group.
	wrongGroup := must.M1(AllocateBuffer(device, 64, FlagsNone, 0))
	defer wrongGroup.Destroy()
	err = run.SetBufferArgument(2, wrongGroup)
	require.ErrorIs(t, err, ErrArgumentSet)
	require.ErrorAs(t, err, &setErr)
	require.Equal(t, 2, setErr.Index)
	require.Same(t, wrongGroup, setErr.Value)
	require.NotContains(t, run.Bindings(), 2)

	// Buffer already freed.
	freed := must.M1(AllocateBuffer(device, 64, FlagsNone, 1))
	freed.Destroy()
	require.ErrorIs(t, run.SetBufferArgument(2, freed), ErrBufferNotAllocated)

	// No memory group for scalar arguments, and nothing to read from.
	_, err = run.WriteBufferArgument(device, 0, []uint32{1})
	require.ErrorIs(t, err, ErrArgumentGroupRetrieval)
	_, err = run.WriteBufferArgument(device, 2, []int{1})
	require.ErrorIs(t, err, ErrUnsupportedType)
	_, err = run.WriteBufferArgument(device, 2, []uint32{})
	require.ErrorIs(t, err, ErrAllocation)
	_, err = ReadBufferArgument[uint32](run, 3, 1)
	require.ErrorIs(t, err, ErrBufferNotFound)
	require.Equal(t, KindLookup, KindOf(err))

	// A failed bind releases the buffer allocated for it.
	buffers := rt.Stats().Buffers
	rt.FailNext(emu.OpSetArgument, 1)
	_, err = run.WriteBufferArgument(device, 2, []uint32{1, 2})
	require.ErrorIs(t, err, ErrArgumentSet)
	require.Equal(t, buffers, rt.Stats().Buffers)

	// Binding again replaces (and frees) the previously owned buffer.
	first := must.M1(run.WriteBufferArgument(device, 2, []uint32{1, 2}))
	second := must.M1(run.WriteBufferArgument(device, 2, []uint32{3, 4}))
	require.False(t, first.IsValid())
	got, found := run.Buffer(2)
	require.True(t, found)
	require.Same(t, second, got)
}

func TestRunFewerArguments(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "vscale")
	kernel := must.M1(OpenKernel(device, "vscale"))
	defer kernel.Destroy()
	run := must.M1(kernel.CreateRun())
	defer run.Destroy()

	// Only two out of four arguments bound: starting is not an error, but the state reflects the failure.
	require.NoError(t, run.SetScalarArgument(0, uint32(16)))
	require.NoError(t, run.SetScalarArgument(1, uint32(6)))
	state, err := run.Start(true, 1000)
	require.NoError(t, err)
	require.Equal(t, StateError, state)
	require.True(t, state.IsTerminal())
}

func TestRunStartFailure(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "add")
	kernel := must.M1(OpenKernel(device, "add"))
	defer kernel.Destroy()
	run := must.M1(kernel.CreateRun())
	defer run.Destroy()
	require.NoError(t, run.SetScalarArgument(0, uint32(1)))
	require.NoError(t, run.SetScalarArgument(1, uint32(2)))
	must.M1(run.CreateReadBuffer(device, 2, 4))

	rt.FailNext(emu.OpStartRun, 1)
	state, err := run.Start(false, 0)
	require.NoError(t, err)
	require.Equal(t, StateAbort, state)

	// The run can be started again.
	require.Equal(t, StateCompleted, must.M1(run.Start(true, 1000)))
	require.Equal(t, []uint32{3}, must.M1(ReadBufferArgument[uint32](run, 2, 1)))
}

func TestRunTimeout(t *testing.T) {
	rt := emu.New(emu.WithLatency(500 * time.Millisecond))
	device := openReadyDevice(t, rt, "add")
	kernel := must.M1(OpenKernel(device, "add"))
	defer kernel.Destroy()
	run := must.M1(kernel.CreateRun())
	defer run.Destroy()
	require.NoError(t, run.SetScalarArgument(0, uint32(1)))
	require.NoError(t, run.SetScalarArgument(1, uint32(2)))
	must.M1(run.CreateReadBuffer(device, 2, 4))

	state, err := run.Start(true, 10)
	require.NoError(t, err)
	require.Equal(t, StateTimeout, state)

	// The execution goes on: waiting indefinitely gets the final state.
	state, err = run.Wait(0)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)
}

func TestRunNotStarted(t *testing.T) {
	rt := emu.New()
	device := openReadyDevice(t, rt, "add")
	kernel := must.M1(OpenKernel(device, "add"))
	defer kernel.Destroy()
	run := must.M1(kernel.CreateRun())

	// Waiting on a run never started returns its state right away.
	require.Equal(t, StateNew, must.M1(run.Wait(10)))
	require.Equal(t, StateNew, must.M1(run.Wait(0)))

	run.Destroy()
	require.Equal(t, `Run("add", destroyed)`, run.String())
	_, err := run.State()
	require.ErrorIs(t, err, ErrRunNotCreated)
	_, err = run.Start(true, 0)
	require.ErrorIs(t, err, ErrRunNotCreated)
	_, err = run.Wait(0)
	require.ErrorIs(t, err, ErrRunNotCreated)
	require.ErrorIs(t, run.SetScalarArgument(0, uint32(1)), ErrRunNotCreated)

	rt.FailNext(emu.OpOpenRun, 1)
	_, err = kernel.CreateRun()
	require.ErrorIs(t, err, ErrRunCreation)
}
