package xrt

import (
	"runtime"
	"testing"
	"time"

	"github.com/gofpga/goxrt/driver/emu"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestBufferRoundTrip(t *testing.T) {
	rt := emu.New()
	device := must.M1(OpenDevice(rt, 0))
	defer device.Destroy()

	// Buffers don't require a bitstream.
	buffer, err := AllocateBuffer(device, 64, FlagsNone, 1)
	require.NoError(t, err)
	require.True(t, buffer.IsValid())
	require.Equal(t, 64, buffer.Size())
	require.Equal(t, 1, buffer.Group())
	require.Equal(t, "Buffer(64 B, group 1)", buffer.String())

	input := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, WriteSlice(buffer, input, 0))
	require.NoError(t, buffer.Sync(HostToDevice))
	require.NoError(t, buffer.Sync(DeviceToHost))
	got := must.M1(ReadSlice[uint32](buffer, len(input), 0))
	require.Equal(t, input, got)

	// Partial ranges.
	require.NoError(t, WriteSlice(buffer, []uint32{100, 101}, 8))
	got = must.M1(ReadSlice[uint32](buffer, 4, 0))
	require.Equal(t, []uint32{1, 2, 100, 101}, got)

	// Out of range.
	require.ErrorIs(t, WriteSlice(buffer, input, 4), ErrOutOfRange)
	require.ErrorIs(t, buffer.SyncRange(HostToDevice, 64, 8), ErrOutOfRange)
	_, err = ReadSlice[uint64](buffer, 9, 0)
	require.ErrorIs(t, err, ErrOutOfRange)

	buffer.Destroy()
	require.False(t, buffer.IsValid())
	buffer.Destroy()
	require.ErrorIs(t, buffer.Write([]byte{1}, 0), ErrBufferNotAllocated)
	require.ErrorIs(t, buffer.Sync(DeviceToHost), ErrBufferNotAllocated)
	device.Destroy()
	requireNoLeaks(t, rt)
}

func TestBufferValues(t *testing.T) {
	rt := emu.New()
	device := must.M1(OpenDevice(rt, 0))
	defer device.Destroy()
	buffer := must.M1(AllocateBuffer(device, 8, FlagsNone, 0))
	defer buffer.Destroy()

	halves := []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-2)}
	require.NoError(t, WriteValues(buffer, halves, 0))
	got := make([]float16.Float16, 2)
	require.NoError(t, ReadValues(buffer, got, 0))
	require.Equal(t, halves, got)

	require.ErrorIs(t, WriteValues(buffer, []int{1}, 0), ErrUnsupportedType)
	require.ErrorIs(t, ReadValues(buffer, []string{"a"}, 0), ErrUnsupportedType)
}

func TestAllocateBufferFailures(t *testing.T) {
	rt := emu.New(emu.WithMemoryGroups(2))
	device := must.M1(OpenDevice(rt, 0))

	_, err := AllocateBuffer(device, 0, FlagsNone, 0)
	require.ErrorIs(t, err, ErrAllocation)
	_, err = AllocateBuffer(device, 16, FlagsNone, -1)
	require.ErrorIs(t, err, ErrAllocation)

	// Memory group the device doesn't have.
	_, err = AllocateBuffer(device, 16, FlagsNone, 2)
	require.ErrorIs(t, err, ErrAllocation)
	require.Equal(t, KindAllocation, KindOf(err))

	rt.FailNext(emu.OpAllocBuffer, 1)
	_, err = AllocateBuffer(device, 16, FlagsNone, 0)
	require.ErrorIs(t, err, ErrAllocation)

	device.Destroy()
	_, err = AllocateBuffer(device, 16, FlagsNone, 0)
	require.ErrorIs(t, err, ErrUnopenedDevice)
	requireNoLeaks(t, rt)
}

func TestBufferTransferFailures(t *testing.T) {
	rt := emu.New()
	device := must.M1(OpenDevice(rt, 0))
	defer device.Destroy()
	buffer := must.M1(AllocateBuffer(device, 16, FlagsNone, 0))
	defer buffer.Destroy()

	rt.FailNext(emu.OpWriteBuffer, 1)
	err := buffer.Write([]byte{1, 2}, 0)
	require.ErrorIs(t, err, ErrWrite)
	require.Equal(t, KindTransfer, KindOf(err))

	rt.FailNext(emu.OpSyncBuffer, 1)
	require.ErrorIs(t, buffer.Sync(HostToDevice), ErrSync)

	rt.FailNext(emu.OpReadBuffer, 1)
	require.ErrorIs(t, buffer.Read(make([]byte, 2), 0), ErrRead)
}

func TestBufferGarbageCollection(t *testing.T) {
	rt := emu.New()
	device := must.M1(OpenDevice(rt, 0))
	defer device.Destroy()
	func() {
		_ = must.M1(AllocateBuffer(device, 1024, FlagsNone, 0))
	}()
	require.Equal(t, 1, rt.Stats().Buffers)
	for range 10 {
		runtime.GC()
		if rt.Stats().Buffers == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Zero(t, rt.Stats().Buffers)
	require.Zero(t, rt.Stats().InvalidReleases)
}
