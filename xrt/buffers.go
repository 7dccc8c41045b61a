package xrt

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Buffer is a buffer object allocated on the device, in one memory group.
//
// It has host staging memory (accessed with Write and Read) and device memory (accessed by kernels): Sync moves
// data between the two.
type Buffer struct {
	wrapper *bufferWrapper
	size    int
	flags   BufferFlags
	group   int
}

// bufferWrapper holds what is needed to free the native buffer, so it can be freed when the Buffer is garbage
// collected.
type bufferWrapper struct {
	rt     driver.Runtime
	handle driver.Handle
}

func (wrapper *bufferWrapper) IsValid() bool {
	return wrapper != nil && wrapper.rt != nil && !wrapper.handle.IsNull()
}

// Destroy frees the native buffer, returning the runtime status. It's a no-op if already freed.
func (wrapper *bufferWrapper) Destroy() int {
	if !wrapper.IsValid() {
		return 0
	}
	status := wrapper.rt.FreeBuffer(wrapper.handle)
	wrapper.rt = nil
	wrapper.handle = driver.NullHandle
	buffersAlive.Add(-1)
	return status
}

// AllocateBuffer allocates a buffer of sizeBytes on the device, in the given memory group.
// The group is usually the one of the kernel argument the buffer will be bound to, see Kernel.MemoryGroupForArgument.
//
// The device doesn't need to be ready (have a bitstream loaded), but it must be open. The Buffer doesn't need the
// Device after it's created.
func AllocateBuffer(device *Device, sizeBytes int, flags BufferFlags, group int) (*Buffer, error) {
	if !device.IsOpen() {
		return nil, errors.Wrapf(ErrUnopenedDevice, "allocating buffer of %d bytes", sizeBytes)
	}
	if sizeBytes <= 0 || group < 0 {
		return nil, errors.Wrapf(ErrAllocation, "invalid size %d or memory group %d", sizeBytes, group)
	}
	handle := device.rt.AllocBuffer(device.handle, sizeBytes, flags, uint32(group))
	if handle.IsNull() {
		return nil, errors.Wrapf(ErrAllocation, "%s in memory group %d on %s",
			humanize.IBytes(uint64(sizeBytes)), group, device)
	}
	return newBuffer(device.rt, handle, sizeBytes, flags, group), nil
}

// newBuffer creates a Buffer and registers it for freeing.
func newBuffer(rt driver.Runtime, handle driver.Handle, size int, flags BufferFlags, group int) *Buffer {
	b := &Buffer{
		wrapper: &bufferWrapper{rt: rt, handle: handle},
		size:    size,
		flags:   flags,
		group:   group,
	}
	buffersAlive.Add(1)
	runtime.AddCleanup(b, func(wrapper *bufferWrapper) {
		if status := wrapper.Destroy(); status != 0 {
			klog.Errorf("xrt.Buffer garbage collection: freeing buffer returned status %d", status)
		}
	}, b.wrapper)
	return b
}

// Destroy frees the buffer. It's a no-op if already destroyed.
// It's also called automatically when the Buffer is garbage collected.
func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	if status := b.wrapper.Destroy(); status != 0 {
		klog.V(1).Infof("freeing %s returned status %d", b, status)
	}
}

// IsValid returns whether the buffer is allocated.
func (b *Buffer) IsValid() bool {
	return b != nil && b.wrapper.IsValid()
}

// Handle returns the runtime handle of the buffer, NullHandle if it was destroyed.
func (b *Buffer) Handle() driver.Handle {
	if !b.IsValid() {
		return driver.NullHandle
	}
	return b.wrapper.handle
}

// Size of the buffer in bytes.
func (b *Buffer) Size() int { return b.size }

// Group is the memory group the buffer was allocated in.
func (b *Buffer) Group() int { return b.group }

// Flags used to allocate the buffer.
func (b *Buffer) Flags() BufferFlags { return b.flags }

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	if b == nil {
		return "Buffer(nil)"
	}
	if !b.IsValid() {
		return fmt.Sprintf("Buffer(%s, group %d, destroyed)", humanize.IBytes(uint64(b.size)), b.group)
	}
	return fmt.Sprintf("Buffer(%s, group %d)", humanize.IBytes(uint64(b.size)), b.group)
}

func (b *Buffer) checkRange(length, offset int) error {
	if offset < 0 || length < 0 || offset+length > b.size {
		return errors.Wrapf(ErrOutOfRange, "%d bytes at offset %d, %s", length, offset, b)
	}
	return nil
}

// Write copies data to the buffer host memory, starting at offset bytes. It doesn't make the data visible to the
// accelerator: see Sync.
func (b *Buffer) Write(data []byte, offset int) error {
	if !b.IsValid() {
		return errors.WithStack(ErrBufferNotAllocated)
	}
	if err := b.checkRange(len(data), offset); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	defer runtime.KeepAlive(b)
	if status := b.wrapper.rt.WriteBuffer(b.wrapper.handle, data, offset); status != 0 {
		return errors.Wrapf(ErrWrite, "%d bytes at offset %d of %s (status %d)", len(data), offset, b, status)
	}
	return nil
}

// Read copies the buffer host memory, starting at offset bytes, to dst. Data written by the accelerator is only
// visible after a Sync(DeviceToHost).
func (b *Buffer) Read(dst []byte, offset int) error {
	if !b.IsValid() {
		return errors.WithStack(ErrBufferNotAllocated)
	}
	if err := b.checkRange(len(dst), offset); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	defer runtime.KeepAlive(b)
	if status := b.wrapper.rt.ReadBuffer(b.wrapper.handle, dst, offset); status != 0 {
		return errors.Wrapf(ErrRead, "%d bytes at offset %d of %s (status %d)", len(dst), offset, b, status)
	}
	return nil
}

// Sync the whole buffer in the given direction.
func (b *Buffer) Sync(dir SyncDirection) error {
	return b.SyncRange(dir, b.size, 0)
}

// SyncRange transfers size bytes starting at offset between the host memory and the device memory of the buffer.
func (b *Buffer) SyncRange(dir SyncDirection, size, offset int) error {
	if !b.IsValid() {
		return errors.WithStack(ErrBufferNotAllocated)
	}
	if err := b.checkRange(size, offset); err != nil {
		return err
	}
	defer runtime.KeepAlive(b)
	if status := b.wrapper.rt.SyncBuffer(b.wrapper.handle, dir, size, offset); status != 0 {
		return errors.Wrapf(ErrSync, "%s of %d bytes at offset %d of %s (status %d)", dir, size, offset, b, status)
	}
	return nil
}

// WriteSlice writes values to the buffer host memory, starting at offset bytes.
func WriteSlice[T dtypes.Supported](b *Buffer, values []T, offset int) error {
	return b.Write(dtypes.UnsafeByteSlice(values), offset)
}

// ReadSlice reads count values of type T from the buffer host memory, starting at offset bytes.
func ReadSlice[T dtypes.Supported](b *Buffer, count, offset int) ([]T, error) {
	if count < 0 {
		return nil, errors.Wrapf(ErrOutOfRange, "negative count %d", count)
	}
	values := make([]T, count)
	if err := b.Read(dtypes.UnsafeByteSlice(values), offset); err != nil {
		return nil, err
	}
	return values, nil
}

// WriteValues writes a slice of any supported type (e.g. []float32) to the buffer host memory, starting at offset
// bytes.
func WriteValues(b *Buffer, values any, offset int) error {
	raw, _, err := dtypes.SliceBytes(values)
	if err != nil {
		return errors.Wrapf(ErrUnsupportedType, "writing %T to %s", values, b)
	}
	return b.Write(raw, offset)
}

// ReadValues fills dst, a slice of any supported type (e.g. []float32), from the buffer host memory, starting at
// offset bytes.
func ReadValues(b *Buffer, dst any, offset int) error {
	raw, _, err := dtypes.SliceBytes(dst)
	if err != nil {
		return errors.Wrapf(ErrUnsupportedType, "reading %s into %T", b, dst)
	}
	return b.Read(raw, offset)
}

// elementSize returns the size of T in bytes.
func elementSize[T dtypes.Supported]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
