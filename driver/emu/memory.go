package emu

import (
	"unsafe"

	"github.com/gofpga/goxrt/driver"
	"k8s.io/klog/v2"
)

// buffer has separate host (staging) and device memory: data only moves between them with SyncBuffer.
//
// Memory is not locked: like with the real accelerator, syncing a buffer while a kernel using it is running is a
// caller error.
type buffer struct {
	device *device
	size   int
	flags  driver.BufferFlags
	group  int
	host   []byte
	mem    []byte
}

// alignedBytes allocates n bytes aligned to 8 bytes, so kernels can view them as any numeric type.
func alignedBytes(n int) []byte {
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}

// AllocBuffer implements driver.Runtime.
func (rt *Runtime) AllocBuffer(deviceHandle driver.Handle, size int, flags driver.BufferFlags, group uint32) driver.Handle {
	d, found := rt.devices.Get(deviceHandle)
	if !found || size <= 0 || int(group) >= rt.memoryGroups || rt.injectedFault(OpAllocBuffer) {
		return driver.NullHandle
	}
	b := &buffer{
		device: d,
		size:   size,
		flags:  flags,
		group:  int(group),
		host:   alignedBytes(size),
		mem:    alignedBytes(size),
	}
	h := rt.buffers.Insert(b)
	klog.V(2).Infof("emu: allocated buffer %s of %d bytes in group %d", h, size, group)
	return h
}

// FreeBuffer implements driver.Runtime.
func (rt *Runtime) FreeBuffer(handle driver.Handle) int {
	_, found := rt.buffers.Remove(handle)
	return rt.release(found, "buffer", handle)
}

// inRange checks that [offset, offset+length) is within the buffer.
func (b *buffer) inRange(length, offset int) bool {
	return offset >= 0 && length >= 0 && offset+length <= b.size
}

// WriteBuffer implements driver.Runtime.
func (rt *Runtime) WriteBuffer(handle driver.Handle, src []byte, offset int) int {
	b, found := rt.buffers.Get(handle)
	if !found {
		return statusNoEntry
	}
	if !b.inRange(len(src), offset) || rt.injectedFault(OpWriteBuffer) {
		return statusInvalid
	}
	copy(b.host[offset:], src)
	return statusOK
}

// ReadBuffer implements driver.Runtime.
func (rt *Runtime) ReadBuffer(handle driver.Handle, dst []byte, offset int) int {
	b, found := rt.buffers.Get(handle)
	if !found {
		return statusNoEntry
	}
	if !b.inRange(len(dst), offset) || rt.injectedFault(OpReadBuffer) {
		return statusInvalid
	}
	copy(dst, b.host[offset:offset+len(dst)])
	return statusOK
}

// SyncBuffer implements driver.Runtime.
func (rt *Runtime) SyncBuffer(handle driver.Handle, dir driver.SyncDirection, size, offset int) int {
	b, found := rt.buffers.Get(handle)
	if !found {
		return statusNoEntry
	}
	if !b.inRange(size, offset) || rt.injectedFault(OpSyncBuffer) {
		return statusInvalid
	}
	switch dir {
	case driver.SyncToDevice:
		copy(b.mem[offset:offset+size], b.host[offset:offset+size])
	case driver.SyncFromDevice:
		copy(b.host[offset:offset+size], b.mem[offset:offset+size])
	default:
		return statusInvalid
	}
	return statusOK
}
