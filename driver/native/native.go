/*
 *	Copyright 2026 The goxrt Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

//go:build xrt

package native

/*
#cgo LDFLAGS: -lxrt_coreutil
#include <stdlib.h>
#include <stdint.h>
#include <xrt/xrt_device.h>
#include <xrt/xrt_kernel.h>
#include <xrt/xrt_bo.h>
#include <experimental/xrt_xclbin.h>

// cgo can't call variadic C functions: one wrapper per type XRT reads from the va_list.
static int goxrt_run_set_arg_bo(xrtRunHandle run, int index, xrtBufferHandle bo) {
	return xrtRunSetArg(run, index, bo);
}
static int goxrt_run_set_arg_u32(xrtRunHandle run, int index, uint32_t value) {
	return xrtRunSetArg(run, index, value);
}
static int goxrt_run_set_arg_u64(xrtRunHandle run, int index, uint64_t value) {
	return xrtRunSetArg(run, index, value);
}
*/
import "C"
import (
	"unsafe"

	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Name of the native runtime, as registered.
const Name = "xrt"

// statusInvalid is returned, as EINVAL would be by XRT, for calls with handles unknown to the Runtime.
const statusInvalid = 22

func init() {
	if err := driver.Register(Name, New()); err != nil {
		klog.Errorf("failed to register the XRT runtime: %+v", err)
	}
}

// Runtime implements driver.Runtime by calling the XRT C API.
//
// Native handles are kept in tables and never given out directly: a stale or foreign driver.Handle is rejected
// instead of being passed to XRT.
type Runtime struct {
	devices    driver.HandleTable[C.xrtDeviceHandle]
	bitstreams driver.HandleTable[C.xrtXclbinHandle]
	kernels    driver.HandleTable[C.xrtKernelHandle]
	buffers    driver.HandleTable[C.xrtBufferHandle]
	runs       driver.HandleTable[C.xrtRunHandle]
}

// Compile time check that Runtime implements driver.Runtime.
var _ driver.Runtime = (*Runtime)(nil)

// New creates a new native Runtime. Normally there is no need to create one: use driver.Get(native.Name).
func New() *Runtime {
	return &Runtime{}
}

// Name implements driver.Runtime.
func (rt *Runtime) Name() string { return Name }

// OpenDevice implements driver.Runtime.
func (rt *Runtime) OpenDevice(index uint32) driver.Handle {
	h := C.xrtDeviceOpen(C.uint(index))
	if h == nil {
		return driver.NullHandle
	}
	return rt.devices.Insert(h)
}

// CloseDevice implements driver.Runtime.
func (rt *Runtime) CloseDevice(device driver.Handle) int {
	h, found := rt.devices.Remove(device)
	if !found {
		return statusInvalid
	}
	return int(C.xrtDeviceClose(h))
}

// AllocBitstream implements driver.Runtime.
func (rt *Runtime) AllocBitstream(path string) driver.Handle {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	h := C.xrtXclbinAllocFilename(cPath)
	if h == nil {
		return driver.NullHandle
	}
	return rt.bitstreams.Insert(h)
}

// FreeBitstream implements driver.Runtime.
func (rt *Runtime) FreeBitstream(bitstream driver.Handle) int {
	h, found := rt.bitstreams.Remove(bitstream)
	if !found {
		return statusInvalid
	}
	return int(C.xrtXclbinFreeHandle(h))
}

// LoadBitstream implements driver.Runtime.
func (rt *Runtime) LoadBitstream(device, bitstream driver.Handle) int {
	d, found := rt.devices.Get(device)
	if !found {
		return statusInvalid
	}
	b, found := rt.bitstreams.Get(bitstream)
	if !found {
		return statusInvalid
	}
	return int(C.xrtDeviceLoadXclbinHandle(d, b))
}

// BitstreamUUID implements driver.Runtime.
func (rt *Runtime) BitstreamUUID(bitstream driver.Handle) (uuid.UUID, int) {
	b, found := rt.bitstreams.Get(bitstream)
	if !found {
		return uuid.Nil, statusInvalid
	}
	var xuid C.xuid_t
	if status := int(C.xrtXclbinGetUUID(b, &xuid[0])); status != 0 {
		return uuid.Nil, status
	}
	var id uuid.UUID
	for ii := range id {
		id[ii] = byte(xuid[ii])
	}
	return id, 0
}

// OpenKernel implements driver.Runtime.
func (rt *Runtime) OpenKernel(device driver.Handle, id uuid.UUID, name string) driver.Handle {
	d, found := rt.devices.Get(device)
	if !found {
		return driver.NullHandle
	}
	var xuid C.xuid_t
	for ii := range id {
		xuid[ii] = C.uchar(id[ii])
	}
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	h := C.xrtPLKernelOpen(d, &xuid[0], cName)
	if h == nil {
		return driver.NullHandle
	}
	return rt.kernels.Insert(h)
}

// CloseKernel implements driver.Runtime.
func (rt *Runtime) CloseKernel(kernel driver.Handle) int {
	h, found := rt.kernels.Remove(kernel)
	if !found {
		return statusInvalid
	}
	return int(C.xrtKernelClose(h))
}

// ArgumentGroup implements driver.Runtime.
func (rt *Runtime) ArgumentGroup(kernel driver.Handle, index int) int {
	k, found := rt.kernels.Get(kernel)
	if !found {
		return -statusInvalid
	}
	return int(C.xrtKernelArgGroupId(k, C.int(index)))
}

// AllocBuffer implements driver.Runtime.
func (rt *Runtime) AllocBuffer(device driver.Handle, size int, flags driver.BufferFlags, group uint32) driver.Handle {
	d, found := rt.devices.Get(device)
	if !found {
		return driver.NullHandle
	}
	h := C.xrtBOAlloc(d, C.size_t(size), C.xrtBufferFlags(flags), C.xrtMemoryGroup(group))
	if h == nil {
		return driver.NullHandle
	}
	return rt.buffers.Insert(h)
}

// FreeBuffer implements driver.Runtime.
func (rt *Runtime) FreeBuffer(buffer driver.Handle) int {
	h, found := rt.buffers.Remove(buffer)
	if !found {
		return statusInvalid
	}
	return int(C.xrtBOFree(h))
}

// WriteBuffer implements driver.Runtime.
func (rt *Runtime) WriteBuffer(buffer driver.Handle, src []byte, offset int) int {
	b, found := rt.buffers.Get(buffer)
	if !found {
		return statusInvalid
	}
	if len(src) == 0 {
		return 0
	}
	return int(C.xrtBOWrite(b, unsafe.Pointer(unsafe.SliceData(src)), C.size_t(len(src)), C.size_t(offset)))
}

// ReadBuffer implements driver.Runtime.
func (rt *Runtime) ReadBuffer(buffer driver.Handle, dst []byte, offset int) int {
	b, found := rt.buffers.Get(buffer)
	if !found {
		return statusInvalid
	}
	if len(dst) == 0 {
		return 0
	}
	return int(C.xrtBORead(b, unsafe.Pointer(unsafe.SliceData(dst)), C.size_t(len(dst)), C.size_t(offset)))
}

// SyncBuffer implements driver.Runtime.
func (rt *Runtime) SyncBuffer(buffer driver.Handle, dir driver.SyncDirection, size, offset int) int {
	b, found := rt.buffers.Get(buffer)
	if !found {
		return statusInvalid
	}
	return int(C.xrtBOSync(b, C.enum_xclBOSyncDirection(dir), C.size_t(size), C.size_t(offset)))
}

// OpenRun implements driver.Runtime.
func (rt *Runtime) OpenRun(kernel driver.Handle) driver.Handle {
	k, found := rt.kernels.Get(kernel)
	if !found {
		return driver.NullHandle
	}
	h := C.xrtRunOpen(k)
	if h == nil {
		return driver.NullHandle
	}
	return rt.runs.Insert(h)
}

// CloseRun implements driver.Runtime.
func (rt *Runtime) CloseRun(run driver.Handle) int {
	h, found := rt.runs.Remove(run)
	if !found {
		return statusInvalid
	}
	return int(C.xrtRunClose(h))
}

// SetArgument implements driver.Runtime.
func (rt *Runtime) SetArgument(run driver.Handle, index int, value []byte, dtype dtypes.DType) int {
	r, found := rt.runs.Get(run)
	if !found {
		return statusInvalid
	}
	scalar, ok := promoteScalar(value, dtype)
	if !ok {
		return statusInvalid
	}
	switch scalar.class {
	case class32:
		return int(C.goxrt_run_set_arg_u32(r, C.int(index), C.uint32_t(scalar.bits)))
	case class64:
		return int(C.goxrt_run_set_arg_u64(r, C.int(index), C.uint64_t(scalar.bits)))
	}
	return statusInvalid
}

// SetBufferArgument implements driver.Runtime.
func (rt *Runtime) SetBufferArgument(run driver.Handle, index int, buffer driver.Handle) int {
	r, found := rt.runs.Get(run)
	if !found {
		return statusInvalid
	}
	b, found := rt.buffers.Get(buffer)
	if !found {
		return statusInvalid
	}
	return int(C.goxrt_run_set_arg_bo(r, C.int(index), b))
}

// StartRun implements driver.Runtime.
func (rt *Runtime) StartRun(run driver.Handle) int {
	r, found := rt.runs.Get(run)
	if !found {
		return statusInvalid
	}
	return int(C.xrtRunStart(r))
}

// RunState implements driver.Runtime.
func (rt *Runtime) RunState(run driver.Handle) uint32 {
	r, found := rt.runs.Get(run)
	if !found {
		return driver.CmdStateError
	}
	return uint32(C.xrtRunState(r))
}

// WaitRun implements driver.Runtime.
func (rt *Runtime) WaitRun(run driver.Handle) uint32 {
	r, found := rt.runs.Get(run)
	if !found {
		return driver.CmdStateError
	}
	return uint32(C.xrtRunWait(r))
}

// WaitRunFor implements driver.Runtime.
func (rt *Runtime) WaitRunFor(run driver.Handle, timeoutMs uint32) uint32 {
	r, found := rt.runs.Get(run)
	if !found {
		return driver.CmdStateError
	}
	return uint32(C.xrtRunWaitFor(r, C.uint(timeoutMs)))
}
