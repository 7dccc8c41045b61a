// Package driver defines the boundary with the native accelerator runtime (the Xilinx Runtime, XRT, C API).
//
// A Runtime is a table of the C API entry points used by the lifecycle layer (package xrt): each method takes
// opaque handles in and returns a handle (NullHandle on failure) or an integer status (0 on success), exactly as
// the C API does. Two implementations exist: driver/native (cgo, built with `-tags xrt`) and driver/emu, a pure Go
// emulated accelerator used for tests and development.
//
// Runtimes register themselves by name (see Register and Get), usually in their package init.
package driver

import (
	"fmt"

	"github.com/gofpga/goxrt/dtypes"
	"github.com/google/uuid"
)

// Handle is an opaque identifier of a native resource: device, bitstream, kernel, buffer or run.
// It is not owning by itself: ownership is expressed by the wrapping type in package xrt.
type Handle uintptr

// NullHandle is returned by the Runtime when the resource couldn't be created.
const NullHandle Handle = 0

// IsNull returns whether the handle is the null handle.
func (h Handle) IsNull() bool { return h == NullHandle }

// String implements fmt.Stringer.
func (h Handle) String() string {
	if h == NullHandle {
		return "Handle(null)"
	}
	return fmt.Sprintf("Handle(%#x)", uintptr(h))
}

// SyncDirection of a buffer synchronization, maps to xclBOSyncDirection.
type SyncDirection int

const (
	// SyncToDevice is XCL_BO_SYNC_BO_TO_DEVICE: host staging memory to device memory.
	SyncToDevice SyncDirection = 0
	// SyncFromDevice is XCL_BO_SYNC_BO_FROM_DEVICE: device memory to host staging memory.
	SyncFromDevice SyncDirection = 1
)

// String implements fmt.Stringer.
func (dir SyncDirection) String() string {
	switch dir {
	case SyncToDevice:
		return "HostToDevice"
	case SyncFromDevice:
		return "DeviceToHost"
	}
	return fmt.Sprintf("SyncDirection(%d)", int(dir))
}

// BufferFlags are the XRT buffer object allocation flags (XRT_BO_FLAGS_*).
type BufferFlags uint32

const (
	FlagsNone      BufferFlags = 0
	FlagsCacheable BufferFlags = 1 << 24
	FlagsSVM       BufferFlags = 1 << 27
	FlagsDevOnly   BufferFlags = 1 << 28
	FlagsHostOnly  BufferFlags = 1 << 29
	FlagsP2P       BufferFlags = 1 << 30
)

// Raw ERT command states (ert_cmd_state), as returned by RunState, WaitRun and WaitRunFor.
const (
	CmdStateNew        uint32 = 1
	CmdStateQueued     uint32 = 2
	CmdStateRunning    uint32 = 3
	CmdStateCompleted  uint32 = 4
	CmdStateError      uint32 = 5
	CmdStateAbort      uint32 = 6
	CmdStateSubmitted  uint32 = 7
	CmdStateTimeout    uint32 = 8
	CmdStateNoResponse uint32 = 9
	CmdStateSKError    uint32 = 10
	CmdStateSKCrashed  uint32 = 11
	CmdStateMax        uint32 = 12
)

// Runtime is the set of native accelerator runtime calls.
//
// Handles returned by one Runtime are only meaningful to that same Runtime.
// Close/Free methods return a status that callers ignore on teardown paths.
type Runtime interface {
	// Name of the runtime, as registered.
	Name() string

	// OpenDevice maps to xrtDeviceOpen.
	OpenDevice(index uint32) Handle
	// CloseDevice maps to xrtDeviceClose.
	CloseDevice(device Handle) int

	// AllocBitstream maps to xrtXclbinAllocFilename.
	AllocBitstream(path string) Handle
	// FreeBitstream maps to xrtXclbinFreeHandle.
	FreeBitstream(bitstream Handle) int
	// LoadBitstream maps to xrtDeviceLoadXclbinHandle.
	LoadBitstream(device, bitstream Handle) int
	// BitstreamUUID maps to xrtXclbinGetUUID.
	BitstreamUUID(bitstream Handle) (uuid.UUID, int)

	// OpenKernel maps to xrtPLKernelOpen.
	OpenKernel(device Handle, id uuid.UUID, name string) Handle
	// CloseKernel maps to xrtKernelClose.
	CloseKernel(kernel Handle) int
	// ArgumentGroup maps to xrtKernelArgGroupId: it returns a negative value on error.
	ArgumentGroup(kernel Handle, index int) int

	// AllocBuffer maps to xrtBOAlloc.
	AllocBuffer(device Handle, size int, flags BufferFlags, group uint32) Handle
	// FreeBuffer maps to xrtBOFree.
	FreeBuffer(buffer Handle) int
	// WriteBuffer maps to xrtBOWrite: copies src into the buffer host memory starting at offset.
	WriteBuffer(buffer Handle, src []byte, offset int) int
	// ReadBuffer maps to xrtBORead: copies the buffer host memory starting at offset into dst.
	ReadBuffer(buffer Handle, dst []byte, offset int) int
	// SyncBuffer maps to xrtBOSync.
	SyncBuffer(buffer Handle, dir SyncDirection, size, offset int) int

	// OpenRun maps to xrtRunOpen.
	OpenRun(kernel Handle) Handle
	// CloseRun maps to xrtRunClose.
	CloseRun(run Handle) int
	// SetArgument maps to xrtRunSetArg with a scalar: value is its host representation and dtype its type, needed
	// to pass it through the variadic call with the width XRT reads it back.
	SetArgument(run Handle, index int, value []byte, dtype dtypes.DType) int
	// SetBufferArgument maps to xrtRunSetArg with a buffer object handle.
	SetBufferArgument(run Handle, index int, buffer Handle) int
	// StartRun maps to xrtRunStart.
	StartRun(run Handle) int
	// RunState maps to xrtRunState.
	RunState(run Handle) uint32
	// WaitRun maps to xrtRunWait.
	WaitRun(run Handle) uint32
	// WaitRunFor maps to xrtRunWaitFor.
	WaitRunFor(run Handle, timeoutMs uint32) uint32
}
