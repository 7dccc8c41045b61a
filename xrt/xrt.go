// Package xrt manages the lifecycle of FPGA accelerator resources: devices, bitstreams (xclbin), kernels, buffers
// and runs, on top of a driver.Runtime (the native XRT C API with `-tags xrt`, or the emulated accelerator in
// driver/emu).
//
// The resources form a strict ownership chain:
//
//   - A Device is opened by index, and becomes ready once a bitstream is loaded (Device.LoadBitstream).
//   - A Kernel is opened by name on a ready Device.
//   - A Buffer is allocated on a Device, in the memory group of the kernel argument it will be bound to
//     (Kernel.MemoryGroupForArgument).
//   - A Run is created from a Kernel, its arguments bound to scalar values or Buffers, then started and waited on.
//
// Every resource has a Destroy method that releases it exactly once: calling it again is a no-op. Resources should
// be destroyed in the reverse order of creation. Buffers are also released when garbage collected.
//
// Example:
//
//	device := must.M1(xrt.Open("emu", 0))
//	defer device.Destroy()
//	must.M(device.LoadBitstream(xrt.BitstreamPath("vscale", "sw_emu")))
//	kernel := must.M1(xrt.OpenKernel(device, "vscale_u32"))
//	defer kernel.Destroy()
//	run := must.M1(kernel.CreateRun())
//	defer run.Destroy()
//	must.M(run.SetScalarArgument(0, uint32(16)))
//	must.M(run.SetScalarArgument(1, uint32(6)))
//	must.M1(run.WriteBufferArgument(device, 2, input))
//	must.M1(run.CreateReadBuffer(device, 3, 16*4))
//	state := must.M1(run.Start(true, 1000))
//	output := must.M1(xrt.ReadBufferArgument[uint32](run, 3, 16))
//
// The package doesn't spawn goroutines or lock anything: each resource must be used by one goroutine at a time.
// Run.Start and Run.Wait block the calling goroutine.
package xrt

import (
	"strings"
	"sync/atomic"

	"github.com/gofpga/goxrt/driver"
	"github.com/pkg/errors"
)

// SyncDirection of Buffer.Sync.
type SyncDirection = driver.SyncDirection

const (
	// HostToDevice makes data written with Buffer.Write visible to the accelerator.
	HostToDevice = driver.SyncToDevice

	// DeviceToHost makes data written by the accelerator visible to Buffer.Read.
	DeviceToHost = driver.SyncFromDevice
)

// BufferFlags used when allocating a Buffer.
type BufferFlags = driver.BufferFlags

const (
	FlagsNone      = driver.FlagsNone
	FlagsCacheable = driver.FlagsCacheable
	FlagsSVM       = driver.FlagsSVM
	FlagsDevOnly   = driver.FlagsDevOnly
	FlagsHostOnly  = driver.FlagsHostOnly
	FlagsP2P       = driver.FlagsP2P
)

// checkCString returns ErrStringConversion if s can't be passed as a C string.
func checkCString(s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return errors.Wrapf(ErrStringConversion, "%q", s)
	}
	return nil
}

var devicesAlive, kernelsAlive, buffersAlive, runsAlive atomic.Int64

// DevicesAlive returns the number of open Devices.
func DevicesAlive() int64 { return devicesAlive.Load() }

// KernelsAlive returns the number of open Kernels.
func KernelsAlive() int64 { return kernelsAlive.Load() }

// BuffersAlive returns the number of allocated Buffers, including the ones owned by Kernels and Runs.
func BuffersAlive() int64 { return buffersAlive.Load() }

// RunsAlive returns the number of open Runs.
func RunsAlive() int64 { return runsAlive.Load() }
