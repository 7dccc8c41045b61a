// Package emu implements driver.Runtime with an emulated accelerator, entirely in Go.
//
// It behaves like the XRT C API as far as the lifecycle layer can observe: it reads real xclbin files (the
// identity comes from the header UUID, kernels and their memory groups from the BUILD_METADATA section), keeps
// separate host staging and device memory for each buffer (so a missing sync is visible), rejects buffers from the
// wrong memory group, and executes runs asynchronously reporting ERT command states.
//
// The "hardware" is a library of kernels implemented in Go (see Library), and WriteBitstream creates xclbin files
// for them.
//
// The package registers a default instance as "emu" in the driver registry. Tests usually create their own
// instance with New, to control the options and to inspect Stats.
package emu

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofpga/goxrt/driver"
	"k8s.io/klog/v2"
)

// Status codes returned by the emulated calls, following the errno convention of the XRT C API.
const (
	statusOK      = 0
	statusNoEntry = 2  // ENOENT
	statusNoMem   = 12 // ENOMEM
	statusBusy    = 16 // EBUSY
	statusInvalid = 22 // EINVAL
)

// Name the default instance is registered with.
const Name = "emu"

func init() {
	if err := driver.Register(Name, New()); err != nil {
		klog.Errorf("failed to register the emulated accelerator runtime: %+v", err)
	}
}

// Runtime is an emulated accelerator, it implements driver.Runtime. Create it with New.
type Runtime struct {
	name         string
	numDevices   uint32
	memoryGroups int
	latency      time.Duration
	library      map[string]*KernelDef

	devices    driver.HandleTable[*device]
	bitstreams driver.HandleTable[*bitstream]
	kernels    driver.HandleTable[*kernel]
	buffers    driver.HandleTable[*buffer]
	runs       driver.HandleTable[*run]

	invalidReleases atomic.Int64

	muFaults sync.Mutex
	faults   map[Op]int
}

var _ driver.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(rt *Runtime)

// WithName sets the name returned by Runtime.Name. Default is "emu".
func WithName(name string) Option {
	return func(rt *Runtime) { rt.name = name }
}

// WithDevices sets the number of emulated devices (indices 0 to n-1). Default is 1.
func WithDevices(n uint32) Option {
	return func(rt *Runtime) { rt.numDevices = n }
}

// WithMemoryGroups sets the number of memory banks of each device. Default is 4.
func WithMemoryGroups(n int) Option {
	return func(rt *Runtime) { rt.memoryGroups = n }
}

// WithLatency makes every run take at least the given time to complete. Default is 0.
func WithLatency(latency time.Duration) Option {
	return func(rt *Runtime) { rt.latency = latency }
}

// WithKernel adds (or replaces) a kernel in the runtime's library.
func WithKernel(def *KernelDef) Option {
	return func(rt *Runtime) { rt.library[def.Name] = def }
}

// New creates an emulated accelerator with the Library kernels.
func New(options ...Option) *Runtime {
	rt := &Runtime{
		name:         Name,
		numDevices:   1,
		memoryGroups: 4,
		library:      make(map[string]*KernelDef),
		faults:       make(map[Op]int),
	}
	for _, def := range Library() {
		rt.library[def.Name] = def
	}
	for _, option := range options {
		option(rt)
	}
	return rt
}

// Name implements driver.Runtime.
func (rt *Runtime) Name() string { return rt.name }

// Latency returns the minimum duration of a run.
func (rt *Runtime) Latency() time.Duration { return rt.latency }

// KernelDef returns the library kernel definition with the given name.
func (rt *Runtime) KernelDef(name string) (*KernelDef, bool) {
	def, found := rt.library[name]
	return def, found
}

// Stats of the resources of an emulated runtime.
type Stats struct {
	Devices, Bitstreams, Kernels, Buffers, Runs int

	// InvalidReleases counts Close/Free calls with handles that are not (or no longer) valid: double frees.
	InvalidReleases int64
}

// Live returns the total number of live resources.
func (s Stats) Live() int {
	return s.Devices + s.Bitstreams + s.Kernels + s.Buffers + s.Runs
}

// Stats returns the current number of live resources and of invalid releases.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Devices:         rt.devices.Len(),
		Bitstreams:      rt.bitstreams.Len(),
		Kernels:         rt.kernels.Len(),
		Buffers:         rt.buffers.Len(),
		Runs:            rt.runs.Len(),
		InvalidReleases: rt.invalidReleases.Load(),
	}
}

// Op identifies an emulated call, for fault injection.
type Op int

const (
	OpOpenDevice Op = iota
	OpAllocBitstream
	OpLoadBitstream
	OpBitstreamUUID
	OpOpenKernel
	OpArgumentGroup
	OpAllocBuffer
	OpWriteBuffer
	OpReadBuffer
	OpSyncBuffer
	OpOpenRun
	OpSetArgument
	OpStartRun
)

// FailNext makes the next count calls of op fail, as if the accelerator had rejected them.
func (rt *Runtime) FailNext(op Op, count int) {
	rt.muFaults.Lock()
	defer rt.muFaults.Unlock()
	rt.faults[op] += count
}

// injectedFault returns whether the call should fail, and consumes the fault if so.
func (rt *Runtime) injectedFault(op Op) bool {
	rt.muFaults.Lock()
	defer rt.muFaults.Unlock()
	if rt.faults[op] > 0 {
		rt.faults[op]--
		return true
	}
	return false
}

// release accounts for a Close/Free call.
func (rt *Runtime) release(found bool, what string, handle driver.Handle) int {
	if !found {
		rt.invalidReleases.Add(1)
		klog.Warningf("emu: release of invalid %s %s", what, handle)
		return statusInvalid
	}
	klog.V(2).Infof("emu: released %s %s", what, handle)
	return statusOK
}
