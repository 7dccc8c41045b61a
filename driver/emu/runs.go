package emu

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/dtypes"
	"k8s.io/klog/v2"
)

type argValue struct {
	set    bool
	scalar []byte
	buffer *buffer
}

type run struct {
	kernel  *kernel
	latency time.Duration
	state   atomic.Uint32

	mu   sync.Mutex
	args []argValue    // Protected by mu.
	done chan struct{} // Closed when the current execution finishes, nil if never started. Protected by mu.
}

// OpenRun implements driver.Runtime.
func (rt *Runtime) OpenRun(kernelHandle driver.Handle) driver.Handle {
	k, found := rt.kernels.Get(kernelHandle)
	if !found || rt.injectedFault(OpOpenRun) {
		return driver.NullHandle
	}
	r := &run{
		kernel:  k,
		latency: rt.latency,
		args:    make([]argValue, len(k.info.Arguments)),
	}
	r.state.Store(driver.CmdStateNew)
	return rt.runs.Insert(r)
}

// CloseRun implements driver.Runtime. A run still executing finishes in the background.
func (rt *Runtime) CloseRun(handle driver.Handle) int {
	_, found := rt.runs.Remove(handle)
	return rt.release(found, "run", handle)
}

// SetArgument implements driver.Runtime: the argument must be a scalar and value must have its exact size.
// The dtype is not checked: kernels reinterpret the bytes as the type they declare.
func (rt *Runtime) SetArgument(handle driver.Handle, index int, value []byte, _ dtypes.DType) int {
	r, found := rt.runs.Get(handle)
	if !found {
		return statusNoEntry
	}
	args := r.kernel.info.Arguments
	if index < 0 || index >= len(args) || args[index].IsBuffer() || len(value) != args[index].Size {
		return statusInvalid
	}
	if rt.injectedFault(OpSetArgument) {
		return statusInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args[index] = argValue{set: true, scalar: slices.Clone(value)}
	return statusOK
}

// SetBufferArgument implements driver.Runtime: the buffer must be on the kernel's device and in the memory group of
// the argument.
func (rt *Runtime) SetBufferArgument(handle driver.Handle, index int, bufferHandle driver.Handle) int {
	r, found := rt.runs.Get(handle)
	if !found {
		return statusNoEntry
	}
	b, found := rt.buffers.Get(bufferHandle)
	if !found {
		return statusNoEntry
	}
	if index < 0 || index >= len(r.kernel.info.Arguments) || !r.kernel.info.Arguments[index].IsBuffer() {
		return statusInvalid
	}
	if b.device != r.kernel.device || b.group != r.kernel.group(index) {
		klog.V(1).Infof("emu: buffer in group %d can't be bound to argument #%d (%s) of kernel %q, which uses group %d",
			b.group, index, r.kernel.info.Arguments[index].Name, r.kernel.info.Name, r.kernel.group(index))
		return statusInvalid
	}
	if rt.injectedFault(OpSetArgument) {
		return statusInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args[index] = argValue{set: true, buffer: b}
	return statusOK
}

// isActive returns whether the state is one of an execution not yet finished.
func isActive(state uint32) bool {
	return state == driver.CmdStateQueued || state == driver.CmdStateSubmitted || state == driver.CmdStateRunning
}

// StartRun implements driver.Runtime. If any argument is not set, the run goes to the Error state and the call fails.
func (rt *Runtime) StartRun(handle driver.Handle) int {
	r, found := rt.runs.Get(handle)
	if !found {
		return statusNoEntry
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if isActive(r.state.Load()) {
		return statusBusy
	}
	if rt.injectedFault(OpStartRun) {
		r.state.Store(driver.CmdStateAbort)
		return statusInvalid
	}
	for ii, arg := range r.args {
		if !arg.set {
			klog.V(1).Infof("emu: kernel %q started with argument #%d (%s) not set",
				r.kernel.info.Name, ii, r.kernel.info.Arguments[ii].Name)
			r.state.Store(driver.CmdStateError)
			return statusInvalid
		}
	}
	done := make(chan struct{})
	r.done = done
	r.state.Store(driver.CmdStateQueued)
	args := &Arguments{info: r.kernel.info, values: slices.Clone(r.args)}
	go r.execute(args, done)
	return statusOK
}

// execute runs the kernel implementation and updates the state. It runs on its own goroutine, standing in for the
// accelerator.
func (r *run) execute(args *Arguments, done chan struct{}) {
	defer close(done)
	start := time.Now()
	r.state.Store(driver.CmdStateRunning)
	err := r.kernel.def.Run(args)
	if remaining := r.latency - time.Since(start); remaining > 0 {
		time.Sleep(remaining)
	}
	if err != nil {
		klog.V(1).Infof("emu: kernel %q failed: %v", r.kernel.info.Name, err)
		r.state.Store(driver.CmdStateError)
		return
	}
	r.state.Store(driver.CmdStateCompleted)
}

// RunState implements driver.Runtime.
func (rt *Runtime) RunState(handle driver.Handle) uint32 {
	r, found := rt.runs.Get(handle)
	if !found {
		return driver.CmdStateError
	}
	return r.state.Load()
}

func (r *run) doneChan() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// WaitRun implements driver.Runtime. A run that was never started returns its current state immediately.
func (rt *Runtime) WaitRun(handle driver.Handle) uint32 {
	r, found := rt.runs.Get(handle)
	if !found {
		return driver.CmdStateError
	}
	if done := r.doneChan(); done != nil {
		<-done
	}
	return r.state.Load()
}

// WaitRunFor implements driver.Runtime. It returns CmdStateTimeout if the run doesn't finish in time. A timeout of 0
// waits indefinitely.
func (rt *Runtime) WaitRunFor(handle driver.Handle, timeoutMs uint32) uint32 {
	if timeoutMs == 0 {
		return rt.WaitRun(handle)
	}
	r, found := rt.runs.Get(handle)
	if !found {
		return driver.CmdStateError
	}
	done := r.doneChan()
	if done == nil {
		return r.state.Load()
	}
	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-done:
		return r.state.Load()
	case <-timer.C:
		return driver.CmdStateTimeout
	}
}
