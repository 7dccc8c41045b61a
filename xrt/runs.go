package xrt

import (
	"fmt"
	"maps"
	"runtime"
	"slices"

	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Run is one execution instance of a Kernel, with its own argument bindings and state.
//
// Many Runs can be created from the same Kernel, and be in flight at the same time.
type Run struct {
	rt         driver.Runtime
	kernel     *Kernel
	kernelName string
	handle     driver.Handle

	bindings map[int]Binding

	// buffers created by WriteBufferArgument and CreateReadBuffer, owned by the Run.
	buffers map[int]*Buffer
}

// Binding is the value bound to a run argument: either Scalar or BufferRef.
type Binding interface {
	isBinding()
}

// Scalar is a value passed directly to the kernel.
type Scalar struct {
	Value any
}

// BufferRef is a buffer bound to a kernel argument.
type BufferRef struct {
	Buffer *Buffer
}

func (Scalar) isBinding()    {}
func (BufferRef) isBinding() {}

// NewRun creates a new Run of the kernel, with no arguments bound.
func NewRun(kernel *Kernel) (*Run, error) {
	if !kernel.IsValid() {
		return nil, errors.Wrapf(ErrKernelNotLoaded, "creating run of %s", kernel)
	}
	defer runtime.KeepAlive(kernel)
	handle := kernel.rt.OpenRun(kernel.handle)
	if handle.IsNull() {
		return nil, errors.Wrapf(ErrRunCreation, "%s", kernel)
	}
	runsAlive.Add(1)
	return &Run{
		rt:         kernel.rt,
		kernel:     kernel,
		kernelName: kernel.name,
		handle:     handle,
		bindings:   make(map[int]Binding),
		buffers:    make(map[int]*Buffer),
	}, nil
}

// IsValid returns whether the run is open.
func (r *Run) IsValid() bool {
	return r != nil && r.rt != nil && !r.handle.IsNull()
}

// KernelName returns the name of the kernel the run was created from.
func (r *Run) KernelName() string { return r.kernelName }

// Bindings returns a copy of the current argument bindings.
func (r *Run) Bindings() map[int]Binding {
	return maps.Clone(r.bindings)
}

// Buffer returns the buffer owned by the run for the argument, created by WriteBufferArgument or CreateReadBuffer.
func (r *Run) Buffer(index int) (*Buffer, bool) {
	b, found := r.buffers[index]
	return b, found
}

// SetScalarArgument binds a scalar value to the argument. The value must be one of the dtypes.Supported types and
// have the size of the argument declared by the kernel (e.g. uint32 for an "unsigned int").
//
// If the accelerator rejects it, it returns an *ArgumentSetError with the index and value.
func (r *Run) SetScalarArgument(index int, value any) error {
	if !r.IsValid() {
		return errors.Wrapf(ErrRunNotCreated, "setting argument #%d", index)
	}
	raw, dtype, err := dtypes.ScalarBytes(value)
	if err != nil {
		return errors.Wrapf(ErrUnsupportedType, "argument #%d: value %v of type %T, use a sized numeric type (e.g. uint32)",
			index, value, value)
	}
	defer runtime.KeepAlive(r)
	if status := r.rt.SetArgument(r.handle, index, raw, dtype); status != 0 {
		return errors.WithStack(&ArgumentSetError{Index: index, Value: value, Status: status})
	}
	r.bindings[index] = Scalar{Value: value}
	return nil
}

// SetBufferArgument binds the buffer to the argument. The buffer must have been allocated in the argument's memory
// group (see Kernel.MemoryGroupForArgument), otherwise the accelerator rejects it with an *ArgumentSetError.
func (r *Run) SetBufferArgument(index int, buffer *Buffer) error {
	if !r.IsValid() {
		return errors.Wrapf(ErrRunNotCreated, "setting argument #%d", index)
	}
	if !buffer.IsValid() {
		return errors.Wrapf(ErrBufferNotAllocated, "setting argument #%d", index)
	}
	defer runtime.KeepAlive(r)
	defer runtime.KeepAlive(buffer)
	if status := r.rt.SetBufferArgument(r.handle, index, buffer.wrapper.handle); status != 0 {
		return errors.WithStack(&ArgumentSetError{Index: index, Value: buffer, Status: status})
	}
	r.bindings[index] = BufferRef{Buffer: buffer}
	return nil
}

// State returns the current state of the run, as reported by the accelerator.
func (r *Run) State() (CommandState, error) {
	if !r.IsValid() {
		return 0, errors.WithStack(ErrRunNotCreated)
	}
	defer runtime.KeepAlive(r)
	return CommandState(r.rt.RunState(r.handle)), nil
}

// Start the run. If wait is true, it blocks until the run finishes or timeoutMs milliseconds elapse (0 waits
// indefinitely) and returns the final state: StateTimeout if the wait timed out. If wait is false, it returns the
// state observed right after starting.
//
// If the accelerator fails to start the run (e.g. because of arguments not bound), it doesn't return an error:
// it returns the state of the run, which reflects the failure (e.g. StateError or StateAbort). So always check
// the returned state.
func (r *Run) Start(wait bool, timeoutMs uint32) (CommandState, error) {
	if !r.IsValid() {
		return 0, errors.Wrap(ErrRunNotCreated, "starting run")
	}
	defer runtime.KeepAlive(r)
	if status := r.rt.StartRun(r.handle); status != 0 {
		state := CommandState(r.rt.RunState(r.handle))
		klog.Warningf("run of kernel %q failed to start (status %d), state is %s", r.kernelName, status, state)
		return state, nil
	}
	if !wait {
		return CommandState(r.rt.RunState(r.handle)), nil
	}
	return r.Wait(timeoutMs)
}

// Wait blocks until the run finishes or timeoutMs milliseconds elapse (0 waits indefinitely), and returns the state.
//
// A timed-out wait returns StateTimeout, but it doesn't stop the execution: the run must still be waited on
// again, or destroyed.
func (r *Run) Wait(timeoutMs uint32) (CommandState, error) {
	if !r.IsValid() {
		return 0, errors.Wrap(ErrRunNotCreated, "waiting for run")
	}
	defer runtime.KeepAlive(r)
	if timeoutMs == 0 {
		return CommandState(r.rt.WaitRun(r.handle)), nil
	}
	return CommandState(r.rt.WaitRunFor(r.handle, timeoutMs)), nil
}

// argumentGroup returns the memory group of the argument, using the run's kernel.
func (r *Run) argumentGroup(index int) (int, error) {
	if !r.IsValid() {
		return -1, errors.Wrapf(ErrRunNotCreated, "argument #%d", index)
	}
	return r.kernel.MemoryGroupForArgument(index)
}

// adopt makes the run the owner of buffer, freeing the buffer it previously owned for the argument, if any.
func (r *Run) adopt(index int, buffer *Buffer) {
	if previous, found := r.buffers[index]; found && previous != buffer {
		previous.Destroy()
	}
	r.buffers[index] = buffer
}

// WriteBufferArgument allocates a buffer for the argument (in its memory group), writes values to it (a slice of
// a dtypes.Supported type), syncs it to the device and binds it. The buffer is owned by the Run.
func (r *Run) WriteBufferArgument(device *Device, index int, values any) (*Buffer, error) {
	raw, _, err := dtypes.SliceBytes(values)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedType, "argument #%d: values of type %T", index, values)
	}
	if len(raw) == 0 {
		return nil, errors.Wrapf(ErrAllocation, "argument #%d: no values given", index)
	}
	buffer, err := r.allocateFor(device, index, len(raw))
	if err != nil {
		return nil, err
	}
	err = buffer.Write(raw, 0)
	if err == nil {
		err = buffer.Sync(HostToDevice)
	}
	if err == nil {
		err = r.SetBufferArgument(index, buffer)
	}
	if err != nil {
		buffer.Destroy()
		return nil, errors.WithMessagef(err, "argument #%d", index)
	}
	r.adopt(index, buffer)
	return buffer, nil
}

// CreateReadBuffer allocates a buffer of sizeBytes for an output argument (in its memory group) and binds it. The
// buffer is owned by the Run: read it with ReadBufferArgument once the run completes.
func (r *Run) CreateReadBuffer(device *Device, index int, sizeBytes int) (*Buffer, error) {
	buffer, err := r.allocateFor(device, index, sizeBytes)
	if err != nil {
		return nil, err
	}
	if err := r.SetBufferArgument(index, buffer); err != nil {
		buffer.Destroy()
		return nil, errors.WithMessagef(err, "argument #%d", index)
	}
	r.adopt(index, buffer)
	return buffer, nil
}

func (r *Run) allocateFor(device *Device, index int, sizeBytes int) (*Buffer, error) {
	group, err := r.argumentGroup(index)
	if err != nil {
		return nil, err
	}
	buffer, err := AllocateBuffer(device, sizeBytes, FlagsNone, group)
	if err != nil {
		return nil, errors.WithMessagef(err, "argument #%d", index)
	}
	return buffer, nil
}

// ReadBufferArgument syncs the run owned buffer of the argument from the device, and reads count values of type T
// from it.
func ReadBufferArgument[T dtypes.Supported](r *Run, index int, count int) ([]T, error) {
	buffer, found := r.buffers[index]
	if !found {
		return nil, errors.Wrapf(ErrBufferNotFound, "run of kernel %q owns no buffer for argument #%d", r.kernelName, index)
	}
	if err := buffer.SyncRange(DeviceToHost, count*elementSize[T](), 0); err != nil {
		return nil, err
	}
	return ReadSlice[T](buffer, count, 0)
}

// ReadBufferArgumentInto syncs the run owned buffer of the argument from the device, and fills dst (a slice of a
// dtypes.Supported type) with its contents.
func (r *Run) ReadBufferArgumentInto(index int, dst any) error {
	buffer, found := r.buffers[index]
	if !found {
		return errors.Wrapf(ErrBufferNotFound, "run of kernel %q owns no buffer for argument #%d", r.kernelName, index)
	}
	raw, _, err := dtypes.SliceBytes(dst)
	if err != nil {
		return errors.Wrapf(ErrUnsupportedType, "reading argument #%d into %T", index, dst)
	}
	if err := buffer.SyncRange(DeviceToHost, len(raw), 0); err != nil {
		return err
	}
	return buffer.Read(raw, 0)
}

// Destroy closes the run and frees the buffers it owns. It's a no-op if already destroyed.
//
// A run still executing is not stopped by the accelerator.
func (r *Run) Destroy() {
	if r == nil || r.rt == nil {
		return
	}
	if !r.handle.IsNull() {
		if status := r.rt.CloseRun(r.handle); status != 0 {
			klog.V(1).Infof("closing run of kernel %q returned status %d", r.kernelName, status)
		}
		r.handle = driver.NullHandle
		runsAlive.Add(-1)
	}
	for _, index := range slices.Sorted(maps.Keys(r.buffers)) {
		r.buffers[index].Destroy()
	}
	clear(r.buffers)
	clear(r.bindings)
	r.kernel = nil
}

// String implements fmt.Stringer.
func (r *Run) String() string {
	if r == nil {
		return "Run(nil)"
	}
	if !r.IsValid() {
		return fmt.Sprintf("Run(%q, destroyed)", r.kernelName)
	}
	return fmt.Sprintf("Run(%q, %d arguments bound)", r.kernelName, len(r.bindings))
}
