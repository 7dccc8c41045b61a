package xrt

import (
	"fmt"
	"runtime"

	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kernel is an open kernel (compute unit) of the bitstream loaded on a Device.
//
// Optionally it has an ArgumentMap, for kernels whose buffer arguments are always the same: see
// KernelConfig.WithArgument. Buffers it allocates for those are owned by the Kernel.
type Kernel struct {
	rt        driver.Runtime
	name      string
	handle    driver.Handle
	arguments ArgumentMap
}

// KernelConfig configures how to open a Kernel. Create it with Device.Kernel, and finish with Done.
type KernelConfig struct {
	device    *Device
	name      string
	arguments ArgumentMap

	// err stores the first error that happened during configuration.
	// If it is not nil, it is immediately returned by the Done call.
	err error
}

// Kernel returns a configuration to open the kernel with the given name. Call Done to open it.
func (d *Device) Kernel(name string) *KernelConfig {
	return &KernelConfig{device: d, name: name, arguments: make(ArgumentMap)}
}

// OpenKernel opens the kernel with the given name on a ready device.
// It's a shortcut to device.Kernel(name).Done().
func OpenKernel(device *Device, name string) (*Kernel, error) {
	return device.Kernel(name).Done()
}

// WithArgument sets how the argument with the given index is provided. See ArgumentSpec.
func (c *KernelConfig) WithArgument(index int, spec ArgumentSpec) *KernelConfig {
	if c.err != nil {
		return c
	}
	if index < 0 {
		c.err = errors.Errorf("KernelConfig.WithArgument: invalid argument index %d", index)
		return c
	}
	switch spec := spec.(type) {
	case Passed:
	case FixedBuffer:
		if !spec.Buffer.IsValid() {
			c.err = errors.Wrapf(ErrBufferNotAllocated, "fixed buffer for argument #%d", index)
			return c
		}
	case NeedsAllocation:
		if spec.Size <= 0 {
			c.err = errors.Wrapf(ErrAllocation, "invalid size %d for argument #%d", spec.Size, index)
			return c
		}
	default:
		c.err = errors.Wrapf(ErrUnresolvedArgument, "invalid specification %#v for argument #%d", spec, index)
		return c
	}
	c.arguments[index] = spec
	return c
}

// WithArguments calls WithArgument for each entry of arguments.
func (c *KernelConfig) WithArguments(arguments ArgumentMap) *KernelConfig {
	for _, index := range arguments.Indices() {
		c.WithArgument(index, arguments[index])
	}
	return c
}

// Done opens the kernel and allocates the buffers of the NeedsAllocation arguments, each in the memory group of its
// argument. If anything fails, whatever was created is released before returning the error.
func (c *KernelConfig) Done() (*Kernel, error) {
	if c.err != nil {
		return nil, c.err
	}
	d := c.device
	if !d.IsReady() {
		return nil, errors.Wrapf(ErrDeviceNotReady, "opening kernel %q on %s", c.name, d)
	}
	if err := checkCString(c.name); err != nil {
		return nil, errors.WithMessage(err, "kernel name")
	}
	handle := d.rt.OpenKernel(d.handle, d.id, c.name)
	if handle.IsNull() {
		return nil, errors.Wrapf(ErrKernelCreation, "kernel %q on %s", c.name, d)
	}
	kernelsAlive.Add(1)
	k := &Kernel{rt: d.rt, name: c.name, handle: handle}
	if len(c.arguments) > 0 {
		if err := k.resolveArguments(d, c.arguments); err != nil {
			k.Destroy()
			return nil, err
		}
	}
	klog.V(1).Infof("opened %s", k)
	return k, nil
}

// resolveArguments allocates the buffers of the NeedsAllocation arguments. The Kernel's map is updated as buffers are
// allocated, so Destroy frees them if a later step fails.
func (k *Kernel) resolveArguments(device *Device, arguments ArgumentMap) error {
	k.arguments = make(ArgumentMap, len(arguments))
	for _, index := range arguments.Indices() {
		spec := arguments[index]
		alloc, ok := spec.(NeedsAllocation)
		if !ok {
			k.arguments[index] = spec
			continue
		}
		group := k.rt.ArgumentGroup(k.handle, index)
		if group < 0 {
			return errors.Wrapf(ErrInvalidGroupID, "kernel %q argument #%d (returned %d)", k.name, index, group)
		}
		buffer, err := AllocateBuffer(device, alloc.Size, alloc.Flags, group)
		if err != nil {
			return errors.WithMessagef(err, "kernel %q argument #%d", k.name, index)
		}
		k.arguments[index] = OwnedBuffer{Buffer: buffer, Direction: alloc.Direction}
	}
	return k.arguments.checkResolved()
}

// Name of the kernel.
func (k *Kernel) Name() string { return k.name }

// IsValid returns whether the kernel is open.
func (k *Kernel) IsValid() bool {
	return k != nil && k.rt != nil && !k.handle.IsNull()
}

// Handle returns the runtime handle of the kernel, NullHandle if it was destroyed.
func (k *Kernel) Handle() driver.Handle {
	if !k.IsValid() {
		return driver.NullHandle
	}
	return k.handle
}

// Arguments returns the resolved argument map of the kernel, or nil if it was opened without one.
// The returned map is owned by the Kernel and must not be changed.
func (k *Kernel) Arguments() ArgumentMap {
	return k.arguments
}

// Buffer returns the buffer bound to the argument by the kernel's argument map: either a FixedBuffer or an
// OwnedBuffer.
func (k *Kernel) Buffer(index int) (*Buffer, bool) {
	switch spec := k.arguments[index].(type) {
	case FixedBuffer:
		return spec.Buffer, true
	case OwnedBuffer:
		return spec.Buffer, true
	}
	return nil, false
}

// MemoryGroupForArgument returns the memory group buffers for the argument must be allocated in.
func (k *Kernel) MemoryGroupForArgument(index int) (int, error) {
	if !k.IsValid() {
		return -1, errors.Wrapf(ErrKernelNotLoaded, "retrieving memory group for argument #%d", index)
	}
	defer runtime.KeepAlive(k)
	group := k.rt.ArgumentGroup(k.handle, index)
	if group < 0 {
		return -1, errors.Wrapf(ErrArgumentGroupRetrieval, "kernel %q argument #%d (returned %d)", k.name, index, group)
	}
	return group, nil
}

// CreateRun creates a new Run of the kernel. See NewRun.
func (k *Kernel) CreateRun() (*Run, error) {
	return NewRun(k)
}

// Call creates a run, binds values to the arguments and starts it. The run must be destroyed by the caller, and if
// wait is false the caller must also wait for it to finish.
//
// Arguments follow the kernel's argument map: values for Passed arguments are scalars (or a *Buffer); values for
// OwnedBuffer inputs are slices written and synced to the device before start; values for OwnedBuffer outputs and
// for FixedBuffer arguments are ignored and should be nil. Arguments not in the map take scalars or *Buffer values.
// Read the outputs with ReadOutput.
//
// Runs created with Call share the kernel's owned buffers: they must not be in flight at the same time.
func (k *Kernel) Call(wait bool, timeoutMs uint32, values ...any) (*Run, CommandState, error) {
	run, err := NewRun(k)
	if err != nil {
		return nil, 0, err
	}
	numArguments := len(values)
	for index := range k.arguments {
		numArguments = max(numArguments, index+1)
	}
	for index := range numArguments {
		var value any
		if index < len(values) {
			value = values[index]
		}
		if err := k.bindCallArgument(run, index, value); err != nil {
			run.Destroy()
			return nil, 0, errors.WithMessagef(err, "calling kernel %q", k.name)
		}
	}
	state, err := run.Start(wait, timeoutMs)
	if err != nil {
		run.Destroy()
		return nil, state, err
	}
	return run, state, nil
}

func (k *Kernel) bindCallArgument(run *Run, index int, value any) error {
	switch spec := k.arguments[index].(type) {
	case FixedBuffer:
		return run.SetBufferArgument(index, spec.Buffer)
	case OwnedBuffer:
		if spec.Direction == Input && value != nil {
			if err := WriteValues(spec.Buffer, value, 0); err != nil {
				return err
			}
			if err := spec.Buffer.Sync(HostToDevice); err != nil {
				return err
			}
		}
		return run.SetBufferArgument(index, spec.Buffer)
	}
	switch value := value.(type) {
	case nil:
		// Not given: the accelerator will reject starting the run.
		return nil
	case *Buffer:
		return run.SetBufferArgument(index, value)
	default:
		return run.SetScalarArgument(index, value)
	}
}

// ReadOutput syncs the kernel owned buffer of the argument from the device and returns its contents as a slice of T.
func ReadOutput[T dtypes.Supported](k *Kernel, index int) ([]T, error) {
	spec, ok := k.arguments[index].(OwnedBuffer)
	if !ok {
		return nil, errors.Wrapf(ErrBufferNotFound, "kernel %q owns no buffer for argument #%d", k.name, index)
	}
	if err := spec.Buffer.Sync(DeviceToHost); err != nil {
		return nil, err
	}
	return ReadSlice[T](spec.Buffer, spec.Buffer.Size()/elementSize[T](), 0)
}

// Destroy frees the buffers owned by the kernel, and then closes it. It's a no-op if already destroyed.
func (k *Kernel) Destroy() {
	if k == nil || k.rt == nil {
		return
	}
	for _, index := range k.arguments.Indices() {
		if owned, ok := k.arguments[index].(OwnedBuffer); ok {
			owned.Buffer.Destroy()
		}
	}
	k.arguments = nil
	if !k.handle.IsNull() {
		if status := k.rt.CloseKernel(k.handle); status != 0 {
			klog.V(1).Infof("closing kernel %q returned status %d", k.name, status)
		}
		k.handle = driver.NullHandle
		kernelsAlive.Add(-1)
	}
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	if k == nil {
		return "Kernel(nil)"
	}
	if !k.IsValid() {
		return fmt.Sprintf("Kernel(%q, destroyed)", k.name)
	}
	if len(k.arguments) > 0 {
		return fmt.Sprintf("Kernel(%q, %d mapped arguments)", k.name, len(k.arguments))
	}
	return fmt.Sprintf("Kernel(%q)", k.name)
}
