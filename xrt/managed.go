package xrt

import (
	"fmt"
	"slices"
	"time"

	"github.com/gofpga/goxrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RunObserver is notified of the progress of runs managed by a Manager. See package xrt/xrtmetrics for an
// implementation exporting Prometheus metrics.
type RunObserver interface {
	// RunStarted is called after a run of the kernel is started.
	RunStarted(kernel string)

	// RunFinished is called once per execution, when a run of the kernel reaches a terminal state other than
	// Timeout, with that state and the time since start.
	RunFinished(kernel string, state CommandState, elapsed time.Duration)

	// BytesTransferred is called after a buffer sync.
	BytesTransferred(kernel string, dir SyncDirection, bytes int)
}

// Manager is a session over one Device: it owns the Device, the Kernels opened by name, and the runs prepared for
// each kernel. Destroy releases all of them, in reverse order of dependency.
type Manager struct {
	device      *Device
	kernels     map[string]*Kernel
	kernelOrder []string
	runs        map[string][]*ManagedRun
	observer    RunObserver
}

// NewManager creates a Manager that takes ownership of the device.
func NewManager(device *Device) *Manager {
	return &Manager{
		device:  device,
		kernels: make(map[string]*Kernel),
		runs:    make(map[string][]*ManagedRun),
	}
}

// WithObserver sets an observer of the managed runs.
func (m *Manager) WithObserver(observer RunObserver) *Manager {
	m.observer = observer
	return m
}

// Device owned by the manager.
func (m *Manager) Device() *Device { return m.device }

// LoadBitstream loads the bitstream onto the device. Kernels opened on a previous bitstream must be released first,
// see ReleaseKernels.
func (m *Manager) LoadBitstream(path string) error {
	if len(m.kernels) > 0 {
		return errors.Errorf("Manager.LoadBitstream(%q): %d kernels still open on the current bitstream", path, len(m.kernels))
	}
	return m.device.LoadBitstream(path)
}

// AddKernel opens the kernel by name, to be used with PrepareRun.
func (m *Manager) AddKernel(name string) error {
	return m.AddKernelWithArguments(name, nil)
}

// AddKernelWithArguments opens the kernel by name with the given argument map (see KernelConfig.WithArguments).
func (m *Manager) AddKernelWithArguments(name string, arguments ArgumentMap) error {
	if _, found := m.kernels[name]; found {
		return errors.Errorf("kernel %q already added", name)
	}
	kernel, err := m.device.Kernel(name).WithArguments(arguments).Done()
	if err != nil {
		return err
	}
	m.kernels[name] = kernel
	m.kernelOrder = append(m.kernelOrder, name)
	return nil
}

// Kernel returns the kernel with the given name, previously added.
func (m *Manager) Kernel(name string) (*Kernel, error) {
	kernel, found := m.kernels[name]
	if !found {
		return nil, errors.Wrapf(ErrKernelNotFound, "%q not added to the manager", name)
	}
	return kernel, nil
}

// KernelNames returns the names of the added kernels, in the order they were added.
func (m *Manager) KernelNames() []string {
	return slices.Clone(m.kernelOrder)
}

// PrepareRun creates a new run of the kernel, to be configured with the ManagedRun methods.
// Errors are stored in the ManagedRun: see ManagedRun.Err.
func (m *Manager) PrepareRun(kernelName string) *ManagedRun {
	mr := &ManagedRun{manager: m, kernelName: kernelName, state: StateNew}
	kernel, err := m.Kernel(kernelName)
	if err != nil {
		mr.err = err
		return mr
	}
	mr.run, mr.err = kernel.CreateRun()
	if mr.err == nil {
		m.runs[kernelName] = append(m.runs[kernelName], mr)
	}
	return mr
}

// Runs returns the prepared runs of the kernel, in order of preparation.
func (m *Manager) Runs(kernelName string) []*ManagedRun {
	return slices.Clone(m.runs[kernelName])
}

// allRuns returns every prepared run, kernels in the order they were added.
func (m *Manager) allRuns() []*ManagedRun {
	var all []*ManagedRun
	for _, name := range m.kernelOrder {
		all = append(all, m.runs[name]...)
	}
	return all
}

// StartAll starts (without waiting) every prepared run not started yet. It returns the first error, after trying to
// start all of them.
func (m *Manager) StartAll() error {
	var firstErr error
	for _, mr := range m.allRuns() {
		if mr.started {
			continue
		}
		if err := mr.Start().Err(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WaitForAll waits for every started run, each with the given timeout (0 waits indefinitely). It returns
// ErrRunNotCompleted if any run ended in a state other than Completed, or the first error of a run.
func (m *Manager) WaitForAll(timeoutMs uint32) error {
	var firstErr error
	var notCompleted []string
	for _, mr := range m.allRuns() {
		if !mr.started {
			continue
		}
		if err := mr.WaitFor(timeoutMs).Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if mr.state != StateCompleted {
			notCompleted = append(notCompleted, fmt.Sprintf("%s:%s", mr.kernelName, mr.state))
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if len(notCompleted) > 0 {
		return errors.Wrapf(ErrRunNotCompleted, "%v", notCompleted)
	}
	return nil
}

// ReleaseRuns destroys the prepared runs of the kernel (and the buffers they own).
func (m *Manager) ReleaseRuns(kernelName string) {
	for _, mr := range m.runs[kernelName] {
		mr.Destroy()
	}
	delete(m.runs, kernelName)
}

// ReleaseKernels destroys all runs and kernels, keeping the device.
func (m *Manager) ReleaseKernels() {
	for _, name := range slices.Backward(m.kernelOrder) {
		m.ReleaseRuns(name)
		m.kernels[name].Destroy()
		delete(m.kernels, name)
	}
	m.kernelOrder = nil
}

// Destroy releases all runs, kernels and finally the device.
func (m *Manager) Destroy() {
	if m == nil {
		return
	}
	m.ReleaseKernels()
	m.device.Destroy()
}

// ManagedRun is a Run prepared by a Manager. Its methods can be chained: the first error is stored, and the following
// calls are no-ops. Check it with Err.
type ManagedRun struct {
	manager    *Manager
	kernelName string
	run        *Run
	err        error

	started   bool
	reported  bool // RunFinished was called for the current execution.
	startedAt time.Time
	state     CommandState
}

// Err returns the first error that happened with the run.
func (mr *ManagedRun) Err() error { return mr.err }

// Run returns the underlying Run, nil if it couldn't be created.
func (mr *ManagedRun) Run() *Run { return mr.run }

// KernelName returns the name of the kernel of the run.
func (mr *ManagedRun) KernelName() string { return mr.kernelName }

// State returns the last observed state of the run.
func (mr *ManagedRun) State() CommandState { return mr.state }

// SetScalarInput binds a scalar to the argument. See Run.SetScalarArgument.
func (mr *ManagedRun) SetScalarInput(index int, value any) *ManagedRun {
	if mr.err != nil {
		return mr
	}
	mr.err = mr.run.SetScalarArgument(index, value)
	return mr
}

// SetBufferInput writes values (a slice of a dtypes.Supported type) to a new buffer, syncs it to the device and
// binds it to the argument. See Run.WriteBufferArgument.
func (mr *ManagedRun) SetBufferInput(index int, values any) *ManagedRun {
	if mr.err != nil {
		return mr
	}
	var buffer *Buffer
	buffer, mr.err = mr.run.WriteBufferArgument(mr.manager.device, index, values)
	if mr.err == nil && mr.manager.observer != nil {
		mr.manager.observer.BytesTransferred(mr.kernelName, HostToDevice, buffer.Size())
	}
	return mr
}

// PrepareOutputBuffer allocates and binds a buffer for count values of dtype for the output argument.
// See Run.CreateReadBuffer.
func (mr *ManagedRun) PrepareOutputBuffer(index int, dtype dtypes.DType, count int) *ManagedRun {
	if mr.err != nil {
		return mr
	}
	if !dtype.IsValid() {
		mr.err = errors.Wrapf(ErrUnsupportedType, "output argument #%d with dtype %s", index, dtype)
		return mr
	}
	_, mr.err = mr.run.CreateReadBuffer(mr.manager.device, index, count*dtype.Size())
	return mr
}

// Start the run without waiting. If the accelerator doesn't accept the run, the state reflects it and the
// error is ErrRunNotCompleted.
func (mr *ManagedRun) Start() *ManagedRun {
	if mr.err != nil {
		return mr
	}
	mr.startedAt = time.Now()
	mr.state, mr.err = mr.run.Start(false, 0)
	if mr.err != nil {
		return mr
	}
	mr.started, mr.reported = true, false
	if mr.manager.observer != nil {
		mr.manager.observer.RunStarted(mr.kernelName)
	}
	if mr.state.IsTerminal() && mr.state != StateCompleted {
		mr.err = errors.Wrapf(ErrRunNotCompleted, "kernel %q failed to start, state %s", mr.kernelName, mr.state)
		mr.finished()
	}
	return mr
}

// WaitFor waits for the run to finish, for at most timeoutMs milliseconds (0 waits indefinitely).
// The state is available with State: a timed-out wait is not an error.
func (mr *ManagedRun) WaitFor(timeoutMs uint32) *ManagedRun {
	if mr.err != nil {
		return mr
	}
	if !mr.started {
		mr.err = errors.Errorf("run of kernel %q was not started", mr.kernelName)
		return mr
	}
	mr.state, mr.err = mr.run.Wait(timeoutMs)
	if mr.err == nil && mr.state.IsTerminal() && mr.state != StateTimeout {
		mr.finished()
	}
	return mr
}

func (mr *ManagedRun) finished() {
	if mr.reported {
		return
	}
	mr.reported = true
	elapsed := time.Since(mr.startedAt)
	klog.V(1).Infof("run of kernel %q: %s after %s", mr.kernelName, mr.state, elapsed)
	if mr.manager.observer != nil {
		mr.manager.observer.RunFinished(mr.kernelName, mr.state, elapsed)
	}
}

// ReadOutput fills dst (a slice of a dtypes.Supported type) with the contents of the output argument buffer, prepared
// with PrepareOutputBuffer. The run must have completed.
func (mr *ManagedRun) ReadOutput(index int, dst any) error {
	if mr.err != nil {
		return mr.err
	}
	if mr.state != StateCompleted {
		return errors.Wrapf(ErrRunNotCompleted, "reading output #%d of kernel %q in state %s", index, mr.kernelName, mr.state)
	}
	if err := mr.run.ReadBufferArgumentInto(index, dst); err != nil {
		return err
	}
	if mr.manager.observer != nil {
		raw, _, _ := dtypes.SliceBytes(dst)
		mr.manager.observer.BytesTransferred(mr.kernelName, DeviceToHost, len(raw))
	}
	return nil
}

// Destroy the run and the buffers it owns. It's a no-op if already destroyed.
func (mr *ManagedRun) Destroy() {
	mr.run.Destroy()
}
