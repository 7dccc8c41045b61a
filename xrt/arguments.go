package xrt

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gofpga/goxrt/xclbin"
	"github.com/pkg/errors"
)

// Direction of a kernel buffer argument: whether the kernel reads it or writes it.
type Direction int

const (
	// Input buffers are written by the host and read by the kernel.
	Input Direction = iota

	// Output buffers are written by the kernel and read by the host.
	Output
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Input:
		return "Input"
	case Output:
		return "Output"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ArgumentSpec describes how a kernel argument is provided. It is one of Passed, FixedBuffer, NeedsAllocation or
// (once resolved by the Kernel) OwnedBuffer.
type ArgumentSpec interface {
	isArgumentSpec()
}

// Passed arguments are given directly to each Run, usually scalars.
type Passed struct{}

// FixedBuffer arguments are always bound to the given Buffer, owned by the caller.
type FixedBuffer struct {
	Buffer *Buffer
}

// NeedsAllocation arguments get a Buffer of Size bytes allocated by the Kernel, in the memory group of the argument.
type NeedsAllocation struct {
	Size      int
	Direction Direction
	Flags     BufferFlags
}

// OwnedBuffer is a NeedsAllocation argument resolved by the Kernel: the Kernel owns the Buffer and frees it
// when destroyed.
type OwnedBuffer struct {
	Buffer    *Buffer
	Direction Direction
}

func (Passed) isArgumentSpec()          {}
func (FixedBuffer) isArgumentSpec()     {}
func (NeedsAllocation) isArgumentSpec() {}
func (OwnedBuffer) isArgumentSpec()     {}

// ArgumentMap maps argument indices to how they are provided.
type ArgumentMap map[int]ArgumentSpec

// Indices returns the argument indices in increasing order.
func (m ArgumentMap) Indices() []int {
	return slices.Sorted(maps.Keys(m))
}

// checkResolved returns ErrUnresolvedArgument if any entry still needs allocation, or is not a known spec.
func (m ArgumentMap) checkResolved() error {
	for _, index := range m.Indices() {
		switch spec := m[index].(type) {
		case Passed, FixedBuffer, OwnedBuffer:
			// Resolved.
		default:
			return errors.Wrapf(ErrUnresolvedArgument, "argument #%d is %#v", index, spec)
		}
	}
	return nil
}

// ArgumentsFromKernelInfo derives an ArgumentMap from the kernel description in the xclbin metadata: scalar arguments
// are Passed, and every buffer argument must have an entry in allocations, keyed by the argument name.
func ArgumentsFromKernelInfo(info xclbin.KernelInfo, allocations map[string]NeedsAllocation) (ArgumentMap, error) {
	m := make(ArgumentMap, len(info.Arguments))
	used := 0
	for _, arg := range info.Arguments {
		if !arg.IsBuffer() {
			m[arg.Index] = Passed{}
			continue
		}
		alloc, found := allocations[arg.Name]
		if !found {
			return nil, errors.Wrapf(ErrUnresolvedArgument, "kernel %q buffer argument #%d %q has no allocation",
				info.Name, arg.Index, arg.Name)
		}
		m[arg.Index] = alloc
		used++
	}
	if used != len(allocations) {
		return nil, errors.Errorf("allocations given for arguments that are not buffers of kernel %q: %d used out of %d",
			info.Name, used, len(allocations))
	}
	return m, nil
}
