package xrt

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the errors returned by the package.
type ErrorKind int

//go:generate go tool enumer -type=ErrorKind -trimprefix=Kind errors.go

const (
	KindUnknown ErrorKind = iota

	// KindConnection is a failure talking to the device: open, bitstream load or identity retrieval.
	KindConnection

	// KindNotReady is an operation attempted before its prerequisite state was reached: unopened device,
	// unloaded bitstream, missing kernel, run or buffer.
	KindNotReady

	// KindAllocation is a native resource creation that returned an invalid handle.
	KindAllocation

	// KindArgumentBinding is a rejected scalar or buffer argument, or an argument memory group that couldn't be
	// retrieved.
	KindArgumentBinding

	// KindTransfer is a failed host/device sync, read or write.
	KindTransfer

	// KindLookup is a named kernel or buffer not found.
	KindLookup

	// KindStringConversion is a path or name that can't be converted to a C string.
	KindStringConversion

	// KindExecution is a run that finished in a state other than Completed (only reported by Manager).
	KindExecution
)

// Error is the type of the sentinel errors of the package. Use errors.Is to check for a specific error, and
// KindOf to get the kind of any error returned by the package.
type Error struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Msg }

var (
	ErrDeviceOpen        = &Error{KindConnection, "failed to open device"}
	ErrBitstreamLoad     = &Error{KindConnection, "failed to load bitstream onto the device"}
	ErrIdentityRetrieval = &Error{KindConnection, "failed to retrieve the bitstream UUID"}

	ErrUnopenedDevice     = &Error{KindNotReady, "device is not open -- has it been destroyed already?"}
	ErrDeviceNotReady     = &Error{KindNotReady, "device has no bitstream loaded"}
	ErrKernelNotLoaded    = &Error{KindNotReady, "kernel is not open -- has it been destroyed already?"}
	ErrRunNotCreated      = &Error{KindNotReady, "run is not open -- has it been destroyed already?"}
	ErrBufferNotAllocated = &Error{KindNotReady, "buffer is not allocated -- has it been destroyed already?"}

	ErrBitstreamAlloc = &Error{KindAllocation, "failed to allocate bitstream from file"}
	ErrKernelCreation = &Error{KindAllocation, "failed to open kernel"}
	ErrRunCreation    = &Error{KindAllocation, "failed to create run"}
	ErrAllocation     = &Error{KindAllocation, "failed to allocate buffer"}

	ErrInvalidGroupID         = &Error{KindArgumentBinding, "accelerator returned an invalid memory group for the argument"}
	ErrArgumentGroupRetrieval = &Error{KindArgumentBinding, "failed to retrieve the memory group of the argument"}
	ErrArgumentSet            = &Error{KindArgumentBinding, "failed to set argument"}
	ErrUnsupportedType        = &Error{KindArgumentBinding, "unsupported argument type"}
	ErrUnresolvedArgument     = &Error{KindArgumentBinding, "argument map has unresolved entries"}

	ErrWrite      = &Error{KindTransfer, "failed to write to buffer"}
	ErrRead       = &Error{KindTransfer, "failed to read from buffer"}
	ErrSync       = &Error{KindTransfer, "failed to sync buffer"}
	ErrOutOfRange = &Error{KindTransfer, "range out of buffer bounds"}

	ErrBufferNotFound = &Error{KindLookup, "no buffer for argument"}
	ErrKernelNotFound = &Error{KindLookup, "kernel not found"}

	ErrStringConversion = &Error{KindStringConversion, "string contains a NUL character and can't be passed to the accelerator runtime"}

	ErrRunNotCompleted = &Error{KindExecution, "run did not complete"}
)

// KindOf returns the kind of an error returned by the package, or KindUnknown if it is not one of the package's
// errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ArgumentSetError is returned when the accelerator rejects an argument binding. It carries the argument index and
// the value (a scalar or a *Buffer) so the caller can tell which binding failed.
//
// It matches ErrArgumentSet with errors.Is.
type ArgumentSetError struct {
	Index  int
	Value  any
	Status int
}

// Error implements the error interface.
func (e *ArgumentSetError) Error() string {
	if b, ok := e.Value.(*Buffer); ok {
		return fmt.Sprintf("failed to set argument #%d to %s (status %d)", e.Index, b, e.Status)
	}
	return fmt.Sprintf("failed to set argument #%d to %v (%T) (status %d)", e.Index, e.Value, e.Value, e.Status)
}

// Unwrap returns ErrArgumentSet.
func (e *ArgumentSetError) Unwrap() error { return ErrArgumentSet }
