package xrt

import "github.com/gofpga/goxrt/driver"

// CommandState of a Run, as reported by the accelerator (the ERT command state).
//
// Values not listed are surfaced as they are: use IsACommandState to check for them, they print as
// "CommandState(<raw value>)".
type CommandState uint32

//go:generate go tool enumer -type=CommandState -trimprefix=State states.go

const (
	StateNew        = CommandState(driver.CmdStateNew)
	StateQueued     = CommandState(driver.CmdStateQueued)
	StateRunning    = CommandState(driver.CmdStateRunning)
	StateCompleted  = CommandState(driver.CmdStateCompleted)
	StateError      = CommandState(driver.CmdStateError)
	StateAbort      = CommandState(driver.CmdStateAbort)
	StateSubmitted  = CommandState(driver.CmdStateSubmitted)
	StateTimeout    = CommandState(driver.CmdStateTimeout)
	StateNoResponse = CommandState(driver.CmdStateNoResponse)
	StateSKError    = CommandState(driver.CmdStateSKError)
	StateSKCrashed  = CommandState(driver.CmdStateSKCrashed)
	StateMax        = CommandState(driver.CmdStateMax)
)

// IsTerminal returns whether the state is final for the current execution of the run: Completed, Error, Abort,
// Timeout, NoResponse, SKError or SKCrashed.
//
// Notice a Timeout returned by Run.Wait only means the wait gave up: the execution may still be going on.
func (s CommandState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateError, StateAbort, StateTimeout, StateNoResponse, StateSKError, StateSKCrashed:
		return true
	}
	return false
}

// IsTransient returns whether the run is still in progress: New, Queued, Submitted or Running.
func (s CommandState) IsTransient() bool {
	switch s {
	case StateNew, StateQueued, StateSubmitted, StateRunning:
		return true
	}
	return false
}
