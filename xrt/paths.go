package xrt

import "fmt"

// DefaultMode is the execution mode used by BitstreamPath when none is given: real hardware.
const DefaultMode = "hw"

// BitstreamPath returns the conventional file name of the bitstream built from name for the given mode: "hw" for
// hardware, or one of the emulation modes ("sw_emu", "hw_emu"). E.g. BitstreamPath("vscale", "sw_emu") returns
// "vscale_sw_emu.xclbin".
//
// The mode usually comes from the XCL_EMULATION_MODE environment variable, which is read by the caller.
func BitstreamPath(name, mode string) string {
	if mode == "" {
		mode = DefaultMode
	}
	return fmt.Sprintf("%s_%s.xclbin", name, mode)
}
