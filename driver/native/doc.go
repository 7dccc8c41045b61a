// Package native implements driver.Runtime with the Xilinx Runtime (XRT) C API, and registers it as "xrt".
//
// It requires cgo and the XRT development files (headers and libxrt_coreutil), usually installed under /opt/xilinx/xrt:
// build with `-tags xrt` and, if XRT is not in the default paths, set CGO_CFLAGS="-I/opt/xilinx/xrt/include" and
// CGO_LDFLAGS="-L/opt/xilinx/xrt/lib". Without the tag the package is empty, and importing it is a no-op:
//
//	import _ "github.com/gofpga/goxrt/driver/native"
//
// The XRT_TOOLS environment variable (see setup.sh in the XRT installation) is not used: XRT itself reads
// XCL_EMULATION_MODE to select the hardware or emulation shim.
package native
