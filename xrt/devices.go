package xrt

import (
	"fmt"

	"github.com/gofpga/goxrt/driver"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Device is an open connection to an accelerator, and the bitstream loaded on it.
//
// It's the root of the ownership tree: destroy it after the Kernels, Buffers and Runs created from it.
type Device struct {
	rt    driver.Runtime
	index uint32

	handle driver.Handle

	// bitstream and id are set together, only after the bitstream is fully loaded.
	bitstream     driver.Handle
	id            uuid.UUID
	bitstreamPath string
}

// OpenDevice opens the device with the given index using the runtime.
// The Device is not ready until a bitstream is loaded with LoadBitstream.
func OpenDevice(rt driver.Runtime, index uint32) (*Device, error) {
	if rt == nil {
		return nil, errors.New("xrt.OpenDevice() requires a non-nil driver.Runtime")
	}
	handle := rt.OpenDevice(index)
	if handle.IsNull() {
		return nil, errors.Wrapf(ErrDeviceOpen, "device #%d with runtime %q", index, rt.Name())
	}
	devicesAlive.Add(1)
	d := &Device{rt: rt, index: index, handle: handle}
	klog.V(1).Infof("opened %s", d)
	return d, nil
}

// Open the device with the given index, using the runtime registered with runtimeName (see driver.Get).
func Open(runtimeName string, index uint32) (*Device, error) {
	rt, err := driver.Get(runtimeName)
	if err != nil {
		return nil, errors.WithMessagef(err, "xrt.Open(%q, %d)", runtimeName, index)
	}
	return OpenDevice(rt, index)
}

// Runtime used by the device.
func (d *Device) Runtime() driver.Runtime { return d.rt }

// Index of the device.
func (d *Device) Index() uint32 { return d.index }

// IsOpen returns whether the device connection is open.
func (d *Device) IsOpen() bool {
	return d != nil && d.rt != nil && !d.handle.IsNull()
}

// IsReady returns whether the device is open and has a bitstream loaded.
func (d *Device) IsReady() bool {
	return d.IsOpen() && !d.bitstream.IsNull()
}

// UUID of the loaded bitstream. The boolean is false if no bitstream is loaded.
func (d *Device) UUID() (uuid.UUID, bool) {
	if !d.IsReady() {
		return uuid.Nil, false
	}
	return d.id, true
}

// BitstreamPath returns the path of the loaded bitstream, or "" if none is loaded.
func (d *Device) BitstreamPath() string {
	if !d.IsReady() {
		return ""
	}
	return d.bitstreamPath
}

// LoadBitstream allocates the bitstream from the xclbin file in path, retrieves its UUID and loads it onto the
// device. The device only becomes ready if all steps succeed: on failure it is left as it was before the call, with
// the previous bitstream (if any) still loaded.
//
// Loading a bitstream on a ready device replaces the previous one, which is then freed.
func (d *Device) LoadBitstream(path string) error {
	if !d.IsOpen() {
		return errors.Wrapf(ErrUnopenedDevice, "loading bitstream %q", path)
	}
	if err := checkCString(path); err != nil {
		return errors.WithMessage(err, "bitstream path")
	}
	bitstream := d.rt.AllocBitstream(path)
	if bitstream.IsNull() {
		return errors.Wrapf(ErrBitstreamAlloc, "%q", path)
	}
	// The identity only needs the bitstream handle: it's retrieved before the device is reprogrammed.
	id, status := d.rt.BitstreamUUID(bitstream)
	if status != 0 {
		d.freeBitstream(bitstream)
		return errors.Wrapf(ErrIdentityRetrieval, "%q (status %d)", path, status)
	}
	if status := d.rt.LoadBitstream(d.handle, bitstream); status != 0 {
		d.freeBitstream(bitstream)
		return errors.Wrapf(ErrBitstreamLoad, "%q onto %s (status %d)", path, d, status)
	}

	previous := d.bitstream
	d.bitstream, d.id, d.bitstreamPath = bitstream, id, path
	if !previous.IsNull() {
		d.freeBitstream(previous)
	}
	klog.V(1).Infof("loaded bitstream %s (%q) onto %s", id, path, d)
	return nil
}

func (d *Device) freeBitstream(bitstream driver.Handle) {
	if status := d.rt.FreeBitstream(bitstream); status != 0 {
		klog.V(1).Infof("freeing bitstream of %s returned status %d", d, status)
	}
}

// Destroy frees the bitstream, if one is loaded, and then closes the device. It's a no-op if the device was already
// destroyed.
func (d *Device) Destroy() {
	if d == nil || d.rt == nil {
		return
	}
	if !d.bitstream.IsNull() {
		d.freeBitstream(d.bitstream)
		d.bitstream, d.id, d.bitstreamPath = driver.NullHandle, uuid.Nil, ""
	}
	if !d.handle.IsNull() {
		if status := d.rt.CloseDevice(d.handle); status != 0 {
			klog.V(1).Infof("closing device #%d returned status %d", d.index, status)
		}
		d.handle = driver.NullHandle
		devicesAlive.Add(-1)
		klog.V(1).Infof("closed device #%d", d.index)
	}
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	if d == nil || d.rt == nil {
		return "Device(nil)"
	}
	switch {
	case d.IsReady():
		return fmt.Sprintf("Device(#%d, %s, bitstream %s)", d.index, d.rt.Name(), d.id)
	case d.IsOpen():
		return fmt.Sprintf("Device(#%d, %s, no bitstream)", d.index, d.rt.Name())
	}
	return fmt.Sprintf("Device(#%d, %s, closed)", d.index, d.rt.Name())
}
