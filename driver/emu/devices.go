package emu

import (
	"sync"

	"github.com/gofpga/goxrt/driver"
	"github.com/gofpga/goxrt/xclbin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

type device struct {
	index uint32

	mu     sync.Mutex
	loaded *image // Protected by mu.
}

// image is what a device keeps of a loaded bitstream: it survives the bitstream handle being freed.
type image struct {
	id      uuid.UUID
	kernels map[string]xclbin.KernelInfo
}

func (d *device) image() *image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

type bitstream struct {
	path  string
	image *image
}

// OpenDevice implements driver.Runtime.
func (rt *Runtime) OpenDevice(index uint32) driver.Handle {
	if index >= rt.numDevices || rt.injectedFault(OpOpenDevice) {
		return driver.NullHandle
	}
	return rt.devices.Insert(&device{index: index})
}

// CloseDevice implements driver.Runtime.
func (rt *Runtime) CloseDevice(handle driver.Handle) int {
	_, found := rt.devices.Remove(handle)
	return rt.release(found, "device", handle)
}

// AllocBitstream implements driver.Runtime. The xclbin must have a BUILD_METADATA section.
func (rt *Runtime) AllocBitstream(path string) driver.Handle {
	if rt.injectedFault(OpAllocBitstream) {
		return driver.NullHandle
	}
	f, err := xclbin.ReadFile(path)
	if err != nil {
		klog.V(1).Infof("emu: %v", err)
		return driver.NullHandle
	}
	kernels, err := f.Kernels()
	if err != nil {
		klog.V(1).Infof("emu: xclbin %q: %v", path, err)
		return driver.NullHandle
	}
	img := &image{id: f.UUID, kernels: make(map[string]xclbin.KernelInfo, len(kernels))}
	for _, k := range kernels {
		img.kernels[k.Name] = k
	}
	return rt.bitstreams.Insert(&bitstream{path: path, image: img})
}

// FreeBitstream implements driver.Runtime.
func (rt *Runtime) FreeBitstream(handle driver.Handle) int {
	_, found := rt.bitstreams.Remove(handle)
	return rt.release(found, "bitstream", handle)
}

// LoadBitstream implements driver.Runtime. It fails if the bitstream lists kernels not in the library, or kernels
// whose arguments don't match the library definition.
func (rt *Runtime) LoadBitstream(deviceHandle, bitstreamHandle driver.Handle) int {
	d, found := rt.devices.Get(deviceHandle)
	if !found {
		return statusNoEntry
	}
	bs, found := rt.bitstreams.Get(bitstreamHandle)
	if !found {
		return statusNoEntry
	}
	if rt.injectedFault(OpLoadBitstream) {
		return statusInvalid
	}
	for name, info := range bs.image.kernels {
		def, found := rt.library[name]
		if !found {
			klog.V(1).Infof("emu: xclbin %q has kernel %q, which is not implemented", bs.path, name)
			return statusInvalid
		}
		if len(def.Arguments) != len(info.Arguments) {
			klog.V(1).Infof("emu: xclbin %q kernel %q has %d arguments, implementation takes %d",
				bs.path, name, len(info.Arguments), len(def.Arguments))
			return statusInvalid
		}
	}
	d.mu.Lock()
	d.loaded = bs.image
	d.mu.Unlock()
	klog.V(2).Infof("emu: device #%d loaded xclbin %s (%q)", d.index, bs.image.id, bs.path)
	return statusOK
}

// BitstreamUUID implements driver.Runtime.
func (rt *Runtime) BitstreamUUID(handle driver.Handle) (uuid.UUID, int) {
	bs, found := rt.bitstreams.Get(handle)
	if !found {
		return uuid.Nil, statusNoEntry
	}
	if rt.injectedFault(OpBitstreamUUID) {
		return uuid.Nil, statusInvalid
	}
	return bs.image.id, statusOK
}

type kernel struct {
	device *device
	id     uuid.UUID
	info   xclbin.KernelInfo
	def    *KernelDef
}

// OpenKernel implements driver.Runtime. The device must have the bitstream with the given identity loaded.
func (rt *Runtime) OpenKernel(deviceHandle driver.Handle, id uuid.UUID, name string) driver.Handle {
	d, found := rt.devices.Get(deviceHandle)
	if !found || rt.injectedFault(OpOpenKernel) {
		return driver.NullHandle
	}
	img := d.image()
	if img == nil || img.id != id {
		return driver.NullHandle
	}
	info, found := img.kernels[name]
	if !found {
		return driver.NullHandle
	}
	def, found := rt.library[name]
	if !found {
		return driver.NullHandle
	}
	return rt.kernels.Insert(&kernel{device: d, id: id, info: info, def: def})
}

// CloseKernel implements driver.Runtime.
func (rt *Runtime) CloseKernel(handle driver.Handle) int {
	_, found := rt.kernels.Remove(handle)
	return rt.release(found, "kernel", handle)
}

// group returns the memory group of a buffer argument: the one in the xclbin metadata, or 0 if not given.
func (k *kernel) group(index int) int {
	if index < 0 || index >= len(k.info.Arguments) || !k.info.Arguments[index].IsBuffer() {
		return -statusInvalid
	}
	return max(k.info.Arguments[index].MemoryGroup, 0)
}

// ArgumentGroup implements driver.Runtime. It returns a negative value for scalar arguments.
func (rt *Runtime) ArgumentGroup(handle driver.Handle, index int) int {
	k, found := rt.kernels.Get(handle)
	if !found {
		return -statusNoEntry
	}
	if rt.injectedFault(OpArgumentGroup) {
		return -statusInvalid
	}
	return k.group(index)
}
