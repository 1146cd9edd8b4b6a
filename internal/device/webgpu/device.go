//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/pathfit/internal/device"
	"github.com/go-webgpu/webgpu/wgpu"
)

// storageUsage is the usage set of every staged buffer.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

type allocation struct {
	buffer *wgpu.Buffer // nil until the first upload
	size   int
	mirror []byte // host copy, valid when fresh
	fresh  bool
}

// Device is a WebGPU adapter holding staged buffers.
type Device struct {
	index int

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mu        sync.Mutex
	allocated map[device.Handle]*allocation
	next      device.Handle
	stats     device.Stats
}

// New creates WebGPU device number index on the default high-performance adapter.
// Returns device.ErrUnavailable if the native library or an adapter is missing.
func New(index int) (dev *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("webgpu:%d: native library not available: %v: %w", index, r, device.ErrUnavailable)
		}
	}()

	if err := wgpu.Init(); err != nil {
		return nil, fmt.Errorf("webgpu:%d: %v: %w", index, err, device.ErrUnavailable)
	}
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu:%d: create instance: %v: %w", index, err, device.ErrUnavailable)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu:%d: request adapter: %v: %w", index, err, device.ErrUnavailable)
	}
	gpu, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu:%d: request device: %v: %w", index, err, device.ErrUnavailable)
	}
	queue := gpu.GetQueue()
	if queue == nil {
		gpu.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu:%d: no queue: %w", index, device.ErrUnavailable)
	}

	return &Device{
		index:     index,
		instance:  instance,
		adapter:   adapter,
		device:    gpu,
		queue:     queue,
		allocated: make(map[device.Handle]*allocation),
	}, nil
}

// Index returns the device ordinal.
func (d *Device) Index() int {
	return d.index
}

// Kind returns device.WebGPU.
func (d *Device) Kind() device.Kind {
	return device.WebGPU
}

// Name returns the device name.
func (d *Device) Name() string {
	return fmt.Sprintf("webgpu:%d", d.index)
}

// paddedSize rounds size up to the 4-byte copy granularity of WebGPU.
func paddedSize(size int) uint64 {
	return uint64((size + 3) &^ 3) //nolint:gosec // G115: size is non-negative
}

// Alloc reserves size bytes. The GPU buffer is created on first upload.
func (d *Device) Alloc(size int) (device.Handle, error) {
	if size < 0 {
		return 0, fmt.Errorf("webgpu:%d: negative allocation size %d", d.index, size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	h := d.next
	d.allocated[h] = &allocation{size: size, mirror: make([]byte, size), fresh: true}
	d.stats.ActiveBuffers++
	d.stats.Allocations++
	d.stats.AllocatedBytes += int64(paddedSize(size)) //nolint:gosec // G115: bounded by size
	if d.stats.AllocatedBytes > d.stats.PeakBytes {
		d.stats.PeakBytes = d.stats.AllocatedBytes
	}
	return h, nil
}

func (d *Device) lookup(h device.Handle) (*allocation, error) {
	a, ok := d.allocated[h]
	if !ok {
		return nil, fmt.Errorf("webgpu:%d: handle %d: %w", d.index, h, device.ErrUnknownHandle)
	}
	return a, nil
}

// createBuffer creates a storage buffer initialized with data.
func (d *Device) createBuffer(data []byte) *wgpu.Buffer {
	size := paddedSize(len(data))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            storageUsage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// readBuffer reads a storage buffer back through a MapRead staging buffer.
func (d *Device) readBuffer(src *wgpu.Buffer, dst []byte) error {
	size := paddedSize(len(dst))
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmd := encoder.Finish(nil)
	d.queue.Submit(cmd)

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu:%d: map staging buffer: %w", d.index, err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(dst, mapped)
	staging.Unmap()
	return nil
}

// Upload replaces the GPU buffer contents with src.
func (d *Device) Upload(h device.Handle, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return err
	}
	if len(src) != a.size {
		return fmt.Errorf("webgpu:%d: upload %d bytes into %d: %w", d.index, len(src), a.size, device.ErrSizeMismatch)
	}
	if a.buffer != nil {
		a.buffer.Release()
	}
	a.buffer = d.createBuffer(src)
	a.fresh = false
	return nil
}

// sync refreshes the host mirror from the GPU buffer. Must hold mu.
func (d *Device) sync(a *allocation) error {
	if a.fresh || a.buffer == nil {
		return nil
	}
	if err := d.readBuffer(a.buffer, a.mirror); err != nil {
		return err
	}
	a.fresh = true
	return nil
}

// Download copies the GPU buffer into dst.
func (d *Device) Download(h device.Handle, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return err
	}
	if len(dst) != a.size {
		return fmt.Errorf("webgpu:%d: download %d bytes from %d: %w", d.index, a.size, len(dst), device.ErrSizeMismatch)
	}
	if err := d.sync(a); err != nil {
		return err
	}
	copy(dst, a.mirror)
	return nil
}

// View returns the host mirror, reading the GPU buffer back if it changed.
func (d *Device) View(h device.Handle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return nil, err
	}
	if err := d.sync(a); err != nil {
		return nil, err
	}
	return a.mirror[:a.size:a.size], nil
}

// Free releases the GPU buffer.
func (d *Device) Free(h device.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return err
	}
	d.release(h, a)
	return nil
}

// release drops one allocation. Must hold mu.
func (d *Device) release(h device.Handle, a *allocation) {
	if a.buffer != nil {
		a.buffer.Release()
	}
	delete(d.allocated, h)
	d.stats.ActiveBuffers--
	d.stats.Frees++
	d.stats.AllocatedBytes -= int64(paddedSize(a.size)) //nolint:gosec // G115: bounded by size
}

// Stats returns the allocation counters.
func (d *Device) Stats() device.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close releases every buffer and the WebGPU device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, a := range d.allocated {
		d.release(h, a)
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
	return nil
}
