// Package cpu implements host-memory devices.
//
// All CPU devices share the process address space, so View is zero-copy and uploads are
// plain memory copies. Each device keeps its own allocation table and statistics.
package cpu

import (
	"fmt"
	"strings"
	"sync"

	"github.com/born-ml/pathfit/internal/device"
	"golang.org/x/sys/cpu"
)

// alignment rounds allocations up to a cache line.
const alignment = 64

// maxFreeList bounds the number of released blocks kept for reuse.
const maxFreeList = 64

type allocation struct {
	data []byte // aligned block, len == aligned size
	size int    // requested size
}

// Device is a host-memory device with a reusing allocation pool.
type Device struct {
	index int

	mu        sync.Mutex
	allocated map[device.Handle]*allocation
	freeList  [][]byte
	next      device.Handle
	stats     device.Stats
	closed    bool
}

// New creates CPU device number index.
func New(index int) *Device {
	return &Device{
		index:     index,
		allocated: make(map[device.Handle]*allocation),
	}
}

// NewSet creates a set of n CPU devices.
func NewSet(n int) (*device.Set, error) {
	if n < 1 {
		n = 1
	}
	devices := make([]device.Device, n)
	for i := range devices {
		devices[i] = New(i)
	}
	return device.NewSet(devices...)
}

// Index returns the device ordinal.
func (d *Device) Index() int {
	return d.index
}

// Kind returns device.CPU.
func (d *Device) Kind() device.Kind {
	return device.CPU
}

// Name returns the device name with the SIMD features the host reports.
func (d *Device) Name() string {
	features := Features()
	if len(features) == 0 {
		return fmt.Sprintf("cpu:%d", d.index)
	}
	return fmt.Sprintf("cpu:%d (%s)", d.index, strings.Join(features, ","))
}

// Features lists the vector extensions available to the solver kernels.
func Features() []string {
	var out []string
	if cpu.X86.HasSSE42 {
		out = append(out, "sse4.2")
	}
	if cpu.X86.HasAVX {
		out = append(out, "avx")
	}
	if cpu.X86.HasAVX2 {
		out = append(out, "avx2")
	}
	if cpu.X86.HasFMA {
		out = append(out, "fma")
	}
	if cpu.X86.HasAVX512F {
		out = append(out, "avx512f")
	}
	if cpu.ARM64.HasASIMD {
		out = append(out, "asimd")
	}
	if cpu.ARM64.HasSVE {
		out = append(out, "sve")
	}
	return out
}

// Alloc reserves size zeroed bytes.
func (d *Device) Alloc(size int) (device.Handle, error) {
	if size < 0 {
		return 0, fmt.Errorf("cpu:%d: negative allocation size %d", d.index, size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, fmt.Errorf("cpu:%d: %w", d.index, device.ErrUnavailable)
	}

	alignedSize := (size + alignment - 1) &^ (alignment - 1)
	block := d.takeFree(alignedSize)
	if block == nil {
		block = make([]byte, alignedSize)
	}

	d.next++
	h := d.next
	d.allocated[h] = &allocation{data: block, size: size}

	d.stats.ActiveBuffers++
	d.stats.Allocations++
	d.stats.AllocatedBytes += int64(alignedSize)
	if d.stats.AllocatedBytes > d.stats.PeakBytes {
		d.stats.PeakBytes = d.stats.AllocatedBytes
	}
	return h, nil
}

// takeFree reuses a released block of at least size bytes. Must hold mu.
func (d *Device) takeFree(size int) []byte {
	for i, block := range d.freeList {
		if cap(block) >= size {
			d.freeList = append(d.freeList[:i], d.freeList[i+1:]...)
			block = block[:size]
			clear(block)
			return block
		}
	}
	return nil
}

func (d *Device) lookup(h device.Handle) (*allocation, error) {
	a, ok := d.allocated[h]
	if !ok {
		return nil, fmt.Errorf("cpu:%d: handle %d: %w", d.index, h, device.ErrUnknownHandle)
	}
	return a, nil
}

// Upload copies src into the allocation.
func (d *Device) Upload(h device.Handle, src []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return err
	}
	if len(src) != a.size {
		return fmt.Errorf("cpu:%d: upload %d bytes into %d: %w", d.index, len(src), a.size, device.ErrSizeMismatch)
	}
	copy(a.data, src)
	return nil
}

// Download copies the allocation into dst.
func (d *Device) Download(h device.Handle, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return err
	}
	if len(dst) != a.size {
		return fmt.Errorf("cpu:%d: download %d bytes from %d: %w", d.index, a.size, len(dst), device.ErrSizeMismatch)
	}
	copy(dst, a.data[:a.size])
	return nil
}

// View returns the allocation itself.
func (d *Device) View(h device.Handle) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return nil, err
	}
	return a.data[:a.size:a.size], nil
}

// Free releases the allocation and keeps its block for reuse.
func (d *Device) Free(h device.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(h)
	if err != nil {
		return err
	}
	delete(d.allocated, h)
	d.stats.ActiveBuffers--
	d.stats.Frees++
	d.stats.AllocatedBytes -= int64(len(a.data))
	if len(d.freeList) < maxFreeList {
		d.freeList = append(d.freeList, a.data)
	}
	return nil
}

// Stats returns the allocation counters.
func (d *Device) Stats() device.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Close drops every allocation.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, a := range d.allocated {
		d.stats.ActiveBuffers--
		d.stats.Frees++
		d.stats.AllocatedBytes -= int64(len(a.data))
		delete(d.allocated, h)
	}
	d.freeList = nil
	d.closed = true
	return nil
}
