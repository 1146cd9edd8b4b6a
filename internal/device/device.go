// Package device defines the memory a staged buffer lives in.
//
// A Device hands out opaque handles to byte ranges. Compute workers read a handle through
// View, which is zero-copy for host-memory devices and a cached read-back for GPU devices.
package device

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnknownHandle = errors.New("unknown device handle")
	ErrUnavailable   = errors.New("device not available")
	ErrSizeMismatch  = errors.New("transfer size does not match allocation")
)

// Kind is the device family.
type Kind int

// Supported device kinds.
const (
	CPU Kind = iota
	WebGPU
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case CPU:
		return "cpu"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// ParseKind converts a configured kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "cpu":
		return CPU, nil
	case "webgpu":
		return WebGPU, nil
	default:
		return 0, fmt.Errorf("unknown device kind %q", s)
	}
}

// Handle identifies one allocation on a device. Zero is never a valid handle.
type Handle uint64

// Stats describes the allocations a device currently holds.
type Stats struct {
	ActiveBuffers  int   // Live allocations
	AllocatedBytes int64 // Bytes held by live allocations
	PeakBytes      int64 // High-water mark of AllocatedBytes
	Allocations    int64 // Total Alloc calls that succeeded
	Frees          int64 // Total Free calls that released memory
}

// Add accumulates other into s. PeakBytes is summed as an upper bound.
func (s Stats) Add(other Stats) Stats {
	return Stats{
		ActiveBuffers:  s.ActiveBuffers + other.ActiveBuffers,
		AllocatedBytes: s.AllocatedBytes + other.AllocatedBytes,
		PeakBytes:      s.PeakBytes + other.PeakBytes,
		Allocations:    s.Allocations + other.Allocations,
		Frees:          s.Frees + other.Frees,
	}
}

// Device is a compute device holding buffer memory.
type Device interface {
	// Index is the device ordinal within its Set.
	Index() int
	// Kind is the device family.
	Kind() Kind
	// Name is a human-readable description.
	Name() string
	// Alloc reserves size bytes, zero-initialized.
	Alloc(size int) (Handle, error)
	// Upload copies src into the allocation. len(src) must equal the allocation size.
	Upload(h Handle, src []byte) error
	// Download copies the allocation into dst. len(dst) must equal the allocation size.
	Download(h Handle, dst []byte) error
	// View returns host-visible bytes of the allocation for read-only compute.
	View(h Handle) ([]byte, error)
	// Free releases the allocation.
	Free(h Handle) error
	// Stats reports current allocation counters.
	Stats() Stats
	// Close releases every allocation and the device itself.
	Close() error
}
