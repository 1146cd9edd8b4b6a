//go:build !windows

package webgpu

import (
	"fmt"

	"github.com/born-ml/pathfit/internal/device"
)

// Device is unavailable on this platform.
type Device struct {
	index int
}

// New reports device.ErrUnavailable.
func New(index int) (*Device, error) {
	return nil, fmt.Errorf("webgpu:%d: bindings not built for this platform: %w", index, device.ErrUnavailable)
}

// Index returns the device ordinal.
func (d *Device) Index() int { return d.index }

// Kind returns device.WebGPU.
func (d *Device) Kind() device.Kind { return device.WebGPU }

// Name returns the device name.
func (d *Device) Name() string { return fmt.Sprintf("webgpu:%d", d.index) }

// Alloc reports device.ErrUnavailable.
func (d *Device) Alloc(int) (device.Handle, error) { return 0, device.ErrUnavailable }

// Upload reports device.ErrUnavailable.
func (d *Device) Upload(device.Handle, []byte) error { return device.ErrUnavailable }

// Download reports device.ErrUnavailable.
func (d *Device) Download(device.Handle, []byte) error { return device.ErrUnavailable }

// View reports device.ErrUnavailable.
func (d *Device) View(device.Handle) ([]byte, error) { return nil, device.ErrUnavailable }

// Free reports device.ErrUnavailable.
func (d *Device) Free(device.Handle) error { return device.ErrUnavailable }

// Stats returns zero counters.
func (d *Device) Stats() device.Stats { return device.Stats{} }

// Close does nothing.
func (d *Device) Close() error { return nil }
