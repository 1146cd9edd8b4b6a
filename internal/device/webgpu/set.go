package webgpu

import (
	"errors"

	"github.com/born-ml/pathfit/internal/device"
)

// Compile-time check that Device implements device.Device.
var _ device.Device = (*Device)(nil)

// NewSet creates n WebGPU devices. All of them share the default adapter.
func NewSet(n int) (*device.Set, error) {
	if n < 1 {
		n = 1
	}
	devices := make([]device.Device, 0, n)
	for i := range n {
		d, err := New(i)
		if err != nil {
			var errs []error
			for _, prev := range devices {
				errs = append(errs, prev.Close())
			}
			return nil, errors.Join(append([]error{err}, errs...)...)
		}
		devices = append(devices, d)
	}
	return device.NewSet(devices...)
}

// IsAvailable reports whether a WebGPU device can be created.
func IsAvailable() bool {
	d, err := New(0)
	if err != nil {
		return false
	}
	_ = d.Close()
	return true
}
