package device

import (
	"errors"
	"fmt"
)

// Set is an ordered group of devices addressed by index.
type Set struct {
	devices []Device
}

// NewSet creates a set from devices. Device i must report Index() == i.
func NewSet(devices ...Device) (*Set, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("device set: at least one device required")
	}
	for i, d := range devices {
		if d == nil {
			return nil, fmt.Errorf("device set: device %d is nil", i)
		}
		if d.Index() != i {
			return nil, fmt.Errorf("device set: device at position %d reports index %d", i, d.Index())
		}
	}
	return &Set{devices: append([]Device(nil), devices...)}, nil
}

// Len returns the number of devices.
func (s *Set) Len() int {
	return len(s.devices)
}

// Get returns device i.
func (s *Set) Get(i int) (Device, error) {
	if i < 0 || i >= len(s.devices) {
		return nil, fmt.Errorf("device index %d out of range [0, %d)", i, len(s.devices))
	}
	return s.devices[i], nil
}

// ForWorker returns the device worker w runs on when source is the upload device.
// Workers are laid out round-robin starting at the source device.
func (s *Set) ForWorker(source, w int) Device {
	return s.devices[(source+w)%len(s.devices)]
}

// Stats sums the counters of every device.
func (s *Set) Stats() Stats {
	var total Stats
	for _, d := range s.devices {
		total = total.Add(d.Stats())
	}
	return total
}

// Close closes every device and joins their errors.
func (s *Set) Close() error {
	var errs []error
	for _, d := range s.devices {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", d.Index(), err))
		}
	}
	return errors.Join(errs...)
}
