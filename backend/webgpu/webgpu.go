// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides GPU devices for the elastic-net solver.
//
// WebGPU devices hold staged buffers in GPU storage buffers. The bindings are built on
// Windows; on other platforms New reports an unavailable device so callers can fall
// back to the cpu package.
//
// Example:
//
//	devices, err := webgpu.NewSet(1)
//	if err != nil {
//	    devices, _ = cpu.NewSet(1)
//	}
package webgpu

import (
	"github.com/born-ml/pathfit/internal/device"
	internalwebgpu "github.com/born-ml/pathfit/internal/device/webgpu"
)

// Device is one WebGPU device.
type Device = internalwebgpu.Device

// Compile-time check that Device implements device.Device.
var _ device.Device = (*Device)(nil)

// New creates WebGPU device number index on the default adapter.
func New(index int) (*Device, error) {
	return internalwebgpu.New(index)
}

// NewSet creates n WebGPU devices.
func NewSet(n int) (*device.Set, error) {
	return internalwebgpu.NewSet(n)
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
