// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/pathfit/internal/device"
	internalcpu "github.com/born-ml/pathfit/internal/device/cpu"
)

// Device is one host-memory device.
type Device = internalcpu.Device

// Compile-time check that Device implements device.Device.
var _ device.Device = (*Device)(nil)

// New creates CPU device number index.
func New(index int) *Device {
	return internalcpu.New(index)
}

// NewSet creates n CPU devices numbered 0..n-1.
func NewSet(n int) (*device.Set, error) {
	return internalcpu.NewSet(n)
}

// Features lists the SIMD extensions available on this host.
func Features() []string {
	return internalcpu.Features()
}
