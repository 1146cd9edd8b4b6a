// Package webgpu implements devices backed by WebGPU storage buffers.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Storage buffers cannot be mapped for reading, so View copies the buffer into a host
// mirror through a MapRead staging buffer once per upload and serves later reads from it.
// The bindings are only built on windows; elsewhere New reports device.ErrUnavailable.
package webgpu
