package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/pathfit/internal/device"
)

// Common errors.
var (
	ErrNotOwner   = errors.New("buffer: only the owner may free")
	ErrFreed      = errors.New("buffer: already freed")
	ErrNull       = errors.New("buffer: null buffer has no data")
	ErrWrongDType = errors.New("buffer: element type does not match precision")
)

// storage is one physical allocation shared by every reference to it.
type storage struct {
	dev    device.Device
	handle device.Handle
	size   int
	refs   atomic.Int32 // live references, owner included
	mu     sync.Mutex   // For safe deallocation
	freed  bool
}

// Buffer is a handle to a device-resident matrix or vector.
//
// A Buffer is either owning (created by New/FromSlice/CopyTo) or a non-owning reference
// obtained with Share. Every reference sees the same physical storage; only the owner
// may Free it. A Buffer with no storage is the null buffer: a slot that was not provided.
type Buffer struct {
	store *storage
	dtype DataType
	shape Shape
	order Order
	owner bool
}

// Null returns a null buffer of the given precision.
func Null(dtype DataType) *Buffer {
	return &Buffer{dtype: dtype}
}

// New allocates a zero-filled buffer on dev.
func New(dev device.Device, shape Shape, dtype DataType, order Order) (*Buffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	size := shape.NumElements() * dtype.Size()
	h, err := dev.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("alloc %d bytes on %s: %w", size, dev.Name(), err)
	}
	st := &storage{dev: dev, handle: h, size: size}
	st.refs.Store(1)
	return &Buffer{
		store: st,
		dtype: dtype,
		shape: shape.Clone(),
		order: order,
		owner: true,
	}, nil
}

// FromSlice allocates a buffer on dev and uploads data into it.
func FromSlice[T Float](dev device.Device, data []T, shape Shape, order Order) (*Buffer, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	b, err := New(dev, shape, Of[T](), order)
	if err != nil {
		return nil, err
	}
	if err := dev.Upload(b.store.handle, asBytes(data)); err != nil {
		_ = b.Free()
		return nil, fmt.Errorf("upload to %s: %w", dev.Name(), err)
	}
	return b, nil
}

// FromBytes allocates a buffer on dev and uploads raw little-endian element bytes.
func FromBytes(dev device.Device, data []byte, shape Shape, dtype DataType, order Order) (*Buffer, error) {
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return nil, fmt.Errorf("shape %v of %s requires %d bytes, but got %d", shape, dtype, want, len(data))
	}
	b, err := New(dev, shape, dtype, order)
	if err != nil {
		return nil, err
	}
	if err := dev.Upload(b.store.handle, data); err != nil {
		_ = b.Free()
		return nil, fmt.Errorf("upload to %s: %w", dev.Name(), err)
	}
	return b, nil
}

// asBytes reinterprets data as bytes.
func asBytes[T Float](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var dummy T
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(dummy)))
}

// IsNull reports whether b is the null buffer.
func (b *Buffer) IsNull() bool {
	return b == nil || b.store == nil
}

// DType returns the buffer precision.
func (b *Buffer) DType() DataType {
	return b.dtype
}

// Shape returns the buffer's shape. Null buffers have no shape.
func (b *Buffer) Shape() Shape {
	return b.shape
}

// Order returns the memory layout.
func (b *Buffer) Order() Order {
	return b.order
}

// NumElements returns the element count, zero for null buffers.
func (b *Buffer) NumElements() int {
	if b.IsNull() {
		return 0
	}
	return b.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (b *Buffer) ByteSize() int {
	return b.NumElements() * b.dtype.Size()
}

// Device returns the device holding the buffer, nil for null buffers.
func (b *Buffer) Device() device.Device {
	if b.IsNull() {
		return nil
	}
	return b.store.dev
}

// Owner reports whether b may free its storage.
func (b *Buffer) Owner() bool {
	return b.owner
}

// Refs returns the number of live references to the storage, owner included.
func (b *Buffer) Refs() int {
	if b.IsNull() {
		return 0
	}
	return int(b.store.refs.Load())
}

// SameStorage reports whether a and b reference the same physical allocation.
func (b *Buffer) SameStorage(other *Buffer) bool {
	return !b.IsNull() && !other.IsNull() && b.store == other.store
}

// Share returns a non-owning reference to the same storage.
// Sharing the null buffer yields another null buffer.
func (b *Buffer) Share() *Buffer {
	if b.IsNull() {
		return Null(b.dtype)
	}
	b.store.refs.Add(1)
	return &Buffer{
		store: b.store,
		dtype: b.dtype,
		shape: b.shape.Clone(),
		order: b.order,
		owner: false,
	}
}

// Release drops a non-owning reference. It never frees storage.
func (b *Buffer) Release() {
	if b.IsNull() || b.owner {
		return
	}
	b.store.refs.Add(-1)
	b.store = nil
}

// Free releases the storage on its device. Freeing a null buffer is a no-op and a
// second Free reports ErrFreed.
func (b *Buffer) Free() error {
	if b.IsNull() {
		return nil
	}
	if !b.owner {
		return ErrNotOwner
	}
	st := b.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.freed {
		return ErrFreed
	}
	st.freed = true
	st.refs.Add(-1)
	return st.dev.Free(st.handle)
}

// Freed reports whether the storage was released by its owner.
func (b *Buffer) Freed() bool {
	if b.IsNull() {
		return false
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.store.freed
}

// Bytes returns a read-only host view of the storage.
func (b *Buffer) Bytes() ([]byte, error) {
	if b.IsNull() {
		return nil, ErrNull
	}
	b.store.mu.Lock()
	freed := b.store.freed
	b.store.mu.Unlock()
	if freed {
		return nil, ErrFreed
	}
	return b.store.dev.View(b.store.handle)
}

// View interprets the buffer as a []T host view. The view must be treated as read-only
// and is valid until the owner frees the buffer.
func View[T Float](b *Buffer) ([]T, error) {
	if !b.IsNull() && b.dtype != Of[T]() {
		return nil, fmt.Errorf("%w: buffer is %s", ErrWrongDType, b.dtype)
	}
	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	n := b.NumElements()
	if n == 0 {
		return nil, nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n), nil
}

// Download copies the buffer into a new host slice.
func Download[T Float](b *Buffer) ([]T, error) {
	if b.IsNull() {
		return nil, ErrNull
	}
	if b.dtype != Of[T]() {
		return nil, fmt.Errorf("%w: buffer is %s", ErrWrongDType, b.dtype)
	}
	out := make([]T, b.NumElements())
	if err := b.store.dev.Download(b.store.handle, asBytes(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// CopyTo creates an owning replica of b on dev.
func (b *Buffer) CopyTo(dev device.Device) (*Buffer, error) {
	if b.IsNull() {
		return Null(b.dtype), nil
	}
	src, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	dst, err := New(dev, b.shape, b.dtype, b.order)
	if err != nil {
		return nil, err
	}
	if err := dev.Upload(dst.store.handle, src); err != nil {
		_ = dst.Free()
		return nil, fmt.Errorf("replicate to %s: %w", dev.Name(), err)
	}
	return dst, nil
}
