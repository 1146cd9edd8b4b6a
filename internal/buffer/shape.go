package buffer

import "fmt"

// Order is the memory layout of a matrix.
type Order int

// Supported layouts.
const (
	RowMajor Order = iota
	ColMajor
)

// String returns "row" or "col".
func (o Order) String() string {
	if o == ColMajor {
		return "col"
	}
	return "row"
}

// Shape represents the dimensions of a buffer. Vectors have one dimension.
type Shape []int

// NumElements returns the total number of elements.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that all dimensions are positive.
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty shape")
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Index returns the flat offset of element (i, j) of a rows x cols matrix.
func Index(order Order, rows, cols, i, j int) int {
	if order == ColMajor {
		return j*rows + i
	}
	return i*cols + j
}
