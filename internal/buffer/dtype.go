// Package buffer provides precision-tagged, device-resident, reference-counted matrices
// and vectors.
package buffer

import "fmt"

// Float is a constraint for the supported element types.
type Float interface {
	float32 | float64
}

// DataType is the precision of a buffer.
type DataType int

// Supported precisions.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// FromWidth returns the precision whose element width is width bytes.
func FromWidth(width int) (DataType, error) {
	switch width {
	case 4:
		return Float32, nil
	case 8:
		return Float64, nil
	default:
		return 0, fmt.Errorf("unsupported element width %d", width)
	}
}

// ParseDataType converts a name produced by String back into a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "float32":
		return Float32, true
	case "float64":
		return Float64, true
	default:
		return 0, false
	}
}

// Of infers the DataType of T.
func Of[T Float]() DataType {
	var dummy T
	switch any(dummy).(type) {
	case float32:
		return Float32
	default:
		return Float64
	}
}
