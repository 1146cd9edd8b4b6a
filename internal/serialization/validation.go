package serialization

import (
	"fmt"

	"github.com/born-ml/pathfit/internal/buffer"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize   = 1 << 20   // 1MB - maximum JSON header size
	MaxDataSize     = 1 << 34   // 16GB - maximum data section size
	MaxMetadataSize = 64 * 1024 // 64KB - maximum total metadata size
)

// ValidationLevel controls the strictness of validation.
type ValidationLevel int

const (
	// ValidationStrict performs all validation checks (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNone skips header validation. Layout checks still apply on load.
	ValidationNone
)

// ValidateHeader checks that h describes dataSize bytes of path records.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if h.FormatVersion != FormatVersion {
		return &ValidationError{Field: "format_version", Details: fmt.Sprintf("got %d, want %d", h.FormatVersion, FormatVersion)}
	}
	dt, ok := h.dataType()
	if !ok {
		return &ValidationError{Field: "dtype", Details: fmt.Sprintf("unknown %q", h.DType)}
	}
	if h.N < 1 || h.NAlphas < 1 || h.NLambdas < 1 {
		return &ValidationError{Field: "layout", Details: fmt.Sprintf("n=%d n_alphas=%d n_lambdas=%d must be positive", h.N, h.NAlphas, h.NLambdas)}
	}
	shape := buffer.Shape(h.Shape)
	if err := shape.Validate(); err != nil {
		return &ValidationError{Field: "shape", Details: err.Error()}
	}
	if want := int64(shape.NumElements() * dt.Size()); want != dataSize {
		return &ValidationError{Field: "shape", Details: fmt.Sprintf("%v of %s needs %d bytes, data section has %d", h.Shape, dt, want, dataSize)}
	}
	size := 0
	for k, v := range h.Metadata {
		size += len(k) + len(v)
	}
	if size > MaxMetadataSize {
		return &ValidationError{Field: "metadata", Details: fmt.Sprintf("%d bytes, max %d", size, MaxMetadataSize)}
	}
	return nil
}
