package serialization

import (
	"time"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/path"
)

// Format constants.
const (
	MagicBytes      = "ENPF"
	FormatVersion   = 1
	HeaderAlignment = 64 // Align data to 64 bytes
	FixedHeaderSize = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
)

// Flags for the .enp format.
const (
	FlagCompressed uint32 = 1 << 0 // bit 0: xz-compressed body
	FlagFullPath   uint32 = 1 << 1 // bit 1: every (lambda, alpha) record stored
	FlagHasMeta    uint32 = 1 << 2 // bit 2: custom metadata included
)

const pathfitVersion = "0.1.0"

// Header represents the JSON header of a .enp file.
type Header struct {
	FormatVersion  int               `json:"format_version"`    // Version of the .enp format
	PathfitVersion string            `json:"pathfit_version"`   // Version that created this file
	Session        string            `json:"session,omitempty"` // Session that fitted the path
	CreatedAt      time.Time         `json:"created_at"`        // When the file was created
	DType          string            `json:"dtype"`             // "float32" or "float64"
	Shape          []int             `json:"shape"`             // Record tensor shape
	Full           bool              `json:"full"`              // Full path or best per alpha
	NAlphas        int               `json:"n_alphas"`          // Alpha grid size
	NLambdas       int               `json:"n_lambdas"`         // Lambda path length
	N              int               `json:"n"`                 // Coefficients per record
	Intercept      bool              `json:"intercept"`         // Last coefficient is the intercept
	Standardize    bool              `json:"standardize"`       // Fitted on standardized features
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Meta is the fit context stored next to a path.
type Meta struct {
	Session     string
	Intercept   bool
	Standardize bool
	Metadata    map[string]string
}

// Layout returns the path layout the header declares.
func (h *Header) Layout() path.Layout {
	return path.Layout{Full: h.Full, NAlphas: h.NAlphas, NLambdas: h.NLambdas, N: h.N}
}

// dataType returns the header precision.
func (h *Header) dataType() (buffer.DataType, bool) {
	return buffer.ParseDataType(h.DType)
}
