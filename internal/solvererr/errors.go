// Package solvererr defines the failure taxonomy shared by the stager, the path engine
// and the predict engine.
package solvererr

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Match with errors.Is.
var (
	ErrShapeMismatch       = errors.New("shape mismatch")
	ErrPrecisionMismatch   = errors.New("precision mismatch")
	ErrLayoutInconsistency = errors.New("layout inconsistency")
	ErrNoTrainedModel      = errors.New("no trained model")
	// ErrMissingPair reports a required input that is absent, such as one half of the
	// valid features/targets pair or the training pair of a fit. Predict also reports it
	// for training inputs it does not take.
	ErrMissingPair         = errors.New("missing pair")
	ErrInvalidConfig       = errors.New("invalid config")
)

// Dim names one offending dimension.
type Dim struct {
	Name  string
	Value int
}

// Error provides the failure kind, the operation and the offending dimensions.
type Error struct {
	Kind    error  // One of the Err* sentinels
	Op      string // Operation that failed (e.g., "stage", "fit")
	Dims    []Dim  // Offending dimensions, in the order they were checked
	Details string // Additional details
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	for i, d := range e.Dims {
		if i == 0 {
			sb.WriteString(" (")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%d", d.Name, d.Value)
		if i == len(e.Dims)-1 {
			sb.WriteString(")")
		}
	}
	if e.Details != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Details)
	}
	return sb.String()
}

// Unwrap returns the failure kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// New creates an Error of the given kind.
func New(kind error, op, details string, dims ...Dim) *Error {
	return &Error{Kind: kind, Op: op, Dims: dims, Details: details}
}

// Shape reports a ShapeMismatch between two named dimensions.
func Shape(op, nameA string, a int, nameB string, b int) *Error {
	return New(ErrShapeMismatch, op, fmt.Sprintf("%s and %s must agree", nameA, nameB),
		Dim{nameA, a}, Dim{nameB, b})
}

// Config reports an InvalidConfig failure.
func Config(op, format string, args ...any) *Error {
	return New(ErrInvalidConfig, op, fmt.Sprintf(format, args...))
}
