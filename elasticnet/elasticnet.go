// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package elasticnet

import (
	"log/slog"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/config"
	"github.com/born-ml/pathfit/internal/device"
	"github.com/born-ml/pathfit/internal/path"
	"github.com/born-ml/pathfit/internal/predict"
	"github.com/born-ml/pathfit/internal/session"
	"github.com/born-ml/pathfit/internal/solvererr"
	"github.com/born-ml/pathfit/internal/stager"
)

// Session is a solver session. See session.Session.
type Session = session.Session

// Config is the solver configuration.
type Config = config.Config

// Option configures a Session.
type Option = session.Option

// Phase is a set of live resource groups of a Session.
type Phase = session.Phase

// Resource groups of a Session.
const (
	PhaseInputs      = session.PhaseInputs
	PhasePath        = session.PhasePath
	PhasePredictions = session.PhasePredictions
)

// Host inputs.
type (
	Dataset = stager.Dataset
	Matrix  = stager.Matrix
	Vector  = stager.Vector
	Order   = buffer.Order
)

// Memory layouts of a Matrix.
const (
	RowMajor = buffer.RowMajor
	ColMajor = buffer.ColMajor
)

// Results.
type (
	PathResult       = path.Result
	PredictionResult = predict.Result
	Layout           = path.Layout
)

// Record fields following the coefficients of a path record.
const (
	FieldTrainRMSE = path.FieldTrainRMSE
	FieldCVRMSE    = path.FieldCVRMSE
	FieldValidRMSE = path.FieldValidRMSE
	FieldLambda    = path.FieldLambda
	FieldAlpha     = path.FieldAlpha
	FieldTol       = path.FieldTol
)

// DeviceSet is an ordered set of devices.
type DeviceSet = device.Set

// Error is the structured solver error.
type Error = solvererr.Error

// Failure kinds. Match with errors.Is.
var (
	ErrShapeMismatch       = solvererr.ErrShapeMismatch
	ErrPrecisionMismatch   = solvererr.ErrPrecisionMismatch
	ErrLayoutInconsistency = solvererr.ErrLayoutInconsistency
	ErrNoTrainedModel      = solvererr.ErrNoTrainedModel
	ErrMissingPair         = solvererr.ErrMissingPair
	ErrInvalidConfig       = solvererr.ErrInvalidConfig
	ErrClosed              = session.ErrClosed
)

// New creates a session.
func New(cfg Config, opts ...Option) (*Session, error) {
	return session.New(cfg, opts...)
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return session.WithLogger(logger)
}

// WithDevices runs the session on devices, such as cpu.NewSet or webgpu.NewSet.
func WithDevices(devices *DeviceSet) Option {
	return session.WithDevices(devices)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// NewMatrix wraps data as a rows x cols host matrix.
func NewMatrix[T float32 | float64](rows, cols int, order Order, data []T) *Matrix {
	return stager.NewMatrix(rows, cols, order, data)
}

// NewVector wraps data as a host vector.
func NewVector[T float32 | float64](data []T) *Vector {
	return stager.NewVector(data)
}

// Views gives typed access to the records of a path result.
type Views[T float32 | float64] = path.Views[T]

// ViewsOf returns typed views of r.
func ViewsOf[T float32 | float64](r *PathResult) (Views[T], error) {
	return path.ViewsOf[T](r)
}

// Predictions returns the predictions of (row, alpha) of r.
func Predictions[T float32 | float64](r *PredictionResult, row, a int) ([]T, error) {
	return predict.Values[T](r, row, a)
}
