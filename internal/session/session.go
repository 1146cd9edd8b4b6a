// Package session orchestrates staging, path fitting and prediction, and owns every
// buffer they produce until an explicit teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/born-ml/pathfit/internal/config"
	"github.com/born-ml/pathfit/internal/device"
	"github.com/born-ml/pathfit/internal/device/cpu"
	"github.com/born-ml/pathfit/internal/device/webgpu"
	"github.com/born-ml/pathfit/internal/path"
	"github.com/born-ml/pathfit/internal/predict"
	"github.com/born-ml/pathfit/internal/serialization"
	"github.com/born-ml/pathfit/internal/solvererr"
	"github.com/born-ml/pathfit/internal/stager"
	"github.com/google/uuid"
)

// Phase is a set of live resource groups. Each group is released by its own teardown
// phase.
type Phase uint8

// Resource groups.
const (
	// PhaseInputs marks a live staged dataset (released by phase 1).
	PhaseInputs Phase = 1 << iota
	// PhasePath marks a live path result (released by phase 2).
	PhasePath
	// PhasePredictions marks live prediction results (released by phase 3).
	PhasePredictions
)

// String lists the live groups.
func (p Phase) String() string {
	var names []string
	if p&PhaseInputs != 0 {
		names = append(names, "inputs")
	}
	if p&PhasePath != 0 {
		names = append(names, "path")
	}
	if p&PhasePredictions != 0 {
		names = append(names, "predictions")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ErrClosed is returned by every operation on a closed session.
var ErrClosed = errors.New("session closed")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithDevices runs the session on an existing device set. The session does not close
// devices it did not open.
func WithDevices(set *device.Set) Option {
	return func(s *Session) {
		s.devices = set
	}
}

// Session is one solver session: a staged dataset, the last fitted path and every
// prediction made since the last phase-3 teardown. Methods are safe for concurrent use
// and run one at a time.
type Session struct {
	id          uuid.UUID
	cfg         config.Config
	logger      *slog.Logger
	devices     *device.Set
	ownsDevices bool

	stager    *stager.Stager
	paths     *path.Engine
	predictor *predict.Engine

	mu          sync.Mutex
	live        Phase
	staged      *stager.Staged
	model       *path.Result
	predictions []*predict.Result
	closed      bool
}

// New creates a session. Devices are opened from cfg unless WithDevices is given.
func New(cfg config.Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{id: uuid.New(), cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("session", s.id.String())

	if s.devices == nil {
		set, err := openDevices(cfg)
		if err != nil {
			return nil, err
		}
		s.devices = set
		s.ownsDevices = true
	}
	if cfg.SourceDevice >= s.devices.Len() {
		if s.ownsDevices {
			_ = s.devices.Close()
		}
		return nil, solvererr.Config("session", "source_device %d outside [0, %d)", cfg.SourceDevice, s.devices.Len())
	}

	s.stager = stager.New(s.devices, stager.Options{
		Shared:    cfg.SharedData,
		Intercept: cfg.Intercept,
		Workers:   cfg.WorkerCount(),
		Logger:    s.logger,
	})
	s.paths = path.NewEngine(cfg, s.logger)
	s.predictor = predict.NewEngine(s.logger)

	s.logger.Info("session opened",
		"devices", s.devices.Len(),
		"device_kind", cfg.DeviceKind,
		"workers", cfg.WorkerCount(),
		"shared", cfg.SharedData,
	)
	return s, nil
}

func openDevices(cfg config.Config) (*device.Set, error) {
	kind, err := device.ParseKind(cfg.DeviceKind)
	if err != nil {
		return nil, solvererr.Config("session", "%v", err)
	}
	switch kind {
	case device.WebGPU:
		set, err := webgpu.NewSet(cfg.Devices)
		if err != nil {
			return nil, fmt.Errorf("open webgpu devices: %w", err)
		}
		return set, nil
	default:
		return cpu.NewSet(cfg.Devices)
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Config returns the session configuration.
func (s *Session) Config() config.Config {
	return s.cfg
}

// Devices returns the device set the session runs on.
func (s *Session) Devices() *device.Set {
	return s.devices
}

// Live returns the resource groups currently held.
func (s *Session) Live() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Model returns the last fitted or loaded path, or nil.
func (s *Session) Model() *path.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Staged returns the live staged dataset, or nil.
func (s *Session) Staged() *stager.Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

// Predictions returns every prediction made since the last phase-3 teardown, oldest
// first.
func (s *Session) Predictions() []*predict.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*predict.Result(nil), s.predictions...)
}

// Stage uploads a fit dataset, releasing any live dataset first. On a validation
// failure the live dataset is left untouched.
func (s *Session) Stage(ds stager.Dataset) (*stager.Staged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.stageLocked(ds, stager.ModeFit)
}

func (s *Session) stageLocked(ds stager.Dataset, mode stager.Mode) (*stager.Staged, error) {
	st, err := s.stager.Stage(s.cfg.SourceDevice, ds, mode)
	if err != nil {
		if s.stager.Live() == nil {
			s.staged = nil
			s.live &^= PhaseInputs
		}
		return nil, err
	}
	s.staged = st
	s.live |= PhaseInputs
	return st, nil
}

// FitStaged fits a path on the live staged dataset. A previous path is released
// (phase 2) before fitting.
func (s *Session) FitStaged(ctx context.Context, givefullpath bool) (*path.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.fitLocked(ctx, givefullpath)
}

func (s *Session) fitLocked(ctx context.Context, givefullpath bool) (*path.Result, error) {
	if s.staged == nil || s.staged.TrainX.IsNull() {
		return nil, solvererr.New(solvererr.ErrMissingPair, "fit", "stage training data first")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.releasePathLocked(); err != nil {
		return nil, err
	}
	model, err := s.paths.Fit(ctx, path.ProblemOf(s.staged), s.staged, givefullpath)
	if err != nil {
		return nil, err
	}
	s.model = model
	s.live |= PhasePath
	return model, nil
}

// Fit stages ds and fits a path on it.
func (s *Session) Fit(ctx context.Context, ds stager.Dataset, givefullpath bool) (*path.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.stageLocked(ds, stager.ModeFit); err != nil {
		return nil, err
	}
	return s.fitLocked(ctx, givefullpath)
}

// Predict stages validX (and optional weights) and predicts from the current model.
// Staging replaces the live dataset. The result stays owned by the session until
// ReleasePredictions.
func (s *Session) Predict(ctx context.Context, validX *stager.Matrix, weights *stager.Vector, givefullpath bool) (*predict.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkModelLocked(givefullpath); err != nil {
		return nil, err
	}
	st, err := s.stageLocked(stager.Dataset{ValidX: validX, Weights: weights}, stager.ModePredict)
	if err != nil {
		return nil, err
	}
	return s.predictLocked(st, givefullpath)
}

// FitPredict fits a path on ds and predicts its validation rows with the new model.
// It returns the prediction it computed.
func (s *Session) FitPredict(ctx context.Context, ds stager.Dataset, givefullpath bool) (*path.Result, *predict.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if ds.ValidX == nil {
		return nil, nil, solvererr.New(solvererr.ErrMissingPair, "fit_predict", "valid features required")
	}
	if _, err := s.stageLocked(ds, stager.ModeFit); err != nil {
		return nil, nil, err
	}
	model, err := s.fitLocked(ctx, givefullpath)
	if err != nil {
		return nil, nil, err
	}
	pred, err := s.predictLocked(s.staged, givefullpath)
	if err != nil {
		return model, nil, err
	}
	return model, pred, nil
}

func (s *Session) checkModelLocked(givefullpath bool) error {
	if s.model == nil {
		return solvererr.New(solvererr.ErrNoTrainedModel, "predict", "fit or load a path first")
	}
	if givefullpath && !s.model.Full() {
		return solvererr.New(solvererr.ErrNoTrainedModel, "predict", "full-path predictions need a full-path model")
	}
	return nil
}

func (s *Session) predictLocked(st *stager.Staged, givefullpath bool) (*predict.Result, error) {
	res, err := s.predictor.Predict(s.model, st, givefullpath)
	if err != nil {
		return nil, err
	}
	s.predictions = append(s.predictions, res)
	s.live |= PhasePredictions
	return res, nil
}

// ReleaseInputs frees the staged dataset (phase 1). Repeated calls do nothing.
func (s *Session) ReleaseInputs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseInputsLocked()
}

func (s *Session) releaseInputsLocked() error {
	if s.live&PhaseInputs == 0 {
		return nil
	}
	err := s.stager.Release()
	s.staged = nil
	s.live &^= PhaseInputs
	return err
}

// ReleasePathResult frees the path result (phase 2). Repeated calls do nothing.
func (s *Session) ReleasePathResult() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releasePathLocked()
}

func (s *Session) releasePathLocked() error {
	if s.live&PhasePath == 0 {
		return nil
	}
	err := s.model.Free()
	s.model = nil
	s.live &^= PhasePath
	s.logger.Debug("released path result", "op", "release", "phase", 2)
	return err
}

// ReleasePredictions frees every prediction result (phase 3). Repeated calls do
// nothing.
func (s *Session) ReleasePredictions() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releasePredictionsLocked()
}

func (s *Session) releasePredictionsLocked() error {
	if s.live&PhasePredictions == 0 {
		return nil
	}
	var errs []error
	for _, p := range s.predictions {
		if err := p.Free(); err != nil {
			errs = append(errs, err)
		}
	}
	n := len(s.predictions)
	s.predictions = nil
	s.live &^= PhasePredictions
	s.logger.Debug("released predictions", "op", "release", "phase", 3, "count", n)
	return errors.Join(errs...)
}

// Close runs teardown phases 1, 2 and 3 in order and closes devices the session
// opened. Closing twice does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	errs := []error{
		s.releaseInputsLocked(),
		s.releasePathLocked(),
		s.releasePredictionsLocked(),
	}
	if s.ownsDevices {
		errs = append(errs, s.devices.Close())
	}
	s.logger.Info("session closed")
	return errors.Join(errs...)
}

// SaveModel writes the current path to filename in .enp format.
func (s *Session) SaveModel(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return solvererr.New(solvererr.ErrNoTrainedModel, "save", "fit or load a path first")
	}
	meta := serialization.Meta{
		Session:     s.id.String(),
		Intercept:   s.cfg.Intercept,
		Standardize: s.cfg.Standardize,
	}
	if err := serialization.Save(filename, s.model, meta, serialization.WriteOptions{Compress: s.cfg.CompressModels}); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	s.logger.Info("saved model", "op", "save", "file", filename, "compressed", s.cfg.CompressModels)
	return nil
}

// LoadModel replaces the current path (phase 2) with one read from filename. The model
// must have been fitted with the same intercept setting as this session.
func (s *Session) LoadModel(filename string) (*path.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	src, err := s.devices.Get(s.cfg.SourceDevice)
	if err != nil {
		return nil, err
	}
	model, header, err := serialization.Load(filename, src, serialization.ReaderOptions{})
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if header.Intercept != s.cfg.Intercept {
		_ = model.Free()
		return nil, solvererr.Config("load", "model intercept=%v but session intercept=%v", header.Intercept, s.cfg.Intercept)
	}
	if err := s.releasePathLocked(); err != nil {
		_ = model.Free()
		return nil, err
	}
	s.model = model
	s.live |= PhasePath
	s.logger.Info("loaded model", "op", "load", "file", filename, "fitted_by", header.Session)
	return model, nil
}
