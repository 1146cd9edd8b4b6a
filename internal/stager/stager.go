// Package stager uploads host datasets to a source device and shares the upload across
// compute workers.
package stager

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/device"
	"github.com/born-ml/pathfit/internal/solvererr"
)

// Mode selects which inputs a stage call requires.
type Mode int

// Stage modes.
const (
	// ModeFit requires train features and targets; validation features and targets
	// come as a pair.
	ModeFit Mode = iota
	// ModePredict requires validation features and no training inputs.
	ModePredict
)

// Options configures a Stager.
type Options struct {
	Shared    bool         // One physical upload backs every worker
	Intercept bool         // Append a constant-one feature column
	Workers   int          // Number of compute workers
	Logger    *slog.Logger // Nil discards
}

// Slots are the five input buffers as one worker sees them. Absent inputs are null
// buffers.
type Slots struct {
	Device  device.Device
	TrainX  *buffer.Buffer
	TrainY  *buffer.Buffer
	ValidX  *buffer.Buffer
	ValidY  *buffer.Buffer
	Weights *buffer.Buffer
}

func (s Slots) all() []*buffer.Buffer {
	return []*buffer.Buffer{s.TrainX, s.TrainY, s.ValidX, s.ValidY, s.Weights}
}

// Staged is one uploaded dataset. Its buffers are owned by the Stager that created it.
type Staged struct {
	Source    int
	Precision buffer.DataType
	MTrain    int
	N         int // Column count, including the intercept column when present
	MValid    int
	Intercept bool
	Shared    bool

	Slots // Owning buffers on the source device

	workers  []Slots          // Per-worker views
	replicas []*buffer.Buffer // Owned copies on non-source devices
}

// Buffers returns the five owning buffers in stage order:
// train features, train targets, valid features, valid targets, weights.
func (s *Staged) Buffers() []*buffer.Buffer {
	return s.Slots.all()
}

// Workers returns the number of worker views.
func (s *Staged) Workers() int {
	return len(s.workers)
}

// Worker returns the buffers worker w reads. Views are read-only.
func (s *Staged) Worker(w int) Slots {
	return s.workers[w%len(s.workers)]
}

// Stager owns at most one staged dataset at a time.
type Stager struct {
	devices *device.Set
	opts    Options
	logger  *slog.Logger

	mu   sync.Mutex
	live *Staged
}

// New creates a stager uploading to devices.
func New(devices *device.Set, opts Options) *Stager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stager{devices: devices, opts: opts, logger: logger}
}

// Live returns the currently staged dataset, or nil.
func (s *Stager) Live() *Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// plan is a validated stage request.
type plan struct {
	precision buffer.DataType
	mTrain    int
	n         int
	mValid    int
}

// validate checks ds before anything is allocated.
//
//nolint:gocyclo,cyclop // One linear pass over the boundary rules.
func validate(ds Dataset, mode Mode) (plan, error) {
	const op = "stage"
	var p plan

	switch mode {
	case ModeFit:
		if ds.TrainX == nil || ds.TrainY == nil {
			return p, solvererr.New(solvererr.ErrMissingPair, op, "fit requires train features and train targets")
		}
		if (ds.ValidX == nil) != (ds.ValidY == nil) {
			return p, solvererr.New(solvererr.ErrMissingPair, op, "valid features and valid targets must be given together")
		}
	case ModePredict:
		if ds.TrainX != nil || ds.TrainY != nil {
			return p, solvererr.New(solvererr.ErrMissingPair, op, "predict takes no training inputs")
		}
		if ds.ValidX == nil {
			return p, solvererr.New(solvererr.ErrMissingPair, op, "predict requires valid features")
		}
	}

	// Precision comes from whichever feature matrix is present.
	precisionSet := false
	checkWidth := func(name string, data any) (int, error) {
		width, n, err := elementWidth(data)
		if err != nil {
			return 0, solvererr.New(solvererr.ErrPrecisionMismatch, op, fmt.Sprintf("%s: %v", name, err))
		}
		dt, err := buffer.FromWidth(width)
		if err != nil {
			return 0, solvererr.New(solvererr.ErrPrecisionMismatch, op, fmt.Sprintf("%s: %v", name, err))
		}
		if !precisionSet {
			p.precision = dt
			precisionSet = true
		} else if dt != p.precision {
			return 0, solvererr.New(solvererr.ErrPrecisionMismatch, op,
				fmt.Sprintf("%s is %s but dataset is %s", name, dt, p.precision),
				solvererr.Dim{Name: name + "_width", Value: width},
				solvererr.Dim{Name: "dataset_width", Value: p.precision.Size()})
		}
		return n, nil
	}
	checkMatrix := func(name string, m *Matrix) error {
		n, err := checkWidth(name, m.Data)
		if err != nil {
			return err
		}
		if m.Rows <= 0 || m.Cols <= 0 {
			return solvererr.New(solvererr.ErrShapeMismatch, op, name+" must be non-empty",
				solvererr.Dim{Name: name + "_rows", Value: m.Rows}, solvererr.Dim{Name: name + "_cols", Value: m.Cols})
		}
		if n != m.Rows*m.Cols {
			return solvererr.Shape(op, name+"_elements", n, name+"_rows*cols", m.Rows*m.Cols)
		}
		return nil
	}
	checkVector := func(name string, v *Vector, rowsName string, rows int) error {
		n, err := checkWidth(name, v.Data)
		if err != nil {
			return err
		}
		if n != rows {
			return solvererr.Shape(op, name+"_len", n, rowsName, rows)
		}
		return nil
	}

	p.n = -1
	if ds.TrainX != nil {
		if err := checkMatrix("train_x", ds.TrainX); err != nil {
			return p, err
		}
		p.mTrain, p.n = ds.TrainX.Rows, ds.TrainX.Cols
	}
	if ds.ValidX != nil {
		if err := checkMatrix("valid_x", ds.ValidX); err != nil {
			return p, err
		}
		if p.n >= 0 && ds.ValidX.Cols != p.n {
			return p, solvererr.Shape(op, "train_cols", p.n, "valid_cols", ds.ValidX.Cols)
		}
		p.mValid, p.n = ds.ValidX.Rows, ds.ValidX.Cols
	}
	if ds.TrainY != nil {
		if err := checkVector("train_y", ds.TrainY, "train_rows", p.mTrain); err != nil {
			return p, err
		}
	}
	if ds.ValidY != nil {
		if err := checkVector("valid_y", ds.ValidY, "valid_rows", p.mValid); err != nil {
			return p, err
		}
	}
	if ds.Weights != nil {
		rowsName, rows := "train_rows", p.mTrain
		if mode == ModePredict {
			rowsName, rows = "valid_rows", p.mValid
		}
		if err := checkVector("weights", ds.Weights, rowsName, rows); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Stage validates ds, releases any live dataset and uploads ds to the source device.
// Validation failures return before anything is allocated or released.
func (s *Stager) Stage(source int, ds Dataset, mode Mode) (*Staged, error) {
	p, err := validate(ds, mode)
	if err != nil {
		return nil, err
	}
	src, err := s.devices.Get(source)
	if err != nil {
		return nil, solvererr.Config("stage", "%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live != nil {
		if err := s.releaseLocked(); err != nil {
			return nil, fmt.Errorf("stage: release previous dataset: %w", err)
		}
	}

	var staged *Staged
	if p.precision == buffer.Float32 {
		staged, err = upload[float32](src, ds, p, s.opts.Intercept)
	} else {
		staged, err = upload[float64](src, ds, p, s.opts.Intercept)
	}
	if err != nil {
		return nil, err
	}
	staged.Source = source
	staged.Shared = s.opts.Shared

	if err := s.fanOut(staged); err != nil {
		_ = freeAll(staged)
		return nil, err
	}
	s.live = staged

	s.logger.Info("staged dataset",
		"op", "stage",
		"source", source,
		"precision", staged.Precision.String(),
		"train_rows", staged.MTrain,
		"valid_rows", staged.MValid,
		"cols", staged.N,
		"shared", staged.Shared,
		"workers", staged.Workers(),
	)
	return staged, nil
}

// upload copies every provided input to src. On failure nothing stays allocated.
func upload[T buffer.Float](src device.Device, ds Dataset, p plan, intercept bool) (*Staged, error) {
	n := p.n
	if intercept {
		n++
	}
	st := &Staged{
		Precision: p.precision,
		MTrain:    p.mTrain,
		N:         n,
		MValid:    p.mValid,
		Intercept: intercept,
	}
	st.Device = src
	st.TrainX = buffer.Null(p.precision)
	st.TrainY = buffer.Null(p.precision)
	st.ValidX = buffer.Null(p.precision)
	st.ValidY = buffer.Null(p.precision)
	st.Weights = buffer.Null(p.precision)

	var err error
	fail := func(name string, e error) (*Staged, error) {
		_ = freeAll(st)
		return nil, fmt.Errorf("stage: upload %s: %w", name, e)
	}
	if ds.TrainX != nil {
		if st.TrainX, err = buffer.FromSlice(src, withIntercept[T](ds.TrainX, intercept), buffer.Shape{p.mTrain, n}, ds.TrainX.Order); err != nil {
			return fail("train_x", err)
		}
	}
	if ds.TrainY != nil {
		if st.TrainY, err = buffer.FromSlice(src, ds.TrainY.Data.([]T), buffer.Shape{p.mTrain}, buffer.RowMajor); err != nil {
			return fail("train_y", err)
		}
	}
	if ds.ValidX != nil {
		if st.ValidX, err = buffer.FromSlice(src, withIntercept[T](ds.ValidX, intercept), buffer.Shape{p.mValid, n}, ds.ValidX.Order); err != nil {
			return fail("valid_x", err)
		}
	}
	if ds.ValidY != nil {
		if st.ValidY, err = buffer.FromSlice(src, ds.ValidY.Data.([]T), buffer.Shape{p.mValid}, buffer.RowMajor); err != nil {
			return fail("valid_y", err)
		}
	}
	if ds.Weights != nil {
		w := ds.Weights.Data.([]T)
		if st.Weights, err = buffer.FromSlice(src, w, buffer.Shape{len(w)}, buffer.RowMajor); err != nil {
			return fail("weights", err)
		}
	}
	return st, nil
}

// fanOut builds the per-worker views. Shared mode hands every worker a non-owning
// reference to the source upload; otherwise each worker device gets one replica.
func (s *Stager) fanOut(st *Staged) error {
	replicas := make(map[int]Slots)
	st.workers = make([]Slots, s.opts.Workers)
	for w := range st.workers {
		dev := s.devices.ForWorker(st.Source, w)
		if s.opts.Shared || dev.Index() == st.Source {
			st.workers[w] = share(st.Slots, dev)
			continue
		}
		r, ok := replicas[dev.Index()]
		if !ok {
			var err error
			if r, err = s.replicate(st, dev); err != nil {
				return err
			}
			replicas[dev.Index()] = r
		}
		st.workers[w] = share(r, dev)
	}
	return nil
}

func share(src Slots, dev device.Device) Slots {
	return Slots{
		Device:  dev,
		TrainX:  src.TrainX.Share(),
		TrainY:  src.TrainY.Share(),
		ValidX:  src.ValidX.Share(),
		ValidY:  src.ValidY.Share(),
		Weights: src.Weights.Share(),
	}
}

func (s *Stager) replicate(st *Staged, dev device.Device) (Slots, error) {
	out := Slots{Device: dev}
	dst := []**buffer.Buffer{&out.TrainX, &out.TrainY, &out.ValidX, &out.ValidY, &out.Weights}
	for i, b := range st.Buffers() {
		r, err := b.CopyTo(dev)
		if err != nil {
			return Slots{}, fmt.Errorf("stage: replicate to %s: %w", dev.Name(), err)
		}
		*dst[i] = r
		if !r.IsNull() {
			st.replicas = append(st.replicas, r)
		}
	}
	return out, nil
}

// freeAll drops worker views, replicas and owned buffers of st.
func freeAll(st *Staged) error {
	for _, w := range st.workers {
		for _, b := range w.all() {
			b.Release()
		}
	}
	st.workers = nil
	var errs []error
	for _, r := range st.replicas {
		if err := r.Free(); err != nil && !errors.Is(err, buffer.ErrFreed) {
			errs = append(errs, err)
		}
	}
	st.replicas = nil
	for _, b := range st.Buffers() {
		if b == nil {
			continue
		}
		if err := b.Free(); err != nil && !errors.Is(err, buffer.ErrFreed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Release frees the live dataset (phase 1). It is a no-op when nothing is staged.
func (s *Stager) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

func (s *Stager) releaseLocked() error {
	if s.live == nil {
		return nil
	}
	err := freeAll(s.live)
	s.live = nil
	s.logger.Debug("released staged dataset", "op", "release", "phase", 1)
	return err
}
