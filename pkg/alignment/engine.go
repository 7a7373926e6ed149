// Package alignment registers the frames of a stack so that a feature
// selected by a region of interest stays in place across the stack.
//
// Three methods are available: 1D and 2D estimation delegated to a shift
// estimator, and a single-axis method that correlates the edges of
// projected profiles to correct drift along one direction only. Every
// automatic method works on a deep copy; the input stack is never
// modified.
package alignment

import (
	"errors"
	"fmt"
	"log/slog"

	"stackalign/pkg/config"
	"stackalign/pkg/registration"
	"stackalign/pkg/stack"
)

// Estimator computes per-frame shifts relative to a reference frame.
type Estimator interface {
	EstimateShift1D(s *stack.Stack, opts registration.Options1D) ([]float64, error)
	EstimateShift2D(s *stack.Stack, opts registration.Options2D) ([]stack.Shift, error)
}

// ROIKind tags the shape of a region of interest. Its value is the
// dimensionality of the region.
type ROIKind int

const (
	// Interval is a 1D region (Left, Right)
	Interval ROIKind = 1
	// Rectangle is a 2D region (Left, Right, Top, Bottom)
	Rectangle ROIKind = 2
)

// ROI is a region of interest in calibrated signal coordinates.
type ROI struct {
	Kind                     ROIKind
	Left, Right, Top, Bottom float64
}

// NewInterval creates a 1D region of interest.
func NewInterval(left, right float64) ROI {
	return ROI{Kind: Interval, Left: left, Right: right}
}

// NewRectangle creates a 2D region of interest.
func NewRectangle(left, right, top, bottom float64) ROI {
	return ROI{Kind: Rectangle, Left: left, Right: right, Top: top, Bottom: bottom}
}

// Dims returns the dimensionality of the region.
func (r ROI) Dims() int {
	return int(r.Kind)
}

func (r ROI) interval() stack.Interval {
	return stack.Interval{Left: r.Left, Right: r.Right}
}

func (r ROI) rect() stack.Rect {
	return stack.Rect{Left: r.Left, Right: r.Right, Top: r.Top, Bottom: r.Bottom}
}

// Result is the outcome of an automatic alignment.
type Result struct {
	// Aligned is the shifted copy of the input stack
	Aligned *stack.Stack

	// Shifts holds the applied (dy, dx) shift of every frame in flattened
	// navigation order. 1D alignments only use DX.
	Shifts []stack.Shift
}

// Engine runs the automatic alignment methods.
type Engine struct {
	cfg       config.AlignConfig
	estimator Estimator
	logger    *slog.Logger
	progress  registration.ProgressCallback
}

// NewEngine creates an alignment engine. A nil logger discards output.
func NewEngine(cfg config.AlignConfig, estimator Estimator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = config.Discard()
	}
	return &Engine{
		cfg:       cfg,
		estimator: estimator,
		logger:    logger,
	}
}

// SetProgressCallback sets a callback that is invoked while shifts are
// estimated.
func (e *Engine) SetProgressCallback(callback registration.ProgressCallback) {
	e.progress = callback
}

func (e *Engine) applyOptions() stack.ApplyOptions {
	return stack.ApplyOptions{Expand: true, FillValue: e.cfg.FillValue}
}

// Align dispatches on the dimensionality of the region. A region whose
// dimensionality differs from the signal's is ignored and (nil, nil) is
// returned.
func (e *Engine) Align(roi ROI, s *stack.Stack) (*Result, error) {
	if s == nil || s.SignalDimension() != roi.Dims() {
		return nil, nil
	}
	switch roi.Kind {
	case Interval:
		return e.Align1D(roi, s)
	case Rectangle:
		return e.Align2D(roi, s)
	default:
		return nil, fmt.Errorf("cannot align signal of %d dimensions", roi.Dims())
	}
}

// Align1D estimates 1D shifts against the current frame within the region
// and applies them to a copy of the stack, expanding the signal so that no
// data is lost.
func (e *Engine) Align1D(roi ROI, s *stack.Stack) (*Result, error) {
	if s.SignalDimension() != 1 {
		return nil, fmt.Errorf("align 1D: signal has %d dimensions: %w", s.SignalDimension(), stack.ErrDimension)
	}

	shifts, err := e.estimator.EstimateShift1D(s, registration.Options1D{
		ROI:                 roi.interval(),
		Reference:           registration.Current,
		InterpolationPoints: e.cfg.InterpolationPoints,
		Progress:            e.progress,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate 1D shifts: %w", err)
	}

	aligned := s.DeepCopy()
	if err := aligned.Align1D(shifts, e.applyOptions()); err != nil {
		return nil, fmt.Errorf("apply 1D shifts: %w", err)
	}

	result := &Result{Aligned: aligned, Shifts: make([]stack.Shift, len(shifts))}
	for i, sh := range shifts {
		result.Shifts[i] = stack.Shift{DX: sh}
	}
	e.logger.Info("aligned 1D stack", "frames", len(shifts), "reference", s.CurrentIndex())
	return result, nil
}

// Align2D estimates 2D shifts against the current frame within the region
// and applies them to a copy of the stack, expanding the signal so that no
// data is lost. Sobel filtering, Hann windowing and the sub-pixel factor
// come from the configuration; an estimator that does not support the
// sub-pixel factor is called again without it.
func (e *Engine) Align2D(roi ROI, s *stack.Stack) (*Result, error) {
	if s.SignalDimension() != 2 {
		return nil, fmt.Errorf("align 2D: signal has %d dimensions: %w", s.SignalDimension(), stack.ErrDimension)
	}

	opts := registration.Options2D{
		ROI:            roi.rect(),
		Reference:      registration.Current,
		Sobel:          e.cfg.Sobel2D,
		Hanning:        e.cfg.Hanning2D,
		NormalizeCorr:  e.cfg.NormalizeCorr,
		SubPixelFactor: e.cfg.SubPixelFactor,
		NumCores:       e.cfg.NumCores,
		Progress:       e.progress,
	}
	shifts, err := e.estimator.EstimateShift2D(s, opts)
	if errors.Is(err, registration.ErrUnsupportedOption) {
		e.logger.Debug("estimator rejected sub-pixel factor, retrying without it",
			"subPixelFactor", opts.SubPixelFactor)
		opts.SubPixelFactor = 0
		shifts, err = e.estimator.EstimateShift2D(s, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("estimate 2D shifts: %w", err)
	}

	aligned := s.DeepCopy()
	if err := aligned.Align2D(shifts, e.applyOptions()); err != nil {
		return nil, fmt.Errorf("apply 2D shifts: %w", err)
	}

	e.logger.Info("aligned 2D stack", "frames", len(shifts), "reference", s.CurrentIndex(),
		"sobel", opts.Sobel, "hanning", opts.Hanning, "subPixelFactor", opts.SubPixelFactor)
	return &Result{Aligned: aligned, Shifts: shifts}, nil
}
