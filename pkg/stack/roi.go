package stack

import "fmt"

// Interval is a 1D region in calibrated signal coordinates.
type Interval struct {
	Left, Right float64
}

// Rect is a 2D region in calibrated signal coordinates. Left/Right run
// along X, Top/Bottom along Y.
type Rect struct {
	Left, Right, Top, Bottom float64
}

// IndexRange is a half-open sample range [Start, End).
type IndexRange struct {
	Start, End int
}

// Len returns the number of samples in the range.
func (r IndexRange) Len() int {
	return r.End - r.Start
}

// Indices maps the interval onto the X signal axis of s.
func (iv Interval) Indices(s *Stack) (IndexRange, error) {
	return axisRange(s.SignalAxis(0), iv.Left, iv.Right)
}

// Indices maps the rectangle onto the signal axes of s, returning the Y
// and X ranges.
func (r Rect) Indices(s *Stack) (IndexRange, IndexRange, error) {
	if s.SignalDimension() < 2 {
		return IndexRange{}, IndexRange{}, fmt.Errorf("rectangle on %d-dimensional signal: %w", s.SignalDimension(), ErrDimension)
	}
	xr, err := axisRange(s.SignalAxis(0), r.Left, r.Right)
	if err != nil {
		return IndexRange{}, IndexRange{}, err
	}
	yr, err := axisRange(s.SignalAxis(1), r.Top, r.Bottom)
	if err != nil {
		return IndexRange{}, IndexRange{}, err
	}
	return yr, xr, nil
}

func axisRange(a Axis, lo, hi float64) (IndexRange, error) {
	if hi < lo {
		lo, hi = hi, lo
	}
	r := IndexRange{Start: a.ValueToIndex(lo), End: a.ValueToIndex(hi)}
	if r.Len() <= 0 {
		return r, fmt.Errorf("region [%g, %g] selects no samples on axis %q", lo, hi, a.Name)
	}
	return r, nil
}

// Crop2D returns the sub-image [yr, xr) of frame i as a new row-major
// slice.
func (s *Stack) Crop2D(i int, yr, xr IndexRange) []float64 {
	nx := s.sigAxes[1].Size
	frame := s.Frame(i)
	out := make([]float64, 0, yr.Len()*xr.Len())
	for y := yr.Start; y < yr.End; y++ {
		out = append(out, frame[y*nx+xr.Start:y*nx+xr.End]...)
	}
	return out
}

// Crop1D returns the samples [r) of 1D frame i as a new slice.
func (s *Stack) Crop1D(i int, r IndexRange) []float64 {
	out := make([]float64, r.Len())
	copy(out, s.Frame(i)[r.Start:r.End])
	return out
}
