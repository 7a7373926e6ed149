package alignment

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"stackalign/pkg/stack"
)

// Axis selects the direction corrected by AlignAlongAxis.
type Axis int

const (
	// Horizontal corrects shifts along X; Y is left untouched
	Horizontal Axis = iota
	// Vertical corrects shifts along Y; X is left untouched
	Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// AlignAlongAxis registers the stack along a single axis by correlating
// the edges of projected profiles.
//
// The region of every frame is summed along the orthogonal axis into a
// profile, giving one row per frame (navigation dimensions flattened). Rows
// are smoothed with a moving average of SmoothAmount samples and
// differentiated, so that frames are matched on their edges rather than on
// absolute intensity. Each row is then correlated against the row of the
// current frame, padded by half its length with edge values, and the lag
// of the correlation maximum gives the shift. Shifts larger than half the
// profile length cannot be detected.
//
// The orthogonal shift component is always zero. The shifts are applied
// to a copy of the original stack without cropping and with expansion.
//
// Parameters:
//   - roi: A rectangle in calibrated signal coordinates
//   - s: A stack with two signal dimensions
//   - axis: The direction to correct
//
// Returns:
//   - The aligned copy and the applied shifts
func (e *Engine) AlignAlongAxis(roi ROI, s *stack.Stack, axis Axis) (*Result, error) {
	if s.SignalDimension() != 2 {
		return nil, fmt.Errorf("align %s: signal has %d dimensions: %w", axis, s.SignalDimension(), stack.ErrDimension)
	}
	if roi.Kind != Rectangle {
		return nil, fmt.Errorf("align %s: need a rectangle, got a %d-dimensional region", axis, roi.Dims())
	}
	yr, xr, err := roi.rect().Indices(s)
	if err != nil {
		return nil, fmt.Errorf("align %s: %w", axis, err)
	}

	n := s.NavigationSize()
	length := xr.Len()
	if axis == Vertical {
		length = yr.Len()
	}
	profiles := mat.NewDense(n, length, nil)
	for i := 0; i < n; i++ {
		project(s.Crop2D(i, yr, xr), yr.Len(), xr.Len(), axis, profiles.RawRowView(i))
	}

	ref := s.CurrentIndex()
	found := AxisShifts(profiles, ref, e.cfg.SmoothAmount)

	shifts := make([]stack.Shift, n)
	for i, d := range found {
		if axis == Vertical {
			shifts[i].DY = d
		} else {
			shifts[i].DX = d
		}
	}

	aligned := s.DeepCopy()
	opts := stack.ApplyOptions{Crop: false, Expand: true, FillValue: e.cfg.FillValue}
	if err := aligned.Align2D(shifts, opts); err != nil {
		return nil, fmt.Errorf("apply %s shifts: %w", axis, err)
	}

	e.logger.Info("aligned stack along axis", "axis", axis.String(), "frames", n,
		"reference", ref, "profileLength", length, "smooth", e.cfg.SmoothAmount)
	return &Result{Aligned: aligned, Shifts: shifts}, nil
}

// project sums a row-major ny x nx image along the axis orthogonal to the
// alignment axis into dst.
func project(img []float64, ny, nx int, axis Axis, dst []float64) {
	if axis == Vertical {
		for y := 0; y < ny; y++ {
			dst[y] = floats.Sum(img[y*nx : (y+1)*nx])
		}
		return
	}
	for x := range dst[:nx] {
		dst[x] = 0
	}
	for y := 0; y < ny; y++ {
		floats.Add(dst[:nx], img[y*nx:(y+1)*nx])
	}
}

// AxisShifts returns the shift of every profile row relative to row ref.
//
// Rows are smoothed with a moving average of window samples (clamped to
// the row length) and differentiated. The reference row is padded by half
// its length on each side and correlated (valid mode) with every other row;
// the first correlation maximum, minus the padding, is the detected lag and
// its negation the shift. The reference row always gets zero.
func AxisShifts(profiles *mat.Dense, ref, window int) []float64 {
	n, length := profiles.Dims()
	shifts := make([]float64, n)

	window = min(max(window, 1), length)
	m := length - window
	if m < 1 {
		return shifts
	}

	edges := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		copy(edges.RawRowView(i), Diff(Smooth(profiles.RawRowView(i), window)))
	}

	half := m / 2
	padded := PadEdge(edges.RawRowView(ref), half)
	for i := 0; i < n; i++ {
		if i == ref {
			continue
		}
		corr := CorrelateValid(padded, edges.RawRowView(i))
		lag := floats.MaxIdx(corr) - half
		shifts[i] = -float64(lag)
	}
	return shifts
}

// Smooth applies a moving average of window samples, keeping only the
// positions where the window fits entirely (len(y)-window+1 values).
func Smooth(y []float64, window int) []float64 {
	if window < 1 || window > len(y) {
		return nil
	}
	cum := make([]float64, len(y)+1)
	floats.CumSum(cum[1:], y)
	out := make([]float64, len(y)-window+1)
	for i := range out {
		out[i] = (cum[i+window] - cum[i]) / float64(window)
	}
	return out
}

// Diff returns the first difference y[i+1] - y[i].
func Diff(y []float64) []float64 {
	if len(y) < 2 {
		return nil
	}
	out := make([]float64, len(y)-1)
	floats.SubTo(out, y[1:], y[:len(y)-1])
	return out
}

// PadEdge extends y by pad copies of its first and last values.
func PadEdge(y []float64, pad int) []float64 {
	out := make([]float64, len(y)+2*pad)
	copy(out[pad:], y)
	if len(y) == 0 {
		return out
	}
	for i := 0; i < pad; i++ {
		out[i] = y[0]
		out[len(out)-1-i] = y[len(y)-1]
	}
	return out
}

// CorrelateValid returns c[k] = sum(a[n+k] * v[n]) for every k where v
// fits entirely inside a (len(a)-len(v)+1 values).
func CorrelateValid(a, v []float64) []float64 {
	if len(v) == 0 || len(v) > len(a) {
		return nil
	}
	out := make([]float64, len(a)-len(v)+1)
	for k := range out {
		out[k] = floats.Dot(a[k:k+len(v)], v)
	}
	return out
}
