package stack

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// integralTolerance decides when an interpolation position is treated as
// an exact sample.
const integralTolerance = 1e-9

// ApplyOptions controls how shifts are applied to a stack.
type ApplyOptions struct {
	// Crop trims the signal to the region defined in every shifted frame.
	// Ignored when Expand is set.
	Crop bool

	// Expand grows the signal so that no shifted sample is lost.
	Expand bool

	// FillValue is written where a shifted frame has no data.
	FillValue float64
}

// span is the output range of one signal axis after shifting: output
// sample k reads the input at k + start + shift.
type span struct {
	start int
	size  int
}

// placement computes the output span of an axis of n samples for the
// given per-frame shifts. Each frame is moved by -shift.
func placement(shifts []float64, n int, opts ApplyOptions) (span, error) {
	if len(shifts) == 0 {
		return span{0, n}, nil
	}
	lo, hi := floats.Min(shifts), floats.Max(shifts)
	switch {
	case opts.Expand:
		start := int(math.Floor(-hi + integralTolerance))
		end := int(math.Ceil(-lo - integralTolerance))
		return span{start: start, size: n + end - start}, nil
	case opts.Crop:
		start := int(math.Ceil(-lo - integralTolerance))
		last := int(math.Floor(float64(n-1) - hi + integralTolerance))
		if last < start {
			return span{}, fmt.Errorf("shifts in [%g, %g] leave no common region in %d samples", lo, hi, n)
		}
		return span{start: start, size: last - start + 1}, nil
	default:
		return span{0, n}, nil
	}
}

// Align1D shifts every 1D frame by -shifts[i] samples.
//
// Parameters:
//   - shifts: One shift per frame in flattened navigation order
//   - opts: Crop/expand policy and fill value
//
// Returns:
//   - nil on success, ErrDimension for non-1D stacks or ErrShiftCount when
//     the shift count does not match the navigation size
func (s *Stack) Align1D(shifts []float64, opts ApplyOptions) error {
	if s.SignalDimension() != 1 {
		return fmt.Errorf("align1D on %d-dimensional signal: %w", s.SignalDimension(), ErrDimension)
	}
	if len(shifts) != s.NavigationSize() {
		return fmt.Errorf("%d shifts for %d frames: %w", len(shifts), s.NavigationSize(), ErrShiftCount)
	}

	n := s.sigAxes[0].Size
	sp, err := placement(shifts, n, opts)
	if err != nil {
		return err
	}

	out := make([]float64, len(shifts)*sp.size)
	for i, sh := range shifts {
		frame := s.Frame(i)
		dst := out[i*sp.size : (i+1)*sp.size]
		for k := range dst {
			dst[k] = sampleLinear(frame, float64(k+sp.start)+sh, opts.FillValue)
		}
	}

	s.data = out
	s.sigAxes[0].Offset += float64(sp.start) * s.sigAxes[0].Scale
	s.sigAxes[0].Size = sp.size
	return nil
}

// Align2D shifts every 2D frame by (-shifts[i].DY, -shifts[i].DX).
// Sub-pixel shifts are resampled bilinearly.
//
// Parameters:
//   - shifts: One (dy, dx) pair per frame in flattened navigation order
//   - opts: Crop/expand policy and fill value
//
// Returns:
//   - nil on success, ErrDimension for non-2D stacks or ErrShiftCount when
//     the shift count does not match the navigation size
func (s *Stack) Align2D(shifts []Shift, opts ApplyOptions) error {
	if s.SignalDimension() != 2 {
		return fmt.Errorf("align2D on %d-dimensional signal: %w", s.SignalDimension(), ErrDimension)
	}
	if len(shifts) != s.NavigationSize() {
		return fmt.Errorf("%d shifts for %d frames: %w", len(shifts), s.NavigationSize(), ErrShiftCount)
	}

	ny, nx := s.sigAxes[0].Size, s.sigAxes[1].Size
	dys := make([]float64, len(shifts))
	dxs := make([]float64, len(shifts))
	for i, sh := range shifts {
		dys[i], dxs[i] = sh.DY, sh.DX
	}
	spy, err := placement(dys, ny, opts)
	if err != nil {
		return err
	}
	spx, err := placement(dxs, nx, opts)
	if err != nil {
		return err
	}

	frameOut := spy.size * spx.size
	out := make([]float64, len(shifts)*frameOut)
	for i, sh := range shifts {
		frame := s.Frame(i)
		dst := out[i*frameOut : (i+1)*frameOut]
		for yo := 0; yo < spy.size; yo++ {
			sy := float64(yo+spy.start) + sh.DY
			for xo := 0; xo < spx.size; xo++ {
				sx := float64(xo+spx.start) + sh.DX
				dst[yo*spx.size+xo] = sampleBilinear(frame, ny, nx, sy, sx, opts.FillValue)
			}
		}
	}

	s.data = out
	s.sigAxes[0].Offset += float64(spy.start) * s.sigAxes[0].Scale
	s.sigAxes[0].Size = spy.size
	s.sigAxes[1].Offset += float64(spx.start) * s.sigAxes[1].Scale
	s.sigAxes[1].Size = spx.size
	return nil
}

// splitPosition returns the integer part and fraction of an interpolation
// position, snapping near-integers to an exact sample.
func splitPosition(pos float64) (int, float64) {
	r := math.Round(pos)
	if math.Abs(pos-r) < integralTolerance {
		return int(r), 0
	}
	f := math.Floor(pos)
	return int(f), pos - f
}

func sampleLinear(frame []float64, pos, fill float64) float64 {
	n := len(frame)
	i, frac := splitPosition(pos)
	if frac == 0 {
		if i < 0 || i >= n {
			return fill
		}
		return frame[i]
	}
	if i < 0 || i+1 >= n {
		return fill
	}
	return frame[i]*(1-frac) + frame[i+1]*frac
}

func sampleBilinear(frame []float64, ny, nx int, y, x, fill float64) float64 {
	iy, fy := splitPosition(y)
	ix, fx := splitPosition(x)

	y1, x1 := iy, ix
	if fy > 0 {
		y1++
	}
	if fx > 0 {
		x1++
	}
	if iy < 0 || ix < 0 || y1 >= ny || x1 >= nx {
		return fill
	}

	top := frame[iy*nx+ix]*(1-fx) + frame[iy*nx+x1]*fx
	if fy == 0 {
		return top
	}
	bottom := frame[y1*nx+ix]*(1-fx) + frame[y1*nx+x1]*fx
	return top*(1-fy) + bottom*fy
}
