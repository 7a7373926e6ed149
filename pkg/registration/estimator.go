// Package registration estimates per-frame shifts of a stack relative to a
// reference frame. 1D signals are registered by cross-correlation of
// upsampled profiles, 2D signals by FFT cross-correlation with optional
// Sobel filtering, Hann apodization and sub-pixel refinement.
package registration

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"stackalign/pkg/stack"
)

// Current selects the frame at the stack's current navigation index as
// the reference.
const Current = -1

// ErrUnsupportedOption is returned by estimators that do not implement an
// optional parameter. Callers may retry without it.
var ErrUnsupportedOption = errors.New("unsupported estimator option")

// ProgressCallback receives progress updates while frames are registered.
type ProgressCallback func(completed, total int, message string)

// Options1D configures 1D shift estimation.
type Options1D struct {
	// ROI restricts the correlation to a calibrated interval
	ROI stack.Interval

	// Reference is a flat frame index or Current
	Reference int

	// InterpolationPoints upsamples profiles for sub-sample shifts
	InterpolationPoints int

	// MaxShift bounds the searched lag in samples; 0 means half the ROI
	MaxShift int

	Progress ProgressCallback
}

// Options2D configures 2D shift estimation.
type Options2D struct {
	// ROI restricts the correlation to a calibrated rectangle
	ROI stack.Rect

	// Reference is a flat frame index or Current
	Reference int

	// Sobel correlates edge magnitudes instead of intensities
	Sobel bool

	// Hanning apodizes the region with a 2D Hann window
	Hanning bool

	// NormalizeCorr whitens the cross-power spectrum (phase correlation)
	NormalizeCorr bool

	// SubPixelFactor refines the peak on a 1/SubPixelFactor grid; values
	// <= 1 keep whole-pixel shifts
	SubPixelFactor int

	// NumCores is the number of frames registered in parallel
	NumCores int

	Progress ProgressCallback
}

// Estimator is the shift estimator backing the alignment engine.
type Estimator struct{}

// NewEstimator creates a shift estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func resolveReference(s *stack.Stack, ref int) (int, error) {
	if ref == Current {
		return s.CurrentIndex(), nil
	}
	if ref < 0 || ref >= s.NavigationSize() {
		return 0, fmt.Errorf("reference frame %d out of range [0, %d)", ref, s.NavigationSize())
	}
	return ref, nil
}

func (p ProgressCallback) report(completed, total int, message string) {
	if p != nil {
		p(completed, total, message)
	}
}

// EstimateShift1D returns, for every frame, the displacement in samples of
// the ROI content relative to the reference frame.
//
// Parameters:
//   - s: A stack with one signal dimension
//   - opts: ROI, reference and interpolation settings
//
// Returns:
//   - One shift per frame in flattened navigation order
func (e *Estimator) EstimateShift1D(s *stack.Stack, opts Options1D) ([]float64, error) {
	if s.SignalDimension() != 1 {
		return nil, fmt.Errorf("estimate shift 1D on %d-dimensional signal: %w", s.SignalDimension(), stack.ErrDimension)
	}
	ref, err := resolveReference(s, opts.Reference)
	if err != nil {
		return nil, err
	}
	r, err := opts.ROI.Indices(s)
	if err != nil {
		return nil, err
	}
	if r.Len() < 2 {
		return nil, fmt.Errorf("ROI of %d samples is too short to correlate", r.Len())
	}

	ip := opts.InterpolationPoints
	if ip < 1 {
		ip = 1
	}
	maxShift := opts.MaxShift
	if maxShift <= 0 {
		maxShift = r.Len() / 2
	}
	maxLag := maxShift * ip

	reference := centered(upsample(s.Crop1D(ref, r), ip))

	n := s.NavigationSize()
	shifts := make([]float64, n)
	for i := 0; i < n; i++ {
		if i != ref {
			profile := centered(upsample(s.Crop1D(i, r), ip))
			shifts[i] = float64(bestLag(reference, profile, maxLag)) / float64(ip)
		}
		opts.Progress.report(i+1, n, "estimating 1D shifts")
	}
	return shifts, nil
}

// upsample linearly interpolates ip-1 points between neighbouring samples
func upsample(profile []float64, ip int) []float64 {
	if ip == 1 {
		return profile
	}
	out := make([]float64, (len(profile)-1)*ip+1)
	for i := range out {
		k, frac := i/ip, float64(i%ip)/float64(ip)
		if frac == 0 {
			out[i] = profile[k]
			continue
		}
		out[i] = profile[k]*(1-frac) + profile[k+1]*frac
	}
	return out
}

// centered returns the profile with its mean removed
func centered(profile []float64) []float64 {
	out := make([]float64, len(profile))
	copy(out, profile)
	floats.AddConst(-stat.Mean(profile, nil), out)
	return out
}

// bestLag returns the lag d in [-maxLag, maxLag] maximizing
// sum(ref[n] * sig[n+d]). Ties resolve to the lowest lag.
func bestLag(ref, sig []float64, maxLag int) int {
	n := len(ref)
	if maxLag > n-1 {
		maxLag = n - 1
	}
	corr := make([]float64, 2*maxLag+1)
	for d := -maxLag; d <= maxLag; d++ {
		lo, hi := 0, n
		if d > 0 {
			hi = n - d
		} else {
			lo = -d
		}
		corr[d+maxLag] = floats.Dot(ref[lo:hi], sig[lo+d:hi+d])
	}
	return floats.MaxIdx(corr) - maxLag
}

// EstimateShift2D returns, for every frame, the (dy, dx) displacement of
// the ROI content relative to the reference frame.
//
// The region of every frame is optionally Sobel filtered and Hann
// windowed, then cross-correlated with the reference through the FFT. The
// integer peak is refined on a 1/SubPixelFactor grid by evaluating the
// inverse DFT around it.
//
// Parameters:
//   - s: A stack with two signal dimensions
//   - opts: ROI, reference, preprocessing and refinement settings
//
// Returns:
//   - One shift per frame in flattened navigation order
func (e *Estimator) EstimateShift2D(s *stack.Stack, opts Options2D) ([]stack.Shift, error) {
	if s.SignalDimension() != 2 {
		return nil, fmt.Errorf("estimate shift 2D on %d-dimensional signal: %w", s.SignalDimension(), stack.ErrDimension)
	}
	ref, err := resolveReference(s, opts.Reference)
	if err != nil {
		return nil, err
	}
	yr, xr, err := opts.ROI.Indices(s)
	if err != nil {
		return nil, err
	}
	ny, nx := yr.Len(), xr.Len()

	var apodization []float64
	if opts.Hanning {
		apodization = hannWindow2D(ny, nx)
	}
	prepare := func(i int) []complex128 {
		img := s.Crop2D(i, yr, xr)
		if opts.Sobel {
			img = sobel(img, ny, nx)
		}
		if apodization != nil {
			// a non-zero background would correlate the window with itself
			floats.AddConst(-stat.Mean(img, nil), img)
			floats.Mul(img, apodization)
		}
		return fft2D(toComplex(img), ny, nx, false)
	}

	refSpectrum := prepare(ref)
	n := s.NavigationSize()
	shifts := make([]stack.Shift, n)

	var (
		mu        sync.Mutex
		completed int
	)
	done := func() {
		mu.Lock()
		defer mu.Unlock()
		completed++
		opts.Progress.report(completed, n, "estimating 2D shifts")
	}

	// Divide the frames among the cores
	numCores := min(max(opts.NumCores, 1), n)
	framesPerCore := (n + numCores - 1) / numCores

	var wg sync.WaitGroup
	for c := 0; c < numCores; c++ {
		start := c * framesPerCore
		end := min(start+framesPerCore, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			cross := make([]complex128, ny*nx)
			corr := make([]float64, ny*nx)
			for i := start; i < end; i++ {
				if i != ref {
					shifts[i] = crossCorrelate(prepare(i), refSpectrum, cross, corr, ny, nx, opts)
				}
				done()
			}
		}(start, end)
	}
	wg.Wait()
	return shifts, nil
}

// crossCorrelate locates the peak of the cross-correlation of a frame
// spectrum with the reference spectrum. cross and corr are scratch buffers.
func crossCorrelate(spectrum, refSpectrum, cross []complex128, corr []float64, ny, nx int, opts Options2D) stack.Shift {
	for k := range cross {
		c := spectrum[k] * cmplx.Conj(refSpectrum[k])
		if opts.NormalizeCorr {
			if m := cmplx.Abs(c); m > 0 {
				c /= complex(m, 0)
			}
		}
		cross[k] = c
	}
	for k, v := range fft2D(cross, ny, nx, true) {
		corr[k] = real(v)
	}

	peak := floats.MaxIdx(corr)
	dy := float64(signedIndex(peak/nx, ny))
	dx := float64(signedIndex(peak%nx, nx))
	if opts.SubPixelFactor > 1 {
		dy, dx = refinePeak(cross, ny, nx, dy, dx, opts.SubPixelFactor)
	}
	return stack.Shift{DY: dy, DX: dx}
}

// refinePeak evaluates the cross-correlation on a grid of spacing 1/factor
// within 0.75 samples of the integer peak, using the DFT directly, and
// returns the position of the maximum.
func refinePeak(cross []complex128, ny, nx int, py, px float64, factor int) (float64, float64) {
	half := int(math.Floor(0.75 * float64(factor)))
	steps := 2*half + 1

	offset := func(j int) float64 { return float64(j-half) / float64(factor) }

	// kernels[j][l] = exp(2πi·f(l)·pos_j/n) for candidate positions pos_j
	kernels := func(center float64, n int) [][]complex128 {
		out := make([][]complex128, steps)
		for j := range out {
			pos := center + offset(j)
			out[j] = make([]complex128, n)
			for l := 0; l < n; l++ {
				phase := 2 * math.Pi * float64(signedIndex(l, n)) * pos / float64(n)
				out[j][l] = cmplx.Exp(complex(0, phase))
			}
		}
		return out
	}
	kx := kernels(px, nx)
	ky := kernels(py, ny)

	// inner[k][jx] = Σ_l cross[k,l]·kx[jx][l]
	inner := make([][]complex128, ny)
	for k := 0; k < ny; k++ {
		inner[k] = make([]complex128, steps)
		row := cross[k*nx : (k+1)*nx]
		for jx := 0; jx < steps; jx++ {
			var sum complex128
			for l, v := range row {
				sum += v * kx[jx][l]
			}
			inner[k][jx] = sum
		}
	}

	values := make([]float64, steps*steps)
	for jy := 0; jy < steps; jy++ {
		for jx := 0; jx < steps; jx++ {
			var sum complex128
			for k := 0; k < ny; k++ {
				sum += ky[jy][k] * inner[k][jx]
			}
			values[jy*steps+jx] = real(sum)
		}
	}

	best := floats.MaxIdx(values)
	return py + offset(best/steps), px + offset(best%steps)
}

// hannWindow2D returns the outer product of two Hann windows
func hannWindow2D(ny, nx int) []float64 {
	wy := hann(ny)
	wx := hann(nx)
	out := make([]float64, ny*nx)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			out[y*nx+x] = wy[y] * wx[x]
		}
	}
	return out
}

// hann returns a symmetric Hann window of n points; a single point is left
// unweighted
func hann(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	if n < 2 {
		return out
	}
	return window.Hann(out)
}

// sobel returns the gradient magnitude of a row-major image using 3x3
// Sobel kernels with replicated borders.
func sobel(img []float64, ny, nx int) []float64 {
	at := func(y, x int) float64 {
		y = min(max(y, 0), ny-1)
		x = min(max(x, 0), nx-1)
		return img[y*nx+x]
	}
	out := make([]float64, len(img))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			gx := at(y-1, x+1) + 2*at(y, x+1) + at(y+1, x+1) -
				at(y-1, x-1) - 2*at(y, x-1) - at(y+1, x-1)
			gy := at(y+1, x-1) + 2*at(y+1, x) + at(y+1, x+1) -
				at(y-1, x-1) - 2*at(y-1, x) - at(y-1, x+1)
			out[y*nx+x] = math.Hypot(gx, gy)
		}
	}
	return out
}
