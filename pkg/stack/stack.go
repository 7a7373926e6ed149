// Package stack provides the navigation-indexed frame stack used by the
// alignment tools. A stack holds a row-major float64 array whose leading
// dimensions are navigation axes and whose trailing dimensions are the
// signal axes of a single frame.
package stack

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimension is returned when an operation is applied to a stack with
	// an unsupported number of signal dimensions.
	ErrDimension = errors.New("unsupported signal dimension")

	// ErrShiftCount is returned when the number of shifts does not match the
	// navigation size of the stack.
	ErrShiftCount = errors.New("shift count does not match navigation size")
)

// Axis is a calibrated array axis.
type Axis struct {
	// Name is a label such as "x", "y" or "frame"
	Name string

	// Size is the number of samples along the axis
	Size int

	// Scale is the calibrated distance between two samples
	Scale float64

	// Offset is the calibrated coordinate of the first sample
	Offset float64

	// Navigate marks navigation axes
	Navigate bool
}

// ValueToIndex converts a calibrated coordinate into a sample index clamped
// to [0, Size].
func (a Axis) ValueToIndex(v float64) int {
	scale := a.Scale
	if scale == 0 {
		scale = 1
	}
	idx := int(math.Round((v - a.Offset) / scale))
	if idx < 0 {
		return 0
	}
	if idx > a.Size {
		return a.Size
	}
	return idx
}

// IndexToValue converts a sample index into a calibrated coordinate.
func (a Axis) IndexToValue(i int) float64 {
	scale := a.Scale
	if scale == 0 {
		scale = 1
	}
	return a.Offset + float64(i)*scale
}

// Shift is a per-frame displacement in samples. For 1D signals only DX is
// used.
type Shift struct {
	DY float64
	DX float64
}

// Stack is an ordered collection of frames sharing the same signal axes.
//
// The raw array is stored in C order: navigation axes first, then signal
// axes. For 2D signals the signal part of the array is [Y, X], while
// SignalAxis(0) is X and SignalAxis(1) is Y.
type Stack struct {
	data    []float64
	navAxes []Axis
	sigAxes []Axis
	indices []int

	// folded keeps the navigation axes while an Unfolded scope is active
	folded []Axis

	onUpdate func()
}

// New creates a stack from a raw array and its axes, both given in array
// order.
//
// Parameters:
//   - data: Raw samples in C order
//   - navAxes: Navigation axes in array order (may be empty for a single frame)
//   - sigAxes: Signal axes in array order
//
// Returns:
//   - The stack, or an error if the array length does not match the axes
func New(data []float64, navAxes, sigAxes []Axis) (*Stack, error) {
	if len(sigAxes) == 0 {
		return nil, fmt.Errorf("stack needs at least one signal axis: %w", ErrDimension)
	}
	s := &Stack{
		data:    data,
		navAxes: cloneAxes(navAxes, true),
		sigAxes: cloneAxes(sigAxes, false),
		indices: make([]int, len(navAxes)),
	}
	if err := s.GetDimensionsFromData(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFrames builds a 2D image stack with a single navigation axis from
// equally sized frames stored row-major (height rows of width samples).
func NewFrames(frames [][]float64, height, width int) (*Stack, error) {
	data := make([]float64, 0, len(frames)*height*width)
	for i, f := range frames {
		if len(f) != height*width {
			return nil, fmt.Errorf("frame %d has %d samples, expected %d", i, len(f), height*width)
		}
		data = append(data, f...)
	}
	return New(data,
		[]Axis{{Name: "frame", Size: len(frames), Scale: 1}},
		[]Axis{{Name: "y", Size: height, Scale: 1}, {Name: "x", Size: width, Scale: 1}})
}

// NewProfiles builds a 1D signal stack with a single navigation axis.
func NewProfiles(profiles [][]float64, length int) (*Stack, error) {
	data := make([]float64, 0, len(profiles)*length)
	for i, p := range profiles {
		if len(p) != length {
			return nil, fmt.Errorf("profile %d has %d samples, expected %d", i, len(p), length)
		}
		data = append(data, p...)
	}
	return New(data,
		[]Axis{{Name: "frame", Size: len(profiles), Scale: 1}},
		[]Axis{{Name: "x", Size: length, Scale: 1}})
}

func cloneAxes(axes []Axis, navigate bool) []Axis {
	out := make([]Axis, len(axes))
	copy(out, axes)
	for i := range out {
		out[i].Navigate = navigate
		if out[i].Scale == 0 {
			out[i].Scale = 1
		}
	}
	return out
}

// SetUpdateHook installs the callback fired by UpdatePlot.
func (s *Stack) SetUpdateHook(fn func()) {
	s.onUpdate = fn
}

// UpdatePlot asks the host to redisplay the stack.
func (s *Stack) UpdatePlot() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// Data returns the raw array. The slice is shared with the stack.
func (s *Stack) Data() []float64 {
	return s.data
}

// SetData replaces the raw array. The shape metadata is left untouched;
// call GetDimensionsFromData when the new array has a different size.
func (s *Stack) SetData(data []float64) {
	s.data = data
}

// SignalDimension returns the number of signal axes.
func (s *Stack) SignalDimension() int {
	return len(s.sigAxes)
}

// SignalAxis returns a signal axis in signal order: 0 is the fastest
// varying array dimension (X), 1 the next one (Y).
func (s *Stack) SignalAxis(i int) Axis {
	return s.sigAxes[len(s.sigAxes)-1-i]
}

// SignalAxisIndexInArray returns the array dimension of a signal axis given
// in signal order.
func (s *Stack) SignalAxisIndexInArray(i int) int {
	return len(s.navAxes) + len(s.sigAxes) - 1 - i
}

// NavigationAxes returns a copy of the navigation axes in array order.
func (s *Stack) NavigationAxes() []Axis {
	return cloneAxes(s.navAxes, true)
}

// SignalAxes returns a copy of the signal axes in array order.
func (s *Stack) SignalAxes() []Axis {
	return cloneAxes(s.sigAxes, false)
}

// NavigationShape returns the navigation sizes in array order.
func (s *Stack) NavigationShape() []int {
	shape := make([]int, len(s.navAxes))
	for i, a := range s.navAxes {
		shape[i] = a.Size
	}
	return shape
}

// SignalShape returns the signal sizes in array order.
func (s *Stack) SignalShape() []int {
	shape := make([]int, len(s.sigAxes))
	for i, a := range s.sigAxes {
		shape[i] = a.Size
	}
	return shape
}

// NavigationSize returns the number of frames.
func (s *Stack) NavigationSize() int {
	n := 1
	for _, a := range s.navAxes {
		n *= a.Size
	}
	return n
}

// FrameSize returns the number of samples in one frame.
func (s *Stack) FrameSize() int {
	n := 1
	for _, a := range s.sigAxes {
		n *= a.Size
	}
	return n
}

// Indices returns the current navigation indices in array order.
func (s *Stack) Indices() []int {
	out := make([]int, len(s.indices))
	copy(out, s.indices)
	return out
}

// SetIndices moves the stack to another navigation position.
func (s *Stack) SetIndices(indices ...int) error {
	if len(indices) != len(s.navAxes) {
		return fmt.Errorf("expected %d navigation indices, got %d", len(s.navAxes), len(indices))
	}
	for i, idx := range indices {
		if idx < 0 || idx >= s.navAxes[i].Size {
			return fmt.Errorf("navigation index %d out of range [0, %d)", idx, s.navAxes[i].Size)
		}
	}
	copy(s.indices, indices)
	return nil
}

// CurrentIndex returns the flat (C order) index of the current frame.
func (s *Stack) CurrentIndex() int {
	flat := 0
	for i, a := range s.navAxes {
		flat = flat*a.Size + s.indices[i]
	}
	return flat
}

// Frame returns a view of the i-th frame in flattened navigation order.
func (s *Stack) Frame(i int) []float64 {
	fs := s.FrameSize()
	return s.data[i*fs : (i+1)*fs : (i+1)*fs]
}

// DeepCopy returns an independent copy of the stack. The update hook is
// not copied.
func (s *Stack) DeepCopy() *Stack {
	data := make([]float64, len(s.data))
	copy(data, s.data)
	c := &Stack{
		data:    data,
		navAxes: cloneAxes(s.navAxes, true),
		sigAxes: cloneAxes(s.sigAxes, false),
		indices: s.Indices(),
	}
	if s.folded != nil {
		c.folded = cloneAxes(s.folded, true)
	}
	return c
}

// Unfolded runs fn with all navigation axes flattened into a single one.
// The original navigation axes are restored when fn returns, including on
// error. The current frame is preserved.
func (s *Stack) Unfolded(fn func() error) error {
	if s.folded != nil || len(s.navAxes) == 1 {
		return fn()
	}
	current := s.CurrentIndex()
	s.folded = s.navAxes
	saved := s.Indices()
	s.navAxes = []Axis{{Name: "unfolded", Size: s.NavigationSize(), Scale: 1, Navigate: true}}
	s.indices = []int{current}
	defer func() {
		s.navAxes = s.folded
		s.folded = nil
		s.indices = saved
	}()
	return fn()
}

// GetDimensionsFromData checks the axes against the raw array, updating the
// navigation size when the array length changed, and clamps the current
// indices.
func (s *Stack) GetDimensionsFromData() error {
	fs := s.FrameSize()
	if fs == 0 {
		return fmt.Errorf("empty signal shape %v: %w", s.SignalShape(), ErrDimension)
	}
	if len(s.data)%fs != 0 {
		return fmt.Errorf("array of %d samples is not a whole number of %d-sample frames", len(s.data), fs)
	}
	frames := len(s.data) / fs
	if frames != s.NavigationSize() {
		if len(s.navAxes) == 0 && frames == 1 {
			return nil
		}
		if len(s.navAxes) != 1 {
			return fmt.Errorf("array holds %d frames but navigation shape is %v", frames, s.NavigationShape())
		}
		s.navAxes[0].Size = frames
	}
	for i := range s.indices {
		if s.indices[i] >= s.navAxes[i].Size {
			s.indices[i] = s.navAxes[i].Size - 1
		}
		if s.indices[i] < 0 {
			s.indices[i] = 0
		}
	}
	return nil
}

// Roll circularly shifts every frame with flat index >= from along a signal
// axis (signal order: 0 is X, 1 is Y), like numpy.roll on data[from:].
func (s *Stack) Roll(from, axis, delta int) error {
	if axis < 0 || axis >= len(s.sigAxes) {
		return fmt.Errorf("signal axis %d out of range: %w", axis, ErrDimension)
	}
	n := s.NavigationSize()
	if from < 0 {
		from = 0
	}
	// Within a frame, the axis has `size` positions separated by `stride`
	// samples and repeated in `outer` blocks.
	arrayDim := len(s.sigAxes) - 1 - axis
	size := s.sigAxes[arrayDim].Size
	stride := 1
	for _, a := range s.sigAxes[arrayDim+1:] {
		stride *= a.Size
	}
	outer := s.FrameSize() / (size * stride)
	shift := ((delta % size) + size) % size
	if shift == 0 {
		return nil
	}
	buf := make([]float64, size)
	for f := from; f < n; f++ {
		frame := s.Frame(f)
		for o := 0; o < outer; o++ {
			for in := 0; in < stride; in++ {
				base := o*size*stride + in
				for k := 0; k < size; k++ {
					buf[(k+shift)%size] = frame[base+k*stride]
				}
				for k := 0; k < size; k++ {
					frame[base+k*stride] = buf[k]
				}
			}
		}
	}
	return nil
}
