// Package manual implements interactive alignment of an image stack: the
// user nudges the displayed frame along X and Y, the stack is rolled live
// as a preview, and the accumulated integer shifts are applied cleanly on
// commit or discarded on cancel.
package manual

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"stackalign/pkg/config"
	"stackalign/pkg/stack"
)

var (
	// ErrClosed is returned when a committed or cancelled tracker is used.
	ErrClosed = errors.New("tracker is closed")

	// ErrNotImage is returned when the stack does not hold 2D frames.
	ErrNotImage = errors.New("manual alignment needs a 2D signal")
)

// State is the lifecycle state of a Tracker.
type State int

const (
	// Idle means no edit was made yet
	Idle State = iota
	// Editing means the original data has been captured and the stack is
	// showing a live preview
	Editing
	// Committed means the shifts were applied to the stack
	Committed
	// Cancelled means the original data was restored
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Editing:
		return "editing"
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Tracker holds the state of one manual alignment session.
//
// X and Y are cumulative offsets for the frame currently displayed. Each
// change rolls the current frame and every later frame (flattened
// navigation order) by the difference to the previous value, and records
// the opposite displacement in the shift table. Commit undoes the preview
// and applies the table once, so repeated rolling never leaks into the
// final data.
type Tracker struct {
	id     string
	stack  *stack.Stack
	logger *slog.Logger
	state  State

	// original is captured on the first edit and used for rollback
	original []float64

	// shifts holds one (dy, dx) pair per frame
	shifts [][2]int

	prevX, prevY int

	// fill is written where committed frames have no data
	fill float64
}

// New opens a manual alignment session on s. A nil logger discards output.
func New(s *stack.Stack, logger *slog.Logger) (*Tracker, error) {
	if s.SignalDimension() != 2 {
		return nil, fmt.Errorf("%d-dimensional signal: %w", s.SignalDimension(), ErrNotImage)
	}
	if logger == nil {
		logger = config.Discard()
	}
	id := uuid.NewString()
	return &Tracker{id: id, stack: s, logger: logger.With("session", id)}, nil
}

// SetFillValue sets the value padding the frames on commit; the default
// is 0.
func (t *Tracker) SetFillValue(v float64) {
	t.fill = v
}

// ID identifies the session in log records.
func (t *Tracker) ID() string {
	return t.id
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

func (t *Tracker) closed() bool {
	return t.state == Committed || t.state == Cancelled
}

// Limits returns the accepted range of the X and Y values: plus or minus
// the signal size along each axis.
func (t *Tracker) Limits() (xMin, xMax, yMin, yMax int) {
	nx := t.stack.SignalAxis(0).Size
	ny := t.stack.SignalAxis(1).Size
	return -nx, nx, -ny, ny
}

// Shifts returns a copy of the accumulated (dy, dx) shifts, or nil before
// the first edit.
func (t *Tracker) Shifts() [][2]int {
	if t.shifts == nil {
		return nil
	}
	out := make([][2]int, len(t.shifts))
	copy(out, t.shifts)
	return out
}

// Values returns the current X and Y values.
func (t *Tracker) Values() (x, y int) {
	return t.prevX, t.prevY
}

// SetX moves the current frame and the frames after it horizontally so
// that the X value becomes v. Values are clamped to Limits.
func (t *Tracker) SetX(v int) error {
	if t.closed() {
		return ErrClosed
	}
	xMin, xMax, _, _ := t.Limits()
	v = min(max(v, xMin), xMax)
	delta := v - t.prevX
	t.prevX = v
	return t.update(0, 1, delta)
}

// SetY moves the current frame and the frames after it vertically so that
// the Y value becomes v. Values are clamped to Limits.
func (t *Tracker) SetY(v int) error {
	if t.closed() {
		return ErrClosed
	}
	_, _, yMin, yMax := t.Limits()
	v = min(max(v, yMin), yMax)
	delta := v - t.prevY
	t.prevY = v
	return t.update(1, 0, delta)
}

// update rolls frames along a signal axis (0 is X, 1 is Y) and records the
// shift in column col of the table.
func (t *Tracker) update(axis, col, delta int) error {
	s := t.stack
	if t.original == nil {
		t.original = make([]float64, len(s.Data()))
		copy(t.original, s.Data())
		t.state = Editing
	}
	if t.shifts == nil {
		t.shifts = make([][2]int, s.NavigationSize())
	}

	err := s.Unfolded(func() error {
		index := s.CurrentIndex()
		if err := s.Roll(index, axis, delta); err != nil {
			return err
		}
		for i := index; i < len(t.shifts); i++ {
			t.shifts[i][col] -= delta
		}
		s.UpdatePlot()
		return nil
	})
	if err != nil {
		return fmt.Errorf("roll frames: %w", err)
	}
	t.logger.Debug("manual shift", "axis", axis, "delta", delta, "frame", s.CurrentIndex())
	return nil
}

// Commit restores the original data and applies the accumulated shifts
// once, expanding the frames so that no data is lost. The added border
// holds the fill value. Without edits the stack is left untouched. The
// tracker is closed afterwards.
func (t *Tracker) Commit() error {
	if t.closed() {
		return ErrClosed
	}
	s := t.stack
	if t.original != nil {
		s.SetData(t.original)
	}
	if t.shifts != nil {
		shifts := make([]stack.Shift, len(t.shifts))
		for i, sh := range t.shifts {
			shifts[i] = stack.Shift{DY: float64(sh[0]), DX: float64(sh[1])}
		}
		err := s.Unfolded(func() error {
			return s.Align2D(shifts, stack.ApplyOptions{Expand: true, FillValue: t.fill})
		})
		if err != nil {
			return fmt.Errorf("apply manual shifts: %w", err)
		}
		if err := s.GetDimensionsFromData(); err != nil {
			return fmt.Errorf("update dimensions: %w", err)
		}
		t.logger.Info("committed manual alignment", "frames", len(shifts), "shape", s.SignalShape())
	}
	t.state = Committed
	t.Close()
	return nil
}

// Cancel restores the data captured before the first edit and discards
// the shifts. The tracker is closed afterwards.
func (t *Tracker) Cancel() error {
	if t.closed() {
		return ErrClosed
	}
	if t.original != nil {
		t.stack.SetData(t.original)
		t.stack.UpdatePlot()
		t.logger.Info("cancelled manual alignment")
	}
	t.state = Cancelled
	t.Close()
	return nil
}

// Close releases the captured data. A tracker that was neither committed
// nor cancelled is cancelled first.
func (t *Tracker) Close() {
	if t.state == Idle || t.state == Editing {
		_ = t.Cancel()
		return
	}
	t.original = nil
	t.shifts = nil
}
