package alignment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"stackalign/pkg/registration"
	"stackalign/pkg/stack"
)

const sceneY, sceneX = 70, 40

// scene is a 70x40 frame with a horizontal band at y=30 and a vertical
// band at x=18 on a constant background
func scene() []float64 {
	img := make([]float64, sceneY*sceneX)
	for y := 0; y < sceneY; y++ {
		for x := 0; x < sceneX; x++ {
			img[y*sceneX+x] = 1 + 2*gaussian(float64(y), 30, 4) + gaussian(float64(x), 18, 3)
		}
	}
	return img
}

// driftingStack holds three frames; the last one is moved 2 rows down and
// 1 column left
func driftingStack(t *testing.T) *stack.Stack {
	t.Helper()
	base := scene()
	s, err := stack.NewFrames([][]float64{
		base,
		append([]float64(nil), base...),
		rolled(base, sceneY, sceneX, 2, -1),
	}, sceneY, sceneX)
	require.NoError(t, err)
	return s
}

func fullFrame() ROI {
	return NewRectangle(0, sceneX, 0, sceneY)
}

func TestAlignAlongAxis(t *testing.T) {
	e := NewEngine(testConfig(), registration.NewEstimator(), nil)

	t.Run("vertical", func(t *testing.T) {
		s := driftingStack(t)
		before := append([]float64(nil), s.Data()...)

		res, err := e.AlignAlongAxis(fullFrame(), s, Vertical)
		require.NoError(t, err)

		assert.Equal(t, before, s.Data(), "input must not be modified")
		assert.Equal(t, []stack.Shift{{}, {}, {DY: 2}}, res.Shifts)
		assert.Equal(t, []int{72, 40}, res.Aligned.SignalShape())
		assert.Equal(t, -2.0, res.Aligned.SignalAxis(1).Offset)
	})

	t.Run("horizontal", func(t *testing.T) {
		res, err := e.AlignAlongAxis(fullFrame(), driftingStack(t), Horizontal)
		require.NoError(t, err)
		assert.Equal(t, []stack.Shift{{}, {}, {DX: -1}}, res.Shifts)
		assert.Equal(t, []int{70, 41}, res.Aligned.SignalShape())
	})

	t.Run("reference is the current frame", func(t *testing.T) {
		s := driftingStack(t)
		require.NoError(t, s.SetIndices(1))
		res, err := e.AlignAlongAxis(fullFrame(), s, Horizontal)
		require.NoError(t, err)
		assert.Equal(t, []stack.Shift{{}, {}, {DX: -1}}, res.Shifts)
	})

	t.Run("region of interest", func(t *testing.T) {
		res, err := e.AlignAlongAxis(NewRectangle(0, sceneX, 5, 65), driftingStack(t), Vertical)
		require.NoError(t, err)
		assert.Equal(t, []stack.Shift{{}, {}, {DY: 2}}, res.Shifts)
	})

	t.Run("aligned stack stays aligned", func(t *testing.T) {
		res, err := e.AlignAlongAxis(NewRectangle(0, sceneX, 5, 65), driftingStack(t), Vertical)
		require.NoError(t, err)

		again, err := e.AlignAlongAxis(NewRectangle(0, sceneX, 5, 65), res.Aligned, Vertical)
		require.NoError(t, err)
		assert.Equal(t, make([]stack.Shift, 3), again.Shifts)
	})
}

func TestAlignAlongAxisErrors(t *testing.T) {
	e := NewEngine(testConfig(), registration.NewEstimator(), nil)

	p, err := stack.NewProfiles([][]float64{{1, 2, 3}}, 3)
	require.NoError(t, err)
	_, err = e.AlignAlongAxis(NewInterval(0, 3), p, Vertical)
	assert.ErrorIs(t, err, stack.ErrDimension)

	_, err = e.AlignAlongAxis(NewInterval(0, 3), driftingStack(t), Vertical)
	assert.Error(t, err)

	_, err = e.AlignAlongAxis(NewRectangle(10, 10, 0, sceneY), driftingStack(t), Horizontal)
	assert.Error(t, err)
}

func TestAxisShiftsShortProfiles(t *testing.T) {
	profiles := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		4, 3, 2, 1,
	})
	assert.Equal(t, []float64{0, 0}, AxisShifts(profiles, 0, 50))
}

func TestAxisShiftsLargeShiftIsBounded(t *testing.T) {
	const length = 20
	profiles := mat.NewDense(2, length, nil)
	for x := 0; x < length; x++ {
		profiles.Set(0, x, gaussian(float64(x), 3, 1.5))
		profiles.Set(1, x, gaussian(float64(x), 18, 1.5))
	}

	shifts := AxisShifts(profiles, 0, 1)
	assert.Equal(t, 0.0, shifts[0])
	assert.LessOrEqual(t, math.Abs(shifts[1]), float64((length-1)/2))
}

func TestSmooth(t *testing.T) {
	assert.Equal(t, []float64{2, 3, 4}, Smooth([]float64{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, []float64{1, 2}, Smooth([]float64{1, 2}, 1))
	assert.Nil(t, Smooth([]float64{1, 2}, 3))
}

func TestDiff(t *testing.T) {
	assert.Equal(t, []float64{1, -3}, Diff([]float64{1, 2, -1}))
	assert.Nil(t, Diff([]float64{1}))
}

func TestPadEdge(t *testing.T) {
	assert.Equal(t, []float64{1, 1, 1, 2, 3, 3, 3}, PadEdge([]float64{1, 2, 3}, 2))
	assert.Equal(t, []float64{1, 2}, PadEdge([]float64{1, 2}, 0))
}

func TestCorrelateValid(t *testing.T) {
	assert.Equal(t, []float64{5, 8, 11}, CorrelateValid([]float64{1, 2, 3, 4}, []float64{1, 2}))
	assert.Nil(t, CorrelateValid([]float64{1}, []float64{1, 2}))
}

func TestAxisString(t *testing.T) {
	assert.Equal(t, "vertical", Vertical.String())
	assert.Equal(t, "horizontal", Horizontal.String())
	assert.Equal(t, "Axis(7)", Axis(7).String())
}
