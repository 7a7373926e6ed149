package stack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeByThree(t *testing.T) *Stack {
	t.Helper()
	f := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	s, err := NewFrames([][]float64{f, f}, 3, 3)
	require.NoError(t, err)
	return s
}

func TestAlign2DExpand(t *testing.T) {
	s := threeByThree(t)

	err := s.Align2D([]Shift{{}, {DY: 1}}, ApplyOptions{Expand: true})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 3}, s.SignalShape())
	assert.Equal(t, -1.0, s.SignalAxis(1).Offset)
	assert.Equal(t, []float64{0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, s.Frame(0))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 0, 0}, s.Frame(1))
}

func TestAlign2DCrop(t *testing.T) {
	s := threeByThree(t)

	err := s.Align2D([]Shift{{}, {DY: 1}}, ApplyOptions{Crop: true})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, s.SignalShape())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, s.Frame(0))
	assert.Equal(t, []float64{4, 5, 6, 7, 8, 9}, s.Frame(1))
}

func TestAlign2DExpandOverridesCrop(t *testing.T) {
	s := threeByThree(t)
	require.NoError(t, s.Align2D([]Shift{{DX: -1}, {DX: 1}}, ApplyOptions{Crop: true, Expand: true}))
	assert.Equal(t, []int{3, 5}, s.SignalShape())
}

func TestAlign2DKeepSizeFills(t *testing.T) {
	s := threeByThree(t)
	require.NoError(t, s.Align2D([]Shift{{}, {DX: 1}}, ApplyOptions{FillValue: math.NaN()}))

	assert.Equal(t, []int{3, 3}, s.SignalShape())
	f := s.Frame(1)
	assert.Equal(t, []float64{2, 3}, f[0:2])
	assert.True(t, math.IsNaN(f[2]))
}

func TestAlign2DZeroShiftsKeepData(t *testing.T) {
	s := threeByThree(t)
	before := append([]float64(nil), s.Data()...)
	require.NoError(t, s.Align2D(make([]Shift, 2), ApplyOptions{Expand: true}))
	assert.Equal(t, before, s.Data())
}

func TestAlign2DSubPixel(t *testing.T) {
	s, err := NewFrames([][]float64{{0, 2, 4, 0, 2, 4}}, 2, 3)
	require.NoError(t, err)
	require.NoError(t, s.Align2D([]Shift{{DX: 0.5}}, ApplyOptions{}))
	assert.InDeltaSlice(t, []float64{1, 3, 0, 1, 3, 0}, s.Data(), 1e-12)
}

func TestAlign2DErrors(t *testing.T) {
	s := threeByThree(t)
	assert.ErrorIs(t, s.Align2D([]Shift{{}}, ApplyOptions{}), ErrShiftCount)
	assert.Error(t, s.Align2D([]Shift{{DY: -3}, {DY: 3}}, ApplyOptions{Crop: true}))

	p, err := NewProfiles([][]float64{{1, 2}}, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Align2D([]Shift{{}}, ApplyOptions{}), ErrDimension)
}

func TestAlign1D(t *testing.T) {
	t.Run("expand", func(t *testing.T) {
		s, err := NewProfiles([][]float64{{1, 2, 3}, {1, 2, 3}}, 3)
		require.NoError(t, err)
		require.NoError(t, s.Align1D([]float64{0, -2}, ApplyOptions{Expand: true}))

		assert.Equal(t, []int{5}, s.SignalShape())
		assert.Equal(t, []float64{1, 2, 3, 0, 0}, s.Frame(0))
		assert.Equal(t, []float64{0, 0, 1, 2, 3}, s.Frame(1))
	})

	t.Run("interpolates", func(t *testing.T) {
		s, err := NewProfiles([][]float64{{0, 2, 4, 6}}, 4)
		require.NoError(t, err)
		require.NoError(t, s.Align1D([]float64{0.5}, ApplyOptions{FillValue: -1}))
		assert.InDeltaSlice(t, []float64{1, 3, 5, -1}, s.Data(), 1e-12)
	})

	t.Run("rejects images", func(t *testing.T) {
		s := threeByThree(t)
		assert.ErrorIs(t, s.Align1D([]float64{0, 0}, ApplyOptions{}), ErrDimension)
	})
}

func TestGetDimensionsFromData(t *testing.T) {
	s := threeByThree(t)
	require.NoError(t, s.SetIndices(1))

	s.SetData(make([]float64, 9))
	require.NoError(t, s.GetDimensionsFromData())
	assert.Equal(t, 1, s.NavigationSize())
	assert.Equal(t, []int{0}, s.Indices())

	s.SetData(make([]float64, 10))
	assert.Error(t, s.GetDimensionsFromData())
}
