// Package report measures how well the frames of a stack are registered
// and plots the shifts found by an alignment.
package report

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"stackalign/pkg/stack"
)

// FrameMetrics compares one frame with the reference frame.
type FrameMetrics struct {
	// Index is the flat navigation index of the frame
	Index int

	// RMSE is the root mean square difference to the reference
	RMSE float64

	// Correlation is the Pearson correlation with the reference, NaN when
	// either frame is constant
	Correlation float64
}

// Summary holds per-frame metrics and their averages over the non-reference
// frames.
type Summary struct {
	Reference       int
	Frames          []FrameMetrics
	MeanRMSE        float64
	MeanCorrelation float64
}

// Metrics compares every frame of s with frame ref.
func Metrics(s *stack.Stack, ref int) (Summary, error) {
	n := s.NavigationSize()
	if ref < 0 || ref >= n {
		return Summary{}, fmt.Errorf("reference frame %d out of range [0, %d)", ref, n)
	}

	reference := s.Frame(ref)
	summary := Summary{Reference: ref, Frames: make([]FrameMetrics, n)}
	var rmses, corrs []float64
	for i := 0; i < n; i++ {
		frame := s.Frame(i)
		m := FrameMetrics{
			Index:       i,
			RMSE:        floats.Distance(frame, reference, 2) / math.Sqrt(float64(len(frame))),
			Correlation: correlation(frame, reference),
		}
		summary.Frames[i] = m
		if i == ref {
			continue
		}
		rmses = append(rmses, m.RMSE)
		if !math.IsNaN(m.Correlation) {
			corrs = append(corrs, m.Correlation)
		}
	}
	if len(rmses) > 0 {
		summary.MeanRMSE = stat.Mean(rmses, nil)
	}
	if len(corrs) > 0 {
		summary.MeanCorrelation = stat.Mean(corrs, nil)
	} else {
		summary.MeanCorrelation = math.NaN()
	}
	return summary, nil
}

func correlation(a, b []float64) float64 {
	if stat.Variance(a, nil) == 0 || stat.Variance(b, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(a, b, nil)
}
