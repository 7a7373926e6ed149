package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"stackalign/pkg/stack"
)

// ChartShifts renders an interactive HTML line chart of the per-frame
// shifts to w.
func ChartShifts(shifts []stack.Shift, title string, w io.Writer) error {
	if len(shifts) == 0 {
		return fmt.Errorf("no shifts to chart")
	}

	frames := make([]int, len(shifts))
	dy := make([]opts.LineData, len(shifts))
	dx := make([]opts.LineData, len(shifts))
	for i, sh := range shifts {
		frames[i] = i
		dy[i] = opts.LineData{Value: sh.DY}
		dx[i] = opts.LineData{Value: sh.DX}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("frames=%d", len(shifts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Shift (px)", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(frames).
		AddSeries("dy", dy).
		AddSeries("dx", dx)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render shift chart: %w", err)
	}
	return nil
}
