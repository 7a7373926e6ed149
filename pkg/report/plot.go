package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"stackalign/pkg/stack"
)

// PlotShifts writes a line plot of the per-frame shifts to path. The image
// format follows the file extension (png, svg, pdf...).
func PlotShifts(shifts []stack.Shift, title, path string) error {
	if len(shifts) == 0 {
		return fmt.Errorf("no shifts to plot")
	}

	dy := make(plotter.XYs, len(shifts))
	dx := make(plotter.XYs, len(shifts))
	for i, sh := range shifts {
		dy[i].X, dy[i].Y = float64(i), sh.DY
		dx[i].X, dx[i].Y = float64(i), sh.DX
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Shift (px)"
	p.Add(plotter.NewGrid())

	lineY, err := plotter.NewLine(dy)
	if err != nil {
		return fmt.Errorf("create dy line: %w", err)
	}
	lineY.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	lineY.Width = vg.Points(1.5)

	lineX, err := plotter.NewLine(dx)
	if err != nil {
		return fmt.Errorf("create dx line: %w", err)
	}
	lineX.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	lineX.Width = vg.Points(1.5)

	p.Add(lineY, lineX)
	p.Legend.Add("dy", lineY)
	p.Legend.Add("dx", lineX)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
