package charts

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/jump.report/internal/kinematics"
)

// PNG dimensions.
const (
	PNGWidth  = 10 * vg.Inch
	PNGHeight = 8 * vg.Inch
)

var (
	heightColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	velocColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	markerColor  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	markerDashes = []vg.Length{vg.Points(4), vg.Points(2)}
)

// RenderPNG draws height over velocity for res and writes the PNG to w.
// Takeoff and landing are marked with dashed vertical lines.
func RenderPNG(w io.Writer, title string, res *kinematics.Result) error {
	if res == nil || len(res.Trajectory) == 0 {
		return fmt.Errorf("no result to render")
	}

	heightPts := make(plotter.XYs, len(res.Trajectory))
	for i, p := range res.Trajectory {
		heightPts[i] = plotter.XY{X: p.T, Y: p.HeightCm}
	}
	velocityPts := make(plotter.XYs, len(res.Velocity))
	for i, p := range res.Velocity {
		velocityPts[i] = plotter.XY{X: p.T, Y: p.VelocityCmS}
	}

	pHeight, err := curvePlot(title, "Height (cm)", heightPts, heightColor, res)
	if err != nil {
		return err
	}
	pVelocity, err := curvePlot("", "Velocity (cm/s)", velocityPts, velocColor, res)
	if err != nil {
		return err
	}

	img := vgimg.New(PNGWidth, PNGHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 2, Cols: 1,
		PadTop: vg.Points(4), PadBottom: vg.Points(4),
		PadLeft: vg.Points(4), PadRight: vg.Points(8),
		PadY: vg.Points(12),
	}
	canvases := plot.Align([][]*plot.Plot{{pHeight}, {pVelocity}}, tiles, dc)
	pHeight.Draw(canvases[0][0])
	pVelocity.Draw(canvases[1][0])

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

func curvePlot(title, yLabel string, pts plotter.XYs, c color.Color, res *kinematics.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	p.Add(line)

	yMin, yMax := pts[0].Y, pts[0].Y
	for _, pt := range pts {
		yMin = min(yMin, pt.Y)
		yMax = max(yMax, pt.Y)
	}
	for _, idx := range []int{res.Phases.Takeoff, res.Phases.Landing} {
		if idx < 0 || idx >= len(pts) {
			continue
		}
		marker, err := plotter.NewLine(plotter.XYs{{X: pts[idx].X, Y: yMin}, {X: pts[idx].X, Y: yMax}})
		if err != nil {
			return nil, err
		}
		marker.Color = markerColor
		marker.Dashes = markerDashes
		p.Add(marker)
	}
	return p, nil
}
