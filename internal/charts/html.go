// Package charts renders resolved jumps as an interactive HTML page
// (go-echarts) or a static PNG (gonum/plot).
package charts

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/jump.report/internal/kinematics"
)

// AssetsHost is where the rendered page loads echarts.min.js from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderHTML writes a page with a height chart and a velocity chart for res.
func RenderHTML(w io.Writer, title string, res *kinematics.Result) error {
	if res == nil || len(res.Trajectory) == 0 {
		return fmt.Errorf("no result to render")
	}
	xs := make([]string, len(res.Trajectory))
	heights := make([]opts.LineData, len(res.Trajectory))
	for i, p := range res.Trajectory {
		xs[i] = strconv.FormatFloat(p.T, 'f', 3, 64)
		heights[i] = opts.LineData{Value: p.HeightCm}
	}
	velocities := make([]opts.LineData, len(res.Velocity))
	for i, p := range res.Velocity {
		velocities[i] = opts.LineData{Value: p.VelocityCmS}
	}

	s := res.Summary
	height := newLine(title, fmt.Sprintf("max height %.2f cm, flight %.3f s", s.MaxHeightCm, s.FlightTimeS), "Height (cm)")
	height.SetXAxis(xs).AddSeries("height", heights,
		charts.WithMarkLineNameXAxisItemOpts(
			opts.MarkLineNameXAxisItem{Name: "takeoff", XAxis: xs[clamp(res.Phases.Takeoff, len(xs))]},
			opts.MarkLineNameXAxisItem{Name: "landing", XAxis: xs[clamp(res.Phases.Landing, len(xs))]},
		),
	)

	velocity := newLine("Velocity", fmt.Sprintf("takeoff %.3f m/s", s.TakeoffVelocityMS), "Velocity (cm/s)")
	velocity.SetXAxis(xs).AddSeries("velocity", velocities)

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = title
	page.AddCharts(height, velocity)
	return page.Render(w)
}

func newLine(title, subtitle, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	return line
}

func clamp(i, n int) int {
	return max(0, min(i, n-1))
}
