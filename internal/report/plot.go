package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/route"
)

// Route plot size.
const (
	RoutePlotWidth  = 8 * vg.Inch
	RoutePlotHeight = 8 * vg.Inch
)

// routePlot draws the waypoints of rt in the planar frame of its first
// waypoint, joined by the legs of one cycle of its mode.
func routePlot(rt route.Route) (*plot.Plot, error) {
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	origin := rt.Waypoints[0].Point

	p := plot.New()
	name := rt.Name
	if name == "" {
		name = "route"
	}
	p.Title.Text = fmt.Sprintf("%s (%s, %.0f m)", name, rt.Mode, rt.LengthMeters())
	p.X.Label.Text = "East (m)"
	p.Y.Label.Text = "North (m)"
	p.Add(plotter.NewGrid())

	wps := make(plotter.XYs, len(rt.Waypoints))
	labels := make([]string, len(rt.Waypoints))
	for i, wp := range rt.Waypoints {
		pos := geo.ToWorld(wp.Point, origin)
		wps[i] = plotter.XY{X: float64(pos.X), Y: float64(pos.Z)}
		labels[i] = fmt.Sprintf("%d", i)
		if wp.PauseAfterArrival > 0 {
			labels[i] += fmt.Sprintf(" (%gs)", wp.PauseAfterArrival)
		}
	}

	n := len(rt.Waypoints)
	legs := route.Plan(n, rt.Mode, route.CycleLegs(n, rt.Mode))
	path := make(plotter.XYs, 0, len(legs)+1)
	for i, leg := range legs {
		if i == 0 {
			path = append(path, wps[leg.From])
		}
		path = append(path, wps[leg.To])
	}
	line, err := plotter.NewLine(path)
	if err != nil {
		return nil, err
	}
	line.Color = plotutil.Color(0)
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("path", line)

	scatter, err := plotter.NewScatter(wps)
	if err != nil {
		return nil, err
	}
	scatter.GlyphStyle.Color = plotutil.Color(1)
	scatter.GlyphStyle.Radius = vg.Points(4)
	p.Add(scatter)
	p.Legend.Add("waypoints", scatter)

	lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: wps, Labels: labels})
	if err != nil {
		return nil, err
	}
	lbl.Offset = vg.Point{X: vg.Points(5), Y: vg.Points(5)}
	p.Add(lbl)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// PlotRoute writes rt as a PNG.
func PlotRoute(w io.Writer, rt route.Route) error {
	p, err := routePlot(rt)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(RoutePlotWidth, RoutePlotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveRoutePlot writes rt to file. The image format follows the file
// extension (png, svg, pdf...).
func SaveRoutePlot(rt route.Route, file string) error {
	p, err := routePlot(rt)
	if err != nil {
		return err
	}
	return p.Save(RoutePlotWidth, RoutePlotHeight, file)
}
