// Package report renders cue history, target tracks and routes as charts for
// the debug endpoints and offline tools.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sonus/internal/cue"
	"github.com/banshee-data/sonus/internal/geo"
	"github.com/banshee-data/sonus/internal/session"
)

// AssetsHost serves the echarts javascript. Override it to point at a local
// copy when the device has no internet access.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// cueDistance returns the announced distance of c, or -1 when c carries no
// distance token.
func cueDistance(c cue.Cue) float64 {
	for _, tok := range c.Tokens {
		if tok.Category == cue.CategoryDistance {
			return cue.Band(tok.Value).Meters()
		}
	}
	return -1
}

func summary(c cue.Cue) string {
	parts := make([]string, len(c.Tokens))
	for i, tok := range c.Tokens {
		parts[i] = tok.String()
	}
	return strings.Join(parts, " ")
}

// CueTimeline renders cues as a scatter of seconds since the first cue against
// the announced distance, one series per reason. Cues without a distance token
// are drawn at zero.
func CueTimeline(w io.Writer, cues []cue.Cue) error {
	series := make(map[cue.Reason][]opts.ScatterData)
	maxDist := 0.0
	var first float64
	for i, c := range cues {
		at := float64(c.At.UnixNano()) / 1e9
		if i == 0 {
			first = at
		}
		d := cueDistance(c)
		if d < 0 {
			d = 0
		}
		maxDist = math.Max(maxDist, d)
		series[c.Reason] = append(series[c.Reason], opts.ScatterData{
			Name:  summary(c),
			Value: []interface{}{at - first, d, c.TargetID},
		})
	}
	if maxDist == 0 {
		maxDist = 10
	}

	subtitle := fmt.Sprintf("count=%d", len(cues))
	if n := len(cues); n > 0 {
		subtitle = fmt.Sprintf("count=%d from %s to %s", n,
			cues[0].At.Format("15:04:05"), cues[n-1].At.Format("15:04:05"))
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sonus Cues", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Cue Timeline", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25, Min: 0}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Distance (m)", NameLocation: "middle", NameGap: 40, Min: 0, Max: maxDist * 1.1}),
	)

	reasons := make([]string, 0, len(series))
	for r := range series {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		scatter.AddSeries(r, series[cue.Reason(r)], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	}
	return scatter.Render(w)
}

// TrackChart renders recorded target trails in the planar frame around
// origin, with the observer at (0, 0).
func TrackChart(w io.Writer, trails map[string][]session.TrailPoint, origin geo.Point) error {
	ids := make([]string, 0, len(trails))
	for id := range trails {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	maxAbs := 0.0
	series := make(map[string][]opts.ScatterData, len(ids))
	points := 0
	for _, id := range ids {
		pts := trails[id]
		data := make([]opts.ScatterData, 0, len(pts))
		for _, p := range pts {
			wp := geo.ToWorld(p.Position, origin)
			x, z := float64(wp.X), float64(wp.Z)
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(z)))
			data = append(data, opts.ScatterData{
				Name:  p.At.Format("15:04:05.000"),
				Value: []interface{}{x, z},
			})
		}
		points += len(data)
		series[id] = data
	}
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sonus Tracks", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Target Tracks", Subtitle: fmt.Sprintf("targets=%d points=%d", len(ids), points)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "East (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "North (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("observer", []opts.ScatterData{{Name: "observer", Value: []interface{}{0.0, 0.0}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))
	for _, id := range ids {
		scatter.AddSeries(id, series[id], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	}
	return scatter.Render(w)
}
