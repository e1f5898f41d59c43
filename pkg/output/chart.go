// Package output renders analysis results as self-contained HTML charts.
package output

import (
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// RenderLineChart writes a line chart of the result vectors keyed on the
// sweep variable xKey ("TIME", "SWEEP1", "FREQ"). Every other vector of the
// same length becomes a series.
func RenderLineChart(w io.Writer, title, xKey string, results map[string][]float64) error {
	xs, ok := results[xKey]
	if !ok {
		return nil
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:  xKey,
			Scale: opts.Bool(true),
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	xAxis := make([]string, len(xs))
	for i, x := range xs {
		xAxis[i] = formatAxis(x)
	}
	line.SetXAxis(xAxis)

	names := make([]string, 0, len(results))
	for name, vals := range results {
		if name == xKey || len(vals) != len(xs) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		vals := results[name]
		data := make([]opts.LineData, len(vals))
		for i, v := range vals {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(name, data)
	}
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
	)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}

func formatAxis(v float64) string {
	// Keep axis labels short; echarts renders them as categories.
	switch {
	case v != 0 && (v < 1e-3 || v >= 1e6):
		return formatSci(v)
	default:
		return formatFixed(v)
	}
}
