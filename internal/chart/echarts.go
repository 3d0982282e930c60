package chart

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// maxSymbolSize is the diameter in pixels of the largest scatter mark.
const maxSymbolSize = 20

// Theme returns the echarts theme for a template name.
func Theme(template string) string {
	if strings.Contains(template, "dark") {
		return "dark"
	}
	return "white"
}

// Charter converts a figure into a go-echarts chart.
func Charter(fig *Figure, assetsHost string) (components.Charter, error) {
	switch fig.Mark {
	case MarkScatter:
		return scatterChart(fig, assetsHost), nil
	case MarkLine:
		return lineChart(fig, assetsHost), nil
	}
	return nil, fmt.Errorf("chart: unsupported mark %q", fig.Mark)
}

// RenderHTML writes a standalone HTML page holding every figure.
func RenderHTML(w io.Writer, title, assetsHost string, figs ...*Figure) error {
	page := components.NewPage()
	page.PageTitle = title
	if assetsHost != "" {
		page.SetAssetsHost(assetsHost)
	}
	for _, fig := range figs {
		c, err := Charter(fig, assetsHost)
		if err != nil {
			return err
		}
		page.AddCharts(c)
	}
	return page.Render(w)
}

func initOpts(fig *Figure, assetsHost string) opts.Initialization {
	initial := opts.Initialization{
		PageTitle: fig.Style.Title,
		Theme:     Theme(fig.Style.Template),
	}
	if fig.Style.Width > 0 {
		initial.Width = fmt.Sprintf("%dpx", fig.Style.Width)
	}
	if fig.Style.Height > 0 {
		initial.Height = fmt.Sprintf("%dpx", fig.Style.Height)
	}
	if assetsHost != "" {
		initial.AssetsHost = assetsHost
	}
	return initial
}

func axisOpts(fig *Figure) (opts.XAxis, opts.YAxis) {
	x := opts.XAxis{Name: fig.Encoding["x"].Title, NameLocation: "middle", NameGap: 25}
	y := opts.YAxis{Name: fig.Encoding["y"].Title, NameLocation: "middle", NameGap: 40}
	if fig.Style.HideTicks {
		x.AxisLabel = &opts.AxisLabel{Show: opts.Bool(false)}
		x.AxisTick = &opts.AxisTick{Show: opts.Bool(false)}
		x.AxisLine = &opts.AxisLine{Show: opts.Bool(false)}
		y.AxisLabel = &opts.AxisLabel{Show: opts.Bool(false)}
		y.AxisLine = &opts.AxisLine{Show: opts.Bool(false)}
	}
	return x, y
}

func scatterChart(fig *Figure, assetsHost string) *charts.Scatter {
	x, y := axisOpts(fig)
	x.Type, y.Type = "value", "value"
	if lo, hi, ok := extent(fig, func(p Point) any { return p.X }); ok {
		x.Min, x.Max = lo, hi
	}
	if lo, hi, ok := extent(fig, func(p Point) any { return p.Y }); ok {
		y.Min, y.Max = lo, hi
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(fig, assetsHost)),
		charts.WithTitleOpts(opts.Title{Title: fig.Style.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "0", Orient: "vertical"}),
		charts.WithXAxisOpts(x),
		charts.WithYAxisOpts(y),
	)

	maxSize := 0.0
	for _, s := range fig.Series {
		for _, p := range s.Points {
			if p.Size != nil {
				maxSize = math.Max(maxSize, *p.Size)
			}
		}
	}
	for _, s := range fig.Series {
		data := make([]opts.ScatterData, 0, len(s.Points))
		for _, p := range s.Points {
			d := opts.ScatterData{Value: []interface{}{p.X, p.Y}, Name: hoverText(fig, p), SymbolSize: 6}
			if p.Size != nil && maxSize > 0 {
				d.SymbolSize = max(2, int(math.Round(maxSymbolSize*math.Sqrt(*p.Size/maxSize))))
			}
			data = append(data, d)
		}
		scatter.AddSeries(s.Name, data)
	}
	return scatter
}

func lineChart(fig *Figure, assetsHost string) *charts.Line {
	x, y := axisOpts(fig)
	x.Type = "category"

	cats := categories(fig)
	labels := make([]string, len(cats))
	for i, c := range cats {
		labels[i] = fmt.Sprint(c)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(fig, assetsHost)),
		charts.WithTitleOpts(opts.Title{Title: fig.Style.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll"}),
		charts.WithXAxisOpts(x),
		charts.WithYAxisOpts(y),
	)
	line.SetXAxis(labels)
	for _, s := range fig.Series {
		byCat := make(map[string]any, len(s.Points))
		for _, p := range s.Points {
			byCat[fmt.Sprint(p.X)] = p.Y
		}
		data := make([]opts.LineData, len(labels))
		for i, l := range labels {
			v, ok := byCat[l]
			if !ok {
				v = "-"
			}
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(s.Name, data)
	}
	return line
}

func hoverText(fig *Figure, p Point) string {
	parts := make([]string, 0, len(p.Hover))
	for i, v := range p.Hover {
		parts = append(parts, fmt.Sprintf("%s=%v", fig.Hover[i].Title, v))
	}
	return strings.Join(parts, ", ")
}

// categories returns the distinct x values of all series, numbers in numeric
// order and everything else in string order.
func categories(fig *Figure) []any {
	seen := map[string]bool{}
	var out []any
	for _, s := range fig.Series {
		for _, p := range s.Points {
			k := fmt.Sprint(p.X)
			if !seen[k] {
				seen[k] = true
				out = append(out, p.X)
			}
		}
	}
	slices.SortFunc(out, func(a, b any) int {
		fa, oka := toFloat(a)
		fb, okb := toFloat(b)
		if oka && okb {
			return cmp.Compare(fa, fb)
		}
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	})
	return out
}

// extent returns a padded numeric range of the selected coordinate.
func extent(fig *Figure, coord func(Point) any) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range fig.Series {
		for _, p := range s.Points {
			if v, isNum := toFloat(coord(p)); isNum {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
				ok = true
			}
		}
	}
	if !ok {
		return 0, 0, false
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad, true
}
