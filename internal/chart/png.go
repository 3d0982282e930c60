package chart

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// pixelsPerInch converts Style dimensions to vg lengths.
const pixelsPerInch = 96

// RenderPNG draws a static rendition of fig.
func RenderPNG(w io.Writer, fig *Figure) error {
	p := plot.New()
	p.Title.Text = fig.Style.Title
	p.X.Label.Text = fig.Encoding["x"].Title
	p.Y.Label.Text = fig.Encoding["y"].Title

	var err error
	switch fig.Mark {
	case MarkScatter:
		err = addScatter(p, fig)
	case MarkLine:
		err = addLines(p, fig)
	default:
		err = fmt.Errorf("chart: unsupported mark %q", fig.Mark)
	}
	if err != nil {
		return err
	}

	if fig.Style.HideTicks {
		p.X.Tick.Marker = plot.ConstantTicks(nil)
		p.Y.Tick.Marker = plot.ConstantTicks(nil)
		p.X.LineStyle.Width = 0
		p.Y.LineStyle.Width = 0
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	width, height := fig.Style.Width, fig.Style.Height
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	wt, err := p.WriterTo(pixels(width), pixels(height), "png")
	if err != nil {
		return fmt.Errorf("chart: png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func pixels(px int) vg.Length {
	return vg.Length(px) * vg.Inch / pixelsPerInch
}

func addScatter(p *plot.Plot, fig *Figure) error {
	maxSize := 0.0
	for _, s := range fig.Series {
		for _, pt := range s.Points {
			if pt.Size != nil {
				maxSize = math.Max(maxSize, *pt.Size)
			}
		}
	}
	for i, s := range fig.Series {
		xys := make(plotter.XYs, 0, len(s.Points))
		radii := make([]vg.Length, 0, len(s.Points))
		for _, pt := range s.Points {
			x, xok := toFloat(pt.X)
			y, yok := toFloat(pt.Y)
			if !xok || !yok {
				return fmt.Errorf("chart: scatter series %q has non-numeric point (%v, %v)", s.Name, pt.X, pt.Y)
			}
			xys = append(xys, plotter.XY{X: x, Y: y})
			r := vg.Points(2)
			if pt.Size != nil && maxSize > 0 {
				r = vg.Points(math.Max(1, maxSymbolSize/2*math.Sqrt(*pt.Size/maxSize)))
			}
			radii = append(radii, r)
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		c := plotutil.Color(i)
		sc.GlyphStyle.Color = c
		sc.GlyphStyleFunc = func(k int) draw.GlyphStyle {
			return draw.GlyphStyle{Color: c, Shape: draw.CircleGlyph{}, Radius: radii[k]}
		}
		p.Add(sc)
		p.Legend.Add(s.Name, sc)
	}
	return nil
}

func addLines(p *plot.Plot, fig *Figure) error {
	cats := categories(fig)
	names := make([]string, len(cats))
	pos := make(map[string]float64, len(cats))
	for i, c := range cats {
		names[i] = fmt.Sprint(c)
		pos[names[i]] = float64(i)
	}

	for i, s := range fig.Series {
		xys := make(plotter.XYs, 0, len(s.Points))
		for _, pt := range s.Points {
			y, ok := toFloat(pt.Y)
			if !ok {
				return fmt.Errorf("chart: line series %q has non-numeric y %v", s.Name, pt.Y)
			}
			xys = append(xys, plotter.XY{X: pos[fmt.Sprint(pt.X)], Y: y})
		}
		sort.Slice(xys, func(a, b int) bool { return xys[a].X < xys[b].X })

		l, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		l.Color = plotutil.Color(i)
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(s.Name, l)
	}
	if len(names) > 0 {
		p.NominalX(names...)
	}
	return nil
}
