package explorer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"path/filepath"
	"slices"

	"github.com/banshee-data/incident-explorer/internal/chart"
	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/fsutil"
	"github.com/banshee-data/incident-explorer/internal/monitoring"
	"github.com/banshee-data/incident-explorer/internal/security"
	"github.com/banshee-data/incident-explorer/internal/widget"
)

// Files written into the site directory.
const (
	IndexFile   = "index.html"
	ChartsFile  = "charts.html"
	FiguresFile = "figures.json"
	PNGDir      = "png"
)

// NamedFigure pairs a figure with the graph value it came from.
type NamedFigure struct {
	Name   string        `json:"name"`
	Figure *chart.Figure `json:"figure"`
}

// View is everything the page shows after a pass.
type View struct {
	Session  string              `json:"session"`
	Passes   uint64              `json:"passes"`
	Error    string              `json:"error,omitempty"`
	Rows     int                 `json:"rows"`
	Readout  string              `json:"readout,omitempty"`
	Controls []widget.Descriptor `json:"controls,omitempty"`
	Preview  []dataset.Record    `json:"-"`
	Figures  []NamedFigure       `json:"figures"`
}

// PageWriter writes a View as a static site: the control page, the charts
// page it frames, the figure specifications as JSON and optional PNGs.
type PageWriter struct {
	FS         fsutil.FileSystem
	Dir        string
	Title      string
	AssetsHost string
	PNG        bool
}

// Write renders v. Without figures the previous charts are left alone.
func (p *PageWriter) Write(v View) error {
	if err := p.FS.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", p.Dir, err)
	}

	var index bytes.Buffer
	if err := pageTemplate.Execute(&index, pageData{Title: p.Title, View: v, Columns: dataset.Columns}); err != nil {
		return fmt.Errorf("render index: %w", err)
	}
	if err := p.FS.WriteFile(filepath.Join(p.Dir, IndexFile), index.Bytes(), 0o644); err != nil {
		return err
	}
	if len(v.Figures) == 0 {
		monitoring.Debugf("page %s: no figures, charts left as they were", p.Dir)
		return nil
	}

	figs := make([]*chart.Figure, 0, len(v.Figures))
	for _, f := range v.Figures {
		figs = append(figs, f.Figure)
	}
	var charts bytes.Buffer
	if err := chart.RenderHTML(&charts, p.Title, p.AssetsHost, figs...); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	if err := p.FS.WriteFile(filepath.Join(p.Dir, ChartsFile), charts.Bytes(), 0o644); err != nil {
		return err
	}

	spec, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode figures: %w", err)
	}
	if err := p.FS.WriteFile(filepath.Join(p.Dir, FiguresFile), spec, 0o644); err != nil {
		return err
	}

	if p.PNG {
		dir := filepath.Join(p.Dir, PNGDir)
		if err := p.FS.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		for _, f := range v.Figures {
			var img bytes.Buffer
			if err := chart.RenderPNG(&img, f.Figure); err != nil {
				return fmt.Errorf("render %s.png: %w", f.Name, err)
			}
			if err := p.FS.WriteFile(filepath.Join(dir, security.FileName(f.Name)+".png"), img.Bytes(), 0o644); err != nil {
				return err
			}
		}
	}
	monitoring.Logf("page %s: wrote %d figures after pass %d", p.Dir, len(v.Figures), v.Passes)
	return nil
}

type pageData struct {
	Title   string
	View    View
	Columns []string
}

var pageTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"selected": func(d widget.Descriptor, option string) bool {
		return slices.Contains(d.Selected, option)
	},
	"multiple": func(d widget.Descriptor) bool { return d.Kind == widget.KindMultiSelect },
	"cell": func(r dataset.Record, col string) any {
		switch col {
		case dataset.ColX:
			return r.X
		case dataset.ColY:
			return r.Y
		case dataset.ColDistrict:
			return r.District
		case dataset.ColNeighborhood:
			return r.Neighborhood
		case dataset.ColYear:
			return r.Year
		case dataset.ColMonth:
			return r.Month
		case dataset.ColDay:
			return r.Day
		case dataset.ColHour:
			return r.Hour
		case dataset.ColDateTime:
			return r.DateTime.Format("2006-01-02 15:04")
		case dataset.ColYearMonth:
			return r.YearMonth
		case dataset.ColVehicles:
			return r.Vehicles
		case dataset.ColVictims:
			return r.Victims
		}
		return ""
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
.error { background: #fdecea; color: #611a15; padding: 1em; border-radius: 4px; }
table { border-collapse: collapse; font-size: 0.85em; }
td, th { border: 1px solid #ddd; padding: 2px 6px; }
select[multiple] { min-height: 6em; }
iframe { border: none; width: 100%; height: 2000px; }
</style>
</head>
<body data-session="{{.View.Session}}" data-passes="{{.View.Passes}}">
<h1>{{.Title}}</h1>
{{if .View.Error}}<div class="error" id="error">{{.View.Error}}</div>{{end}}
{{if .View.Preview}}
<h2>Dataset ({{.View.Rows}} incidents)</h2>
<table id="preview">
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range $r := .View.Preview}}<tr>{{range $.Columns}}<td>{{cell $r .}}</td>{{end}}</tr>
{{end}}</table>
{{end}}
{{if .View.Controls}}
<form id="controls">
{{range .View.Controls}}<label>{{.Label}}
<select name="{{.Name}}" data-widget="{{.Name}}"{{if multiple .}} multiple{{end}}>
{{$d := .}}{{range .Options}}<option value="{{.}}"{{if selected $d .}} selected{{end}}>{{.}}</option>
{{end}}</select></label>
{{end}}</form>
{{end}}
{{if .View.Readout}}<pre id="readout">{{.View.Readout}}</pre>{{end}}
{{if .View.Figures}}<iframe id="charts" src="charts.html"></iframe>{{end}}
</body>
</html>
`))
