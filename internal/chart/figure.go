// Package chart binds aggregate tables to declarative figure specifications
// and renders them as interactive HTML (go-echarts) or static PNG (gonum/plot).
package chart

import (
	"fmt"
	"slices"
	"strings"
)

// Mark is the geometric primitive a figure draws.
type Mark string

const (
	MarkScatter Mark = "scatter"
	MarkLine    Mark = "line"
)

// Table is the tabular input of Bind.
type Table interface {
	Columns() []string
	Len() int
	Value(row int, col string) (any, error)
}

// RoleMap assigns table columns to visual channels. X and Y are required;
// empty Color or Size leaves that channel unused.
type RoleMap struct {
	X     string   `json:"x"`
	Y     string   `json:"y"`
	Color string   `json:"color,omitempty"`
	Size  string   `json:"size,omitempty"`
	Hover []string `json:"hover,omitempty"`
}

// Style carries presentation options that never depend on the data.
type Style struct {
	Title     string            `json:"title,omitempty"`
	Template  string            `json:"template,omitempty"`
	Width     int               `json:"width,omitempty"`
	Height    int               `json:"height,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	HideTicks bool              `json:"hide_ticks,omitempty"`
}

// InvalidRoleMappingError reports a role naming a column the table lacks.
type InvalidRoleMappingError struct {
	Role      string
	Column    string
	Available []string
}

func (e *InvalidRoleMappingError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("chart: role %s is required", e.Role)
	}
	return fmt.Sprintf("chart: role %s maps to column %q, table has [%s]",
		e.Role, e.Column, strings.Join(e.Available, ", "))
}

// Encoding describes one channel of a bound figure.
type Encoding struct {
	Field string `json:"field"`
	Title string `json:"title"`
}

// Point is one mark. Size and Hover are set only when the role map uses them.
type Point struct {
	X     any      `json:"x"`
	Y     any      `json:"y"`
	Size  *float64 `json:"size,omitempty"`
	Hover []any    `json:"hover,omitempty"`
}

// Series is the set of points sharing a color value.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Figure is a renderer-neutral chart specification: mark, encodings, data
// and layout.
type Figure struct {
	Mark     Mark                `json:"mark"`
	Encoding map[string]Encoding `json:"encoding"`
	Hover    []Encoding          `json:"hover,omitempty"`
	Series   []Series            `json:"series"`
	Style    Style               `json:"style"`
}

// Points returns the total number of marks.
func (f *Figure) Points() int {
	n := 0
	for _, s := range f.Series {
		n += len(s.Points)
	}
	return n
}

// Bind maps table onto a figure. Rows are split into series by the Color
// column in order of first appearance; row order is kept inside a series.
func Bind(mark Mark, table Table, roles RoleMap, style Style) (*Figure, error) {
	if err := checkRoles(table, roles); err != nil {
		return nil, err
	}

	fig := &Figure{
		Mark:     mark,
		Encoding: map[string]Encoding{},
		Series:   []Series{},
		Style:    style,
	}
	encode := func(channel, col string) {
		if col != "" {
			fig.Encoding[channel] = Encoding{Field: col, Title: Label(col, style.Labels)}
		}
	}
	encode("x", roles.X)
	encode("y", roles.Y)
	encode("color", roles.Color)
	encode("size", roles.Size)
	for _, h := range roles.Hover {
		fig.Hover = append(fig.Hover, Encoding{Field: h, Title: Label(h, style.Labels)})
	}

	index := map[string]int{}
	for i := range table.Len() {
		p, name, err := bindRow(table, i, roles)
		if err != nil {
			return nil, err
		}
		k, ok := index[name]
		if !ok {
			k = len(fig.Series)
			index[name] = k
			fig.Series = append(fig.Series, Series{Name: name})
		}
		fig.Series[k].Points = append(fig.Series[k].Points, p)
	}
	return fig, nil
}

func checkRoles(table Table, roles RoleMap) error {
	cols := table.Columns()
	check := func(role, col string, required bool) error {
		if col == "" {
			if required {
				return &InvalidRoleMappingError{Role: role}
			}
			return nil
		}
		if !slices.Contains(cols, col) {
			return &InvalidRoleMappingError{Role: role, Column: col, Available: cols}
		}
		return nil
	}
	if err := check("x", roles.X, true); err != nil {
		return err
	}
	if err := check("y", roles.Y, true); err != nil {
		return err
	}
	if err := check("color", roles.Color, false); err != nil {
		return err
	}
	if err := check("size", roles.Size, false); err != nil {
		return err
	}
	for _, h := range roles.Hover {
		if err := check("hover", h, true); err != nil {
			return err
		}
	}
	return nil
}

func bindRow(table Table, i int, roles RoleMap) (Point, string, error) {
	var p Point
	var err error
	if p.X, err = table.Value(i, roles.X); err != nil {
		return p, "", err
	}
	if p.Y, err = table.Value(i, roles.Y); err != nil {
		return p, "", err
	}
	if roles.Size != "" {
		v, err := table.Value(i, roles.Size)
		if err != nil {
			return p, "", err
		}
		f, ok := toFloat(v)
		if !ok {
			return p, "", fmt.Errorf("chart: size column %q holds non-numeric %T", roles.Size, v)
		}
		p.Size = &f
	}
	for _, h := range roles.Hover {
		v, err := table.Value(i, h)
		if err != nil {
			return p, "", err
		}
		p.Hover = append(p.Hover, v)
	}
	name := ""
	if roles.Color != "" {
		v, err := table.Value(i, roles.Color)
		if err != nil {
			return p, "", err
		}
		name = fmt.Sprint(v)
	}
	return p, name, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
