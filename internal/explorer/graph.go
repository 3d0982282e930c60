// Package explorer wires the incident explorer page: the cell graph linking
// the dataset, widgets, transforms and figures, the session that feeds reader
// changes through it, and the writer that turns committed values into a page.
package explorer

import (
	"context"
	"fmt"

	"github.com/banshee-data/incident-explorer/internal/cellgraph"
	"github.com/banshee-data/incident-explorer/internal/chart"
	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/transform"
	"github.com/banshee-data/incident-explorer/internal/widget"
)

// External inputs.
const (
	InSource      = "source"
	InNBins       = "nbins"
	InStyle       = "style"
	InPreviewRows = "preview_rows"

	WidgetDistricts     = "districts"
	WidgetNeighborhoods = "neighborhoods"
	WidgetGroupBy       = "group_by"
	WidgetYears         = "years"
	WidgetMonths        = "months"
	WidgetXAxis         = "x_axis"
	WidgetYAxis         = "y_axis"
)

// Values produced by nodes.
const (
	ValDataset       = "df"
	ValOptions       = "widget_options"
	ValPreview       = "preview"
	ValBinned        = "binned_df"
	ValBinnedFig     = "fig"
	ValSummary       = "summary"
	ValSummaryFig    = "summary_lineplot"
	ValGroupByKw     = "group_by_kw"
	ValTimeUnit      = "time_unit"
	ValSubsetSummary = "subset_summary"
	ValYColumn       = "y_cname"
	ValCustomFig     = "custom_fig"
	ValReadout       = "readout"
)

// WidgetNames lists the widget inputs in control panel order.
var WidgetNames = []string{
	WidgetDistricts, WidgetNeighborhoods, WidgetGroupBy,
	WidgetYears, WidgetMonths, WidgetXAxis, WidgetYAxis,
}

// FigureNames lists the figure values in page order.
var FigureNames = []string{ValBinnedFig, ValSummaryFig, ValCustomFig}

// ReadoutTemplate is the control panel text.
const ReadoutTemplate = `### User Input

- Include Districts: {districts}
- Include Neighborhoods: {neighborhoods}
- Group by {group_by}
- Include Years: {years}
- Include Months: {months}
- X-axis: {x_axis}
- Y-axis: {y_axis}
`

// Options are the widget choices derived from the dataset.
type Options struct {
	Districts     []string
	Neighborhoods []string
	Years         []string
	Months        []string
}

// OptionsOf lists distinct values in order of first appearance. Years and
// months are unpadded decimal strings.
func OptionsOf(ds *dataset.Dataset) Options {
	return Options{
		Districts:     dataset.Distinct(ds, transform.DistrictOf),
		Neighborhoods: dataset.Distinct(ds, transform.NeighborhoodOf),
		Years:         dataset.Distinct(ds, transform.YearOf),
		Months:        dataset.Distinct(ds, transform.MonthOf),
	}
}

// NewGraph declares the page graph.
func NewGraph() (*cellgraph.Graph, error) {
	return cellgraph.NewBuilder().
		Input(InSource, InNBins, InStyle, InPreviewRows).
		Input(WidgetNames...).
		Node(cellgraph.Node{Name: "load", Inputs: []string{InSource}, Outputs: []string{ValDataset}, Eval: evalLoad}).
		Node(cellgraph.Node{Name: "options", Inputs: []string{ValDataset}, Outputs: []string{ValOptions}, Eval: evalOptions}).
		Node(cellgraph.Node{Name: "preview", Inputs: []string{ValDataset, InPreviewRows}, Outputs: []string{ValPreview}, Eval: evalPreview}).
		Node(cellgraph.Node{Name: "bin", Inputs: []string{ValDataset, InNBins}, Outputs: []string{ValBinned}, Eval: evalBin}).
		Node(cellgraph.Node{Name: "binned_figure", Inputs: []string{ValBinned, InStyle}, Outputs: []string{ValBinnedFig}, Eval: evalBinnedFigure}).
		Node(cellgraph.Node{Name: "summarize", Inputs: []string{ValDataset}, Outputs: []string{ValSummary}, Eval: evalSummary}).
		Node(cellgraph.Node{Name: "summary_figure", Inputs: []string{ValSummary, InStyle}, Outputs: []string{ValSummaryFig}, Eval: evalSummaryFigure}).
		Node(cellgraph.Node{
			Name: "subset",
			Inputs: []string{ValDataset, WidgetDistricts, WidgetNeighborhoods, WidgetYears, WidgetMonths,
				WidgetGroupBy, WidgetXAxis},
			Outputs: []string{ValGroupByKw, ValTimeUnit, ValSubsetSummary},
			Eval:    evalSubset,
		}).
		Node(cellgraph.Node{
			Name:    "custom_figure",
			Inputs:  []string{ValSubsetSummary, ValGroupByKw, ValTimeUnit, WidgetYAxis, InStyle},
			Outputs: []string{ValYColumn, ValCustomFig},
			Eval:    evalCustomFigure,
		}).
		Node(cellgraph.Node{
			Name:    "readout",
			Inputs:  append([]string{ValOptions}, WidgetNames...),
			Outputs: []string{ValReadout},
			Eval:    evalReadout,
		}).
		Build()
}

func evalLoad(ctx context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	loader, err := cellgraph.Get[dataset.Loader](in, InSource)
	if err != nil {
		return nil, err
	}
	ds, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValDataset: ds}, nil
}

func evalOptions(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	ds, err := cellgraph.Get[*dataset.Dataset](in, ValDataset)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValOptions: OptionsOf(ds)}, nil
}

func evalPreview(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	ds, err := cellgraph.Get[*dataset.Dataset](in, ValDataset)
	if err != nil {
		return nil, err
	}
	n, err := cellgraph.Get[int](in, InPreviewRows)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValPreview: ds.Head(n)}, nil
}

func evalBin(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	ds, err := cellgraph.Get[*dataset.Dataset](in, ValDataset)
	if err != nil {
		return nil, err
	}
	nbins, err := cellgraph.Get[int](in, InNBins)
	if err != nil {
		return nil, err
	}
	binned, err := transform.SpatialBins(ds, nbins)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValBinned: binned}, nil
}

func evalBinnedFigure(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	binned, err := cellgraph.Get[*transform.Aggregate](in, ValBinned)
	if err != nil {
		return nil, err
	}
	style, err := cellgraph.Get[chart.Style](in, InStyle)
	if err != nil {
		return nil, err
	}
	style.Title = "Barcelona Accident Data"
	style.HideTicks = true
	fig, err := chart.Bind(chart.MarkScatter, binned, chart.RoleMap{
		X:     dataset.ColX,
		Y:     dataset.ColY,
		Size:  transform.ColVehicles,
		Color: dataset.ColDistrict,
		Hover: []string{transform.ColVehicles, transform.ColIncidents, transform.ColVictims},
	}, style)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValBinnedFig: fig}, nil
}

func evalSummary(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	ds, err := cellgraph.Get[*dataset.Dataset](in, ValDataset)
	if err != nil {
		return nil, err
	}
	summary, err := transform.TemporalSummary(ds)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValSummary: summary}, nil
}

func evalSummaryFigure(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	summary, err := cellgraph.Get[*transform.Aggregate](in, ValSummary)
	if err != nil {
		return nil, err
	}
	style, err := cellgraph.Get[chart.Style](in, InStyle)
	if err != nil {
		return nil, err
	}
	style.Title = "Incidents by District"
	fig, err := chart.Bind(chart.MarkLine, summary, chart.RoleMap{
		X:     dataset.ColYearMonth,
		Y:     transform.ColIncidents,
		Color: dataset.ColDistrict,
	}, style)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValSummaryFig: fig}, nil
}

func evalSubset(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	ds, err := cellgraph.Get[*dataset.Dataset](in, ValDataset)
	if err != nil {
		return nil, err
	}
	var f transform.Filter
	for _, m := range []struct {
		name string
		dst  *transform.Membership
	}{
		{WidgetDistricts, &f.Districts},
		{WidgetNeighborhoods, &f.Neighborhoods},
		{WidgetYears, &f.Years},
		{WidgetMonths, &f.Months},
	} {
		sel, err := cellgraph.Get[widget.Selection](in, m.name)
		if err != nil {
			return nil, err
		}
		*m.dst = sel
	}
	groupBy, err := cellgraph.Get[string](in, WidgetGroupBy)
	if err != nil {
		return nil, err
	}
	xAxis, err := cellgraph.Get[string](in, WidgetXAxis)
	if err != nil {
		return nil, err
	}

	groupByKw, err := transform.GroupByColumn(groupBy)
	if err != nil {
		return nil, err
	}
	timeUnit := transform.TimeUnitColumn(xAxis)
	subset, err := transform.FilteredSubset(ds, f, groupByKw, timeUnit)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{
		ValGroupByKw:     groupByKw,
		ValTimeUnit:      timeUnit,
		ValSubsetSummary: subset,
	}, nil
}

func evalCustomFigure(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	subset, err := cellgraph.Get[*transform.Aggregate](in, ValSubsetSummary)
	if err != nil {
		return nil, err
	}
	groupByKw, err := cellgraph.Get[string](in, ValGroupByKw)
	if err != nil {
		return nil, err
	}
	timeUnit, err := cellgraph.Get[string](in, ValTimeUnit)
	if err != nil {
		return nil, err
	}
	yAxis, err := cellgraph.Get[string](in, WidgetYAxis)
	if err != nil {
		return nil, err
	}
	style, err := cellgraph.Get[chart.Style](in, InStyle)
	if err != nil {
		return nil, err
	}

	yColumn := transform.ValueColumn(yAxis)
	style.Title = "Custom Summary"
	fig, err := chart.Bind(chart.MarkLine, subset, chart.RoleMap{
		X:     timeUnit,
		Y:     yColumn,
		Color: groupByKw,
	}, style)
	if err != nil {
		return nil, err
	}
	return cellgraph.Values{ValYColumn: yColumn, ValCustomFig: fig}, nil
}

func evalReadout(_ context.Context, in cellgraph.Inputs) (cellgraph.Values, error) {
	opts, err := cellgraph.Get[Options](in, ValOptions)
	if err != nil {
		return nil, err
	}
	totals := map[string]int{
		WidgetDistricts:     len(opts.Districts),
		WidgetNeighborhoods: len(opts.Neighborhoods),
		WidgetYears:         len(opts.Years),
		WidgetMonths:        len(opts.Months),
	}

	readouts := make(map[string]string, len(WidgetNames))
	for _, name := range WidgetNames {
		v, err := in.Value(name)
		if err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case widget.Selection:
			readouts[name] = widget.SelectionReadout(val, totals[name])
		case string:
			readouts[name] = val
		default:
			return nil, fmt.Errorf("%w: widget %q holds %T", cellgraph.ErrTypeMismatch, name, v)
		}
	}
	text := widget.Expand(ReadoutTemplate, func(name string) (string, bool) {
		r, ok := readouts[name]
		return r, ok
	})
	return cellgraph.Values{ValReadout: text}, nil
}

// NewWidgets builds the page controls over opts. Multi-selects start with
// every option selected and dropdowns on their first option.
func NewWidgets(opts Options) (*widget.Set, error) {
	groupBy, err := widget.NewDropdown(WidgetGroupBy, "Group by", transform.GroupByChoices)
	if err != nil {
		return nil, err
	}
	xAxis, err := widget.NewDropdown(WidgetXAxis, "X-axis", transform.XAxisChoices)
	if err != nil {
		return nil, err
	}
	yAxis, err := widget.NewDropdown(WidgetYAxis, "Y-axis", transform.YAxisChoices)
	if err != nil {
		return nil, err
	}
	return widget.NewSet(
		widget.NewMultiSelect(WidgetDistricts, "Include Districts", opts.Districts),
		widget.NewMultiSelect(WidgetNeighborhoods, "Include Neighborhoods", opts.Neighborhoods),
		groupBy,
		widget.NewMultiSelect(WidgetYears, "Include Years", opts.Years),
		widget.NewMultiSelect(WidgetMonths, "Include Months", opts.Months),
		xAxis,
		yAxis,
	)
}
