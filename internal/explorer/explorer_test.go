package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/incident-explorer/internal/cellgraph"
	"github.com/banshee-data/incident-explorer/internal/chart"
	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/fsutil"
	"github.com/banshee-data/incident-explorer/internal/monitoring"
	"github.com/banshee-data/incident-explorer/internal/testutil"
	"github.com/banshee-data/incident-explorer/internal/transform"
	"github.com/banshee-data/incident-explorer/internal/widget"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func settingsFor(t *testing.T, records []dataset.Record) Settings {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("accidents.feather", testutil.Feather(t, records), 0o644))
	return Settings{
		Loader:      dataset.NewLocalLoader(fs, "accidents.feather"),
		NBins:       transform.DefaultBins,
		Style:       chart.Style{Template: "simple_white", Width: 800, Height: 600},
		PreviewRows: 5,
	}
}

type recorder struct {
	mu    sync.Mutex
	views []View
}

func (r *recorder) render(v View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
	return nil
}

func (r *recorder) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func startSession(t *testing.T, records []dataset.Record) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := NewSession(settingsFor(t, records), rec.render)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	return s, rec
}

func subset(t *testing.T, s *Session) *transform.Aggregate {
	t.Helper()
	agg, err := cellgraph.Lookup[*transform.Aggregate](s.Graph(), ValSubsetSummary)
	require.NoError(t, err)
	return agg
}

func TestGraph_Order(t *testing.T) {
	g, err := NewGraph()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"load", "options", "preview", "bin", "binned_figure",
		"summarize", "summary_figure", "subset", "custom_figure", "readout",
	}, g.Order())
	assert.Equal(t, []string{"subset", "custom_figure", "readout"}, g.Affected(WidgetXAxis))
	assert.Equal(t, []string{"custom_figure", "readout"}, g.Affected(WidgetYAxis))
}

func TestSession_StartDefaults(t *testing.T) {
	records := testutil.ThreeIncidents()
	s, rec := startSession(t, records)

	ws := s.Widgets()
	require.NotNil(t, ws)
	assert.Equal(t, WidgetNames, ws.Names())

	d, err := ws.Get(WidgetDistricts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Eixample", "Gràcia"}, d.Selected())
	m, err := ws.Get(WidgetMonths)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, m.Options())
	g, err := ws.Get(WidgetGroupBy)
	require.NoError(t, err)
	assert.Equal(t, "Districts", g.Current())

	agg := subset(t, s)
	assert.Equal(t, len(records), agg.Total())
	assert.Equal(t, []string{"district_name", "year_month", "n_incidents", "n_victims", "n_vehicles", "year", "month"}, agg.Columns())

	v := rec.last()
	assert.Empty(t, v.Error)
	assert.Equal(t, 3, v.Rows)
	assert.Len(t, v.Preview, 3)
	require.Len(t, v.Figures, 3)
	assert.Equal(t, FigureNames, []string{v.Figures[0].Name, v.Figures[1].Name, v.Figures[2].Name})
	assert.Equal(t, "Barcelona Accident Data", v.Figures[0].Figure.Style.Title)
	assert.True(t, v.Figures[0].Figure.Style.HideTicks)
	assert.Contains(t, v.Readout, "- Include Districts: all 2 selected")
	assert.Contains(t, v.Readout, "- X-axis: Month")
}

func TestSession_FilterExample(t *testing.T) {
	s, rec := startSession(t, testutil.ThreeIncidents())
	ctx := context.Background()

	_, err := s.Apply(ctx, WidgetDistricts, "Gràcia")
	require.NoError(t, err)
	_, err = s.Apply(ctx, WidgetYears, "2020")
	require.NoError(t, err)
	_, err = s.Apply(ctx, WidgetMonths, "1")
	require.NoError(t, err)

	agg := subset(t, s)
	require.Equal(t, 1, agg.Len())
	assert.Equal(t, 1, agg.Rows[0].Incidents)
	assert.Equal(t, []any{"Gràcia", "2020-01"}, agg.Rows[0].Key)
	assert.Contains(t, rec.last().Readout, "- Include Districts: Gràcia")
}

func TestSession_XAxisLocality(t *testing.T) {
	s, _ := startSession(t, testutil.Synthetic(400, 9))
	g := s.Graph()

	static := []string{ValDataset, ValBinned, ValBinnedFig, ValSummary, ValSummaryFig, ValPreview}
	before := map[string]uint64{}
	for _, name := range static {
		before[name] = g.Generation(name)
	}
	subsetGen := g.Generation(ValSubsetSummary)
	figGen := g.Generation(ValCustomFig)
	binned, err := cellgraph.Lookup[*transform.Aggregate](g, ValBinned)
	require.NoError(t, err)

	report, err := s.Apply(context.Background(), WidgetXAxis, "Year")
	require.NoError(t, err)
	assert.Equal(t, []string{"subset", "custom_figure", "readout"}, report.Evaluated)

	for _, name := range static {
		assert.Equal(t, before[name], g.Generation(name), "%s must not be recomputed", name)
	}
	assert.Greater(t, g.Generation(ValSubsetSummary), subsetGen)
	assert.Greater(t, g.Generation(ValCustomFig), figGen)
	again, err := cellgraph.Lookup[*transform.Aggregate](g, ValBinned)
	require.NoError(t, err)
	assert.Same(t, binned, again)

	unit, err := cellgraph.Lookup[string](g, ValTimeUnit)
	require.NoError(t, err)
	assert.Equal(t, dataset.ColYear, unit)
	assert.Equal(t, []string{"district_name", "year", "n_incidents", "n_victims", "n_vehicles"}, subset(t, s).Columns())
}

func TestSession_GroupByAndYAxis(t *testing.T) {
	s, _ := startSession(t, testutil.ThreeIncidents())
	ctx := context.Background()

	_, err := s.Apply(ctx, WidgetGroupBy, "Neighborhoods")
	require.NoError(t, err)
	_, err = s.Apply(ctx, WidgetYAxis, "Vehicles")
	require.NoError(t, err)

	kw, err := cellgraph.Lookup[string](s.Graph(), ValGroupByKw)
	require.NoError(t, err)
	assert.Equal(t, dataset.ColNeighborhood, kw)
	y, err := cellgraph.Lookup[string](s.Graph(), ValYColumn)
	require.NoError(t, err)
	assert.Equal(t, transform.ColVehicles, y)

	fig, err := cellgraph.Lookup[*chart.Figure](s.Graph(), ValCustomFig)
	require.NoError(t, err)
	assert.Equal(t, "n_vehicles", fig.Encoding["y"].Field)
	assert.Equal(t, "Neighborhood", fig.Encoding["color"].Title)
	assert.Len(t, fig.Series, 3)
}

func TestSession_EmptySelection(t *testing.T) {
	s, rec := startSession(t, testutil.ThreeIncidents())

	_, err := s.Apply(context.Background(), WidgetNeighborhoods)
	require.NoError(t, err)
	assert.Zero(t, subset(t, s).Len())
	assert.Empty(t, rec.last().Error)
	assert.Contains(t, rec.last().Readout, "Include Neighborhoods: none")
}

func TestSession_InvalidValue(t *testing.T) {
	s, _ := startSession(t, testutil.ThreeIncidents())
	passes := s.Graph().Passes()

	_, err := s.Apply(context.Background(), WidgetYears, "1999")
	var invalid *widget.InvalidValueError
	require.True(t, errors.As(err, &invalid))
	_, err = s.Apply(context.Background(), "weekday", "Monday")
	assert.ErrorIs(t, err, widget.ErrUnknownWidget)
	assert.Equal(t, passes, s.Graph().Passes(), "rejected input must not start a pass")
}

func TestSession_FailedPassKeepsPreviousState(t *testing.T) {
	s, rec := startSession(t, testutil.ThreeIncidents())
	before := subset(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Apply(ctx, WidgetDistricts, "Gràcia")
	var nodeErr *cellgraph.NodeError
	require.True(t, errors.As(err, &nodeErr))

	w, err := s.Widgets().Get(WidgetDistricts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Eixample", "Gràcia"}, w.Selected(), "widget reverted")
	assert.Same(t, before, subset(t, s))

	v := rec.last()
	assert.NotEmpty(t, v.Error)
	assert.Len(t, v.Figures, 3, "last figures stay visible")
}

func TestSession_WidgetChangeEventsDrivePasses(t *testing.T) {
	s, rec := startSession(t, testutil.ThreeIncidents())
	ctx := context.Background()
	rendered := len(rec.views)

	x, err := s.Widgets().Get(WidgetXAxis)
	require.NoError(t, err)
	require.NoError(t, x.Set("Year"))
	assert.Equal(t, rendered, len(rec.views), "a change event alone does not evaluate")

	report, err := s.Apply(ctx, WidgetYAxis, "Vehicles")
	require.NoError(t, err)
	assert.Equal(t, []string{WidgetXAxis, WidgetYAxis}, report.Changed)
	assert.Equal(t, rendered+1, len(rec.views), "observers trigger one render per pass")

	unit, err := cellgraph.Lookup[string](s.Graph(), ValTimeUnit)
	require.NoError(t, err)
	assert.Equal(t, dataset.ColYear, unit)

	// the revert of a failed pass is not replayed into the next one
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Apply(cancelled, WidgetDistricts, "Gràcia")
	require.Error(t, err)
	report, err = s.Apply(ctx, WidgetMonths, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{WidgetMonths}, report.Changed)
}

func TestSession_DataUnavailable(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	rec := &recorder{}
	s, err := NewSession(Settings{Loader: dataset.NewLocalLoader(fs, "missing.feather"), NBins: 40}, rec.render)
	require.NoError(t, err)

	err = s.Start(context.Background())
	var unavailable *dataset.DataUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Nil(t, s.Widgets())

	v := rec.last()
	assert.Contains(t, v.Error, "missing.feather")
	assert.Empty(t, v.Figures)

	_, err = s.Apply(context.Background(), WidgetXAxis, "Year")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSession_Idempotent(t *testing.T) {
	records := testutil.Synthetic(500, 21)
	a, _ := startSession(t, records)
	b, _ := startSession(t, records)

	for _, name := range append([]string{ValBinned, ValSummary, ValSubsetSummary, ValReadout}, FigureNames...) {
		va, _ := a.Graph().Value(name)
		vb, _ := b.Graph().Value(name)
		if diff := cmp.Diff(va, vb); diff != "" {
			t.Errorf("%s differs between identical sessions (-a +b):\n%s", name, diff)
		}
	}

	ja, err := json.Marshal(a.View(nil).Figures)
	require.NoError(t, err)
	jb, err := json.Marshal(b.View(nil).Figures)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestSession_QueuedChanges(t *testing.T) {
	s, _ := startSession(t, testutil.ThreeIncidents())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changes := []Change{
		{Widget: WidgetXAxis, Values: []string{"Year"}},
		{Widget: WidgetYears, Values: []string{"1999"}},
		{Widget: WidgetXAxis, Values: []string{"Month"}},
	}
	var results []<-chan Result
	for _, c := range changes {
		done, err := s.Submit(ctx, c)
		require.NoError(t, err)
		results = append(results, done)
	}

	runCtx, stop := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(runCtx) }()

	var ids []string
	for i, done := range results {
		r := <-done
		assert.Equal(t, changes[i], r.Change)
		if i == 1 {
			assert.Error(t, r.Err)
			continue
		}
		require.NoError(t, r.Err)
		ids = append(ids, r.Report.ID)
	}
	stop()
	assert.ErrorIs(t, <-runDone, context.Canceled)
	assert.NotEqual(t, ids[0], ids[1])

	unit, err := cellgraph.Lookup[string](s.Graph(), ValTimeUnit)
	require.NoError(t, err)
	assert.Equal(t, dataset.ColYearMonth, unit)
}

func TestPageWriter(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	pw := &PageWriter{FS: fs, Dir: "site", Title: "Barcelona Traffic Incidents", PNG: true}
	rec := &recorder{}
	s, err := NewSession(settingsFor(t, testutil.ThreeIncidents()), func(v View) error {
		_ = rec.render(v)
		return pw.Write(v)
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, []string{
		"site/charts.html", "site/figures.json", "site/index.html",
		"site/png/custom_fig.png", "site/png/fig.png", "site/png/summary_lineplot.png",
	}, fs.Files("site/"))

	index, err := fs.ReadFile("site/index.html")
	require.NoError(t, err)
	html := string(index)
	assert.Contains(t, html, `data-widget="districts"`)
	assert.Contains(t, html, `<option value="Gràcia" selected>`)
	assert.Contains(t, html, "la Dreta de l&#39;Eixample")
	assert.Contains(t, html, `<iframe id="charts" src="charts.html">`)
	assert.NotContains(t, html, `class="error"`)

	raw, err := fs.ReadFile("site/figures.json")
	require.NoError(t, err)
	var spec View
	require.NoError(t, json.Unmarshal(raw, &spec))
	assert.Len(t, spec.Figures, 3)
	assert.Equal(t, s.ID, spec.Session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Apply(ctx, WidgetXAxis, "Year")
	require.Error(t, err)
	index, err = fs.ReadFile("site/index.html")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(index), `class="error"`))
}
