package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/incident-explorer/internal/cellgraph"
	"github.com/banshee-data/incident-explorer/internal/chart"
	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/monitoring"
	"github.com/banshee-data/incident-explorer/internal/widget"
)

// ErrNotStarted is returned by Apply before Start has loaded the dataset.
var ErrNotStarted = errors.New("explorer: session not started")

// Settings are the non-widget inputs of a session.
type Settings struct {
	Loader      dataset.Loader
	NBins       int
	Style       chart.Style
	PreviewRows int
}

// RenderFunc receives the page state after every pass, successful or not.
type RenderFunc func(View) error

// Change is one reader interaction queued for evaluation.
type Change struct {
	Widget string
	Values []string
}

// Result reports the outcome of one queued change.
type Result struct {
	Change Change
	Report *cellgraph.PassReport
	Err    error
}

// Session owns one page graph and the widgets feeding it. Changes are applied
// one at a time, each in its own pass.
type Session struct {
	ID string

	settings Settings
	graph    *cellgraph.Graph
	render   RenderFunc

	mu      sync.Mutex
	widgets *widget.Set
	pending cellgraph.Values

	// dirty is set by graph observers when a rendered value is replaced.
	dirty atomic.Bool

	queue chan queued
}

type queued struct {
	change Change
	done   chan Result
}

// NewSession declares the page graph. render may be nil.
func NewSession(settings Settings, render RenderFunc) (*Session, error) {
	if settings.Loader == nil {
		return nil, errors.New("explorer: settings need a loader")
	}
	g, err := NewGraph()
	if err != nil {
		return nil, fmt.Errorf("explorer: build graph: %w", err)
	}
	s := &Session{
		ID:       uuid.NewString(),
		settings: settings,
		graph:    g,
		render:   render,
		pending:  make(cellgraph.Values),
		queue:    make(chan queued, 64),
	}
	for _, name := range append([]string{ValReadout, ValPreview}, FigureNames...) {
		g.Observe(name, func(string, any) { s.dirty.Store(true) })
	}
	return s, nil
}

// Graph returns the session's cell graph.
func (s *Session) Graph() *cellgraph.Graph { return s.graph }

// Widgets returns the page controls, nil before Start.
func (s *Session) Widgets() *widget.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.widgets
}

// Start loads the dataset, builds the widgets from it and evaluates the
// whole page. A load failure is returned as is and rendered as the page
// error; nothing is retried.
func (s *Session) Start(ctx context.Context) error {
	monitoring.Logf("session %s: loading %s dataset from %s", s.ID, s.settings.Loader.Strategy(), s.settings.Loader.Location())
	if _, err := s.graph.Evaluate(ctx, cellgraph.Values{
		InSource:      s.settings.Loader,
		InNBins:       s.settings.NBins,
		InStyle:       s.settings.Style,
		InPreviewRows: s.settings.PreviewRows,
	}); err != nil {
		s.showFailure(err)
		return err
	}

	opts, err := cellgraph.Lookup[Options](s.graph, ValOptions)
	if err != nil {
		return err
	}
	ws, err := NewWidgets(opts)
	if err != nil {
		return err
	}

	state := ws.State()
	changes := make(cellgraph.Values, len(state))
	for name, v := range state {
		changes[name] = v
	}
	if _, err := s.graph.Evaluate(ctx, changes); err != nil {
		s.showFailure(err)
		return err
	}

	for _, name := range ws.Names() {
		w, err := ws.Get(name)
		if err != nil {
			return err
		}
		w.OnChange(s.inputChanged)
	}

	s.mu.Lock()
	s.widgets = ws
	s.mu.Unlock()
	return s.flush()
}

// Apply sets one widget and runs the pass it triggers. An invalid value is
// rejected before evaluation. When the pass fails the widget is reverted, the
// previous figures stay in place and the page shows the error.
func (s *Session) Apply(ctx context.Context, name string, values ...string) (*cellgraph.PassReport, error) {
	ws := s.Widgets()
	if ws == nil {
		return nil, ErrNotStarted
	}
	w, err := ws.Get(name)
	if err != nil {
		return nil, err
	}
	previous := w.Selected()
	if err := w.Set(values...); err != nil {
		return nil, err
	}

	report, err := s.graph.Evaluate(ctx, s.takePending())
	if err != nil {
		if rerr := w.Set(previous...); rerr != nil {
			monitoring.Logf("session %s: revert %s: %v", s.ID, name, rerr)
		}
		// The graph still holds the reverted value.
		s.takePending()
		s.showFailure(err)
		return report, err
	}
	return report, s.flush()
}

// inputChanged records a widget change event as a pending graph input.
func (s *Session) inputChanged(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[name] = value
}

func (s *Session) takePending() cellgraph.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := s.pending
	s.pending = make(cellgraph.Values)
	return changes
}

// flush renders the page when the last pass replaced anything it shows.
func (s *Session) flush() error {
	if !s.dirty.Swap(false) {
		return nil
	}
	return s.show(nil)
}

// Submit queues a change for Run. It blocks while the queue is full.
func (s *Session) Submit(ctx context.Context, c Change) (<-chan Result, error) {
	done := make(chan Result, 1)
	select {
	case s.queue <- queued{change: c, done: done}:
		return done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run applies queued changes in arrival order until ctx is done. Changes are
// never coalesced.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-s.queue:
			report, err := s.Apply(ctx, q.change.Widget, q.change.Values...)
			if err != nil {
				monitoring.Logf("session %s: change %s=%v failed: %v", s.ID, q.change.Widget, q.change.Values, err)
			}
			q.done <- Result{Change: q.change, Report: report, Err: err}
		}
	}
}

// View snapshots the committed page state, with failure as the error shown.
func (s *Session) View(failure error) View {
	v := View{Session: s.ID, Passes: s.graph.Passes()}
	if failure != nil {
		v.Error = failure.Error()
	}
	if ws := s.Widgets(); ws != nil {
		v.Controls = ws.Describe()
	}
	if text, err := cellgraph.Lookup[string](s.graph, ValReadout); err == nil {
		v.Readout = text
	}
	if rows, err := cellgraph.Lookup[[]dataset.Record](s.graph, ValPreview); err == nil {
		v.Preview = rows
	}
	if ds, err := cellgraph.Lookup[*dataset.Dataset](s.graph, ValDataset); err == nil {
		v.Rows = ds.Len()
	}
	for _, name := range FigureNames {
		if fig, err := cellgraph.Lookup[*chart.Figure](s.graph, name); err == nil {
			v.Figures = append(v.Figures, NamedFigure{Name: name, Figure: fig})
		}
	}
	return v
}

func (s *Session) show(failure error) error {
	if s.render == nil {
		return nil
	}
	if err := s.render(s.View(failure)); err != nil {
		return fmt.Errorf("explorer: render page: %w", err)
	}
	return nil
}

func (s *Session) showFailure(failure error) {
	if err := s.show(failure); err != nil {
		monitoring.Logf("session %s: %v", s.ID, err)
	}
}
