package cellgraph

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/incident-explorer/internal/monitoring"
	"github.com/banshee-data/incident-explorer/internal/timeutil"
)

// Graph is a validated, immutable set of nodes plus the cache of their
// committed outputs. Evaluate is single-threaded: overlapping calls fail
// with ErrPassInProgress rather than interleave.
type Graph struct {
	nodes      []*Node
	external   map[string]bool
	producer   map[string]int
	consumers  map[string][]int
	downstream [][]int
	order      []int
	clock      timeutil.Clock

	busy atomic.Bool

	mu        sync.RWMutex
	values    map[string]entry
	evaluated []bool
	observers map[string][]*observer
	passes    uint64
}

type entry struct {
	value      any
	generation uint64
}

type observer struct {
	fn func(name string, value any)
}

// PassReport describes one completed or aborted evaluation pass.
type PassReport struct {
	ID        string
	Changed   []string
	Evaluated []string
	Pending   []string
	Committed bool
	Duration  time.Duration
}

// Inputs returns the declared external input names, sorted.
func (g *Graph) Inputs() []string {
	out := make([]string, 0, len(g.external))
	for name := range g.external {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Order returns node names in evaluation order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	for i, idx := range g.order {
		out[i] = g.nodes[idx].Name
	}
	return out
}

// Affected returns, in evaluation order, the nodes whose transitive inputs
// include any of names.
func (g *Graph) Affected(names ...string) []string {
	mark := g.reachable(names)
	var out []string
	for _, idx := range g.order {
		if mark[idx] {
			out = append(out, g.nodes[idx].Name)
		}
	}
	return out
}

// Value returns the committed value for name.
func (g *Graph) Value(name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.values[name]
	return e.value, ok
}

// Generation returns how many times name has been committed. Zero means the
// value has never been produced.
func (g *Graph) Generation(name string) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.values[name].generation
}

// Passes returns the number of committed passes.
func (g *Graph) Passes() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.passes
}

// Snapshot copies the committed values of names (all values when names is empty).
func (g *Graph) Snapshot(names ...string) Values {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(Values)
	if len(names) == 0 {
		for k, e := range g.values {
			out[k] = e.value
		}
		return out
	}
	for _, k := range names {
		if e, ok := g.values[k]; ok {
			out[k] = e.value
		}
	}
	return out
}

// Observe registers fn to run after every commit that replaces name. Callbacks
// run on the evaluating goroutine, in evaluation order, before Evaluate
// returns. The returned func unregisters fn.
func (g *Graph) Observe(name string, fn func(name string, value any)) (cancel func()) {
	o := &observer{fn: fn}
	g.mu.Lock()
	g.observers[name] = append(g.observers[name], o)
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		list := g.observers[name]
		for i, existing := range list {
			if existing == o {
				g.observers[name] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Evaluate applies changes to external inputs and recomputes every node
// reachable from them, in dependency order, each exactly once. Nodes with no
// inputs run on the first pass. A node whose inputs are not all available yet
// is left pending, together with everything downstream of it.
//
// All outputs of the pass are staged and committed together only if every
// node succeeds; on failure the previous values stay in place and the error
// is a *NodeError.
func (g *Graph) Evaluate(ctx context.Context, changes Values) (*PassReport, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer g.busy.Store(false)

	start := g.clock.Now()
	report := &PassReport{ID: uuid.NewString()}
	for name := range changes {
		if !g.external[name] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownInput, name)
		}
		report.Changed = append(report.Changed, name)
	}
	sort.Strings(report.Changed)

	mark := g.reachable(report.Changed)
	g.mu.RLock()
	for i, n := range g.nodes {
		if len(n.Inputs) == 0 && !g.evaluated[i] {
			mark[i] = true
		}
	}
	g.mu.RUnlock()

	staged := make(Values, len(changes))
	for k, v := range changes {
		staged[k] = v
	}
	var ran []int

	for _, idx := range g.order {
		if !mark[idx] {
			continue
		}
		n := g.nodes[idx]
		if missing := g.firstMissing(n, staged); missing != "" {
			monitoring.Debugf("pass %s: node %s pending on %s", report.ID, n.Name, missing)
			report.Pending = append(report.Pending, n.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Duration = g.clock.Since(start)
			return report, &NodeError{Node: n.Name, Pass: report.ID, Err: err}
		}

		out, err := g.run(ctx, n, staged)
		if err != nil {
			report.Duration = g.clock.Since(start)
			monitoring.Logf("pass %s aborted at node %s after %v: %v", report.ID, n.Name, report.Duration, err)
			return report, &NodeError{Node: n.Name, Pass: report.ID, Err: err}
		}
		for k, v := range out {
			staged[k] = v
		}
		ran = append(ran, idx)
		report.Evaluated = append(report.Evaluated, n.Name)
	}

	notify := g.commit(staged, report.Changed, ran)
	report.Committed = true
	report.Duration = g.clock.Since(start)
	monitoring.Logf("pass %s: changed=[%s] evaluated=[%s] pending=[%s] in %v",
		report.ID, strings.Join(report.Changed, ","), strings.Join(report.Evaluated, ","),
		strings.Join(report.Pending, ","), report.Duration)

	for _, fn := range notify {
		fn()
	}
	return report, nil
}

// Describe writes a readable listing of the graph in evaluation order.
func (g *Graph) Describe(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "inputs: %s\n", strings.Join(g.Inputs(), ", ")); err != nil {
		return err
	}
	for _, idx := range g.order {
		n := g.nodes[idx]
		if _, err := fmt.Fprintf(w, "%s(%s) -> %s\n", n.Name, strings.Join(n.Inputs, ", "), strings.Join(n.Outputs, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// reachable marks every node downstream of the given value names.
func (g *Graph) reachable(names []string) []bool {
	mark := make([]bool, len(g.nodes))
	stack := make([]int, 0, len(g.nodes))
	for _, name := range names {
		stack = append(stack, g.consumers[name]...)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if mark[cur] {
			continue
		}
		mark[cur] = true
		for _, d := range g.downstream[cur] {
			if !mark[d] {
				stack = append(stack, d)
			}
		}
	}
	return mark
}

func (g *Graph) firstMissing(n *Node, staged Values) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, in := range n.Inputs {
		if _, ok := staged[in]; ok {
			continue
		}
		if _, ok := g.values[in]; ok {
			continue
		}
		return in
	}
	return ""
}

func (g *Graph) run(ctx context.Context, n *Node, staged Values) (out Values, err error) {
	declared := make(map[string]bool, len(n.Inputs))
	for _, in := range n.Inputs {
		declared[in] = true
	}
	view := &passView{node: n, declared: declared, staged: staged, graph: g}

	defer func() {
		if r := recover(); r != nil {
			monitoring.Debugf("node %s panic stack:\n%s", n.Name, debug.Stack())
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	out, err = n.Eval(ctx, view)
	if err != nil {
		return nil, err
	}

	for _, name := range n.Outputs {
		if _, ok := out[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingOutput, name)
		}
	}
	if len(out) != len(n.Outputs) {
		allowed := make(map[string]bool, len(n.Outputs))
		for _, name := range n.Outputs {
			allowed[name] = true
		}
		for name := range out {
			if !allowed[name] {
				return nil, fmt.Errorf("%w: %q", ErrUndeclaredOutput, name)
			}
		}
	}
	return out, nil
}

// commit installs every staged value under one lock and returns the observer
// calls to make once the lock is released.
func (g *Graph) commit(staged Values, changed []string, ran []int) []func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.passes++
	for k, v := range staged {
		e := g.values[k]
		g.values[k] = entry{value: v, generation: e.generation + 1}
	}
	for _, idx := range ran {
		g.evaluated[idx] = true
	}

	// Inputs first, then node outputs in evaluation order.
	names := append([]string(nil), changed...)
	for _, idx := range ran {
		names = append(names, g.nodes[idx].Outputs...)
	}
	var calls []func()
	for _, name := range names {
		value := staged[name]
		for _, o := range g.observers[name] {
			fn, n := o.fn, name
			calls = append(calls, func() { fn(n, value) })
		}
	}
	return calls
}
