package cellgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/banshee-data/incident-explorer/internal/timeutil"
)

// EvalFunc computes a node's outputs from its inputs. It must be a pure
// function of in: the scheduler skips nodes whose inputs did not change.
type EvalFunc func(ctx context.Context, in Inputs) (Values, error)

// Node is a named computation step with fixed input and output names.
type Node struct {
	Name    string
	Inputs  []string
	Outputs []string
	Eval    EvalFunc
}

// Builder collects external inputs and nodes and validates them into a Graph.
// Nodes are fixed once Build succeeds.
type Builder struct {
	inputs []string
	nodes  []*Node
	clock  timeutil.Clock
	err    error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{clock: timeutil.RealClock{}}
}

// WithClock sets the clock used to time passes.
func (b *Builder) WithClock(c timeutil.Clock) *Builder {
	if c != nil {
		b.clock = c
	}
	return b
}

// Input declares external input names, values supplied from outside the graph.
func (b *Builder) Input(names ...string) *Builder {
	b.inputs = append(b.inputs, names...)
	return b
}

// Node declares a computation step. Declaration order breaks ties between
// nodes that are ready at the same time.
func (b *Builder) Node(n Node) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case n.Name == "":
		b.err = fmt.Errorf("cellgraph: node #%d has no name", len(b.nodes))
	case n.Eval == nil:
		b.err = fmt.Errorf("cellgraph: node %q has no Eval func", n.Name)
	case len(n.Outputs) == 0:
		b.err = fmt.Errorf("cellgraph: node %q declares no outputs", n.Name)
	}
	for _, existing := range b.nodes {
		if existing.Name == n.Name {
			b.err = fmt.Errorf("cellgraph: node %q declared twice", n.Name)
		}
	}
	node := n
	node.Inputs = append([]string(nil), n.Inputs...)
	node.Outputs = append([]string(nil), n.Outputs...)
	b.nodes = append(b.nodes, &node)
	return b
}

// Build validates the declarations and precomputes the dependency order.
// It fails with *DuplicateOutputError, *UnresolvedInputError or
// *CyclicDependencyError before any evaluation can happen.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	producer := make(map[string]int) // value name -> node index, -1 for external inputs
	external := make(map[string]bool, len(b.inputs))
	for _, name := range b.inputs {
		if external[name] {
			return nil, &DuplicateOutputError{Name: name, Producers: []string{"<input>", "<input>"}}
		}
		external[name] = true
		producer[name] = -1
	}
	for i, n := range b.nodes {
		for _, out := range n.Outputs {
			if prev, ok := producer[out]; ok {
				return nil, &DuplicateOutputError{Name: out, Producers: []string{b.producerName(prev), n.Name}}
			}
			producer[out] = i
		}
	}

	// Edges run producer -> consumer. A node may list one upstream more than
	// once through several inputs; the edge is counted once.
	downstream := make([][]int, len(b.nodes))
	indegree := make([]int, len(b.nodes))
	consumers := make(map[string][]int)
	for i, n := range b.nodes {
		seen := make(map[int]bool)
		for _, in := range n.Inputs {
			p, ok := producer[in]
			if !ok {
				return nil, &UnresolvedInputError{Node: n.Name, Input: in}
			}
			consumers[in] = appendUnique(consumers[in], i)
			if p < 0 || seen[p] {
				continue
			}
			seen[p] = true
			downstream[p] = append(downstream[p], i)
			indegree[i]++
		}
	}

	order, err := b.topoOrder(downstream, indegree)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		nodes:      b.nodes,
		external:   external,
		producer:   producer,
		consumers:  consumers,
		downstream: downstream,
		order:      order,
		values:     make(map[string]entry),
		evaluated:  make([]bool, len(b.nodes)),
		observers:  make(map[string][]*observer),
		clock:      b.clock,
	}
	return g, nil
}

// topoOrder runs Kahn's algorithm, always taking the ready node that was
// declared first so the order is a function of the graph shape alone.
func (b *Builder) topoOrder(downstream [][]int, indegree []int) ([]int, error) {
	remaining := append([]int(nil), indegree...)
	var ready []int
	for i, d := range remaining {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(b.nodes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range downstream[next] {
			remaining[d]--
			if remaining[d] == 0 {
				ready = insertSorted(ready, d)
			}
		}
	}

	if len(order) != len(b.nodes) {
		var stuck []string
		for i, d := range remaining {
			if d > 0 {
				stuck = append(stuck, b.nodes[i].Name)
			}
		}
		return nil, &CyclicDependencyError{Nodes: stuck}
	}
	return order, nil
}

func (b *Builder) producerName(idx int) string {
	if idx < 0 {
		return "<input>"
	}
	return b.nodes[idx].Name
}

func insertSorted(s []int, v int) []int {
	i := sort.SearchInts(s, v)
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}
