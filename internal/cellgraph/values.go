package cellgraph

import (
	"fmt"
)

// Values maps value names to values. Values placed in a graph are shared by
// every reader and must be treated as immutable.
type Values map[string]any

// Inputs is the read-only view a node gets of its declared inputs.
type Inputs interface {
	// Value returns the current value of a declared input.
	Value(name string) (any, error)
}

// Get reads a declared input and asserts its type.
func Get[T any](in Inputs, name string) (T, error) {
	var zero T
	v, err := in.Value(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T, want %T", ErrTypeMismatch, name, v, zero)
	}
	return typed, nil
}

// Lookup reads a committed value from the graph and asserts its type.
func Lookup[T any](g *Graph, name string) (T, error) {
	var zero T
	v, ok := g.Value(name)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotAvailable, name)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T, want %T", ErrTypeMismatch, name, v, zero)
	}
	return typed, nil
}

// passView resolves reads for one node during a pass: staged values from the
// current pass shadow committed ones.
type passView struct {
	node     *Node
	declared map[string]bool
	staged   Values
	graph    *Graph
}

func (v *passView) Value(name string) (any, error) {
	if !v.declared[name] {
		return nil, fmt.Errorf("%w: node %q read %q", ErrUndeclaredInput, v.node.Name, name)
	}
	if val, ok := v.staged[name]; ok {
		return val, nil
	}
	if e, ok := v.graph.values[name]; ok {
		return e.value, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotAvailable, name)
}
