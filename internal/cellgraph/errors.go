package cellgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownInput is returned when a pass names a value that is not a
	// declared external input of the graph.
	ErrUnknownInput = errors.New("cellgraph: unknown external input")
	// ErrNotAvailable is returned when a value has not been computed yet.
	ErrNotAvailable = errors.New("cellgraph: value not available")
	// ErrTypeMismatch is returned by Get and Lookup when a value has a different type.
	ErrTypeMismatch = errors.New("cellgraph: type mismatch")
	// ErrUndeclaredInput is returned when a node reads a name it did not declare.
	ErrUndeclaredInput = errors.New("cellgraph: read of undeclared input")
	// ErrUndeclaredOutput is returned when a node writes a name it did not declare.
	ErrUndeclaredOutput = errors.New("cellgraph: write of undeclared output")
	// ErrMissingOutput is returned when a node omits one of its declared outputs.
	ErrMissingOutput = errors.New("cellgraph: declared output not produced")
	// ErrPassInProgress is returned when Evaluate is entered while another pass runs.
	ErrPassInProgress = errors.New("cellgraph: evaluation pass already in progress")
)

// CyclicDependencyError reports that no dependency order exists. Nodes lists
// every node that could not be ordered, in declaration order.
type CyclicDependencyError struct {
	Nodes []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cellgraph: cyclic dependency among nodes [%s]", strings.Join(e.Nodes, ", "))
}

// UnresolvedInputError reports a node input that no node produces and that is
// not a declared external input.
type UnresolvedInputError struct {
	Node  string
	Input string
}

func (e *UnresolvedInputError) Error() string {
	return fmt.Sprintf("cellgraph: node %q reads %q, which nothing produces", e.Node, e.Input)
}

// DuplicateOutputError reports a name with more than one producer. An external
// input counts as a producer named "<input>".
type DuplicateOutputError struct {
	Name      string
	Producers []string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("cellgraph: %q produced by more than one source [%s]", e.Name, strings.Join(e.Producers, ", "))
}

// NodeError wraps a failure raised while evaluating a node. The pass that
// produced it committed nothing.
type NodeError struct {
	Node string
	Pass string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("cellgraph: node %q failed in pass %s: %v", e.Node, e.Pass, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
