package cellgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/incident-explorer/internal/monitoring"
	"github.com/banshee-data/incident-explorer/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// counter records how many times each node ran and in what order.
type counter struct {
	calls map[string]int
	trace []string
}

func newCounter() *counter { return &counter{calls: map[string]int{}} }

func (c *counter) hit(name string) {
	c.calls[name]++
	c.trace = append(c.trace, name)
}

// diamondGraph: x -> left, right -> sum; y -> other.
func diamondGraph(t *testing.T, c *counter) *Graph {
	t.Helper()
	g, err := NewBuilder().
		Input("x", "y").
		Node(Node{Name: "left", Inputs: []string{"x"}, Outputs: []string{"left"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				c.hit("left")
				x, err := Get[int](in, "x")
				return Values{"left": x + 1}, err
			}}).
		Node(Node{Name: "right", Inputs: []string{"x"}, Outputs: []string{"right"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				c.hit("right")
				x, err := Get[int](in, "x")
				return Values{"right": x * 10}, err
			}}).
		Node(Node{Name: "sum", Inputs: []string{"left", "right"}, Outputs: []string{"sum"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				c.hit("sum")
				l, err := Get[int](in, "left")
				if err != nil {
					return nil, err
				}
				r, err := Get[int](in, "right")
				return Values{"sum": l + r}, err
			}}).
		Node(Node{Name: "other", Inputs: []string{"y"}, Outputs: []string{"other"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				c.hit("other")
				y, err := Get[string](in, "y")
				return Values{"other": strings.ToUpper(y)}, err
			}}).
		Build()
	require.NoError(t, err)
	return g
}

func TestEvaluate_RunsEachReachableNodeOnceInOrder(t *testing.T) {
	c := newCounter()
	g := diamondGraph(t, c)
	ctx := context.Background()

	report, err := g.Evaluate(ctx, Values{"x": 2, "y": "a"})
	require.NoError(t, err)
	assert.True(t, report.Committed)
	assert.Equal(t, []string{"x", "y"}, report.Changed)
	assert.Equal(t, []string{"left", "right", "sum", "other"}, report.Evaluated)
	assert.Equal(t, []string{"left", "right", "sum", "other"}, c.trace)
	assert.NotEmpty(t, report.ID)

	sum, err := Lookup[int](g, "sum")
	require.NoError(t, err)
	assert.Equal(t, 3+20, sum)

	// Only the x side reruns.
	c.trace = nil
	report, err = g.Evaluate(ctx, Values{"x": 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right", "sum"}, report.Evaluated)
	assert.Equal(t, map[string]int{"left": 2, "right": 2, "sum": 2, "other": 1}, c.calls)
	assert.Equal(t, uint64(1), g.Generation("other"))
	assert.Equal(t, uint64(2), g.Generation("sum"))
	assert.Equal(t, uint64(2), g.Passes())

	sum, _ = Lookup[int](g, "sum")
	assert.Equal(t, 6+50, sum)
}

func TestEvaluate_PendingUntilInputsAvailable(t *testing.T) {
	c := newCounter()
	g := diamondGraph(t, c)
	ctx := context.Background()

	report, err := g.Evaluate(ctx, Values{"y": "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, report.Evaluated)
	assert.Empty(t, report.Pending, "x-side nodes are not reachable from y")

	g2, err := NewBuilder().
		Input("a", "b").
		Node(Node{Name: "needs_both", Inputs: []string{"a", "b"}, Outputs: []string{"ab"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				a, _ := Get[int](in, "a")
				b, _ := Get[int](in, "b")
				return Values{"ab": a * b}, nil
			}}).
		Node(Node{Name: "after", Inputs: []string{"ab"}, Outputs: []string{"after"}, Eval: constant(true, "after")}).
		Build()
	require.NoError(t, err)

	report, err = g2.Evaluate(ctx, Values{"a": 3})
	require.NoError(t, err)
	assert.Empty(t, report.Evaluated)
	assert.Equal(t, []string{"needs_both", "after"}, report.Pending)
	_, ok := g2.Value("ab")
	assert.False(t, ok)

	report, err = g2.Evaluate(ctx, Values{"b": 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"needs_both", "after"}, report.Evaluated)
	ab, _ := Lookup[int](g2, "ab")
	assert.Equal(t, 12, ab)
}

func TestEvaluate_FailureCommitsNothing(t *testing.T) {
	fail := false
	g, err := NewBuilder().
		Input("x").
		Node(Node{Name: "first", Inputs: []string{"x"}, Outputs: []string{"first"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				x, _ := Get[int](in, "x")
				return Values{"first": x}, nil
			}}).
		Node(Node{Name: "second", Inputs: []string{"first"}, Outputs: []string{"second"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				if fail {
					return nil, errors.New("figure rejected")
				}
				v, _ := Get[int](in, "first")
				return Values{"second": v * 2}, nil
			}}).
		Build()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = g.Evaluate(ctx, Values{"x": 1})
	require.NoError(t, err)

	fail = true
	report, err := g.Evaluate(ctx, Values{"x": 7})
	var nodeErr *NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "second", nodeErr.Node)
	assert.Equal(t, report.ID, nodeErr.Pass)
	assert.EqualError(t, errors.Unwrap(err), "figure rejected")
	assert.False(t, report.Committed)

	// The last good values are still visible, including the input.
	assert.Equal(t, Values{"x": 1, "first": 1, "second": 2}, g.Snapshot())
	assert.Equal(t, uint64(1), g.Generation("first"))
}

func TestEvaluate_MultiOutputNodeIsSeenWhole(t *testing.T) {
	var seen []string
	g, err := NewBuilder().
		Input("mode").
		Node(Node{Name: "split", Inputs: []string{"mode"}, Outputs: []string{"key", "rows"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				m, _ := Get[string](in, "mode")
				return Values{"key": m, "rows": []string{m + "-1", m + "-2"}}, nil
			}}).
		Node(Node{Name: "check", Inputs: []string{"key", "rows"}, Outputs: []string{"ok"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				k, _ := Get[string](in, "key")
				rows, _ := Get[[]string](in, "rows")
				for _, r := range rows {
					if !strings.HasPrefix(r, k) {
						return nil, fmt.Errorf("row %q does not match key %q", r, k)
					}
				}
				return Values{"ok": true}, nil
			}}).
		Build()
	require.NoError(t, err)

	g.Observe("ok", func(string, any) {
		key, _ := g.Value("key")
		rows, _ := g.Value("rows")
		seen = append(seen, fmt.Sprintf("%v:%v", key, rows))
	})

	ctx := context.Background()
	for _, mode := range []string{"districts", "neighborhoods", "districts"} {
		_, err := g.Evaluate(ctx, Values{"mode": mode})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{
		"districts:[districts-1 districts-2]",
		"neighborhoods:[neighborhoods-1 neighborhoods-2]",
		"districts:[districts-1 districts-2]",
	}, seen)
}

func TestEvaluate_OutputContract(t *testing.T) {
	tests := []struct {
		name string
		eval EvalFunc
		want error
	}{
		{"missing output", constant(1, "other"), ErrMissingOutput},
		{"extra output", func(context.Context, Inputs) (Values, error) {
			return Values{"out": 1, "global": 2}, nil
		}, ErrUndeclaredOutput},
		{"undeclared read", func(_ context.Context, in Inputs) (Values, error) {
			_, err := in.Value("secret")
			return nil, err
		}, ErrUndeclaredInput},
		{"wrong type", func(_ context.Context, in Inputs) (Values, error) {
			_, err := Get[string](in, "x")
			return nil, err
		}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewBuilder().
				Input("x", "secret").
				Node(Node{Name: "n", Inputs: []string{"x"}, Outputs: []string{"out"}, Eval: tt.eval}).
				Build()
			require.NoError(t, err)
			_, err = g.Evaluate(context.Background(), Values{"x": 1})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEvaluate_PanicBecomesNodeError(t *testing.T) {
	g, err := NewBuilder().
		Input("x").
		Node(Node{Name: "boom", Inputs: []string{"x"}, Outputs: []string{"y"},
			Eval: func(context.Context, Inputs) (Values, error) { panic("index out of range") }}).
		Build()
	require.NoError(t, err)

	_, err = g.Evaluate(context.Background(), Values{"x": 1})
	var nodeErr *NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Contains(t, nodeErr.Error(), "panic: index out of range")
}

func TestEvaluate_UnknownInput(t *testing.T) {
	g := diamondGraph(t, newCounter())
	_, err := g.Evaluate(context.Background(), Values{"left": 1})
	assert.ErrorIs(t, err, ErrUnknownInput)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	g := diamondGraph(t, newCounter())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Evaluate(ctx, Values{"x": 1})
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := g.Value("x")
	assert.False(t, ok)
}

func TestEvaluate_SourceNodesRunOnce(t *testing.T) {
	runs := 0
	g, err := NewBuilder().
		Input("x").
		Node(Node{Name: "labels", Outputs: []string{"labels"},
			Eval: func(context.Context, Inputs) (Values, error) {
				runs++
				return Values{"labels": map[string]string{"n_victims": "Number of Victims"}}, nil
			}}).
		Node(Node{Name: "use", Inputs: []string{"x", "labels"}, Outputs: []string{"use"}, Eval: constant(1, "use")}).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := g.Evaluate(ctx, Values{"x": i})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, runs)
}

func TestEvaluate_Idempotent(t *testing.T) {
	g := diamondGraph(t, newCounter())
	ctx := context.Background()
	in := Values{"x": 4, "y": "gràcia"}

	_, err := g.Evaluate(ctx, in)
	require.NoError(t, err)
	first := g.Snapshot()

	_, err = g.Evaluate(ctx, in)
	require.NoError(t, err)
	if diff := cmp.Diff(first, g.Snapshot()); diff != "" {
		t.Errorf("re-evaluation changed outputs (-first +second):\n%s", diff)
	}
}

func TestEvaluate_ReentrantCallRejected(t *testing.T) {
	g := diamondGraph(t, newCounter())
	var inner error
	g.Observe("sum", func(string, any) {
		_, inner = g.Evaluate(context.Background(), Values{"x": 100})
	})

	_, err := g.Evaluate(context.Background(), Values{"x": 1})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrPassInProgress)
}

func TestObserve_OrderAndCancel(t *testing.T) {
	g := diamondGraph(t, newCounter())
	var got []string
	record := func(name string, v any) { got = append(got, fmt.Sprintf("%s=%v", name, v)) }
	g.Observe("x", record)
	g.Observe("sum", record)
	cancel := g.Observe("left", record)

	_, err := g.Evaluate(context.Background(), Values{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"x=1", "left=2", "sum=12"}, got)

	got = nil
	cancel()
	_, err = g.Evaluate(context.Background(), Values{"x": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"x=2", "sum=23"}, got)
}

func TestAffectedAndDescribe(t *testing.T) {
	g := diamondGraph(t, newCounter())
	assert.Equal(t, []string{"left", "right", "sum"}, g.Affected("x"))
	assert.Equal(t, []string{"sum"}, g.Affected("left"))
	assert.Empty(t, g.Affected("sum"))

	var b strings.Builder
	require.NoError(t, g.Describe(&b))
	assert.Contains(t, b.String(), "sum(left, right) -> sum")
	assert.True(t, strings.HasPrefix(b.String(), "inputs: x, y\n"))
}

func TestEvaluate_DurationUsesClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	g, err := NewBuilder().
		WithClock(clock).
		Input("x").
		Node(Node{Name: "slow", Inputs: []string{"x"}, Outputs: []string{"slow"},
			Eval: func(_ context.Context, in Inputs) (Values, error) {
				clock.Advance(250 * time.Millisecond)
				x, err := Get[int](in, "x")
				return Values{"slow": x}, err
			}}).
		Build()
	require.NoError(t, err)

	report, err := g.Evaluate(context.Background(), Values{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, report.Duration)
}
