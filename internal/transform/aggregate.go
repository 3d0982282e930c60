// Package transform derives the aggregate tables the explorer charts from the
// incident dataset. Every function here is pure: the same dataset and
// parameters always give the same rows in the same order.
package transform

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/incident-explorer/internal/dataset"
)

// Reduced column names shared by every aggregate.
const (
	ColIncidents = "n_incidents"
	ColVehicles  = "n_vehicles"
	ColVictims   = "n_victims"
)

// ErrUnknownColumn is returned when a grouping or lookup names a column the
// table does not carry.
var ErrUnknownColumn = errors.New("transform: unknown column")

// Row is one aggregate row: the group key, the reduced counts and any
// columns derived from the key.
type Row struct {
	Key       []any
	Derived   []any
	Incidents int
	Vehicles  int
	Victims   int
}

// Aggregate is a grouped table. Rows are sorted by key.
type Aggregate struct {
	Dimensions []string
	Extra      []string
	Rows       []Row
}

// Columns lists key columns, then the reduced counts, then derived columns.
func (a *Aggregate) Columns() []string {
	cols := make([]string, 0, len(a.Dimensions)+3+len(a.Extra))
	cols = append(cols, a.Dimensions...)
	cols = append(cols, ColIncidents, ColVictims, ColVehicles)
	return append(cols, a.Extra...)
}

// Len returns the number of rows.
func (a *Aggregate) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Rows)
}

// Value returns the cell at row i, column col.
func (a *Aggregate) Value(i int, col string) (any, error) {
	if i < 0 || i >= len(a.Rows) {
		return nil, fmt.Errorf("transform: row %d out of range [0,%d)", i, len(a.Rows))
	}
	r := a.Rows[i]
	switch col {
	case ColIncidents:
		return r.Incidents, nil
	case ColVehicles:
		return r.Vehicles, nil
	case ColVictims:
		return r.Victims, nil
	}
	if k := slices.Index(a.Dimensions, col); k >= 0 {
		return r.Key[k], nil
	}
	if k := slices.Index(a.Extra, col); k >= 0 {
		return r.Derived[k], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, col)
}

// Total is the number of records folded into the table.
func (a *Aggregate) Total() int {
	n := 0
	for _, r := range a.Rows {
		n += r.Incidents
	}
	return n
}

// groupKey holds up to three key values; unused slots stay nil.
type groupKey [3]any

// group reduces records sharing a key. keyOf fills the key in dimension
// order; records for which keep is false are skipped.
func group(ds *dataset.Dataset, dims []string, keep Predicate, keyOf func(dataset.Record) groupKey) *Aggregate {
	byKey := make(map[groupKey]*Row)
	for _, rec := range ds.All() {
		if keep != nil && !keep(rec) {
			continue
		}
		k := keyOf(rec)
		row, ok := byKey[k]
		if !ok {
			row = &Row{Key: append([]any(nil), k[:len(dims)]...)}
			byKey[k] = row
		}
		row.Incidents++
		row.Vehicles += rec.Vehicles
		row.Victims += rec.Victims
	}

	out := &Aggregate{Dimensions: dims, Rows: make([]Row, 0, len(byKey))}
	for _, row := range byKey {
		out.Rows = append(out.Rows, *row)
	}
	slices.SortFunc(out.Rows, func(x, y Row) int { return compareKeys(x.Key, y.Key) })
	return out
}

func compareKeys(a, b []any) int {
	for i := range min(len(a), len(b)) {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
