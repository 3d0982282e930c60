package transform

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/incident-explorer/internal/dataset"
)

// DefaultBins is the number of bins per axis of the spatial view.
const DefaultBins = 40

// ErrInvalidBins is returned for a bin count below one.
var ErrInvalidBins = errors.New("transform: bin count must be positive")

// Bins partitions [Min, Max] into equal-width intervals. Interval i is
// [Edges[i], Edges[i+1]) except the last, which also includes Max.
type Bins struct {
	Edges []float64
}

// NewBins builds n equal-width bins spanning values. A constant range is
// widened by 0.1% each side so that it still has a width.
func NewBins(values []float64, n int) (Bins, error) {
	if n <= 0 {
		return Bins{}, fmt.Errorf("%w: %d", ErrInvalidBins, n)
	}
	if len(values) == 0 {
		return Bins{}, errors.New("transform: cannot bin an empty range")
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		pad := 0.001
		if lo != 0 {
			pad = 0.001 * math.Abs(lo)
		}
		lo, hi = lo-pad, hi+pad
	}
	return Bins{Edges: floats.Span(make([]float64, n+1), lo, hi)}, nil
}

// N returns the number of intervals.
func (b Bins) N() int { return len(b.Edges) - 1 }

// Index returns the interval holding v. Values outside the range are clamped
// to the first or last interval.
func (b Bins) Index(v float64) int {
	pos, found := slices.BinarySearch(b.Edges, v)
	i := pos - 1
	if found {
		i = pos
	}
	return max(0, min(i, b.N()-1))
}

// Mid returns the midpoint of interval i.
func (b Bins) Mid(i int) float64 {
	return (b.Edges[i] + b.Edges[i+1]) / 2
}

// SpatialBins groups records by (x bin midpoint, y bin midpoint, district)
// with nbins intervals per axis over the observed coordinate range.
func SpatialBins(ds *dataset.Dataset, nbins int) (*Aggregate, error) {
	dims := []string{dataset.ColX, dataset.ColY, dataset.ColDistrict}
	if nbins <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBins, nbins)
	}
	if ds.Len() == 0 {
		return &Aggregate{Dimensions: dims, Rows: []Row{}}, nil
	}

	xs := make([]float64, 0, ds.Len())
	ys := make([]float64, 0, ds.Len())
	for _, r := range ds.All() {
		xs = append(xs, r.X)
		ys = append(ys, r.Y)
	}
	bx, err := NewBins(xs, nbins)
	if err != nil {
		return nil, err
	}
	by, err := NewBins(ys, nbins)
	if err != nil {
		return nil, err
	}

	return group(ds, dims, nil, func(r dataset.Record) groupKey {
		return groupKey{bx.Mid(bx.Index(r.X)), by.Mid(by.Index(r.Y)), r.District}
	}), nil
}
