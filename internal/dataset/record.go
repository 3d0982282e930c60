// Package dataset holds the traffic-incident table the explorer works on:
// the record model, the feather codec, the loaders that fetch it, and the
// ingestion rules that normalise the raw open-data export.
package dataset

import (
	"iter"
	"time"
)

// Column names of the feather contract shared with the ingestion step.
const (
	ColX            = "utm_coordinate_x"
	ColY            = "utm_coordinate_y"
	ColDistrict     = "district_name"
	ColNeighborhood = "neighborhood_name"
	ColYear         = "year"
	ColMonth        = "month"
	ColDay          = "day"
	ColHour         = "hour"
	ColDateTime     = "datetime"
	ColYearMonth    = "year_month"
	ColVehicles     = "n_vehicles"
	ColVictims      = "n_victims"
)

// Columns lists the contract columns in file order.
var Columns = []string{
	ColX, ColY, ColDistrict, ColNeighborhood,
	ColYear, ColMonth, ColDay, ColHour,
	ColDateTime, ColYearMonth, ColVehicles, ColVictims,
}

// Record is one traffic incident. Coordinates are planar UTM metres, already
// normalised for scale and x/y transposition; no ordering between X and Y
// may be assumed.
type Record struct {
	X            float64
	Y            float64
	District     string
	Neighborhood string
	Year         int
	Month        int
	Day          int
	Hour         int
	DateTime     time.Time
	YearMonth    string
	Vehicles     int
	Victims      int
}

// Dataset is an immutable, ordered collection of records. Every transform
// derives a new table from it; nothing writes back.
type Dataset struct {
	records []Record
}

// New copies records into a Dataset.
func New(records []Record) *Dataset {
	return &Dataset{records: append([]Record(nil), records...)}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// At returns the i-th record by value.
func (d *Dataset) At(i int) Record {
	return d.records[i]
}

// All iterates records in file order.
func (d *Dataset) All() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		if d == nil {
			return
		}
		for i, r := range d.records {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Head returns a copy of at most n leading records.
func (d *Dataset) Head(n int) []Record {
	if n > d.Len() {
		n = d.Len()
	}
	if n <= 0 {
		return nil
	}
	return append([]Record(nil), d.records[:n]...)
}

// Distinct returns the distinct values of key in order of first appearance.
func Distinct[K comparable](d *Dataset, key func(Record) K) []K {
	seen := make(map[K]bool)
	var out []K
	for _, r := range d.All() {
		k := key(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
