package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/incident-explorer/internal/dataset"
)

// Derived calendar columns decomposed from year_month.
var calendarColumns = []string{dataset.ColYear, dataset.ColMonth}

// TemporalSummary groups records by (district, year_month) and adds integer
// year and month columns.
func TemporalSummary(ds *dataset.Dataset) (*Aggregate, error) {
	agg := group(ds, []string{dataset.ColDistrict, dataset.ColYearMonth}, nil, func(r dataset.Record) groupKey {
		return groupKey{r.District, r.YearMonth}
	})
	if err := addCalendar(agg, 1); err != nil {
		return nil, err
	}
	return agg, nil
}

// FilteredSubset keeps the records f accepts and groups them by
// (groupBy, timeUnit). groupBy is district_name or neighborhood_name;
// timeUnit is year_month or year. Grouping by year_month also adds year and
// month columns. An empty selection yields an empty table.
func FilteredSubset(ds *dataset.Dataset, f Filter, groupBy, timeUnit string) (*Aggregate, error) {
	var groupOf func(dataset.Record) string
	switch groupBy {
	case dataset.ColDistrict:
		groupOf = DistrictOf
	case dataset.ColNeighborhood:
		groupOf = NeighborhoodOf
	default:
		return nil, fmt.Errorf("%w: group by %q", ErrUnknownColumn, groupBy)
	}

	var unitOf func(dataset.Record) any
	switch timeUnit {
	case dataset.ColYearMonth:
		unitOf = func(r dataset.Record) any { return r.YearMonth }
	case dataset.ColYear:
		unitOf = func(r dataset.Record) any { return r.Year }
	default:
		return nil, fmt.Errorf("%w: time unit %q", ErrUnknownColumn, timeUnit)
	}

	agg := group(ds, []string{groupBy, timeUnit}, f.Predicate(), func(r dataset.Record) groupKey {
		return groupKey{groupOf(r), unitOf(r)}
	})
	if timeUnit == dataset.ColYearMonth {
		if err := addCalendar(agg, 1); err != nil {
			return nil, err
		}
	}
	return agg, nil
}

// addCalendar splits the YYYY-MM key at position k into year and month.
func addCalendar(agg *Aggregate, k int) error {
	agg.Extra = calendarColumns
	for i := range agg.Rows {
		label, _ := agg.Rows[i].Key[k].(string)
		year, month, err := SplitYearMonth(label)
		if err != nil {
			return err
		}
		agg.Rows[i].Derived = []any{year, month}
	}
	return nil
}

// SplitYearMonth parses a YYYY-MM label.
func SplitYearMonth(label string) (year, month int, err error) {
	ys, ms, ok := strings.Cut(label, "-")
	if !ok {
		return 0, 0, fmt.Errorf("transform: year_month %q is not YYYY-MM", label)
	}
	if year, err = strconv.Atoi(ys); err != nil {
		return 0, 0, fmt.Errorf("transform: year_month %q: %w", label, err)
	}
	if month, err = strconv.Atoi(ms); err != nil {
		return 0, 0, fmt.Errorf("transform: year_month %q: %w", label, err)
	}
	return year, month, nil
}
