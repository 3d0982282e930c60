package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// scaleThreshold marks coordinates that were exported ten times too large.
const scaleThreshold = 1_000_000

// ParseCoordinate parses a raw coordinate that may use a decimal comma and
// undoes the ×10 export defect. A blank cell parses as NaN, which ingestion
// drops with the non-positive coordinates.
func ParseCoordinate(s string) (float64, error) {
	v, _, err := parseCoordinate(s)
	return v, err
}

func parseCoordinate(s string) (v float64, rescaled bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), false, nil
	}
	v, err = strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false, err
	}
	if v > scaleThreshold {
		return v / 10, true, nil
	}
	return v, false, nil
}

// FixTransposed swaps x and y whenever x > y. This mirrors the published
// dataset exactly and must not be replaced by a geometric rule.
func FixTransposed(x, y float64) (float64, float64) {
	if x > y {
		return y, x
	}
	return x, y
}

// YearMonth formats the YYYY-MM label used for temporal grouping.
func YearMonth(year, month int) string {
	return fmt.Sprintf("%d-%02d", year, month)
}

// IngestStats counts what ReadCSV kept and discarded.
type IngestStats struct {
	Rows        int
	Kept        int
	Swapped     int
	Rescaled    int
	NonPositive int
}

var requiredCSV = []string{
	ColX, ColY, ColDistrict, ColNeighborhood, ColYear, ColMonth, ColDay, ColHour, ColVehicles, ColVictims,
}

// ReadCSV reads the raw open-data CSV export and applies the normalisation
// rules: decimal commas, ×10 rescale, x/y transposition, dropping records
// with a non-positive coordinate, and deriving datetime and year_month.
func ReadCSV(r io.Reader) (*Dataset, IngestStats, error) {
	var stats IngestStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, name := range requiredCSV {
		if _, ok := pos[name]; !ok {
			return nil, stats, fmt.Errorf("csv: missing column %q", name)
		}
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.Rows++
		field := func(name string) string {
			if i := pos[name]; i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		rec, keep, err := normalizeRow(field, &stats)
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}
		if keep {
			records = append(records, rec)
		}
	}
	stats.Kept = len(records)
	return &Dataset{records: records}, stats, nil
}

func normalizeRow(field func(string) string, stats *IngestStats) (Record, bool, error) {
	var r Record
	x, rescaledX, err := parseCoordinate(field(ColX))
	if err != nil {
		return r, false, fmt.Errorf("%s: %w", ColX, err)
	}
	y, rescaledY, err := parseCoordinate(field(ColY))
	if err != nil {
		return r, false, fmt.Errorf("%s: %w", ColY, err)
	}
	if rescaledX || rescaledY {
		stats.Rescaled++
	}
	if x > y {
		stats.Swapped++
	}
	r.X, r.Y = FixTransposed(x, y)
	if !(r.X > 0 && r.Y > 0) {
		stats.NonPositive++
		return r, false, nil
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{ColYear, &r.Year}, {ColMonth, &r.Month}, {ColDay, &r.Day}, {ColHour, &r.Hour},
		{ColVehicles, &r.Vehicles}, {ColVictims, &r.Victims},
	}
	for _, f := range ints {
		v, err := strconv.ParseFloat(field(f.name), 64)
		if err != nil {
			return r, false, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = int(v)
	}

	r.District = field(ColDistrict)
	r.Neighborhood = field(ColNeighborhood)
	r.DateTime = time.Date(r.Year, time.Month(r.Month), r.Day, r.Hour, 0, 0, 0, time.UTC)
	if r.DateTime.Month() != time.Month(r.Month) || r.DateTime.Day() != r.Day || r.DateTime.Hour() != r.Hour {
		return r, false, fmt.Errorf("invalid date %d-%d-%d-%d", r.Year, r.Month, r.Day, r.Hour)
	}
	r.YearMonth = YearMonth(r.Year, r.Month)
	return r, true, nil
}
