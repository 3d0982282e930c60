package dataset_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/testutil"
)

func TestParseCoordinate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
	}{
		{"430123.5", 430123.5},
		{"430123,5", 430123.5},
		{"4581234,25", 4581234.25 / 10},
		{" 1000000 ", 1000000},
		{"45812342", 4581234.2},
	}
	for _, tt := range tests {
		got, err := dataset.ParseCoordinate(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-6, tt.in)
	}

	_, err := dataset.ParseCoordinate("n/a")
	assert.Error(t, err)

	blank, err := dataset.ParseCoordinate("  ")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(blank))
}

func TestFixTransposed_KeepsHeuristic(t *testing.T) {
	t.Parallel()

	x, y := dataset.FixTransposed(4581234, 430123)
	assert.Equal(t, 430123.0, x)
	assert.Equal(t, 4581234.0, y)

	x, y = dataset.FixTransposed(10, 20)
	assert.Equal(t, []float64{10, 20}, []float64{x, y})

	x, y = dataset.FixTransposed(7, 7)
	assert.Equal(t, []float64{7, 7}, []float64{x, y})
}

func TestYearMonth(t *testing.T) {
	assert.Equal(t, "2019-03", dataset.YearMonth(2019, 3))
	assert.Equal(t, "2020-11", dataset.YearMonth(2020, 11))
}

func TestReadCSV_Normalises(t *testing.T) {
	t.Parallel()

	raw := testutil.CSV([]dataset.Record{
		testutil.Record("Eixample", "Sant Antoni", 2019, 3, 430000.5, 458000, 2, 1),
		// transposed
		testutil.Record("Gràcia", "Vila de Gràcia", 2020, 1, 458500, 429000, 1, 0),
		// ×10 scale on y
		testutil.Record("Sants-Montjuïc", "Sants", 2019, 12, 427000, 4579000, 1, 0),
		// non-positive
		testutil.Record("Desconegut", "Desconegut", 2019, 5, -1, 458000, 1, 0),
		// coordinates left blank in the export
		testutil.Record("Desconegut", "Desconegut", 2019, 6, 111111, 222222, 1, 0),
	})
	// decimal comma, quoted as in the open-data export
	raw = strings.Replace(raw, ",430000.5,", `,"430000,5",`, 1)
	raw = strings.Replace(raw, ",111111,222222,", ",,,", 1)

	ds, stats, err := dataset.ReadCSV(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, dataset.IngestStats{Rows: 5, Kept: 3, Swapped: 1, Rescaled: 1, NonPositive: 2}, stats)
	require.Equal(t, 3, ds.Len())

	first := ds.At(0)
	assert.InDelta(t, 430000.5, first.X, 1e-9)
	assert.Equal(t, "2019-03", first.YearMonth)
	assert.Equal(t, time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC), first.DateTime)

	swapped := ds.At(1)
	assert.Equal(t, 429000.0, swapped.X)
	assert.Equal(t, 458500.0, swapped.Y)

	rescaled := ds.At(2)
	assert.Equal(t, 457900.0, rescaled.Y)
	assert.Equal(t, "2019-12", rescaled.YearMonth)
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := dataset.ReadCSV(strings.NewReader("district_name,year\nEixample,2019\n"))
	assert.ErrorContains(t, err, "missing column")

	bad := testutil.CSV(testutil.ThreeIncidents())
	bad = strings.Replace(bad, ",2019,3,", ",2019,13,", 1)
	_, _, err = dataset.ReadCSV(strings.NewReader(bad))
	assert.ErrorContains(t, err, "invalid date")

	_, _, err = dataset.ReadCSV(strings.NewReader(""))
	assert.ErrorContains(t, err, "read header")
}
