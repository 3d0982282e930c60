package main

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/fsutil"
	"github.com/banshee-data/incident-explorer/internal/monitoring"
	"github.com/banshee-data/incident-explorer/internal/testutil"
)

func TestIngestRoundTrip(t *testing.T) {
	monitoring.SetLogger(nil)
	records := testutil.Synthetic(50, 13)
	fs := fsutil.NewMemoryFileSystem()

	stats, err := ingest(strings.NewReader(testutil.CSV(records)), fs, "public/accidents.feather")
	require.NoError(t, err)
	assert.Equal(t, 50, stats.Rows)
	assert.Equal(t, 50, stats.Kept)

	ds, err := dataset.NewLocalLoader(fs, "public/accidents.feather").Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(records, ds.Head(ds.Len())); diff != "" {
		t.Errorf("ingested records differ (-want +got):\n%s", diff)
	}
}

func TestIngestBadCSV(t *testing.T) {
	_, err := ingest(strings.NewReader("a,b\n1,2\n"), fsutil.NewMemoryFileSystem(), "x.feather")
	assert.Error(t, err)
}
