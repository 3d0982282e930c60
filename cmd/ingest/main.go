// Command ingest converts the raw accidents CSV export into the normalised
// feather file the explorer loads.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/fsutil"
	"github.com/banshee-data/incident-explorer/internal/security"
)

var (
	input  = flag.String("in", "", "Raw CSV export (default stdin)")
	output = flag.String("out", "public/accidents_opendata.feather", "Feather file to write")
)

func main() {
	flag.Parse()

	if err := security.ValidateOutputPath(*output); err != nil {
		log.Fatalf("invalid output path: %v", err)
	}

	var r io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("failed to open input: %v", err)
		}
		defer f.Close()
		r = f
	}

	stats, err := ingest(r, fsutil.OSFileSystem{}, *output)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
	log.Printf("read %d rows, kept %d (swapped %d, rescaled %d, dropped %d non-positive); wrote %s",
		stats.Rows, stats.Kept, stats.Swapped, stats.Rescaled, stats.NonPositive, *output)
}

func ingest(r io.Reader, fs fsutil.FileSystem, out string) (dataset.IngestStats, error) {
	ds, stats, err := dataset.ReadCSV(r)
	if err != nil {
		return stats, err
	}
	var buf bytes.Buffer
	if err := dataset.Encode(&buf, ds); err != nil {
		return stats, fmt.Errorf("encode feather: %w", err)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return stats, err
		}
	}
	if err := fs.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return stats, fmt.Errorf("write %s: %w", out, err)
	}
	return stats, nil
}
