package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/incident-explorer/internal/fsutil"
	"github.com/banshee-data/incident-explorer/internal/httputil"
	"github.com/banshee-data/incident-explorer/internal/monitoring"
)

// Strategy names how a Loader obtains the dataset bytes.
type Strategy string

const (
	// StrategyLocal reads a bundled file.
	StrategyLocal Strategy = "local"
	// StrategyRemote issues a single HTTP GET.
	StrategyRemote Strategy = "remote"
)

// maxDatasetBytes caps how much a loader will read before giving up.
const maxDatasetBytes = 512 << 20

// DataUnavailableError reports that the dataset could not be obtained or
// parsed. It is fatal to the page: there is no retry and no fallback.
type DataUnavailableError struct {
	Strategy Strategy
	Location string
	Err      error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("dataset unavailable (%s %s): %v", e.Strategy, e.Location, e.Err)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// Loader resolves a dataset location into a parsed Dataset.
type Loader interface {
	Load(ctx context.Context) (*Dataset, error)
	Strategy() Strategy
	Location() string
}

// LocalLoader reads the feather file from a filesystem path.
type LocalLoader struct {
	FS   fsutil.FileSystem
	Path string
}

// NewLocalLoader returns a loader over the OS filesystem when fs is nil.
func NewLocalLoader(fs fsutil.FileSystem, path string) *LocalLoader {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &LocalLoader{FS: fs, Path: path}
}

func (l *LocalLoader) Strategy() Strategy { return StrategyLocal }
func (l *LocalLoader) Location() string   { return l.Path }

// Load reads and decodes the file.
func (l *LocalLoader) Load(ctx context.Context) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, l.fail(err)
	}
	data, err := l.FS.ReadFile(l.Path)
	if err != nil {
		return nil, l.fail(err)
	}
	return finish(l, data)
}

func (l *LocalLoader) fail(err error) error {
	return &DataUnavailableError{Strategy: StrategyLocal, Location: l.Path, Err: err}
}

// RemoteLoader fetches the feather file with one GET. Any non-200 answer is
// a hard failure.
type RemoteLoader struct {
	Client httputil.HTTPClient
	URL    string
}

// NewRemoteLoader returns a loader with a standard client when client is nil.
func NewRemoteLoader(client httputil.HTTPClient, url string, timeout time.Duration) *RemoteLoader {
	if client == nil {
		client = httputil.NewStandardClient(timeout)
	}
	return &RemoteLoader{Client: client, URL: url}
}

func (l *RemoteLoader) Strategy() Strategy { return StrategyRemote }
func (l *RemoteLoader) Location() string   { return l.URL }

// Load issues the GET and decodes the full body.
func (l *RemoteLoader) Load(ctx context.Context) (*Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, l.fail(err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, l.fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, l.fail(fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetBytes+1))
	if err != nil {
		return nil, l.fail(fmt.Errorf("read body: %w", err))
	}
	if len(data) > maxDatasetBytes {
		return nil, l.fail(fmt.Errorf("body larger than %d bytes", maxDatasetBytes))
	}
	return finish(l, data)
}

func (l *RemoteLoader) fail(err error) error {
	return &DataUnavailableError{Strategy: StrategyRemote, Location: l.URL, Err: err}
}

func finish(l Loader, data []byte) (*Dataset, error) {
	ds, err := Decode(data)
	if err != nil {
		return nil, &DataUnavailableError{Strategy: l.Strategy(), Location: l.Location(), Err: err}
	}
	monitoring.Logf("loaded %d records (%d bytes) from %s %s", ds.Len(), len(data), l.Strategy(), l.Location())
	return ds, nil
}
