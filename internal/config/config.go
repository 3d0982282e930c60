// Package config loads the explorer configuration file. Fields are pointers
// so that a partial file leaves everything it omits on the Get* defaults.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where the CLI looks when -config is not given.
const DefaultConfigPath = "config/explorer.json"

// Loader strategies.
const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// Defaults applied by the Get* accessors.
const (
	DefaultDataPath     = "public/accidents_opendata.feather"
	DefaultFetchTimeout = 30 * time.Second
	DefaultNBins        = 40
	DefaultChartWidth   = 800
	DefaultChartHeight  = 600
	DefaultTemplate     = "simple_white"
	DefaultOutputDir    = "site"
	DefaultPreviewRows  = 10
)

// ExplorerConfig is the root configuration of the explorer.
type ExplorerConfig struct {
	// Data loading
	Strategy     *string `json:"strategy,omitempty"` // "local" or "remote"
	DataPath     *string `json:"data_path,omitempty"`
	RemoteURL    *string `json:"remote_url,omitempty"`
	FetchTimeout *string `json:"fetch_timeout,omitempty"` // duration string like "30s"

	// Transforms
	NBins *int `json:"nbins,omitempty"`

	// Presentation
	ChartWidth  *int    `json:"chart_width,omitempty"`
	ChartHeight *int    `json:"chart_height,omitempty"`
	Template    *string `json:"template,omitempty"`
	PreviewRows *int    `json:"preview_rows,omitempty"`
	AssetsHost  *string `json:"assets_host,omitempty"`

	// Output
	OutputDir *string `json:"output_dir,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyConfig returns a config with every field unset.
func EmptyConfig() *ExplorerConfig {
	return &ExplorerConfig{}
}

// DefaultConfig returns a config with every field set to its default.
func DefaultConfig() *ExplorerConfig {
	return &ExplorerConfig{
		Strategy:     ptrString(StrategyLocal),
		DataPath:     ptrString(DefaultDataPath),
		FetchTimeout: ptrString(DefaultFetchTimeout.String()),
		NBins:        ptrInt(DefaultNBins),
		ChartWidth:   ptrInt(DefaultChartWidth),
		ChartHeight:  ptrInt(DefaultChartHeight),
		Template:     ptrString(DefaultTemplate),
		PreviewRows:  ptrInt(DefaultPreviewRows),
		OutputDir:    ptrString(DefaultOutputDir),
	}
}

// LoadConfig loads an ExplorerConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*ExplorerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates JSON configuration bytes.
func Parse(data []byte) (*ExplorerConfig, error) {
	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *ExplorerConfig) Validate() error {
	if c.Strategy != nil {
		switch *c.Strategy {
		case StrategyLocal, StrategyRemote:
		default:
			return fmt.Errorf("strategy must be %q or %q, got %q", StrategyLocal, StrategyRemote, *c.Strategy)
		}
	}

	if c.GetStrategy() == StrategyRemote {
		if c.RemoteURL == nil || *c.RemoteURL == "" {
			return fmt.Errorf("remote_url is required for the remote strategy")
		}
	}
	if c.RemoteURL != nil && *c.RemoteURL != "" {
		u, err := url.Parse(*c.RemoteURL)
		if err != nil {
			return fmt.Errorf("invalid remote_url '%s': %w", *c.RemoteURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("remote_url must be http or https, got %q", u.Scheme)
		}
	}

	if c.FetchTimeout != nil && *c.FetchTimeout != "" {
		d, err := time.ParseDuration(*c.FetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid fetch_timeout '%s': %w", *c.FetchTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("fetch_timeout must be positive, got %s", d)
		}
	}

	if c.NBins != nil && *c.NBins <= 0 {
		return fmt.Errorf("nbins must be positive, got %d", *c.NBins)
	}
	if c.ChartWidth != nil && *c.ChartWidth <= 0 {
		return fmt.Errorf("chart_width must be positive, got %d", *c.ChartWidth)
	}
	if c.ChartHeight != nil && *c.ChartHeight <= 0 {
		return fmt.Errorf("chart_height must be positive, got %d", *c.ChartHeight)
	}
	if c.PreviewRows != nil && *c.PreviewRows < 0 {
		return fmt.Errorf("preview_rows must be non-negative, got %d", *c.PreviewRows)
	}
	return nil
}

// GetStrategy returns the loader strategy or the default.
func (c *ExplorerConfig) GetStrategy() string {
	if c.Strategy == nil || *c.Strategy == "" {
		return StrategyLocal
	}
	return *c.Strategy
}

// GetDataPath returns the local dataset path or the default.
func (c *ExplorerConfig) GetDataPath() string {
	if c.DataPath == nil || *c.DataPath == "" {
		return DefaultDataPath
	}
	return *c.DataPath
}

// GetRemoteURL returns the remote dataset URL, empty when unset.
func (c *ExplorerConfig) GetRemoteURL() string {
	if c.RemoteURL == nil {
		return ""
	}
	return *c.RemoteURL
}

// GetFetchTimeout parses and returns FetchTimeout as a time.Duration.
func (c *ExplorerConfig) GetFetchTimeout() time.Duration {
	if c.FetchTimeout == nil || *c.FetchTimeout == "" {
		return DefaultFetchTimeout
	}
	d, err := time.ParseDuration(*c.FetchTimeout)
	if err != nil {
		return DefaultFetchTimeout // default on parse error
	}
	return d
}

// GetNBins returns the per-axis bin count or the default.
func (c *ExplorerConfig) GetNBins() int {
	if c.NBins == nil {
		return DefaultNBins
	}
	return *c.NBins
}

// GetChartWidth returns the chart width in pixels or the default.
func (c *ExplorerConfig) GetChartWidth() int {
	if c.ChartWidth == nil {
		return DefaultChartWidth
	}
	return *c.ChartWidth
}

// GetChartHeight returns the chart height in pixels or the default.
func (c *ExplorerConfig) GetChartHeight() int {
	if c.ChartHeight == nil {
		return DefaultChartHeight
	}
	return *c.ChartHeight
}

// GetTemplate returns the chart template name or the default.
func (c *ExplorerConfig) GetTemplate() string {
	if c.Template == nil || *c.Template == "" {
		return DefaultTemplate
	}
	return *c.Template
}

// GetPreviewRows returns how many raw rows the page previews.
func (c *ExplorerConfig) GetPreviewRows() int {
	if c.PreviewRows == nil {
		return DefaultPreviewRows
	}
	return *c.PreviewRows
}

// GetAssetsHost returns the echarts assets host, empty for the library default.
func (c *ExplorerConfig) GetAssetsHost() string {
	if c.AssetsHost == nil {
		return ""
	}
	return *c.AssetsHost
}

// GetOutputDir returns the site output directory or the default.
func (c *ExplorerConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return DefaultOutputDir
	}
	return *c.OutputDir
}
