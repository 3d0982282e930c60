package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/incident-explorer/internal/chart"
	"github.com/banshee-data/incident-explorer/internal/config"
	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/explorer"
	"github.com/banshee-data/incident-explorer/internal/fsutil"
	"github.com/banshee-data/incident-explorer/internal/httputil"
	"github.com/banshee-data/incident-explorer/internal/monitoring"
	"github.com/banshee-data/incident-explorer/internal/security"
	"github.com/banshee-data/incident-explorer/internal/version"
)

const usage = `usage: explorer [flags] [build|session|serve|graph]

  build    load the dataset, evaluate every cell and write the site (default)
  session  build, then read "set <widget> <v1,v2,...>" lines from stdin
  serve    serve the built site directory
  graph    print the cell graph in evaluation order
`

var (
	configPath  = flag.String("config", "", "Path to explorer JSON config (default "+config.DefaultConfigPath+" when present)")
	dataPath    = flag.String("data", "", "Local feather dataset path (overrides config)")
	remoteURL   = flag.String("remote", "", "Fetch the dataset from this URL instead of a local file")
	nbins       = flag.Int("nbins", 0, "Bins per axis for the spatial view (overrides config)")
	outDir      = flag.String("out", "", "Site output directory (overrides config)")
	writePNG    = flag.Bool("png", false, "Also write static PNG figures")
	listen      = flag.String("listen", ":8080", "Listen address for serve")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
	settings    settingList
)

func init() {
	flag.Var(&settings, "set", "Initial widget value as name=v1,v2 (repeatable)")
}

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "build"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	switch command {
	case "build":
		if _, err := build(ctx, cfg); err != nil {
			log.Fatalf("build failed: %v", err)
		}
	case "session":
		s, err := build(ctx, cfg)
		if err != nil {
			log.Fatalf("build failed: %v", err)
		}
		if err := runREPL(ctx, s, os.Stdin, os.Stdout); err != nil {
			log.Fatalf("session failed: %v", err)
		}
	case "serve":
		if err := serve(ctx, cfg.GetOutputDir(), *listen); err != nil {
			log.Fatalf("serve failed: %v", err)
		}
	case "graph":
		g, err := explorer.NewGraph()
		if err != nil {
			log.Fatalf("invalid graph: %v", err)
		}
		if err := g.Describe(os.Stdout); err != nil {
			log.Fatalf("describe graph: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// loadConfig reads path, or the default config file when path is empty and
// the file exists. Without either every value is a default.
func loadConfig(path string) (*config.ExplorerConfig, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.EmptyConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	return config.LoadConfig(path)
}

func applyFlags(cfg *config.ExplorerConfig) {
	if *dataPath != "" {
		cfg.DataPath = dataPath
		local := config.StrategyLocal
		cfg.Strategy = &local
	}
	if *remoteURL != "" {
		cfg.RemoteURL = remoteURL
		remote := config.StrategyRemote
		cfg.Strategy = &remote
	}
	if *nbins != 0 {
		cfg.NBins = nbins
	}
	if *outDir != "" {
		cfg.OutputDir = outDir
	}
}

// loaderFor picks the loader strategy named by the configuration.
func loaderFor(cfg *config.ExplorerConfig) dataset.Loader {
	if cfg.GetStrategy() == config.StrategyRemote {
		timeout := cfg.GetFetchTimeout()
		return dataset.NewRemoteLoader(httputil.NewStandardClient(timeout), cfg.GetRemoteURL(), timeout)
	}
	return dataset.NewLocalLoader(fsutil.OSFileSystem{}, cfg.GetDataPath())
}

func sessionSettings(cfg *config.ExplorerConfig) explorer.Settings {
	return explorer.Settings{
		Loader: loaderFor(cfg),
		NBins:  cfg.GetNBins(),
		Style: chart.Style{
			Template: cfg.GetTemplate(),
			Width:    cfg.GetChartWidth(),
			Height:   cfg.GetChartHeight(),
		},
		PreviewRows: cfg.GetPreviewRows(),
	}
}

func build(ctx context.Context, cfg *config.ExplorerConfig) (*explorer.Session, error) {
	if err := security.ValidateOutputPath(cfg.GetOutputDir()); err != nil {
		return nil, err
	}
	page := &explorer.PageWriter{
		FS:         fsutil.OSFileSystem{},
		Dir:        cfg.GetOutputDir(),
		Title:      "Barcelona Traffic Incidents",
		AssetsHost: cfg.GetAssetsHost(),
		PNG:        *writePNG,
	}
	s, err := explorer.NewSession(sessionSettings(cfg), page.Write)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	for _, set := range settings {
		if _, err := s.Apply(ctx, set.Widget, set.Values...); err != nil {
			return nil, fmt.Errorf("-set %s: %w", set.Widget, err)
		}
	}
	log.Printf("site written to %s", cfg.GetOutputDir())
	return s, nil
}

// siteServer serves the built site. StaticHandler logs each request itself.
func siteServer(dir, addr string) *http.Server {
	return &http.Server{Addr: addr, Handler: httputil.StaticHandler(dir)}
}

func serve(ctx context.Context, dir, addr string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("site directory %s: %w (run build first)", dir, err)
	}
	server := siteServer(dir, addr)

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving %s on %s", dir, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}

// runREPL applies one "set" command per input line until EOF.
func runREPL(ctx context.Context, s *explorer.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "widgets:", strings.Join(s.Widgets().Names(), ", "))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reply := handleLine(ctx, s, line)
		fmt.Fprintln(out, reply)
	}
	return scanner.Err()
}
