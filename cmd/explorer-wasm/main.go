//go:build js && wasm

// Command explorer-wasm runs the explorer session inside the reader's
// browser. It fetches the dataset over HTTP, binds the page's <select
// data-widget> controls to the session queue and hands each committed view
// to window.renderExplorerView.
package main

import (
	"context"
	"encoding/json"
	"log"
	neturl "net/url"
	"syscall/js"
	"time"

	"github.com/banshee-data/incident-explorer/internal/chart"
	"github.com/banshee-data/incident-explorer/internal/config"
	"github.com/banshee-data/incident-explorer/internal/dataset"
	"github.com/banshee-data/incident-explorer/internal/explorer"
	"github.com/banshee-data/incident-explorer/internal/httputil"
	"github.com/banshee-data/incident-explorer/internal/version"
)

func main() {
	log.Printf("%s starting in browser", version.String())
	doc := js.Global().Get("document")

	cfg := config.EmptyConfig()
	if raw := js.Global().Get("explorerConfig"); raw.Truthy() {
		parsed, err := config.Parse([]byte(js.Global().Get("JSON").Call("stringify", raw).String()))
		if err != nil {
			showError(doc, err.Error())
			return
		}
		cfg = parsed
	}
	url, err := datasetURL(cfg)
	if err != nil {
		showError(doc, err.Error())
		return
	}
	timeout := cfg.GetFetchTimeout()

	s, err := explorer.NewSession(explorer.Settings{
		Loader: dataset.NewRemoteLoader(httputil.NewStandardClient(timeout), url, timeout),
		NBins:  cfg.GetNBins(),
		Style: chart.Style{
			Template: cfg.GetTemplate(),
			Width:    cfg.GetChartWidth(),
			Height:   cfg.GetChartHeight(),
		},
		PreviewRows: cfg.GetPreviewRows(),
	}, func(v explorer.View) error { return publish(doc, v) })
	if err != nil {
		showError(doc, err.Error())
		return
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		log.Printf("start failed: %v", err)
		return
	}

	onChange := js.FuncOf(func(this js.Value, args []js.Value) any {
		target := args[0].Get("target")
		name := target.Get("dataset").Get("widget")
		if !name.Truthy() {
			return nil
		}
		var values []string
		opts := target.Get("selectedOptions")
		for i := 0; i < opts.Length(); i++ {
			values = append(values, opts.Index(i).Get("value").String())
		}
		go func() {
			submitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if _, err := s.Submit(submitCtx, explorer.Change{Widget: name.String(), Values: values}); err != nil {
				log.Printf("change %s dropped: %v", name.String(), err)
			}
		}()
		return nil
	})
	defer onChange.Release()
	doc.Call("addEventListener", "change", onChange)

	if err := s.Run(ctx); err != nil {
		log.Printf("session stopped: %v", err)
	}
}

// datasetURL resolves the configured remote URL, or the data path, against
// the page location.
func datasetURL(cfg *config.ExplorerConfig) (string, error) {
	ref := cfg.GetRemoteURL()
	if ref == "" {
		ref = cfg.GetDataPath()
	}
	base, err := neturl.Parse(js.Global().Get("location").Get("href").String())
	if err != nil {
		return "", err
	}
	rel, err := neturl.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

func publish(doc js.Value, v explorer.View) error {
	if v.Error != "" {
		showError(doc, v.Error)
	} else if el := doc.Call("getElementById", "error"); el.Truthy() {
		el.Call("remove")
	}
	if el := doc.Call("getElementById", "readout"); el.Truthy() {
		el.Set("textContent", v.Readout)
	}
	render := js.Global().Get("renderExplorerView")
	if render.Type() != js.TypeFunction {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	render.Invoke(string(raw))
	return nil
}

func showError(doc js.Value, msg string) {
	el := doc.Call("getElementById", "error")
	if !el.Truthy() {
		el = doc.Call("createElement", "div")
		el.Set("id", "error")
		el.Set("className", "error")
		doc.Get("body").Call("prepend", el)
	}
	el.Set("textContent", msg)
}
