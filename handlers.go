package main

import (
	"encoding/json"
	"errors"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/kwv/gridmesh/grid"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		state := app.Store.Latest()
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasResult bool      `json:"hasResult"`
			LastError string    `json:"lastError,omitempty"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasResult: state.Result != nil,
		}
		if state.Err != nil {
			status.LastError = state.Err.Error()
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/summary.json", func(w http.ResponseWriter, r *http.Request) {
		res, ok := latestResult(w, app)
		if !ok {
			return
		}
		writeJSON(w, grid.Summarize(res))
	})

	mux.HandleFunc("/network.geojson", func(w http.ResponseWriter, r *http.Request) {
		res, ok := latestResult(w, app)
		if !ok {
			return
		}
		writeGeoJSON(w, grid.NetworkToFeatureCollection(&res.Network))
	})

	// Isolated and unconnected buses, tagged by status
	mux.HandleFunc("/isolated.geojson", func(w http.ResponseWriter, r *http.Request) {
		res, ok := latestResult(w, app)
		if !ok {
			return
		}
		fc := geojson.NewFeatureCollection()
		for _, f := range grid.NodesToFeatureCollection(res.Diagnostics.IsolatedNodes).Features {
			f.Properties["status"] = "isolated"
			fc.Append(f)
		}
		for _, f := range grid.NodesToFeatureCollection(res.Diagnostics.UnconnectedNodes).Features {
			f.Properties["status"] = "unconnected"
			fc.Append(f)
		}
		writeGeoJSON(w, fc)
	})

	mux.HandleFunc("/network.svg", func(w http.ResponseWriter, r *http.Request) {
		res, ok := latestResult(w, app)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := app.networkRenderer(res).RenderToSVG(w); err != nil {
			log.Printf("Error rendering network SVG: %v", err)
		}
	})

	mux.HandleFunc("/network.png", func(w http.ResponseWriter, r *http.Request) {
		res, ok := latestResult(w, app)
		if !ok {
			return
		}
		img := app.rasterRenderer(res).Render()
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding network PNG: %v", err)
		}
	})

	mux.Handle("/metrics", app.Metrics.Handler())

	mux.HandleFunc("/rebuild", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		log.Printf("[HTTP] /rebuild request from %s", r.RemoteAddr)

		res, err := app.Build()
		switch {
		case errors.Is(err, errBuildRunning):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case res == nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := struct {
			grid.Summary
			Error string `json:"error,omitempty"`
		}{Summary: grid.Summarize(res)}
		if err != nil {
			resp.Error = err.Error()
		}
		writeJSON(w, resp)
	})

	return mux
}

// latestResult writes 503 and returns false when no network has been built yet
func latestResult(w http.ResponseWriter, app *App) (*grid.Result, bool) {
	state := app.Store.Latest()
	if state.Result == nil {
		http.Error(w, "No network available", http.StatusServiceUnavailable)
		return nil, false
	}
	return state.Result, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func writeGeoJSON(w http.ResponseWriter, fc *geojson.FeatureCollection) {
	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		log.Printf("Error writing GeoJSON response: %v", err)
	}
}
