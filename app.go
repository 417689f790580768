package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kwv/gridmesh/grid"
	"github.com/tdewolff/canvas"
)

// AppOptions carries the CLI flags into App
type AppOptions struct {
	ConfigFile      string
	LinesFile       string
	SubstationsFile string
	PlantsFile      string
	OutputDir       string
	Prefix          string
	RenderFormat    string
	HttpPort        int
	MqttMode        bool
	HttpMode        bool
	Verbose         bool
}

// App encapsulates the application state and dependencies
type App struct {
	Config     *grid.Config
	Builder    *grid.Builder
	Metrics    *grid.Metrics
	Store      *grid.ResultStore
	MQTTClient *grid.MQTTClient
	Publisher  *grid.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile      string
	LinesFile       string
	SubstationsFile string
	PlantsFile      string
	OutputDir       string
	Prefix          string
	RenderFormat    string
	HttpPort        int
	MqttMode        bool
	HttpMode        bool
	Verbose         bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Metrics: grid.NewMetrics(),
		Store:   grid.NewResultStore(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.LinesFile = opts.LinesFile
	a.SubstationsFile = opts.SubstationsFile
	a.PlantsFile = opts.PlantsFile
	a.OutputDir = opts.OutputDir
	a.Prefix = opts.Prefix
	a.RenderFormat = opts.RenderFormat
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.Verbose = opts.Verbose
}

// Init loads the configuration, applies flag overrides and prepares the builder.
// A missing config file is not an error; the defaults are used instead.
func (a *App) Init() error {
	config := grid.DefaultConfig()
	if a.ConfigFile != "" {
		if _, err := os.Stat(a.ConfigFile); err == nil {
			loaded, err := grid.LoadConfig(a.ConfigFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config = loaded
			log.Printf("Loaded config from %s", a.ConfigFile)
		} else {
			log.Printf("Warning: config %s not found, using defaults", a.ConfigFile)
		}
	}

	if a.LinesFile != "" {
		config.Inputs.Lines = a.LinesFile
	}
	if a.SubstationsFile != "" {
		config.Inputs.Substations = a.SubstationsFile
	}
	if a.PlantsFile != "" {
		config.Inputs.Plants = a.PlantsFile
	}
	if a.OutputDir != "" {
		config.Output.Dir = a.OutputDir
	}
	if a.Prefix != "" {
		config.Output.Prefix = a.Prefix
	}
	if a.RenderFormat != "" {
		config.Render.Format = a.RenderFormat
	}
	if a.HttpPort != 0 {
		config.HTTP.Port = a.HttpPort
	}

	builder, err := grid.NewBuilder(config, a.Metrics)
	if err != nil {
		return err
	}
	a.Config = config
	a.Builder = builder
	return nil
}

// Build reads the configured inputs, runs the pipeline and writes every
// configured output. A result is returned even when connectivity repair
// ran out of rounds, along with that error.
func (a *App) Build() (*grid.Result, error) {
	if !a.Store.TryBeginBuild() {
		return nil, errBuildRunning
	}
	defer a.Store.EndBuild()

	res, err := a.build()
	a.Store.Update(res, err)
	return res, err
}

var errBuildRunning = errors.New("a build is already running")

func (a *App) build() (*grid.Result, error) {
	in := a.Config.Inputs
	if in.Lines == "" || in.Substations == "" {
		return nil, fmt.Errorf("both lines and substations inputs are required")
	}

	lines, err := grid.ReadLinesFile(in.Lines)
	if err != nil {
		return nil, fmt.Errorf("loading lines from %s: %w", in.Lines, err)
	}
	subs, err := grid.ReadSubstationsFile(in.Substations)
	if err != nil {
		return nil, fmt.Errorf("loading substations from %s: %w", in.Substations, err)
	}
	log.Printf("Loaded %d line record(s) and %d substation record(s)", len(lines), len(subs))

	res, buildErr := a.Builder.Build(lines, subs)
	if res == nil {
		return nil, buildErr
	}

	out := a.Config.Output
	if err := grid.WriteResult(out.Dir, out.Prefix, res); err != nil {
		return res, err
	}
	log.Printf("Wrote results to %s", filepath.Join(out.Dir, out.Prefix+"_*"))

	if err := a.writeRenders(res); err != nil {
		log.Printf("Warning: rendering failed: %v", err)
	}
	if in.Plants != "" {
		if err := a.assignPlants(res); err != nil {
			log.Printf("Warning: plant assignment failed: %v", err)
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(res); err != nil {
			log.Printf("Warning: publishing result failed: %v", err)
		}
	}
	return res, buildErr
}

// writeRenders writes the map files selected by the render format.
func (a *App) writeRenders(res *grid.Result) error {
	format := a.Config.Render.Format
	out := a.Config.Output
	base := filepath.Join(out.Dir, out.Prefix)

	if format == "svg" || format == "all" {
		if err := a.writeFile(base+"_network.svg", func(f *os.File) error {
			return a.networkRenderer(res).RenderToSVG(f)
		}); err != nil {
			return err
		}
	}
	if format == "png" || format == "all" {
		if err := a.writeFile(base+"_network.png", func(f *os.File) error {
			return a.networkRenderer(res).RenderToPNG(f)
		}); err != nil {
			return err
		}
	}
	if format == "raster" || format == "all" {
		path := base + "_preview.png"
		if err := a.rasterRenderer(res).SavePNG(path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		log.Printf("Wrote %s", path)
	}
	return nil
}

func (a *App) writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Printf("Wrote %s", path)
	return nil
}

func (a *App) networkRenderer(res *grid.Result) *grid.NetworkRenderer {
	r := grid.NewNetworkRenderer(res, a.Builder.Proj)
	rc := a.Config.Render
	r.Width, r.Height = float64(rc.Width), float64(rc.Height)
	r.Simplify = rc.Simplify
	if rc.Resolution > 0 {
		r.Resolution = canvas.DPMM(rc.Resolution)
	}
	return r
}

func (a *App) rasterRenderer(res *grid.Result) *grid.RasterRenderer {
	r := grid.NewRasterRenderer(res, a.Builder.Proj)
	rc := a.Config.Render
	r.Width, r.Height = rc.Width, rc.Height
	r.Simplify = rc.Simplify
	return r
}

func (a *App) assignPlants(res *grid.Result) error {
	plants, err := grid.ReadPlantsFile(a.Config.Inputs.Plants)
	if err != nil {
		return err
	}
	assignments, err := grid.AssignNearestBus(plants, res.Network.Nodes, a.Builder.Proj)
	if err != nil {
		return err
	}
	out := a.Config.Output
	path := filepath.Join(out.Dir, out.Prefix+"_plant_buses.json")
	if err := grid.WritePlantAssignments(path, assignments); err != nil {
		return err
	}
	log.Printf("Assigned %d plant(s) to buses, wrote %s", len(assignments), path)
	return nil
}

// RunOnce builds the network a single time and prints the summary.
func (a *App) RunOnce() error {
	res, err := a.Build()
	if res != nil {
		a.printSummary(res)
	}
	return err
}

func (a *App) printSummary(res *grid.Result) {
	s := grid.Summarize(res)
	fmt.Printf("\nNetwork %s\n", s.RunID)
	fmt.Printf("  Buses: %d\n", s.Buses)
	fmt.Printf("  Lines: %d (%.1f km)\n", s.Lines, s.TotalKM)
	fmt.Printf("  Isolated buses: %d, unconnected buses: %d\n", s.IsolatedBuses, s.UnconnectedBuses)
	fmt.Printf("  Subgraph connectors: %d over %d repair round(s)\n", s.SubgraphLines, len(s.RepairRounds))
	fmt.Printf("  Dropped records: %d, invalid splits: %d, self-loops: %d\n",
		s.Normalization.Dropped(), s.InvalidSplits, s.SelfLoopsDropped)

	if a.Verbose {
		data, err := json.MarshalIndent(s, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
	}
}

// RunService builds once, then keeps serving the result over HTTP and/or MQTT
// until interrupted.
func (a *App) RunService() {
	if a.MqttMode {
		client, err := grid.InitMQTT(a.Config)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if client != nil {
			a.MQTTClient = client
			a.Publisher = grid.NewPublisher(client.GetClient(), a.Config.MQTT.PublishPrefix)
			if !client.WaitConnected(15 * time.Second) {
				log.Printf("Warning: MQTT not connected yet, first publish may fail")
			}
		}
	}

	if res, err := a.Build(); err != nil {
		log.Printf("Build failed: %v", err)
	} else {
		a.printSummary(res)
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.Config.HTTP.Port)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()

		fmt.Printf("\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		fmt.Println("  GET  /health            - Health check")
		fmt.Println("  GET  /summary.json      - Run summary")
		fmt.Println("  GET  /network.geojson   - Buses and lines")
		fmt.Println("  GET  /isolated.geojson  - Isolated and unconnected buses")
		fmt.Println("  GET  /network.svg       - Vector map")
		fmt.Println("  GET  /network.png       - Raster map")
		fmt.Println("  GET  /metrics           - Prometheus metrics")
		fmt.Println("  POST /rebuild           - Rebuild from the configured inputs")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
