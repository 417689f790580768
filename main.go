package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// runner is the part of App that main drives
type runner interface {
	ApplyOptions(opts AppOptions)
	Init() error
	RunOnce() error
	RunService()
}

func run(args []string, out io.Writer, app runner) error {
	fs := flag.NewFlagSet("gridmesh", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to configuration file (optional, defaults apply when missing)")
	linesFile := fs.String("lines", "", "GeoJSON file with transmission lines (overrides config inputs.lines)")
	subsFile := fs.String("substations", "", "GeoJSON file with substations (overrides config inputs.substations)")
	plantsFile := fs.String("plants", "", "GeoJSON file with generation sites to assign to buses")
	outputDir := fs.String("output-dir", "", "Directory for result files (overrides config output.dir)")
	prefix := fs.String("prefix", "", "Result file name prefix (overrides config output.prefix)")
	renderMode := fs.String("render", "", "Render format: none, svg, png, raster, or all")
	mqttMode := fs.Bool("mqtt", false, "MQTT service mode: publish every build to the broker")
	httpMode := fs.Bool("http", false, "Serve results over HTTP after building")
	httpPort := fs.Int("http-port", 0, "HTTP server port (overrides config http.port)")
	verbose := fs.Bool("verbose", false, "Print the full run summary as JSON")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "gridmesh version: %s\n", Version)
	if *showVersion {
		return nil
	}

	app.ApplyOptions(AppOptions{
		ConfigFile:      *configFile,
		LinesFile:       *linesFile,
		SubstationsFile: *subsFile,
		PlantsFile:      *plantsFile,
		OutputDir:       *outputDir,
		Prefix:          *prefix,
		RenderFormat:    *renderMode,
		HttpPort:        *httpPort,
		MqttMode:        *mqttMode,
		HttpMode:        *httpMode,
		Verbose:         *verbose,
	})

	if err := app.Init(); err != nil {
		return err
	}

	if *mqttMode || *httpMode {
		fmt.Fprintln(out, "gridmesh service starting...")
		app.RunService()
		return nil
	}

	return app.RunOnce()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
