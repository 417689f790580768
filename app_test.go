package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/gridmesh/grid"
)

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

// planarConfigYAML keeps distances small so the fixture survey below builds
// two repair rounds and one isolated-bus connector.
const planarConfigYAML = `crs: planar
cluster_distance: 50
overpass_distance: 20
isolated_bus_distance: 1000
max_subgraph_iterations: 10
render:
  format: none
  width: 320
  height: 240
  resolution: 1
`

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func writeCollection(t *testing.T, path string, fc *geojson.FeatureCollection) string {
	t.Helper()
	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	return writeFile(t, path, data)
}

func lineFeature(id string, volts float64, coords ...float64) *geojson.Feature {
	var ls orb.LineString
	for i := 0; i+1 < len(coords); i += 2 {
		ls = append(ls, orb.Point{coords[i], coords[i+1]})
	}
	f := geojson.NewFeature(ls)
	f.ID = id
	f.Properties["max_voltage"] = volts
	return f
}

func pointFeature(id string, volts float64, x, y float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{x, y})
	f.ID = id
	f.Properties["max_voltage"] = volts
	return f
}

// surveyFiles writes a small survey to dir and returns the lines and
// substations paths.
func surveyFiles(t *testing.T, dir string) (string, string) {
	t.Helper()
	lines := geojson.NewFeatureCollection()
	lines.Append(lineFeature("w1", 380000, 0, 0, 1000, 0))
	lines.Append(lineFeature("w2", 380000, 1000, 0, 2000, 0))
	lines.Append(lineFeature("w3", 220000, 5000, 0, 6000, 0))
	lines.Append(lineFeature("w4", 110000, 0, 500, 100, 500))

	subs := geojson.NewFeatureCollection()
	subs.Append(pointFeature("n1", 380000, 500, 5))
	subs.Append(pointFeature("n2", 380000, 3000, 3000))

	return writeCollection(t, filepath.Join(dir, "lines.geojson"), lines),
		writeCollection(t, filepath.Join(dir, "substations.geojson"), subs)
}

// islandFiles writes four separate lines that connectivity repair joins two
// at a time, and an empty substations file.
func islandFiles(t *testing.T, dir string) (string, string) {
	t.Helper()
	lines := geojson.NewFeatureCollection()
	lines.Append(lineFeature("i1", 380000, 0, 0, 100, 0))
	lines.Append(lineFeature("i2", 380000, 200, 0, 300, 0))
	lines.Append(lineFeature("i3", 380000, 5000, 0, 5100, 0))
	lines.Append(lineFeature("i4", 380000, 5200, 0, 5300, 0))

	return writeCollection(t, filepath.Join(dir, "lines.geojson"), lines),
		writeCollection(t, filepath.Join(dir, "substations.geojson"), geojson.NewFeatureCollection())
}

// islandApp returns an App reading the island survey with a single repair
// round, which leaves two components.
func islandApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	linesPath, subsPath := islandFiles(t, dir)
	app := newTestApp(t, dir, linesPath, subsPath)
	app.Config.MaxSubgraphIterations = 1
	builder, err := grid.NewBuilder(app.Config, app.Metrics)
	require.NoError(t, err)
	app.Builder = builder
	return app
}

// testApp returns an initialized App reading the fixture survey and writing
// into a temporary directory.
func testApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	linesPath, subsPath := surveyFiles(t, dir)
	return newTestApp(t, dir, linesPath, subsPath)
}

func newTestApp(t *testing.T, dir, linesPath, subsPath string) *App {
	t.Helper()
	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:      writeFile(t, filepath.Join(dir, "config.yaml"), []byte(planarConfigYAML)),
		LinesFile:       linesPath,
		SubstationsFile: subsPath,
		OutputDir:       filepath.Join(dir, "out"),
		Prefix:          "test",
	})
	require.NoError(t, app.Init())
	return app
}

// ---------------------------------------------------------------------------
// construction
// ---------------------------------------------------------------------------

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.Metrics == nil {
		t.Error("Metrics should be initialized")
	}
	if app.Store == nil {
		t.Error("Store should be initialized")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile:      "test-config.yaml",
		LinesFile:       "lines.geojson",
		SubstationsFile: "subs.geojson",
		PlantsFile:      "plants.geojson",
		OutputDir:       "/test/out",
		Prefix:          "eu",
		RenderFormat:    "svg",
		HttpPort:        8080,
		MqttMode:        true,
		HttpMode:        true,
		Verbose:         true,
	}
	app.ApplyOptions(opts)

	assert.Equal(t, "test-config.yaml", app.ConfigFile)
	assert.Equal(t, "lines.geojson", app.LinesFile)
	assert.Equal(t, "subs.geojson", app.SubstationsFile)
	assert.Equal(t, "plants.geojson", app.PlantsFile)
	assert.Equal(t, "/test/out", app.OutputDir)
	assert.Equal(t, "eu", app.Prefix)
	assert.Equal(t, "svg", app.RenderFormat)
	assert.Equal(t, 8080, app.HttpPort)
	assert.True(t, app.MqttMode)
	assert.True(t, app.HttpMode)
	assert.True(t, app.Verbose)
}

func TestInit_MissingConfigUsesDefaults(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	require.NoError(t, app.Init())

	assert.Equal(t, grid.DefaultConfig(), app.Config)
	require.NotNil(t, app.Builder)
	assert.IsType(t, grid.WebMercator{}, app.Builder.Proj)
}

func TestInit_Overrides(t *testing.T) {
	dir := t.TempDir()
	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:      writeFile(t, filepath.Join(dir, "config.yaml"), []byte(planarConfigYAML)),
		LinesFile:       "l.geojson",
		SubstationsFile: "s.geojson",
		PlantsFile:      "p.geojson",
		OutputDir:       "elsewhere",
		Prefix:          "eu",
		RenderFormat:    "svg",
		HttpPort:        9090,
	})
	require.NoError(t, app.Init())

	cfg := app.Config
	assert.Equal(t, grid.CRSPlanar, cfg.CRS, "loaded from the file")
	assert.Equal(t, 50.0, cfg.ClusterDistance, "loaded from the file")
	assert.Equal(t, 320, cfg.Render.Width, "loaded from the file")
	assert.Equal(t, "l.geojson", cfg.Inputs.Lines)
	assert.Equal(t, "s.geojson", cfg.Inputs.Substations)
	assert.Equal(t, "p.geojson", cfg.Inputs.Plants)
	assert.Equal(t, "elsewhere", cfg.Output.Dir)
	assert.Equal(t, "eu", cfg.Output.Prefix)
	assert.Equal(t, "svg", cfg.Render.Format)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestInit_InvalidConfig(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), []byte("crs: mars\n"))
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: path})

	err := app.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestInit_InvalidOverride(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{RenderFormat: "gif"})
	assert.Error(t, app.Init())
}

// ---------------------------------------------------------------------------
// building
// ---------------------------------------------------------------------------

func TestBuild_MissingInputs(t *testing.T) {
	app := NewApp()
	require.NoError(t, app.Init())

	res, err := app.Build()
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs are required")
	assert.Equal(t, err, app.Store.Latest().Err)
	assert.False(t, app.Store.HasResult())
}

func TestBuild_UnreadableInput(t *testing.T) {
	app := testApp(t)
	app.Config.Inputs.Lines = filepath.Join(t.TempDir(), "missing.geojson")

	_, err := app.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading lines")
}

func TestBuild_AlreadyRunning(t *testing.T) {
	app := testApp(t)
	require.True(t, app.Store.TryBeginBuild())
	defer app.Store.EndBuild()

	_, err := app.Build()
	assert.True(t, errors.Is(err, errBuildRunning))
}

func TestRunOnce_WritesOutputs(t *testing.T) {
	app := testApp(t)
	require.NoError(t, app.RunOnce())

	out := app.Config.Output.Dir
	for _, suffix := range []string{
		grid.SuffixBuses, grid.SuffixLines, grid.SuffixIsolatedBuses,
		grid.SuffixUnconnectedBuses, grid.SuffixSubgraphLines, grid.SuffixSummary,
	} {
		_, err := os.Stat(filepath.Join(out, "test"+suffix))
		assert.NoError(t, err, suffix)
	}
	_, err := os.Stat(filepath.Join(out, "test_network.svg"))
	assert.True(t, os.IsNotExist(err), "render format none writes no maps")

	state := app.Store.Latest()
	require.NotNil(t, state.Result)
	assert.NoError(t, state.Err)
	s := grid.Summarize(state.Result)
	assert.Equal(t, 7, s.Buses)
	assert.Equal(t, 6, s.Lines)
	assert.Equal(t, 1, s.IsolatedBuses)
}

func TestRunOnce_RendersAndAssignsPlants(t *testing.T) {
	app := testApp(t)
	app.Config.Render.Format = "all"

	plants := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{5900, 40})
	f.Properties["name"] = "east wind"
	plants.Append(f)
	app.Config.Inputs.Plants = writeCollection(t, filepath.Join(t.TempDir(), "plants.geojson"), plants)

	require.NoError(t, app.RunOnce())

	out := app.Config.Output.Dir
	for _, name := range []string{"test_network.svg", "test_network.png", "test_preview.png", "test_plant_buses.json"} {
		info, err := os.Stat(filepath.Join(out, name))
		if assert.NoError(t, err, name) {
			assert.NotZero(t, info.Size(), name)
		}
	}
}

func TestRunOnce_RepairExhausted(t *testing.T) {
	app := islandApp(t)

	err := app.RunOnce()
	require.Error(t, err)
	assert.True(t, errors.Is(err, grid.ErrConnectivityRepairExhausted))

	// The partial network is still written and served.
	assert.True(t, app.Store.HasResult())
	_, statErr := os.Stat(filepath.Join(app.Config.Output.Dir, "test"+grid.SuffixLines))
	assert.NoError(t, statErr)
}
