package grid

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "id": "way/1",
      "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]},
      "properties": {"max_voltage": "230000;115000", "circuits": 2, "operator": "TSO", "name": "North"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "MultiLineString", "coordinates": [[[2, 2], [3, 3]], [[4, 4], [5, 5]]]},
      "properties": {"id": 7, "voltage": 380000, "cables": "3"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[6, 6], [7, 7]]},
      "properties": {"voltage": "unknown"}
    }
  ]
}`

// ---------------------------------------------------------------------------
// readers
// ---------------------------------------------------------------------------

func TestReadLines(t *testing.T) {
	lines, err := ReadLines(strings.NewReader(linesGeoJSON))
	require.NoError(t, err)
	require.Len(t, lines, 4, "the multi-part feature yields one line per part")

	first := lines[0]
	assert.Equal(t, "way/1", first.ID)
	require.NotNil(t, first.MaxVoltage)
	assert.Equal(t, 230000.0, *first.MaxVoltage, "highest of the listed voltages")
	require.NotNil(t, first.Circuits)
	assert.Equal(t, 2.0, *first.Circuits)
	assert.Nil(t, first.Cables)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, first.Geometry)
	assert.Equal(t, Attributes{{Key: "name", Value: "North"}, {Key: "operator", Value: "TSO"}}, first.Attributes)

	for _, l := range lines[1:3] {
		assert.Equal(t, "7", l.ID)
		require.NotNil(t, l.MaxVoltage)
		assert.Equal(t, 380000.0, *l.MaxVoltage, "voltage is the fallback for max_voltage")
		require.NotNil(t, l.Cables)
		assert.Equal(t, 3.0, *l.Cables)
	}
	assert.Equal(t, orb.LineString{{2, 2}, {3, 3}}, lines[1].Geometry)
	assert.Equal(t, orb.LineString{{4, 4}, {5, 5}}, lines[2].Geometry)

	assert.Empty(t, lines[3].ID)
	assert.Nil(t, lines[3].MaxVoltage, "unparseable voltage is missing")
}

func TestReadLines_Invalid(t *testing.T) {
	_, err := ReadLines(strings.NewReader(`{"type": "Feature"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing GeoJSON")
}

func TestReadLinesFile_Missing(t *testing.T) {
	_, err := ReadLinesFile(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestReadSubstations(t *testing.T) {
	const data = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "s1", "geometry": {"type": "Point", "coordinates": [10, 20]}, "properties": {"max_voltage": 400000}},
    {"type": "Feature", "id": "s2", "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [2, 0], [2, 2], [0, 2], [0, 0]]]}, "properties": {}}
  ]
}`
	subs, err := ReadSubstations(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "s1", subs[0].ID)
	require.NotNil(t, subs[0].MaxVoltage)
	assert.Equal(t, 400000.0, *subs[0].MaxVoltage)
	assert.Equal(t, orb.Point{10, 20}, subs[0].Geometry)

	assert.Equal(t, "s2", subs[1].ID)
	assert.Nil(t, subs[1].MaxVoltage)
	assert.IsType(t, orb.Polygon{}, subs[1].Geometry)
	assert.Nil(t, subs[1].Attributes)
}

func TestReadPlants(t *testing.T) {
	const data = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]}, "properties": {"name": "Solar A", "fuel": "solar"}},
    {"type": "Feature", "id": "p2", "geometry": {"type": "Point", "coordinates": [2, 2]}, "properties": {}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [3, 3]}, "properties": {}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}, "properties": {"name": "skipped"}}
  ]
}`
	plants, err := ReadPlants(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, plants, 3)

	assert.Equal(t, "Solar A", plants[0].Name)
	assert.Equal(t, orb.Point{1, 1}, plants[0].Location)
	v, ok := plants[0].Attributes.Get("fuel")
	assert.True(t, ok)
	assert.Equal(t, "solar", v)

	assert.Equal(t, "p2", plants[1].Name, "id is the fallback name")
	assert.Equal(t, "plant3", plants[2].Name, "position is the last resort")
}

// ---------------------------------------------------------------------------
// writers
// ---------------------------------------------------------------------------

func TestLinesToFeatureCollection(t *testing.T) {
	e := wired(testLine("l1", polyline(0, 0, 10, 0)), "a", "b")
	e.Circuits = floatPtr(2)
	e.DistanceKM = 0.01
	e.Attributes = Attributes{{Key: "operator", Value: "TSO"}}

	fc := LinesToFeatureCollection([]Edge{e})
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "l1", f.ID)
	assert.Equal(t, "a", f.Properties["source_bus"])
	assert.Equal(t, "b", f.Properties["sink_bus"])
	assert.Equal(t, 380.0, f.Properties["max_voltage"])
	assert.Equal(t, 2.0, f.Properties["circuits"])
	assert.Equal(t, "surveyed", f.Properties["kind"])
	assert.Equal(t, "TSO", f.Properties["operator"])
	_, hasCables := f.Properties["cables"]
	assert.False(t, hasCables)
}

func TestNetworkToFeatureCollection(t *testing.T) {
	n := &Network{
		Nodes: []Node{testNode("a", 0, 0), testNode("b", 10, 0)},
		Edges: []Edge{wired(testLine("l1", polyline(0, 0, 10, 0)), "a", "b")},
	}
	fc := NetworkToFeatureCollection(n)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "Point", fc.Features[0].Geometry.GeoJSONType())
	assert.Equal(t, "LineString", fc.Features[2].Geometry.GeoJSONType())
	assert.Equal(t, 1, fc.Features[0].Properties["merge_count"])
}

func TestWriteResult(t *testing.T) {
	res, err := buildSample(t, planarConfig())
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteResult(dir, "test", res))

	counts := map[string]int{
		SuffixBuses:            7,
		SuffixLines:            6,
		SuffixIsolatedBuses:    1,
		SuffixUnconnectedBuses: 0,
		SuffixSubgraphLines:    1,
	}
	for suffix, want := range counts {
		data, err := os.ReadFile(filepath.Join(dir, "test"+suffix))
		require.NoError(t, err, suffix)
		fc, err := geojson.UnmarshalFeatureCollection(data)
		require.NoError(t, err, suffix)
		assert.Len(t, fc.Features, want, suffix)
	}

	data, err := os.ReadFile(filepath.Join(dir, "test"+SuffixSummary))
	require.NoError(t, err)
	var s Summary
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, 7, s.Buses)
	assert.Equal(t, 6, s.Lines)
}

func TestWriteResult_ReadsBack(t *testing.T) {
	res, err := buildSample(t, planarConfig())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, WriteResult(dir, "rt", res))

	lines, err := ReadLinesFile(filepath.Join(dir, "rt"+SuffixLines))
	require.NoError(t, err)
	require.Len(t, lines, len(res.Network.Edges))
	for i, l := range lines {
		assert.Equal(t, res.Network.Edges[i].ID, l.ID)
		require.NotNil(t, l.MaxVoltage)
		assert.Equal(t, res.Network.Edges[i].MaxVoltage, *l.MaxVoltage)
	}
}
