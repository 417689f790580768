package grid

import (
	"testing"

	"github.com/paulmach/orb"
)

// ---------------------------------------------------------------------------
// shared fixtures
// ---------------------------------------------------------------------------

func floatPtr(v float64) *float64 { return &v }

// polyline builds a line from x, y pairs.
func polyline(xy ...float64) orb.LineString {
	out := make(orb.LineString, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, orb.Point{xy[i], xy[i+1]})
	}
	return out
}

func testNode(id string, x, y float64) Node {
	return Node{ID: id, Location: orb.Point{x, y}, MaxVoltage: 380, MergeCount: 1}
}

func testLine(id string, g orb.LineString) Edge {
	return Edge{
		ID:         id,
		ParentID:   id,
		Kind:       EdgeSurveyed,
		Source:     g[0],
		Sink:       g[len(g)-1],
		Geometry:   g,
		MaxVoltage: 380,
	}
}

func wired(e Edge, source, sink string) Edge {
	e.SourceBus, e.SinkBus = source, sink
	return e
}

// planarConfig is a config for tests that work in plain metric coordinates.
func planarConfig() *Config {
	cfg := DefaultConfig()
	cfg.CRS = CRSPlanar
	cfg.ClusterDistance = 50
	cfg.OverpassDistance = 20
	cfg.IsolatedBusDistance = 1000
	cfg.MaxSubgraphIterations = 10
	return cfg
}

func rawLine(id string, volts float64, g orb.Geometry) RawLine {
	return RawLine{ID: id, MaxVoltage: floatPtr(volts), Geometry: g}
}

func rawPoint(id string, volts float64, x, y float64) RawSubstation {
	return RawSubstation{ID: id, MaxVoltage: floatPtr(volts), Geometry: orb.Point{x, y}}
}

// sampleInput is a small survey: two lines meeting at (1000,0), a third line
// far to the east, one line below threshold, a substation sitting on the
// first line and one substation far from everything.
func sampleInput() ([]RawLine, []RawSubstation) {
	lines := []RawLine{
		rawLine("w1", 380000, polyline(0, 0, 1000, 0)),
		rawLine("w2", 380000, polyline(1000, 0, 2000, 0)),
		rawLine("w3", 220000, polyline(5000, 0, 6000, 0)),
		rawLine("w4", 110000, polyline(0, 500, 100, 500)),
	}
	subs := []RawSubstation{
		rawPoint("n1", 380000, 500, 5),
		rawPoint("n2", 380000, 3000, 3000),
	}
	return lines, subs
}

// islandLines are four separate lines. Repair joins them two at a time, so
// the network needs two rounds to become connected.
func islandLines() []RawLine {
	return []RawLine{
		rawLine("i1", 380000, polyline(0, 0, 100, 0)),
		rawLine("i2", 380000, polyline(200, 0, 300, 0)),
		rawLine("i3", 380000, polyline(5000, 0, 5100, 0)),
		rawLine("i4", 380000, polyline(5200, 0, 5300, 0)),
	}
}

func buildSample(t *testing.T, cfg *Config) (*Result, error) {
	t.Helper()
	b, err := NewBuilder(cfg, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	lines, subs := sampleInput()
	return b.Build(lines, subs)
}
