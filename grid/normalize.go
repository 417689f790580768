package grid

import (
	"fmt"
	"log"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// sentinelVoltageKV is a placeholder value found in the source survey data.
// Lines carrying it are rewritten to the configured threshold.
const sentinelVoltageKV = 220

// IDAllocator hands out sequential ids per prefix ("line1", "line2", ...).
// One allocator is scoped to one pipeline run.
type IDAllocator struct {
	counters map[string]int
}

// NewIDAllocator creates an allocator with every counter at zero.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{counters: make(map[string]int)}
}

// Next returns the next id for prefix, starting at 1.
func (a *IDAllocator) Next(prefix string) string {
	a.counters[prefix]++
	return fmt.Sprintf("%s%d", prefix, a.counters[prefix])
}

// Normalized is the output of Normalize.
type Normalized struct {
	Lines       []Edge
	Substations []Substation
	Summary     NormalizeSummary
}

// VirtualBuses returns one virtual substation per line endpoint so that
// clustering produces a node for every line end.
func (n *Normalized) VirtualBuses() []Substation {
	out := make([]Substation, 0, 2*len(n.Lines))
	for _, l := range n.Lines {
		for i, p := range []orb.Point{l.Source, l.Sink} {
			suffix := "a"
			if i == 1 {
				suffix = "b"
			}
			out = append(out, Substation{
				ID:         "bus" + l.ID + suffix,
				Location:   p,
				MaxVoltage: l.MaxVoltage,
				Virtual:    true,
			})
		}
	}
	return out
}

// Normalize converts raw survey records into pipeline entities: volts are
// turned into kV, records without a voltage or below thresholdKV are dropped,
// substation outlines become their centroid and every survivor gets a fresh
// sequential id from ids. Dropped records are counted, never fatal.
func Normalize(lines []RawLine, subs []RawSubstation, thresholdKV float64, ids *IDAllocator) Normalized {
	var out Normalized
	out.Summary.LinesIn = len(lines)
	out.Summary.SubstationsIn = len(subs)

	for i, raw := range lines {
		kv, ok := toKV(raw.MaxVoltage)
		if !ok {
			out.Summary.MissingVoltage++
			continue
		}
		if kv == sentinelVoltageKV {
			kv = thresholdKV
			out.Summary.VoltageSubstituted++
		}
		if kv < thresholdKV {
			out.Summary.BelowThreshold++
			continue
		}

		ls, ok := raw.Geometry.(orb.LineString)
		if !ok {
			out.Summary.InvalidGeometry++
			log.Printf("Warning: line record %d (%s) has geometry %T, skipping", i, raw.ID, raw.Geometry)
			continue
		}
		source, sink, err := Endpoints(ls)
		if err != nil {
			out.Summary.InvalidGeometry++
			log.Printf("Warning: line record %d (%s): %v, skipping", i, raw.ID, err)
			continue
		}

		attrs := raw.Attributes.Clone()
		if raw.ID != "" {
			attrs = attrs.Set("survey_id", raw.ID)
		}
		id := ids.Next("line")
		out.Lines = append(out.Lines, Edge{
			ID:         id,
			ParentID:   id,
			Kind:       EdgeSurveyed,
			Source:     source,
			Sink:       sink,
			Geometry:   ls.Clone(),
			MaxVoltage: kv,
			Circuits:   raw.Circuits,
			Cables:     raw.Cables,
			Attributes: attrs,
		})
	}

	for i, raw := range subs {
		kv, ok := toKV(raw.MaxVoltage)
		if !ok {
			out.Summary.MissingVoltage++
			continue
		}
		if kv < thresholdKV {
			out.Summary.BelowThreshold++
			continue
		}

		loc, err := substationPoint(raw.Geometry)
		if err != nil {
			out.Summary.InvalidGeometry++
			log.Printf("Warning: substation record %d (%s): %v, skipping", i, raw.ID, err)
			continue
		}

		attrs := raw.Attributes.Clone()
		if raw.ID != "" {
			attrs = attrs.Set("survey_id", raw.ID)
		}
		out.Substations = append(out.Substations, Substation{
			ID:         ids.Next("substation"),
			Location:   loc,
			MaxVoltage: kv,
			Attributes: attrs,
		})
	}

	out.Summary.LinesKept = len(out.Lines)
	out.Summary.SubstationsKept = len(out.Substations)
	return out
}

func toKV(volts *float64) (float64, bool) {
	if volts == nil || math.IsNaN(*volts) || math.IsInf(*volts, 0) {
		return 0, false
	}
	return *volts / 1000, true
}

// substationPoint reduces a substation geometry to one point.
func substationPoint(g orb.Geometry) (orb.Point, error) {
	switch g := g.(type) {
	case orb.Point:
		return g, nil
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) == 0 {
			return orb.Point{}, fmt.Errorf("empty polygon: %w", ErrInvalidGeometry)
		}
		c, _ := planar.CentroidArea(g)
		return c, nil
	case orb.MultiPolygon:
		if len(g) == 0 {
			return orb.Point{}, fmt.Errorf("empty multipolygon: %w", ErrInvalidGeometry)
		}
		c, _ := planar.CentroidArea(g)
		return c, nil
	case nil:
		return orb.Point{}, fmt.Errorf("missing geometry: %w", ErrInvalidGeometry)
	}
	return orb.Point{}, fmt.Errorf("unsupported substation geometry %s: %w", g.GeoJSONType(), ErrInvalidGeometry)
}
