package grid

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Property keys read from survey features. Anything else is carried as an
// attribute.
var reservedProperties = map[string]bool{
	"id":          true,
	"max_voltage": true,
	"voltage":     true,
	"circuits":    true,
	"cables":      true,
}

// ReadLinesFile reads line features from a GeoJSON file.
func ReadLinesFile(path string) ([]RawLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()
	return ReadLines(f)
}

// ReadLines decodes a FeatureCollection of transmission lines. Multi-part
// features yield one line per part, all sharing the feature's id.
func ReadLines(r io.Reader) ([]RawLine, error) {
	fc, err := readCollection(r)
	if err != nil {
		return nil, err
	}

	var out []RawLine
	for _, f := range fc.Features {
		base := RawLine{
			ID:         featureID(f),
			MaxVoltage: parseVoltage(voltageProperty(f.Properties)),
			Circuits:   parseNumber(f.Properties["circuits"]),
			Cables:     parseNumber(f.Properties["cables"]),
			Attributes: propertyAttributes(f.Properties),
		}
		if mls, ok := f.Geometry.(orb.MultiLineString); ok {
			for _, part := range mls {
				l := base
				l.Geometry = part
				l.Attributes = base.Attributes.Clone()
				out = append(out, l)
			}
			continue
		}
		base.Geometry = f.Geometry
		out = append(out, base)
	}
	return out, nil
}

// ReadSubstationsFile reads substation features from a GeoJSON file.
func ReadSubstationsFile(path string) ([]RawSubstation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()
	return ReadSubstations(f)
}

// ReadSubstations decodes a FeatureCollection of substation points or outlines.
func ReadSubstations(r io.Reader) ([]RawSubstation, error) {
	fc, err := readCollection(r)
	if err != nil {
		return nil, err
	}

	out := make([]RawSubstation, 0, len(fc.Features))
	for _, f := range fc.Features {
		out = append(out, RawSubstation{
			ID:         featureID(f),
			MaxVoltage: parseVoltage(voltageProperty(f.Properties)),
			Geometry:   f.Geometry,
			Attributes: propertyAttributes(f.Properties),
		})
	}
	return out, nil
}

// ReadPlantsFile reads generation sites from a GeoJSON file.
func ReadPlantsFile(path string) ([]Plant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()
	return ReadPlants(f)
}

// ReadPlants decodes point features with a name property. Outlines are
// reduced to their centroid; features without usable geometry are skipped.
func ReadPlants(r io.Reader) ([]Plant, error) {
	fc, err := readCollection(r)
	if err != nil {
		return nil, err
	}

	out := make([]Plant, 0, len(fc.Features))
	for i, f := range fc.Features {
		loc, err := substationPoint(f.Geometry)
		if err != nil {
			continue
		}
		name, _ := f.Properties["name"].(string)
		if name == "" {
			name = featureID(f)
		}
		if name == "" {
			name = fmt.Sprintf("plant%d", i+1)
		}
		out = append(out, Plant{Name: name, Location: loc, Attributes: propertyAttributes(f.Properties)})
	}
	return out, nil
}

func readCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading GeoJSON: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing GeoJSON: %w", err)
	}
	return fc, nil
}

func featureID(f *geojson.Feature) string {
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	if v, ok := f.Properties["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func voltageProperty(p geojson.Properties) interface{} {
	if v, ok := p["max_voltage"]; ok && v != nil {
		return v
	}
	return p["voltage"]
}

// parseVoltage accepts a number or a numeric string. Multi-valued tags such
// as "230000;115000" yield the highest value.
func parseVoltage(v interface{}) *float64 {
	s, ok := v.(string)
	if !ok {
		return parseNumber(v)
	}
	var best *float64
	for _, part := range strings.Split(s, ";") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(f) {
			continue
		}
		if best == nil || f > *best {
			best = &f
		}
	}
	return best
}

func parseNumber(v interface{}) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return nil
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return nil
		}
	default:
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// propertyAttributes copies the non-reserved properties in key order, since
// decoded properties carry no order of their own.
func propertyAttributes(p geojson.Properties) Attributes {
	keys := make([]string, 0, len(p))
	for k := range p {
		if !reservedProperties[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	attrs := make(Attributes, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, Attribute{Key: k, Value: p[k]})
	}
	return attrs
}

// NodesToFeatureCollection converts buses to point features.
func NodesToFeatureCollection(nodes []Node) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range nodes {
		f := geojson.NewFeature(n.Location)
		f.ID = n.ID
		for _, kv := range n.Attributes {
			f.Properties[kv.Key] = kv.Value
		}
		f.Properties["id"] = n.ID
		f.Properties["max_voltage"] = n.MaxVoltage
		f.Properties["merge_count"] = n.MergeCount
		fc.Append(f)
	}
	return fc
}

// LinesToFeatureCollection converts edges to line features.
func LinesToFeatureCollection(edges []Edge) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range edges {
		f := geojson.NewFeature(e.Geometry)
		f.ID = e.ID
		for _, kv := range e.Attributes {
			f.Properties[kv.Key] = kv.Value
		}
		f.Properties["id"] = e.ID
		f.Properties["source_bus"] = e.SourceBus
		f.Properties["sink_bus"] = e.SinkBus
		f.Properties["source"] = e.Source
		f.Properties["sink"] = e.Sink
		f.Properties["max_voltage"] = e.MaxVoltage
		f.Properties["distance_km"] = e.DistanceKM
		f.Properties["kind"] = string(e.Kind)
		if e.Circuits != nil {
			f.Properties["circuits"] = *e.Circuits
		}
		if e.Cables != nil {
			f.Properties["cables"] = *e.Cables
		}
		fc.Append(f)
	}
	return fc
}

// NetworkToFeatureCollection puts buses and lines in one collection.
func NetworkToFeatureCollection(n *Network) *geojson.FeatureCollection {
	fc := NodesToFeatureCollection(n.Nodes)
	fc.Features = append(fc.Features, LinesToFeatureCollection(n.Edges).Features...)
	return fc
}

// Output file suffixes written by WriteResult.
const (
	SuffixBuses            = "_final_buses.geojson"
	SuffixLines            = "_final_lines.geojson"
	SuffixIsolatedBuses    = "_isolated_buses.geojson"
	SuffixUnconnectedBuses = "_unconnected_buses.geojson"
	SuffixSubgraphLines    = "_subgraph_lines.geojson"
	SuffixSummary          = "_summary.json"
)

// WriteResult writes the network and its diagnostics to dir, one file per
// layer, each named <prefix><suffix>.
func WriteResult(dir, prefix string, res *Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	layers := []struct {
		suffix string
		fc     *geojson.FeatureCollection
	}{
		{SuffixBuses, NodesToFeatureCollection(res.Network.Nodes)},
		{SuffixLines, LinesToFeatureCollection(res.Network.Edges)},
		{SuffixIsolatedBuses, NodesToFeatureCollection(res.Diagnostics.IsolatedNodes)},
		{SuffixUnconnectedBuses, NodesToFeatureCollection(res.Diagnostics.UnconnectedNodes)},
		{SuffixSubgraphLines, LinesToFeatureCollection(res.Diagnostics.SubgraphConnectors)},
	}
	for _, l := range layers {
		data, err := json.Marshal(l.fc)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", l.suffix, err)
		}
		if err := os.WriteFile(filepath.Join(dir, prefix+l.suffix), data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", l.suffix, err)
		}
	}

	summary, err := json.MarshalIndent(Summarize(res), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, prefix+SuffixSummary), summary, 0644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
