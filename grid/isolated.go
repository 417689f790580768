package grid

import (
	"fmt"
	"log"

	"github.com/paulmach/orb"
)

// IsolationResult is the network after isolated buses got their connectors.
type IsolationResult struct {
	Nodes       []Node // touched nodes followed by isolated ones
	Edges       []Edge // input edges followed by the connectors
	Isolated    []Node
	Unconnected []Node
	Connectors  []Edge
}

// ResolveIsolated looks at every node that no edge references. A node farther
// than maxDist from every line is a real but unmapped bus: it gets a straight
// connector fake-<k> to its nearest referenced node. A node closer than that
// sits next to a line it was not snapped to; it is reported as unconnected and
// left out of the network.
func ResolveIsolated(nodes []Node, edges []Edge, maxDist float64, proj Projector, ids *IDAllocator) (*IsolationResult, error) {
	touched := referencedBuses(edges)

	projected := make([]orb.LineString, len(edges))
	bounds := make([]orb.Bound, len(edges))
	for i, e := range edges {
		projected[i] = forwardLine(proj, e.Geometry)
		bounds[i] = projected[i].Bound().Pad(maxDist)
	}

	res := &IsolationResult{}
	var entries []IndexEntry
	for _, n := range nodes {
		if touched[n.ID] {
			res.Nodes = append(res.Nodes, n)
			entries = append(entries, IndexEntry{ID: n.ID, Point: proj.Forward(n.Location)})
			continue
		}
		at := proj.Forward(n.Location)
		if nearAnyLine(projected, bounds, at, maxDist) {
			res.Unconnected = append(res.Unconnected, n)
			continue
		}
		res.Isolated = append(res.Isolated, n)
	}

	if len(res.Isolated) == 0 {
		res.Edges = edges
		return res, nil
	}

	idx := NewSpatialIndex(entries)
	if idx.Len() == 0 {
		return nil, fmt.Errorf("connecting %d isolated bus(es): %w", len(res.Isolated), ErrNoCandidates)
	}
	byID := make(map[string]Node, len(res.Nodes))
	for _, n := range res.Nodes {
		byID[n.ID] = n
	}

	res.Edges = append(make([]Edge, 0, len(edges)+len(res.Isolated)), edges...)
	for _, iso := range res.Isolated {
		nearestID, d, err := idx.Nearest(proj.Forward(iso.Location))
		if err != nil {
			return nil, fmt.Errorf("connecting isolated bus %s: %w", iso.ID, err)
		}
		target := byID[nearestID]
		c := connector(ids.Next("fake-"), EdgeIsolatedConnector, iso, target, target.MaxVoltage)
		res.Connectors = append(res.Connectors, c)
		res.Edges = append(res.Edges, c)
		log.Printf("Connected isolated bus %s to %s (%.1f)", iso.ID, target.ID, d)
	}
	res.Nodes = append(res.Nodes, res.Isolated...)
	return res, nil
}

// connector builds a straight synthetic edge between two buses.
func connector(id string, kind EdgeKind, from, to Node, kv float64) Edge {
	return Edge{
		ID:         id,
		Kind:       kind,
		Source:     from.Location,
		Sink:       to.Location,
		SourceBus:  from.ID,
		SinkBus:    to.ID,
		Geometry:   orb.LineString{from.Location, to.Location},
		MaxVoltage: kv,
		Attributes: Attributes{{Key: "provenance", Value: string(kind)}},
	}
}

func referencedBuses(edges []Edge) map[string]bool {
	seen := make(map[string]bool, 2*len(edges))
	for _, e := range edges {
		seen[e.SourceBus] = true
		seen[e.SinkBus] = true
	}
	return seen
}

func nearAnyLine(lines []orb.LineString, bounds []orb.Bound, p orb.Point, maxDist float64) bool {
	for i, ls := range lines {
		if !bounds[i].Contains(p) {
			continue
		}
		if DistanceToLine(ls, p) <= maxDist {
			return true
		}
	}
	return false
}
