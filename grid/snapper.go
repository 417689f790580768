package grid

import (
	"fmt"
	"log"

	"github.com/paulmach/orb"
)

// SnapEndpoints binds both ends of every line to its nearest node and
// stretches the geometry so it starts and ends exactly on those nodes.
// Lines whose two ends land on the same node are dropped; the count is
// returned. Snapping against an empty node set fails with ErrNoCandidates.
func SnapEndpoints(lines []Edge, nodes []Node, proj Projector) ([]Edge, int, error) {
	entries := make([]IndexEntry, len(nodes))
	byID := make(map[string]Node, len(nodes))
	for i, n := range nodes {
		entries[i] = IndexEntry{ID: n.ID, Point: proj.Forward(n.Location)}
		byID[n.ID] = n
	}
	idx := NewSpatialIndex(entries)
	if idx.Len() == 0 && len(lines) > 0 {
		return nil, 0, fmt.Errorf("snapping %d line(s): %w", len(lines), ErrNoCandidates)
	}

	sources := make([]orb.Point, len(lines))
	sinks := make([]orb.Point, len(lines))
	for i, l := range lines {
		sources[i] = proj.Forward(l.Source)
		sinks[i] = proj.Forward(l.Sink)
	}
	srcIDs, _, err := idx.NearestBatch(sources)
	if err != nil {
		return nil, 0, fmt.Errorf("snapping sources: %w", err)
	}
	sinkIDs, _, err := idx.NearestBatch(sinks)
	if err != nil {
		return nil, 0, fmt.Errorf("snapping sinks: %w", err)
	}

	out := make([]Edge, 0, len(lines))
	selfLoops := 0
	for i, l := range lines {
		if srcIDs[i] == sinkIDs[i] {
			selfLoops++
			log.Printf("[DEBUG] dropping %s: both ends snap to %s", l.ID, srcIDs[i])
			continue
		}
		src, sink := byID[srcIDs[i]], byID[sinkIDs[i]]
		e := l.withGeometry(Extend(l.Geometry, src.Location, sink.Location))
		e.SourceBus = src.ID
		e.SinkBus = sink.ID
		out = append(out, e)
	}
	return out, selfLoops, nil
}
