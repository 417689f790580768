package grid

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// RepairResult is the outcome of RepairConnectivity.
type RepairResult struct {
	Edges      []Edge
	Connectors []Edge
	// Rounds holds the number of components seen by every scan.
	Rounds []int
}

// RepairConnectivity adds connectors until the graph induced by the edges'
// bus pairs is a single component. Each round every component is joined to
// the nearest bus outside it by a straight edge subgraph<component>-<round>.
// After maxRounds rounds the edges are scanned once more; if that scan still
// sees more than one component a *RepairExhaustedError is returned along with
// what was built.
func RepairConnectivity(nodes []Node, edges []Edge, maxRounds int, proj Projector) (*RepairResult, error) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	res := &RepairResult{Edges: append([]Edge(nil), edges...)}
	for round := 0; round < maxRounds; round++ {
		comps := Components(res.Edges)
		res.Rounds = append(res.Rounds, len(comps))
		if len(comps) <= 1 {
			return res, nil
		}

		added, err := connectComponents(comps, byID, round, proj)
		if err != nil {
			return res, err
		}
		res.Connectors = append(res.Connectors, added...)
		res.Edges = append(res.Edges, added...)
	}

	remaining := len(Components(res.Edges))
	res.Rounds = append(res.Rounds, remaining)
	if remaining <= 1 {
		return res, nil
	}
	return res, &RepairExhaustedError{Iterations: maxRounds, Components: remaining}
}

// connectComponents adds one connector per component toward its nearest
// outside bus, skipping pairs already joined this round.
func connectComponents(comps [][]string, byID map[string]Node, round int, proj Projector) ([]Edge, error) {
	type pair struct{ a, b string }
	seen := make(map[pair]bool)

	var added []Edge
	bestDist := math.Inf(1)
	var best Edge
	for ci, comp := range comps {
		inside := make(map[string]bool, len(comp))
		for _, id := range comp {
			inside[id] = true
		}
		var outside []IndexEntry
		for _, other := range comps {
			for _, id := range other {
				if !inside[id] {
					outside = append(outside, IndexEntry{ID: id, Point: proj.Forward(byID[id].Location)})
				}
			}
		}
		idx := NewSpatialIndex(outside)

		members := make([]orb.Point, len(comp))
		for i, id := range comp {
			members[i] = proj.Forward(byID[id].Location)
		}
		nearest, dists, err := idx.NearestBatch(members)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", ci, err)
		}

		from, d := 0, dists[0]
		for i := 1; i < len(dists); i++ {
			if dists[i] < d {
				from, d = i, dists[i]
			}
		}
		a, b := comp[from], nearest[from]
		key := pair{a, b}
		if b < a {
			key = pair{b, a}
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		src, dst := byID[a], byID[b]
		c := connector(fmt.Sprintf("subgraph%d-%d", ci, round), EdgeSubgraphConnector,
			src, dst, math.Max(src.MaxVoltage, dst.MaxVoltage))
		added = append(added, c)
		if d < bestDist {
			bestDist, best = d, c
		}
	}
	log.Printf("Repair round %d: %d components, %d connector(s), closest %s-%s (%.1f)",
		round, len(comps), len(added), best.SourceBus, best.SinkBus, bestDist)
	return added, nil
}

// Components returns the connected components of the graph induced by the
// edges' bus pairs. Components, and the buses within each, are ordered by
// first appearance in edges.
func Components(edges []Edge) [][]string {
	seq := make(map[string]int64)
	var names []string
	intern := func(id string) int64 {
		if n, ok := seq[id]; ok {
			return n
		}
		n := int64(len(names))
		seq[id] = n
		names = append(names, id)
		return n
	}

	g := simple.NewUndirectedGraph()
	for _, e := range edges {
		a, b := intern(e.SourceBus), intern(e.SinkBus)
		if g.Node(a) == nil {
			g.AddNode(simple.Node(a))
		}
		if a == b {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(b)})
	}

	raw := topo.ConnectedComponents(g)
	ordered := make([][]int64, len(raw))
	for i, comp := range raw {
		ids := make([]int64, len(comp))
		for j, n := range comp {
			ids[j] = n.ID()
		}
		sort.Slice(ids, func(x, y int) bool { return ids[x] < ids[y] })
		ordered[i] = ids
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i][0] < ordered[j][0] })

	out := make([][]string, len(ordered))
	for i, ids := range ordered {
		out[i] = make([]string, len(ids))
		for j, n := range ids {
			out[i][j] = names[n]
		}
	}
	return out
}
