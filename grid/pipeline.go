package grid

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Builder runs the network construction pipeline with one configuration.
// A Builder keeps no state between runs and may be reused.
type Builder struct {
	Config  *Config
	Proj    Projector
	Metrics *Metrics // optional

	ClusterRule MergeRule
}

// NewBuilder validates cfg and picks the projection it names.
func NewBuilder(cfg *Config, metrics *Metrics) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	proj, err := ProjectorFor(cfg.CRS)
	if err != nil {
		return nil, err
	}
	rule, err := ParseMergeRule(cfg.ClusterAttributes)
	if err != nil {
		return nil, err
	}
	return &Builder{Config: cfg, Proj: proj, Metrics: metrics, ClusterRule: rule}, nil
}

// Build turns raw survey records into a connected network.
//
// Per-record problems are counted in the diagnostics and never fail the run.
// A *RepairExhaustedError is returned together with the partial result so
// callers can still inspect and write it; any other error returns no result.
func (b *Builder) Build(lines []RawLine, subs []RawSubstation) (res *Result, err error) {
	defer func() { b.Metrics.RecordResult(res, err) }()

	cfg := b.Config
	ids := NewIDAllocator()
	res = &Result{RunID: uuid.NewString()}
	diag := &res.Diagnostics

	start := time.Now()
	norm := Normalize(lines, subs, cfg.VoltageThreshold, ids)
	diag.Normalization = norm.Summary
	b.stage("normalize", start)
	log.Printf("Normalized %d/%d line(s) and %d/%d substation(s), %d record(s) dropped",
		norm.Summary.LinesKept, norm.Summary.LinesIn,
		norm.Summary.SubstationsKept, norm.Summary.SubstationsIn, norm.Summary.Dropped())

	start = time.Now()
	buses := append(append([]Substation(nil), norm.Substations...), norm.VirtualBuses()...)
	nodes, merged := ClusterBuses(buses, cfg.ClusterDistance, b.ClusterRule, b.Proj, ids)
	diag.ClusteredSubstations = merged
	b.stage("cluster", start)

	start = time.Now()
	fragments, split := SplitLines(norm.Lines, nodes, cfg.OverpassDistance, b.Proj)
	diag.InvalidSplits = split.InvalidSplits
	b.stage("split", start)
	log.Printf("Split %d line(s) into %d fragment(s), %d invalid split(s)",
		split.LinesSplit, split.Fragments, split.InvalidSplits)

	start = time.Now()
	snapped, loops, err := SnapEndpoints(fragments, nodes, b.Proj)
	if err != nil {
		return nil, fmt.Errorf("snapping endpoints: %w", err)
	}
	diag.SelfLoopsDropped = loops
	b.stage("snap", start)

	start = time.Now()
	iso, err := ResolveIsolated(nodes, snapped, cfg.IsolatedBusDistance, b.Proj, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving isolated buses: %w", err)
	}
	diag.IsolatedNodes = iso.Isolated
	diag.IsolatedConnectors = iso.Connectors
	b.stage("isolated", start)
	log.Printf("Found %d isolated and %d unconnected bus(es)", len(iso.Isolated), len(iso.Unconnected))

	start = time.Now()
	rep, repairErr := RepairConnectivity(iso.Nodes, iso.Edges, cfg.MaxSubgraphIterations, b.Proj)
	b.stage("repair", start)
	var exhausted *RepairExhaustedError
	if repairErr != nil && !errors.As(repairErr, &exhausted) {
		return nil, fmt.Errorf("repairing connectivity: %w", repairErr)
	}
	diag.RepairRounds = rep.Rounds
	diag.SubgraphConnectors = rep.Connectors

	b.finalize(res, iso, rep)
	s := Summarize(res)
	log.Printf("Network %s: %d bus(es), %d line(s), %.1f km, %d subgraph connector(s) in %d round(s)",
		res.RunID, s.Buses, s.Lines, s.TotalKM, s.SubgraphLines, len(s.RepairRounds))

	if repairErr != nil {
		return res, fmt.Errorf("repairing connectivity: %w", repairErr)
	}
	return res, nil
}

// finalize drops buses nothing references and measures every edge.
func (b *Builder) finalize(res *Result, iso *IsolationResult, rep *RepairResult) {
	referenced := referencedBuses(rep.Edges)
	diag := &res.Diagnostics

	seen := make(map[string]bool)
	for _, n := range iso.Unconnected {
		seen[n.ID] = true
		diag.UnconnectedNodes = append(diag.UnconnectedNodes, n)
	}
	for _, n := range iso.Nodes {
		if referenced[n.ID] {
			res.Network.Nodes = append(res.Network.Nodes, n)
			continue
		}
		if !seen[n.ID] {
			seen[n.ID] = true
			diag.UnconnectedNodes = append(diag.UnconnectedNodes, n)
		}
	}

	type pair struct{ a, b string }
	pairs := make(map[pair]int)
	res.Network.Edges = make([]Edge, len(rep.Edges))
	diag.IsolatedConnectors, diag.SubgraphConnectors = nil, nil
	for i, e := range rep.Edges {
		e.DistanceKM = Length(forwardLine(b.Proj, e.Geometry)) / 1000
		res.Network.Edges[i] = e
		switch e.Kind {
		case EdgeIsolatedConnector:
			diag.IsolatedConnectors = append(diag.IsolatedConnectors, e)
		case EdgeSubgraphConnector:
			diag.SubgraphConnectors = append(diag.SubgraphConnectors, e)
		}

		key := pair{e.SourceBus, e.SinkBus}
		if key.b < key.a {
			key = pair{key.b, key.a}
		}
		pairs[key]++
	}
	for _, n := range pairs {
		if n > 1 {
			diag.LinesSharingEndpoints += n
		}
	}
	if diag.LinesSharingEndpoints > 0 {
		log.Printf("Warning: %d line(s) share both end buses with another line", diag.LinesSharingEndpoints)
	}
}

func (b *Builder) stage(name string, start time.Time) {
	b.Metrics.ObserveStage(name, time.Since(start))
}
