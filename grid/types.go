package grid

import "github.com/paulmach/orb"

// EdgeKind records where an edge came from.
type EdgeKind string

const (
	EdgeSurveyed          EdgeKind = "surveyed"
	EdgeIsolatedConnector EdgeKind = "isolated-connector"
	EdgeSubgraphConnector EdgeKind = "subgraph-connector"
)

// RawLine is a transmission line record as delivered by the survey layer.
// MaxVoltage is in volts; nil means the survey carried no value.
type RawLine struct {
	ID         string
	MaxVoltage *float64
	Circuits   *float64
	Cables     *float64
	Geometry   orb.Geometry
	Attributes Attributes
}

// RawSubstation is a substation record as delivered by the survey layer.
// Geometry is either a point or a (multi)polygon outline.
type RawSubstation struct {
	ID         string
	MaxVoltage *float64
	Geometry   orb.Geometry
	Attributes Attributes
}

// Substation is a normalized substation reduced to a point, or a virtual bus
// created at a line endpoint so that line ends have something to bind to.
type Substation struct {
	ID         string
	Location   orb.Point
	MaxVoltage float64 // kV
	Virtual    bool
	Attributes Attributes
}

// Node is a network bus: one or more substations merged by the clustering engine.
type Node struct {
	ID         string     `json:"id"`
	Location   orb.Point  `json:"location"`
	MaxVoltage float64    `json:"maxVoltage"` // kV
	MergeCount int        `json:"mergeCount"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Edge is a transmission line (or a synthetic connector) between two buses.
//
// Before snapping, Source and Sink are the as-surveyed endpoints; afterwards
// they are the locations of SourceBus and SinkBus and Geometry starts and ends
// at them.
type Edge struct {
	ID         string         `json:"id"`
	ParentID   string         `json:"parentId,omitempty"`
	Kind       EdgeKind       `json:"kind"`
	Source     orb.Point      `json:"source"`
	Sink       orb.Point      `json:"sink"`
	SourceBus  string         `json:"sourceBus,omitempty"`
	SinkBus    string         `json:"sinkBus,omitempty"`
	Geometry   orb.LineString `json:"geometry"`
	MaxVoltage float64        `json:"maxVoltage"` // kV
	Circuits   *float64       `json:"circuits,omitempty"`
	Cables     *float64       `json:"cables,omitempty"`
	DistanceKM float64        `json:"distanceKm"`
	Attributes Attributes     `json:"attributes,omitempty"`
}

// withGeometry returns a copy of e carrying g, with Source and Sink recomputed.
func (e Edge) withGeometry(g orb.LineString) Edge {
	e.Geometry = g
	if len(g) > 0 {
		e.Source = g[0]
		e.Sink = g[len(g)-1]
	}
	e.Attributes = e.Attributes.Clone()
	return e
}

// Network is the pair of final node and edge sets.
type Network struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID returns the node with the given id.
func (n *Network) NodeByID(id string) (Node, bool) {
	for _, node := range n.Nodes {
		if node.ID == id {
			return node, true
		}
	}
	return Node{}, false
}

// NormalizeSummary counts records dropped by the normalizer, per reason.
type NormalizeSummary struct {
	LinesIn            int `json:"linesIn"`
	LinesKept          int `json:"linesKept"`
	SubstationsIn      int `json:"substationsIn"`
	SubstationsKept    int `json:"substationsKept"`
	MissingVoltage     int `json:"missingVoltage"`
	BelowThreshold     int `json:"belowThreshold"`
	InvalidGeometry    int `json:"invalidGeometry"`
	VoltageSubstituted int `json:"voltageSubstituted"`
}

// Dropped returns the total number of dropped records.
func (s NormalizeSummary) Dropped() int {
	return s.MissingVoltage + s.BelowThreshold + s.InvalidGeometry
}

// Diagnostics collects everything the pipeline reports besides the network itself.
type Diagnostics struct {
	Normalization         NormalizeSummary `json:"normalization"`
	ClusteredSubstations  int              `json:"clusteredSubstations"`
	InvalidSplits         int              `json:"invalidSplits"`
	SelfLoopsDropped      int              `json:"selfLoopsDropped"`
	LinesSharingEndpoints int              `json:"linesSharingEndpoints"`
	RepairRounds          []int            `json:"repairRounds"`
	IsolatedNodes         []Node           `json:"isolatedNodes"`
	UnconnectedNodes      []Node           `json:"unconnectedNodes"`
	IsolatedConnectors    []Edge           `json:"isolatedConnectors"`
	SubgraphConnectors    []Edge           `json:"subgraphConnectors"`
}

// Result is the output of one pipeline run.
type Result struct {
	RunID       string      `json:"runId"`
	Network     Network     `json:"network"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Summary is the compact, JSON-friendly overview of a Result.
type Summary struct {
	RunID                 string           `json:"runId"`
	Buses                 int              `json:"buses"`
	Lines                 int              `json:"lines"`
	TotalKM               float64          `json:"totalKm"`
	IsolatedBuses         int              `json:"isolatedBuses"`
	UnconnectedBuses      int              `json:"unconnectedBuses"`
	SubgraphLines         int              `json:"subgraphLines"`
	SelfLoopsDropped      int              `json:"selfLoopsDropped"`
	InvalidSplits         int              `json:"invalidSplits"`
	LinesSharingEndpoints int              `json:"linesSharingEndpoints"`
	RepairRounds          []int            `json:"repairRounds"`
	Normalization         NormalizeSummary `json:"normalization"`
}

// Summarize reduces a Result to counts.
func Summarize(res *Result) Summary {
	s := Summary{
		RunID:                 res.RunID,
		Buses:                 len(res.Network.Nodes),
		Lines:                 len(res.Network.Edges),
		IsolatedBuses:         len(res.Diagnostics.IsolatedNodes),
		UnconnectedBuses:      len(res.Diagnostics.UnconnectedNodes),
		SubgraphLines:         len(res.Diagnostics.SubgraphConnectors),
		SelfLoopsDropped:      res.Diagnostics.SelfLoopsDropped,
		InvalidSplits:         res.Diagnostics.InvalidSplits,
		LinesSharingEndpoints: res.Diagnostics.LinesSharingEndpoints,
		RepairRounds:          res.Diagnostics.RepairRounds,
		Normalization:         res.Diagnostics.Normalization,
	}
	for _, e := range res.Network.Edges {
		s.TotalKM += e.DistanceKM
	}
	return s
}
