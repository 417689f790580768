package grid

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// Plant is a generation site to be attached to the network.
type Plant struct {
	Name       string
	Location   orb.Point
	Attributes Attributes
}

// PlantAssignment binds a plant to the bus it feeds into.
type PlantAssignment struct {
	Plant    string    `json:"plant"`
	Location orb.Point `json:"location"`
	Bus      string    `json:"bus"`
	Distance float64   `json:"distance"` // projected units
}

// AssignNearestBus maps every plant to its nearest bus.
func AssignNearestBus(plants []Plant, nodes []Node, proj Projector) ([]PlantAssignment, error) {
	entries := make([]IndexEntry, len(nodes))
	for i, n := range nodes {
		entries[i] = IndexEntry{ID: n.ID, Point: proj.Forward(n.Location)}
	}
	idx := NewSpatialIndex(entries)

	qs := make([]orb.Point, len(plants))
	for i, p := range plants {
		qs[i] = proj.Forward(p.Location)
	}
	ids, dists, err := idx.NearestBatch(qs)
	if err != nil {
		return nil, fmt.Errorf("assigning %d plant(s): %w", len(plants), err)
	}

	out := make([]PlantAssignment, len(plants))
	for i, p := range plants {
		out[i] = PlantAssignment{Plant: p.Name, Location: p.Location, Bus: ids[i], Distance: dists[i]}
	}
	return out, nil
}

// WritePlantAssignments writes assignments as an indented JSON array.
func WritePlantAssignments(path string, assignments []PlantAssignment) error {
	data, err := json.MarshalIndent(assignments, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plant assignments: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing plant assignments: %w", err)
	}
	return nil
}
