package grid

import (
	"fmt"
	"log"
	"sort"

	"github.com/paulmach/orb"
)

// SplitStats reports what SplitLines did.
type SplitStats struct {
	LinesSplit    int
	Fragments     int
	InvalidSplits int
}

// SplitLines cuts every line at the nodes lying within overpass of it, so a
// line that runs over a substation becomes one fragment per stretch between
// substations. Distances are measured in the projected frame.
//
// A line with no node nearby is returned as is. Otherwise its fragments are
// named <id>-split-<k> in order along the line, the last being whatever
// remains after the final cut. Cuts that cannot be made are skipped and
// counted in InvalidSplits.
func SplitLines(lines []Edge, nodes []Node, overpass float64, proj Projector) ([]Edge, SplitStats) {
	type located struct {
		id string
		at orb.Point
	}
	projected := make([]located, len(nodes))
	for i, n := range nodes {
		projected[i] = located{id: n.ID, at: proj.Forward(n.Location)}
	}

	var stats SplitStats
	out := make([]Edge, 0, len(lines))
	for _, line := range lines {
		pl := forwardLine(proj, line.Geometry)
		bound := pl.Bound().Pad(overpass)

		type candidate struct {
			located
			along float64
		}
		var near []candidate
		for _, n := range projected {
			if !bound.Contains(n.at) {
				continue
			}
			if DistanceToLine(pl, n.at) <= overpass {
				near = append(near, candidate{located: n, along: LocateAlong(pl, n.at)})
			}
		}
		if len(near) == 0 {
			out = append(out, line)
			stats.Fragments++
			continue
		}
		sort.SliceStable(near, func(i, j int) bool {
			if near[i].along != near[j].along {
				return near[i].along < near[j].along
			}
			return near[i].id < near[j].id
		})

		remaining := pl
		k := 0
		for _, c := range near {
			res := SplitAt(remaining, c.at)
			switch res.Outcome {
			case SplitOK:
				out = append(out, fragment(line, k, restoreLine(proj, line.Geometry, pl, res.A)))
				k++
				remaining = res.B
			case SplitNotNeeded:
			case SplitDegenerate:
				stats.InvalidSplits++
				log.Printf("Warning: cannot split %s at bus %s, skipping", line.ID, c.id)
			}
		}
		out = append(out, fragment(line, k, restoreLine(proj, line.Geometry, pl, remaining)))
		stats.Fragments += k + 1
		if k > 0 {
			stats.LinesSplit++
		}
	}
	return out, stats
}

// restoreLine maps a fragment of the projected line pl back to geographic
// coordinates. Vertices carried over from pl take their original value from
// orig; only cut points go through the inverse projection.
func restoreLine(proj Projector, orig, pl, frag orb.LineString) orb.LineString {
	known := make(map[orb.Point]orb.Point, len(pl))
	for i, v := range pl {
		if _, ok := known[v]; !ok {
			known[v] = orig[i]
		}
	}
	out := make(orb.LineString, len(frag))
	for i, v := range frag {
		if o, ok := known[v]; ok {
			out[i] = o
		} else {
			out[i] = proj.Inverse(v)
		}
	}
	return out
}

func fragment(parent Edge, k int, g orb.LineString) Edge {
	f := parent.withGeometry(g)
	f.ID = fmt.Sprintf("%s-split-%d", parent.ID, k)
	if f.ParentID == "" {
		f.ParentID = parent.ID
	}
	return f
}
