package grid

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// pointTolerance is the distance, in the metric frame, under which two
// points are treated as the same location.
const pointTolerance = 1e-6

// probeSize is the half-length of the probe segment used by SplitAt.
const probeSize = 1e-2

// Endpoints returns the first and last vertex of ls.
func Endpoints(ls orb.LineString) (orb.Point, orb.Point, error) {
	if len(ls) < 2 {
		return orb.Point{}, orb.Point{}, fmt.Errorf("line with %d vertices: %w", len(ls), ErrInvalidGeometry)
	}
	return ls[0], ls[len(ls)-1], nil
}

// Extend returns a copy of ls that starts at start and ends at end. A point
// is only added when the line does not already begin or end exactly there.
func Extend(ls orb.LineString, start, end orb.Point) orb.LineString {
	out := make(orb.LineString, 0, len(ls)+2)
	if len(ls) == 0 || !ls[0].Equal(start) {
		out = append(out, start)
	}
	out = append(out, ls...)
	if len(out) == 0 || !out[len(out)-1].Equal(end) {
		out = append(out, end)
	}
	return out
}

// SplitOutcome tags the result of SplitAt.
type SplitOutcome int

const (
	// SplitOK means the line was cut into A and B.
	SplitOK SplitOutcome = iota
	// SplitNotNeeded means the point sits on an end of the line.
	SplitNotNeeded
	// SplitDegenerate means neither probe produced a usable cut.
	SplitDegenerate
)

func (o SplitOutcome) String() string {
	switch o {
	case SplitOK:
		return "split"
	case SplitNotNeeded:
		return "no-split-needed"
	default:
		return "degenerate"
	}
}

// SplitResult is the tagged outcome of SplitAt. A and B are only set for SplitOK.
type SplitResult struct {
	Outcome SplitOutcome
	A, B    orb.LineString
}

// probe is a short segment through the split point.
type probe struct {
	name string
	dx   float64
	dy   float64
}

var (
	probeEastWest   = probe{name: "east-west", dx: probeSize}
	probeNorthSouth = probe{name: "north-south", dy: probeSize}
)

func (pr probe) segment(p orb.Point) (orb.Point, orb.Point) {
	return orb.Point{p[0] - pr.dx, p[1] - pr.dy}, orb.Point{p[0] + pr.dx, p[1] + pr.dy}
}

// SplitAt cuts ls at the location on it nearest to p. The cut is found by
// crossing ls with a short east-west probe centred on that location; when the
// probe runs along the crossed segment the north-south probe is used instead.
// A location on one of the line's ends needs no cut.
func SplitAt(ls orb.LineString, p orb.Point) SplitResult {
	if len(ls) < 2 {
		return SplitResult{Outcome: SplitDegenerate}
	}
	p = ClosestPointOn(ls, p)
	if within(p, ls[0]) || within(p, ls[len(ls)-1]) {
		return SplitResult{Outcome: SplitNotNeeded}
	}
	// On an interior vertex the probes can run along a segment at a corner.
	for i := 1; i < len(ls)-1; i++ {
		if within(p, ls[i]) {
			return cutAt(ls, crossing{seg: i, at: ls[i]})
		}
	}

	c, ok := probeCrossing(ls, p, probeEastWest)
	if !ok {
		c, ok = probeCrossing(ls, p, probeNorthSouth)
	}
	if !ok {
		return SplitResult{Outcome: SplitDegenerate}
	}
	return cutAt(ls, c)
}

// crossing is where a probe meets the line: segment index and the point.
type crossing struct {
	seg int
	t   float64
	at  orb.Point
}

// probeCrossing returns the crossing of the probe with ls closest to p.
// It reports false when the probe misses the line or overlaps one of the
// segments it would cross.
func probeCrossing(ls orb.LineString, p orb.Point, pr probe) (crossing, bool) {
	a, b := pr.segment(p)
	q := orb.Point{b[0] - a[0], b[1] - a[1]}

	best := crossing{seg: -1}
	bestDist := math.Inf(1)
	for i := 0; i < len(ls)-1; i++ {
		s0, s1 := ls[i], ls[i+1]
		r := orb.Point{s1[0] - s0[0], s1[1] - s0[1]}
		if r[0] == 0 && r[1] == 0 {
			continue
		}
		as := orb.Point{a[0] - s0[0], a[1] - s0[1]}

		denom := cross(r, q)
		if denom == 0 {
			if cross(as, r) == 0 && overlaps(s0, s1, a, b) {
				return crossing{}, false
			}
			continue
		}
		t := cross(as, q) / denom
		u := cross(as, r) / denom
		if t < 0 || t > 1 || u < 0 || u > 1 {
			continue
		}
		at := orb.Point{s0[0] + t*r[0], s0[1] + t*r[1]}
		if d := planar.Distance(at, p); d < bestDist {
			best = crossing{seg: i, t: t, at: at}
			bestDist = d
		}
	}
	return best, best.seg >= 0
}

// cutAt splits ls at the crossing. Cuts within pointTolerance of a vertex
// reuse the vertex so no near-duplicate points are introduced.
func cutAt(ls orb.LineString, c crossing) SplitResult {
	first, last := ls[0], ls[len(ls)-1]
	if within(c.at, first) || within(c.at, last) {
		return SplitResult{Outcome: SplitNotNeeded}
	}

	var a, b orb.LineString
	switch {
	case within(c.at, ls[c.seg]):
		a = append(orb.LineString{}, ls[:c.seg+1]...)
		b = append(orb.LineString{}, ls[c.seg:]...)
	case within(c.at, ls[c.seg+1]):
		a = append(orb.LineString{}, ls[:c.seg+2]...)
		b = append(orb.LineString{}, ls[c.seg+1:]...)
	default:
		a = append(append(orb.LineString{}, ls[:c.seg+1]...), c.at)
		b = append(orb.LineString{c.at}, ls[c.seg+1:]...)
	}

	if len(a) < 2 || len(b) < 2 || planar.Length(a) == 0 || planar.Length(b) == 0 {
		return SplitResult{Outcome: SplitDegenerate}
	}
	return SplitResult{Outcome: SplitOK, A: a, B: b}
}

// LocateAlong returns the distance along ls of the point on ls closest to p.
func LocateAlong(ls orb.LineString, p orb.Point) float64 {
	best, bestDist, walked := 0.0, math.Inf(1), 0.0
	for i := 0; i < len(ls)-1; i++ {
		s0, s1 := ls[i], ls[i+1]
		segLen := planar.Distance(s0, s1)
		t := segmentParam(s0, s1, p)
		at := orb.Point{s0[0] + t*(s1[0]-s0[0]), s0[1] + t*(s1[1]-s0[1])}
		if d := planar.Distance(at, p); d < bestDist {
			best, bestDist = walked+t*segLen, d
		}
		walked += segLen
	}
	return best
}

// PointAlong returns the point at distance d along ls, clamped to its ends.
func PointAlong(ls orb.LineString, d float64) orb.Point {
	if len(ls) == 0 {
		return orb.Point{}
	}
	if d <= 0 {
		return ls[0]
	}
	for i := 0; i < len(ls)-1; i++ {
		s0, s1 := ls[i], ls[i+1]
		segLen := planar.Distance(s0, s1)
		if d <= segLen && segLen > 0 {
			t := d / segLen
			return orb.Point{s0[0] + t*(s1[0]-s0[0]), s0[1] + t*(s1[1]-s0[1])}
		}
		d -= segLen
	}
	return ls[len(ls)-1]
}

// ClosestPointOn returns the point of ls nearest to p.
func ClosestPointOn(ls orb.LineString, p orb.Point) orb.Point {
	return PointAlong(ls, LocateAlong(ls, p))
}

// DistanceToLine returns the shortest distance from p to ls.
func DistanceToLine(ls orb.LineString, p orb.Point) float64 {
	return planar.DistanceFrom(ls, p)
}

// Length returns the planar length of ls.
func Length(ls orb.LineString) float64 {
	return planar.Length(ls)
}

func segmentParam(s0, s1, p orb.Point) float64 {
	dx, dy := s1[0]-s0[0], s1[1]-s0[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return 0
	}
	t := ((p[0]-s0[0])*dx + (p[1]-s0[1])*dy) / l2
	return math.Max(0, math.Min(1, t))
}

func cross(a, b orb.Point) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

// overlaps reports whether collinear segments s0-s1 and a-b share more than nothing.
func overlaps(s0, s1, a, b orb.Point) bool {
	axis := 0
	if math.Abs(s1[0]-s0[0]) < math.Abs(s1[1]-s0[1]) {
		axis = 1
	}
	sLo, sHi := math.Min(s0[axis], s1[axis]), math.Max(s0[axis], s1[axis])
	pLo, pHi := math.Min(a[axis], b[axis]), math.Max(a[axis], b[axis])
	return sLo <= pHi && pLo <= sHi
}

func within(a, b orb.Point) bool {
	return planar.Distance(a, b) <= pointTolerance
}
