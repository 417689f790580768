package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// IndexEntry is one located entity in a SpatialIndex.
type IndexEntry struct {
	ID    string
	Point orb.Point
}

// SpatialIndex answers nearest-neighbour queries over a fixed set of points.
// Distances are Euclidean in whatever frame the points were given in, so
// callers project geographic coordinates first. An index is never mutated;
// build a new one when the candidate set changes.
type SpatialIndex struct {
	tree    *kdtree.Tree
	entries []IndexEntry
}

// NewSpatialIndex builds an index over entries.
func NewSpatialIndex(entries []IndexEntry) *SpatialIndex {
	pts := make(indexPoints, len(entries))
	for i, e := range entries {
		pts[i] = indexPoint{x: e.Point[0], y: e.Point[1], seq: i}
	}
	idx := &SpatialIndex{entries: append([]IndexEntry(nil), entries...)}
	if len(pts) > 0 {
		idx.tree = kdtree.New(pts, false)
	}
	return idx
}

// Len returns the number of indexed entries.
func (s *SpatialIndex) Len() int { return len(s.entries) }

// Nearest returns the id of the entry closest to q and its distance.
// Equidistant entries resolve to the one inserted first.
func (s *SpatialIndex) Nearest(q orb.Point) (string, float64, error) {
	if s.tree == nil {
		return "", 0, fmt.Errorf("nearest to %v: %w", q, ErrNoCandidates)
	}
	query := indexPoint{x: q[0], y: q[1], seq: -1}
	_, d2 := s.tree.Nearest(query)

	keep := kdtree.NewDistKeeper(d2)
	s.tree.NearestSet(keep, query)
	best := -1
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		p := c.Comparable.(indexPoint)
		if best < 0 || p.seq < best {
			best = p.seq
		}
	}
	if best < 0 {
		return "", 0, fmt.Errorf("nearest to %v: %w", q, ErrNoCandidates)
	}
	return s.entries[best].ID, math.Sqrt(d2), nil
}

// NearestBatch runs Nearest for every query point and returns parallel slices.
func (s *SpatialIndex) NearestBatch(qs []orb.Point) ([]string, []float64, error) {
	ids := make([]string, len(qs))
	dists := make([]float64, len(qs))
	for i, q := range qs {
		id, d, err := s.Nearest(q)
		if err != nil {
			return nil, nil, err
		}
		ids[i], dists[i] = id, d
	}
	return ids, dists, nil
}

// Within returns every entry at distance <= r from q, ordered by insertion.
func (s *SpatialIndex) Within(q orb.Point, r float64) []IndexEntry {
	seqs := s.withinSeq(q, r)
	out := make([]IndexEntry, len(seqs))
	for i, seq := range seqs {
		out[i] = s.entries[seq]
	}
	return out
}

// withinSeq is Within returning entry positions instead of entries.
func (s *SpatialIndex) withinSeq(q orb.Point, r float64) []int {
	if s.tree == nil {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	s.tree.NearestSet(keep, indexPoint{x: q[0], y: q[1], seq: -1})

	seqs := make([]int, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		seqs = append(seqs, c.Comparable.(indexPoint).seq)
	}
	sort.Ints(seqs)
	return seqs
}

// indexPoint is the kdtree.Comparable stored in the tree. seq is the
// position of the entry in SpatialIndex.entries.
type indexPoint struct {
	x, y float64
	seq  int
}

func (p indexPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexPoint)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p indexPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance, as kdtree expects.
func (p indexPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexPoint)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type indexPoints []indexPoint

func (p indexPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexPoints) Len() int                              { return len(p) }
func (p indexPoints) Pivot(d kdtree.Dim) int                { return indexPlane{indexPoints: p, Dim: d}.Pivot() }
func (p indexPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

type indexPlane struct {
	kdtree.Dim
	indexPoints
}

func (p indexPlane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.indexPoints[i].x < p.indexPoints[j].x
	}
	return p.indexPoints[i].y < p.indexPoints[j].y
}

func (p indexPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p indexPlane) Slice(start, end int) kdtree.SortSlicer {
	p.indexPoints = p.indexPoints[start:end]
	return p
}

func (p indexPlane) Swap(i, j int) {
	p.indexPoints[i], p.indexPoints[j] = p.indexPoints[j], p.indexPoints[i]
}
