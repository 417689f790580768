package grid

import (
	"log"

	"github.com/paulmach/orb"
)

// clusterItem is a point taking part in a clustering pass. Items start as
// substations and become merged groups between passes.
type clusterItem struct {
	at         orb.Point // projected
	maxVoltage float64
	count      int
	bags       []Attributes // member attributes, in member order
}

// ClusterBuses merges substations lying within eps of each other (measured in
// the projected frame) into nodes. Neighbourhood is transitive: two points
// end up in the same node when a chain of neighbours links them. Points with
// no neighbour become single-member nodes.
//
// Passes are repeated over the merged centroids until one makes no merge, so
// clustering the returned nodes again is a no-op. The second return value is
// the number of nodes built from more than one substation. Member attributes
// are combined with rule.
func ClusterBuses(subs []Substation, eps float64, rule MergeRule, proj Projector, ids *IDAllocator) ([]Node, int) {
	items := make([]clusterItem, len(subs))
	for i, s := range subs {
		items[i] = clusterItem{
			at:         proj.Forward(s.Location),
			maxVoltage: s.MaxVoltage,
			count:      1,
			bags:       []Attributes{s.Attributes},
		}
	}
	return clusterItems(items, eps, rule, proj, ids)
}

// ReclusterNodes runs the clustering passes over existing nodes, keeping
// their merge counts as centroid weights.
func ReclusterNodes(nodes []Node, eps float64, rule MergeRule, proj Projector, ids *IDAllocator) ([]Node, int) {
	items := make([]clusterItem, len(nodes))
	for i, n := range nodes {
		count := n.MergeCount
		if count < 1 {
			count = 1
		}
		items[i] = clusterItem{
			at:         proj.Forward(n.Location),
			maxVoltage: n.MaxVoltage,
			count:      count,
			bags:       []Attributes{n.Attributes},
		}
	}
	return clusterItems(items, eps, rule, proj, ids)
}

func clusterItems(items []clusterItem, eps float64, rule MergeRule, proj Projector, ids *IDAllocator) ([]Node, int) {
	passes := 0
	for {
		merged, changed := clusterPass(items, eps)
		if !changed {
			break
		}
		items = merged
		passes++
	}

	nodes := make([]Node, len(items))
	multi := 0
	for i, it := range items {
		if it.count > 1 {
			multi++
		}
		nodes[i] = Node{
			ID:         ids.Next("bus"),
			Location:   proj.Inverse(it.at),
			MaxVoltage: it.maxVoltage,
			MergeCount: it.count,
			Attributes: MergeAll(it.bags, rule),
		}
	}
	log.Printf("Clustered %d substation(s) into %d bus(es) over %d pass(es), %d from merges",
		countMembers(items), len(nodes), passes+1, multi)
	return nodes, multi
}

// clusterPass groups items whose points are within eps, in the order of each
// group's first member. It reports false when every group is a singleton.
func clusterPass(items []clusterItem, eps float64) ([]clusterItem, bool) {
	entries := make([]IndexEntry, len(items))
	for i, it := range items {
		entries[i] = IndexEntry{Point: it.at}
	}
	idx := NewSpatialIndex(entries)

	uf := newUnionFind(len(items))
	changed := false
	for i, it := range items {
		for _, j := range idx.withinSeq(it.at, eps) {
			if j != i && uf.union(i, j) {
				changed = true
			}
		}
	}
	if !changed {
		return items, false
	}

	slot := make(map[int]int)
	var groups [][]int
	for i := range items {
		root := uf.find(i)
		g, ok := slot[root]
		if !ok {
			g = len(groups)
			slot[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}

	out := make([]clusterItem, len(groups))
	for g, members := range groups {
		out[g] = mergeItems(items, members)
	}
	return out, true
}

// mergeItems combines members into one item: the centroid is weighted by
// member counts, voltage is the highest, attribute bags are concatenated.
func mergeItems(items []clusterItem, members []int) clusterItem {
	if len(members) == 1 {
		return items[members[0]]
	}
	var out clusterItem
	var sx, sy float64
	for _, m := range members {
		it := items[m]
		w := float64(it.count)
		sx += it.at[0] * w
		sy += it.at[1] * w
		if out.count == 0 || it.maxVoltage > out.maxVoltage {
			out.maxVoltage = it.maxVoltage
		}
		out.count += it.count
		out.bags = append(out.bags, it.bags...)
	}
	out.at = orb.Point{sx / float64(out.count), sy / float64(out.count)}
	return out
}

func countMembers(items []clusterItem) int {
	n := 0
	for _, it := range items {
		n += it.count
	}
	return n
}

// unionFind is a disjoint-set with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union joins the sets of a and b and reports whether they were separate.
func (uf *unionFind) union(a, b int) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	uf.parent[ra] = rb
	return true
}
