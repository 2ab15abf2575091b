package core

import (
	"cmp"
	"slices"

	"github.com/signalsfoundry/realm/kb"
	"github.com/signalsfoundry/realm/model"
)

// TrimToSpanningForest removes roads until the network is a minimum
// spanning forest: every pair of towns that was connected stays connected,
// and the total road length is as small as possible. It returns the total
// length of the remaining roads.
//
// Roads are considered shortest first; equal lengths keep their insertion
// order, so the result is deterministic.
func (g *RoadGraph) TrimToSpanningForest() model.Distance {
	type weighted struct {
		road   model.Road
		a, b   kb.Handle
		length model.Distance
	}

	candidates := make([]weighted, 0, len(g.roads))
	for _, r := range g.roads {
		a, okA := g.store.Lookup(r.A)
		b, okB := g.store.Lookup(r.B)
		if !okA || !okB {
			continue
		}
		candidates = append(candidates, weighted{
			road:   r,
			a:      a,
			b:      b,
			length: Distance(g.store.Coords(a), g.store.Coords(b)),
		})
	}
	slices.SortStableFunc(candidates, func(x, y weighted) int {
		return cmp.Compare(x.length, y.length)
	})

	sets := newDisjointSets(g.store.Cap())
	total := 0
	var drop []weighted
	for _, c := range candidates {
		if sets.union(c.a.Index(), c.b.Index()) {
			total += c.length
			continue
		}
		drop = append(drop, c)
	}
	for _, c := range drop {
		g.removeEdge(c.a, c.b, c.road)
	}
	return total
}

// disjointSets is a union-find over slot indices with path halving and
// union by size.
type disjointSets struct {
	parent []int
	size   []int
}

func newDisjointSets(n int) *disjointSets {
	ds := &disjointSets{parent: make([]int, n), size: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
		ds.size[i] = 1
	}
	return ds
}

func (ds *disjointSets) find(x int) int {
	for ds.parent[x] != x {
		ds.parent[x] = ds.parent[ds.parent[x]]
		x = ds.parent[x]
	}
	return x
}

// union merges the sets of x and y and reports whether they were separate.
func (ds *disjointSets) union(x, y int) bool {
	rx, ry := ds.find(x), ds.find(y)
	if rx == ry {
		return false
	}
	if ds.size[rx] < ds.size[ry] {
		rx, ry = ry, rx
	}
	ds.parent[ry] = rx
	ds.size[rx] += ds.size[ry]
	return true
}
