package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/realm/kb"
	"github.com/signalsfoundry/realm/model"
)

var (
	ErrTownNotFound = kb.ErrTownNotFound
	ErrSelfRoad     = errors.New("road endpoints must differ")
	ErrRoadExists   = errors.New("road already exists")
	ErrRoadNotFound = errors.New("road not found")
)

// RoadGraph is the undirected road relation between towns. Every road is
// stored twice: as an entry in both endpoints' adjacency lists, for
// traversal, and once in canonical form, for enumeration.
type RoadGraph struct {
	store *kb.KnowledgeBase

	adj   map[kb.Handle][]kb.Handle
	roads []model.Road
}

// NewRoadGraph creates an empty road graph over the towns in store. The
// graph follows the store: a removed town loses its roads and clearing the
// store clears the graph.
func NewRoadGraph(store *kb.KnowledgeBase) *RoadGraph {
	g := &RoadGraph{
		store: store,
		adj:   make(map[kb.Handle][]kb.Handle),
	}
	store.Subscribe(g.handleStoreEvent)
	return g
}

func (g *RoadGraph) handleStoreEvent(e kb.Event) {
	switch e.Type {
	case kb.EventTownRemoved:
		g.detachTown(e.Handle, e.Town.ID)
	case kb.EventCleared:
		g.Clear()
	}
}

func (g *RoadGraph) resolve(a, b string) (kb.Handle, kb.Handle, error) {
	ha, ok := g.store.Lookup(a)
	if !ok {
		return kb.Handle{}, kb.Handle{}, fmt.Errorf("%w: %q", ErrTownNotFound, a)
	}
	hb, ok := g.store.Lookup(b)
	if !ok {
		return kb.Handle{}, kb.Handle{}, fmt.Errorf("%w: %q", ErrTownNotFound, b)
	}
	return ha, hb, nil
}

// AddEdge connects two distinct existing towns.
func (g *RoadGraph) AddEdge(a, b string) error {
	ha, hb, err := g.resolve(a, b)
	if err != nil {
		return err
	}
	if a == b {
		return fmt.Errorf("%w: %q", ErrSelfRoad, a)
	}
	for _, n := range g.adj[ha] {
		if n == hb {
			return fmt.Errorf("%w: %q-%q", ErrRoadExists, a, b)
		}
	}

	g.adj[ha] = append(g.adj[ha], hb)
	g.adj[hb] = append(g.adj[hb], ha)
	g.roads = append(g.roads, model.NewRoad(a, b))
	return nil
}

// RemoveEdge deletes the road between a and b in both directions.
func (g *RoadGraph) RemoveEdge(a, b string) error {
	ha, hb, err := g.resolve(a, b)
	if err != nil {
		return err
	}
	if !g.removeEdge(ha, hb, model.NewRoad(a, b)) {
		return fmt.Errorf("%w: %q-%q", ErrRoadNotFound, a, b)
	}
	return nil
}

func (g *RoadGraph) removeEdge(ha, hb kb.Handle, road model.Road) bool {
	var found bool
	g.adj[ha], found = without(g.adj[ha], hb)
	g.adj[hb], _ = without(g.adj[hb], ha)
	for i, r := range g.roads {
		if r == road {
			g.roads = append(g.roads[:i], g.roads[i+1:]...)
			break
		}
	}
	return found
}

// detachTown removes every road incident to h, whose town id has already
// left the store.
func (g *RoadGraph) detachTown(h kb.Handle, id string) {
	for _, n := range g.adj[h] {
		g.adj[n], _ = without(g.adj[n], h)
	}
	delete(g.adj, h)

	kept := g.roads[:0]
	for _, r := range g.roads {
		if !r.Has(id) {
			kept = append(kept, r)
		}
	}
	g.roads = kept
}

// Neighbors returns the IDs of towns one road away from id.
func (g *RoadGraph) Neighbors(id string) ([]string, error) {
	h, ok := g.store.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTownNotFound, id)
	}
	adj := g.adj[h]
	out := make([]string, 0, len(adj))
	for _, n := range adj {
		out = append(out, g.store.ID(n))
	}
	return out, nil
}

func (g *RoadGraph) neighbors(h kb.Handle) []kb.Handle {
	return g.adj[h]
}

// Edges returns a copy of the canonical road list in insertion order.
func (g *RoadGraph) Edges() []model.Road {
	out := make([]model.Road, len(g.roads))
	copy(out, g.roads)
	return out
}

// Len returns the number of roads.
func (g *RoadGraph) Len() int {
	return len(g.roads)
}

// Clear removes every road.
func (g *RoadGraph) Clear() {
	g.adj = make(map[kb.Handle][]kb.Handle)
	g.roads = nil
}

func without(list []kb.Handle, h kb.Handle) ([]kb.Handle, bool) {
	for i, n := range list {
		if n == h {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
