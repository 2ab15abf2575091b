package core

import (
	"testing"

	"github.com/signalsfoundry/realm/kb"
	"github.com/signalsfoundry/realm/model"
	"github.com/stretchr/testify/require"
)

type testTown struct {
	id   string
	x, y int
	tax  int
}

func newTestStore(t *testing.T, towns ...testTown) *kb.KnowledgeBase {
	t.Helper()
	store := kb.NewKnowledgeBase()
	for _, tt := range towns {
		_, err := store.AddTown(model.Town{
			ID:     tt.id,
			Name:   "Town " + tt.id,
			Coords: model.Coord{X: tt.x, Y: tt.y},
			Tax:    tt.tax,
		})
		require.NoError(t, err)
	}
	return store
}

func addRoads(t *testing.T, g *RoadGraph, pairs ...[2]string) {
	t.Helper()
	for _, p := range pairs {
		require.NoError(t, g.AddEdge(p[0], p[1]), "AddEdge(%s, %s)", p[0], p[1])
	}
}
