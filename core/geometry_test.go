package core

import (
	"testing"

	"github.com/signalsfoundry/realm/model"
)

func TestDistance_Truncates(t *testing.T) {
	cases := []struct {
		a, b model.Coord
		want model.Distance
	}{
		{model.Coord{X: 0, Y: 0}, model.Coord{X: 3, Y: 4}, 5},
		{model.Coord{X: 0, Y: 0}, model.Coord{X: 1, Y: 1}, 1},  // 1.414
		{model.Coord{X: 2, Y: 2}, model.Coord{X: -1, Y: 0}, 3}, // 3.606
		{model.Coord{X: 7, Y: 7}, model.Coord{X: 7, Y: 7}, 0},
	}
	for _, c := range cases {
		if got := Distance(c.a, c.b); got != c.want {
			t.Errorf("Distance(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
		if got := Distance(c.b, c.a); got != c.want {
			t.Errorf("Distance is not symmetric for %v, %v", c.a, c.b)
		}
	}
}

func TestDistance_LargeCoordinatesDoNotOverflow(t *testing.T) {
	a := model.Coord{X: -2_000_000_000, Y: 0}
	b := model.Coord{X: 2_000_000_000, Y: 0}
	if got := Distance(a, b); got != 4_000_000_000 {
		t.Errorf("Distance = %d, want 4000000000", got)
	}
}

func TestHeuristics(t *testing.T) {
	a := model.Coord{X: 0, Y: 0}
	b := model.Coord{X: 6, Y: 8}
	if got := StraightLine(a, b); got != 10 {
		t.Errorf("StraightLine = %d, want 10", got)
	}
	if got := NoEstimate(a, b); got != 0 {
		t.Errorf("NoEstimate = %d, want 0", got)
	}
	if got := DistanceFromOrigin(b); got != 10 {
		t.Errorf("DistanceFromOrigin = %d, want 10", got)
	}
}
