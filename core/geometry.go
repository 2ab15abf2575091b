package core

import (
	"math"

	"github.com/signalsfoundry/realm/model"
)

// Distance returns the straight-line distance between two points,
// truncated to an integer.
func Distance(a, b model.Coord) model.Distance {
	dx := float64(a.X) - float64(b.X)
	dy := float64(a.Y) - float64(b.Y)
	return model.Distance(math.Sqrt(dx*dx + dy*dy))
}

// DistanceFromOrigin returns Distance(c, (0,0)).
func DistanceFromOrigin(c model.Coord) model.Distance {
	return Distance(c, model.Coord{})
}

// Heuristic estimates the remaining road distance between two towns for the
// best-first route search.
type Heuristic func(from, to model.Coord) model.Distance

// StraightLine estimates the remaining distance as the truncated Euclidean
// distance. It is admissible and consistent when every road length is an
// exact integer (axis-aligned or Pythagorean roads); otherwise truncation
// can overestimate by less than one unit per road and the search becomes
// best-effort.
func StraightLine(from, to model.Coord) model.Distance {
	return Distance(from, to)
}

// NoEstimate turns the best-first search into plain Dijkstra.
func NoEstimate(_, _ model.Coord) model.Distance {
	return 0
}
