package model

import "math"

// NoTownID is returned in place of a town identifier when the requested
// town does not exist. Sequence-returning queries return it as their only
// element.
const NoTownID = "----------"

// NoValue is returned for integer results that cannot be computed because
// the input was not found.
const NoValue = math.MinInt

// NoName is returned in place of a town name when the town does not exist.
const NoName = "!!NO_NAME!!"

// NoDistance is returned for distances that are unknown.
const NoDistance Distance = NoValue

// NoCoord is returned in place of a coordinate when the town does not exist.
var NoCoord = Coord{X: NoValue, Y: NoValue}

// Distance is a road or straight-line length, truncated to an integer.
type Distance = int

// Coord is an integer position on the realm's map.
type Coord struct {
	X int
	Y int
}

// Town is a settlement in the realm. Identity is the ID; every other field
// may change over the town's lifetime.
type Town struct {
	ID     string
	Name   string
	Coords Coord
	Tax    int
}

// Road is an unordered pair of town IDs in canonical form: A < B.
type Road struct {
	A string
	B string
}

// NewRoad returns the canonical road between two towns.
func NewRoad(a, b string) Road {
	if b < a {
		a, b = b, a
	}
	return Road{A: a, B: b}
}

// Has reports whether the road touches the given town.
func (r Road) Has(id string) bool {
	return r.A == id || r.B == id
}
