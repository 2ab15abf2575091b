// Package realm is the single entry point for a realm of towns: it owns the
// town store and keeps the vassalage forest and the road graph consistent
// with it.
package realm

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/signalsfoundry/realm/core"
	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/signalsfoundry/realm/internal/observability"
	"github.com/signalsfoundry/realm/kb"
	"github.com/signalsfoundry/realm/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Re-export sentinel errors so callers can depend on realm.* instead of
// kb.* or core.* directly.
var (
	// ErrTownExists indicates a town with the same ID is already present.
	ErrTownExists = kb.ErrTownExists
	// ErrTownNotFound indicates a referenced town does not exist.
	ErrTownNotFound = kb.ErrTownNotFound
	// ErrVassalHasMaster indicates the vassal already pays taxes elsewhere.
	ErrVassalHasMaster = core.ErrVassalHasMaster
	// ErrVassalCycle indicates the master is already below the vassal.
	ErrVassalCycle = core.ErrVassalCycle
	// ErrSelfRoad indicates both road endpoints are the same town.
	ErrSelfRoad = core.ErrSelfRoad
	// ErrRoadExists indicates the road is already present.
	ErrRoadExists = core.ErrRoadExists
	// ErrRoadNotFound indicates there is no road between the two towns.
	ErrRoadNotFound = core.ErrRoadNotFound
)

// MetricsRecorder receives count updates for realm entities.
type MetricsRecorder interface {
	SetRealmCounts(towns, roads, vassalships int)
}

// QueryRecorder receives per-operation measurements.
type QueryRecorder interface {
	ObserveQuery(operation, outcome string, d time.Duration)
	ObserveRoute(towns int)
	AddTrimmedRoads(n int)
}

// Realm holds towns, their vassalage forest and their road network.
//
// It is not safe for concurrent use.
type Realm struct {
	store     *kb.KnowledgeBase
	forest    *core.VassalageForest
	roads     *core.RoadGraph
	traversal *core.Traversal

	cycleGuard bool
	heuristic  core.Heuristic

	log     logging.Logger
	metrics MetricsRecorder
	queries QueryRecorder
	tracer  trace.Tracer
}

// Option customises Realm construction.
type Option func(*Realm)

// WithMetricsRecorder attaches an optional recorder for entity counts.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(r *Realm) {
		r.metrics = m
	}
}

// WithQueryRecorder attaches an optional recorder for operation outcomes
// and latencies.
func WithQueryRecorder(q QueryRecorder) Option {
	return func(r *Realm) {
		r.queries = q
	}
}

// WithTracer overrides the tracer used for route searches and trimming.
func WithTracer(t trace.Tracer) Option {
	return func(r *Realm) {
		r.tracer = t
	}
}

// WithVassalCycleGuard controls whether AddVassalship rejects links that
// would make a town its own ancestor. The guard is on by default.
func WithVassalCycleGuard(enabled bool) Option {
	return func(r *Realm) {
		r.cycleGuard = enabled
	}
}

// WithHeuristic replaces the shortest-route estimate. core.NoEstimate turns
// the search into Dijkstra's algorithm, which always finds the shortest
// route.
func WithHeuristic(h core.Heuristic) Option {
	return func(r *Realm) {
		r.heuristic = h
	}
}

// New returns an empty realm.
//
// ShortestRoute defaults to core.StraightLine. Road lengths are truncated to
// integers, so on diagonal roads that estimate can exceed the remaining road
// distance and the route found may be a few units longer than the shortest
// one. Pass WithHeuristic(core.NoEstimate) when exact results matter.
func New(log logging.Logger, opts ...Option) *Realm {
	if log == nil {
		log = logging.Noop()
	}
	r := &Realm{
		store:      kb.NewKnowledgeBase(),
		cycleGuard: true,
		log:        log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.tracer == nil {
		r.tracer = observability.Tracer()
	}
	r.forest = core.NewVassalageForest(r.store, r.cycleGuard)
	r.roads = core.NewRoadGraph(r.store)
	r.traversal = core.NewTraversal(r.store, r.roads, r.heuristic)
	r.updateMetrics()
	return r
}

// ---- Towns ----

// TownCount returns the number of towns.
func (r *Realm) TownCount() int {
	return r.store.Len()
}

// ClearAll removes every road, vassalship and town.
func (r *Realm) ClearAll(ctx context.Context) {
	start := time.Now()
	ctx, log := logging.WithQueryLogger(ctx, r.log)

	towns, roads, vassalships := r.store.Len(), r.roads.Len(), r.forest.Len()
	r.store.Clear()
	r.updateMetrics()

	log.Debug(ctx, "realm cleared",
		logging.String("operation", "clear_all"),
		logging.Int("towns", towns),
		logging.Int("roads", roads),
		logging.Int("vassalships", vassalships),
	)
	r.observe("clear_all", start, nil)
}

// AddTown inserts a town. It fails with ErrTownExists if id is taken.
func (r *Realm) AddTown(id, name string, coord model.Coord, tax int) error {
	start := time.Now()
	_, err := r.store.AddTown(model.Town{ID: id, Name: name, Coords: coord, Tax: tax})
	if err == nil {
		r.updateMetrics()
	}
	r.observe("add_town", start, err)
	return err
}

// TownName returns the name of id, or model.NoName.
func (r *Realm) TownName(id string) string {
	t, ok := r.store.GetTown(id)
	if !ok {
		return model.NoName
	}
	return t.Name
}

// TownCoordinates returns the position of id, or model.NoCoord.
func (r *Realm) TownCoordinates(id string) model.Coord {
	t, ok := r.store.GetTown(id)
	if !ok {
		return model.NoCoord
	}
	return t.Coords
}

// TownTax returns the tax rate of id, or model.NoValue.
func (r *Realm) TownTax(id string) int {
	t, ok := r.store.GetTown(id)
	if !ok {
		return model.NoValue
	}
	return t.Tax
}

// AllTowns returns every town ID in ascending order.
func (r *Realm) AllTowns() []string {
	ids := make([]string, 0, r.store.Len())
	for _, t := range r.store.ListTowns() {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)
	return ids
}

// FindTowns returns the IDs of towns called name, in ascending order.
func (r *Realm) FindTowns(name string) []string {
	var ids []string
	for _, t := range r.store.ListTowns() {
		if t.Name == name {
			ids = append(ids, t.ID)
		}
	}
	slices.Sort(ids)
	if ids == nil {
		return []string{}
	}
	return ids
}

// ChangeTownName renames id.
func (r *Realm) ChangeTownName(id, name string) error {
	start := time.Now()
	err := r.store.RenameTown(id, name)
	r.observe("change_town_name", start, err)
	return err
}

// TownsAlphabetically returns all town IDs ordered by name.
func (r *Realm) TownsAlphabetically() []string {
	towns := r.store.ListTowns()
	slices.SortFunc(towns, func(a, b model.Town) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return townIDs(towns)
}

// TownsDistanceIncreasing returns all town IDs ordered by distance from
// the origin.
func (r *Realm) TownsDistanceIncreasing() []string {
	return r.TownsNearest(model.Coord{})
}

// TownsNearest returns all town IDs ordered by distance from coord.
func (r *Realm) TownsNearest(coord model.Coord) []string {
	towns := r.store.ListTowns()
	slices.SortFunc(towns, func(a, b model.Town) int {
		return cmp.Or(
			cmp.Compare(core.Distance(a.Coords, coord), core.Distance(b.Coords, coord)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return townIDs(towns)
}

// MinDistance returns the town closest to the origin, or model.NoTownID
// when the realm is empty.
func (r *Realm) MinDistance() string {
	return r.extremeDistance(func(d, best model.Distance) bool { return d < best })
}

// MaxDistance returns the town furthest from the origin, or
// model.NoTownID when the realm is empty.
func (r *Realm) MaxDistance() string {
	return r.extremeDistance(func(d, best model.Distance) bool { return d > best })
}

func (r *Realm) extremeDistance(better func(d, best model.Distance) bool) string {
	bestID := model.NoTownID
	best := model.NoDistance
	for _, t := range r.store.ListTowns() {
		d := core.DistanceFromOrigin(t.Coords)
		if bestID == model.NoTownID || better(d, best) || (d == best && t.ID < bestID) {
			bestID, best = t.ID, d
		}
	}
	return bestID
}

// RemoveTown erases id. The forest and road graph follow the store, so its
// roads go with it and its vassals move under its master.
func (r *Realm) RemoveTown(ctx context.Context, id string) error {
	start := time.Now()
	ctx, log := logging.WithQueryLogger(ctx, r.log)

	master, err := r.forest.Master(id)
	if err != nil {
		r.observe("remove_town", start, err)
		return err
	}
	vassals, _ := r.forest.Vassals(id)
	if err := r.store.RemoveTown(id); err != nil {
		r.observe("remove_town", start, err)
		return err
	}
	r.updateMetrics()

	log.Debug(ctx, "town removed",
		logging.String("operation", "remove_town"),
		logging.String("town", id),
		logging.String("new_master", master),
		logging.Strings("reparented", vassals),
	)
	r.observe("remove_town", start, nil)
	return nil
}

// ---- Vassalage ----

// AddVassalship makes vassal pay taxes to master.
func (r *Realm) AddVassalship(vassal, master string) error {
	start := time.Now()
	err := r.forest.Attach(vassal, master)
	if err == nil {
		r.updateMetrics()
	}
	r.observe("add_vassalship", start, err)
	return err
}

// TownVassals returns the immediate vassals of id, or [model.NoTownID].
func (r *Realm) TownVassals(id string) []string {
	vassals, err := r.forest.Vassals(id)
	if err != nil {
		return notFoundRoute()
	}
	return vassals
}

// TaxerPath returns id followed by its chain of masters, or
// [model.NoTownID].
func (r *Realm) TaxerPath(id string) []string {
	chain, err := r.forest.AncestorChain(id)
	if err != nil {
		return notFoundRoute()
	}
	return chain
}

// LongestVassalPath returns the longest chain from id down through its
// vassals, or [model.NoTownID].
func (r *Realm) LongestVassalPath(id string) []string {
	start := time.Now()
	chain, err := r.forest.DeepestChain(id)
	r.observe("longest_vassal_path", start, err)
	if err != nil {
		return notFoundRoute()
	}
	return chain
}

// TotalNetTax returns the tax id collects from its subtree net of what it
// pays its own master, or model.NoValue.
func (r *Realm) TotalNetTax(id string) int {
	start := time.Now()
	tax, err := r.forest.AggregateTax(id)
	r.observe("total_net_tax", start, err)
	if err != nil {
		return model.NoValue
	}
	return tax
}

// ---- Roads ----

// ClearRoads removes every road and keeps the towns.
func (r *Realm) ClearRoads() {
	start := time.Now()
	r.roads.Clear()
	r.updateMetrics()
	r.observe("clear_roads", start, nil)
}

// AllRoads returns every road as a canonical pair, in insertion order.
func (r *Realm) AllRoads() []model.Road {
	return r.roads.Edges()
}

// AddRoad connects two distinct towns.
func (r *Realm) AddRoad(a, b string) error {
	start := time.Now()
	err := r.roads.AddEdge(a, b)
	if err == nil {
		r.updateMetrics()
	}
	r.observe("add_road", start, err)
	return err
}

// RoadsFrom returns the towns one road away from id, or [model.NoTownID].
func (r *Realm) RoadsFrom(id string) []string {
	neighbors, err := r.roads.Neighbors(id)
	if err != nil {
		return notFoundRoute()
	}
	return neighbors
}

// RemoveRoad removes the road between a and b.
func (r *Realm) RemoveRoad(a, b string) error {
	start := time.Now()
	err := r.roads.RemoveEdge(a, b)
	if err == nil {
		r.updateMetrics()
	}
	r.observe("remove_road", start, err)
	return err
}

// ---- Routes ----

// AnyRoute returns some route from `from` to `to`. It is the fewest-roads
// route.
func (r *Realm) AnyRoute(ctx context.Context, from, to string) []string {
	return r.routeQuery(ctx, "any_route", func() ([]string, error) {
		return r.traversal.LeastTownsRoute(from, to)
	}, attribute.String("realm.from", from), attribute.String("realm.to", to))
}

// LeastTownsRoute returns a route through the fewest towns, an empty route
// when none exists, or [model.NoTownID] when an endpoint is unknown.
func (r *Realm) LeastTownsRoute(ctx context.Context, from, to string) []string {
	return r.routeQuery(ctx, "least_towns_route", func() ([]string, error) {
		return r.traversal.LeastTownsRoute(from, to)
	}, attribute.String("realm.from", from), attribute.String("realm.to", to))
}

// RoadCycleRoute returns a road cycle reachable from start whose first and
// last towns are equal, an empty route when there is none, or
// [model.NoTownID] when start is unknown.
func (r *Realm) RoadCycleRoute(ctx context.Context, start string) []string {
	return r.routeQuery(ctx, "road_cycle_route", func() ([]string, error) {
		return r.traversal.CycleRoute(start)
	}, attribute.String("realm.from", start))
}

// ShortestRoute returns a route of least total road length, an empty route
// when none exists, or [model.NoTownID] when an endpoint is unknown.
func (r *Realm) ShortestRoute(ctx context.Context, from, to string) []string {
	return r.routeQuery(ctx, "shortest_route", func() ([]string, error) {
		return r.traversal.ShortestRoute(from, to)
	}, attribute.String("realm.from", from), attribute.String("realm.to", to))
}

// RouteLength returns the total road length of route, or
// model.NoDistance if it is not a valid route.
func (r *Realm) RouteLength(route []string) model.Distance {
	return r.traversal.RouteLength(route)
}

// TrimRoadNetwork removes roads until the network is a minimum spanning
// forest and returns the total length of the remaining roads. Towns that
// were connected stay connected.
func (r *Realm) TrimRoadNetwork(ctx context.Context) model.Distance {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "realm.trim_road_network")
	defer span.End()
	ctx, log := logging.WithQueryLogger(ctx, r.log)

	before := r.roads.Len()
	total := r.roads.TrimToSpanningForest()
	removed := before - r.roads.Len()
	r.updateMetrics()
	if r.queries != nil {
		r.queries.AddTrimmedRoads(removed)
	}

	span.SetAttributes(
		attribute.Int("realm.roads.removed", removed),
		attribute.Int("realm.roads.length", total),
	)
	log.Debug(ctx, "road network trimmed",
		logging.String("operation", "trim_road_network"),
		logging.Int("removed", removed),
		logging.Int("remaining", r.roads.Len()),
		logging.Int("length", total),
	)
	r.observe("trim_road_network", start, nil)
	return total
}

func (r *Realm) routeQuery(ctx context.Context, op string, search func() ([]string, error), attrs ...attribute.KeyValue) []string {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "realm."+op, trace.WithAttributes(attrs...))
	defer span.End()
	ctx, log := logging.WithQueryLogger(ctx, r.log)

	route, err := search()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug(ctx, "route endpoint not found", logging.String("operation", op), logging.Err(err))
		r.observe(op, start, err)
		return notFoundRoute()
	}

	span.SetAttributes(attribute.Int("realm.route.towns", len(route)))
	log.Debug(ctx, "route search finished",
		logging.String("operation", op),
		logging.Strings("route", route),
	)
	if len(route) == 0 {
		r.observeOutcome(op, start, observability.OutcomeEmpty)
		return route
	}
	if r.queries != nil {
		r.queries.ObserveRoute(len(route))
	}
	r.observe(op, start, nil)
	return route
}

// ---- Instrumentation ----

func (r *Realm) updateMetrics() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetRealmCounts(r.store.Len(), r.roads.Len(), r.forest.Len())
}

func (r *Realm) observe(op string, start time.Time, err error) {
	r.observeOutcome(op, start, outcome(err))
}

func (r *Realm) observeOutcome(op string, start time.Time, outcome string) {
	if r.queries == nil {
		return
	}
	r.queries.ObserveQuery(op, outcome, time.Since(start))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrTownNotFound), errors.Is(err, ErrRoadNotFound):
		return observability.OutcomeNotFound
	default:
		return observability.OutcomeRejected
	}
}

func notFoundRoute() []string {
	return []string{model.NoTownID}
}

func townIDs(towns []model.Town) []string {
	ids := make([]string, len(towns))
	for i, t := range towns {
		ids[i] = t.ID
	}
	return ids
}
