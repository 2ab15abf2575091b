package observability

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Query outcomes used as the "outcome" label of realm_queries_total.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeRejected = "rejected"
	OutcomeEmpty    = "empty"
)

// RealmCollector bundles Prometheus metrics for a realm: entity gauges
// driven from the mutators, and per-operation query counters and latencies.
type RealmCollector struct {
	gatherer prometheus.Gatherer

	Queries        *prometheus.CounterVec
	QueryDurations *prometheus.HistogramVec

	RouteTowns   prometheus.Histogram
	RoadsTrimmed prometheus.Counter

	Towns       prometheus.Gauge
	Roads       prometheus.Gauge
	Vassalships prometheus.Gauge
}

// NewRealmCollector registers realm metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewRealmCollector(reg prometheus.Registerer) (*RealmCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realm_queries_total",
		Help: "Total number of realm operations, labeled by operation and outcome.",
	}, []string{"operation", "outcome"})
	queries, err := registerCounterVec(reg, queries, "realm_queries_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "realm_query_duration_seconds",
		Help:    "Realm operation latency in seconds.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation"})
	durations, err = registerHistogramVec(reg, durations, "realm_query_duration_seconds")
	if err != nil {
		return nil, err
	}

	routeTowns, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "realm_route_towns",
		Help:    "Number of towns on routes returned by route searches.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}), "realm_route_towns")
	if err != nil {
		return nil, err
	}
	trimmed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realm_roads_trimmed_total",
		Help: "Cumulative number of roads removed by network trimming.",
	}), "realm_roads_trimmed_total")
	if err != nil {
		return nil, err
	}

	towns, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realm_towns",
		Help: "Current number of towns in the realm.",
	}), "realm_towns")
	if err != nil {
		return nil, err
	}
	roads, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realm_roads",
		Help: "Current number of roads in the realm.",
	}), "realm_roads")
	if err != nil {
		return nil, err
	}
	vassalships, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realm_vassalships",
		Help: "Current number of vassal relationships in the realm.",
	}), "realm_vassalships")
	if err != nil {
		return nil, err
	}

	return &RealmCollector{
		gatherer:       gatherer,
		Queries:        queries,
		QueryDurations: durations,
		RouteTowns:     routeTowns,
		RoadsTrimmed:   trimmed,
		Towns:          towns,
		Roads:          roads,
		Vassalships:    vassalships,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *RealmCollector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *RealmCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
}

// WriteText gathers every metric family and writes it to w in the
// Prometheus text exposition format.
func (c *RealmCollector) WriteText(w io.Writer) error {
	families, err := c.Gatherer().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// SetRealmCounts lets the realm drive gauge values directly from its
// mutators.
func (c *RealmCollector) SetRealmCounts(towns, roads, vassalships int) {
	if c == nil {
		return
	}
	if c.Towns != nil {
		c.Towns.Set(float64(towns))
	}
	if c.Roads != nil {
		c.Roads.Set(float64(roads))
	}
	if c.Vassalships != nil {
		c.Vassalships.Set(float64(vassalships))
	}
}

// ObserveQuery records one finished operation.
func (c *RealmCollector) ObserveQuery(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Queries != nil {
		c.Queries.WithLabelValues(operation, outcome).Inc()
	}
	if c.QueryDurations != nil {
		c.QueryDurations.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// ObserveRoute records the number of towns on a found route.
func (c *RealmCollector) ObserveRoute(towns int) {
	if c == nil || c.RouteTowns == nil {
		return
	}
	c.RouteTowns.Observe(float64(towns))
}

// AddTrimmedRoads increments the trimmed road counter.
func (c *RealmCollector) AddTrimmedRoads(n int) {
	if c == nil || c.RoadsTrimmed == nil || n <= 0 {
		return
	}
	c.RoadsTrimmed.Add(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
