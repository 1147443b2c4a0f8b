// Package metrics registers the prometheus counters/gauges the runner
// updates once per cycle, generalizing the teacher's single
// qbit_unstaller_reannounces_made promauto counter into a per-manager,
// per-outcome vector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/queuejanitor/decluttd/internal/stats"
)

// Collector holds every counter/gauge the runner touches, labeled by
// manager name.
type Collector struct {
	processed              *prometheus.CounterVec
	removed                *prometheus.CounterVec
	queued                 *prometheus.CounterVec
	strikeIncreased        *prometheus.CounterVec
	strikeDecreased        *prometheus.CounterVec
	reannounceScheduled    *prometheus.CounterVec
	reannounceAttempted    *prometheus.CounterVec
	reannounceSuccessful   *prometheus.CounterVec
	indexerFailureRemovals *prometheus.CounterVec
	itemsWithStrikes       *prometheus.GaugeVec
	cycleDuration          prometheus.Histogram
}

// NewCollector registers the collector's metrics against the default
// prometheus registry, the same registry promauto.NewCounter uses in the
// teacher.
func NewCollector() *Collector {
	labels := []string{"manager"}
	return &Collector{
		processed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_items_processed_total",
			Help: "Queue items evaluated by the decision engine.",
		}, labels),
		removed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_items_removed_total",
			Help: "Queue items removed and blacklisted.",
		}, labels),
		queued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_items_queued_total",
			Help: "Queue items still in a queued/waiting state.",
		}, labels),
		strikeIncreased: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_strikes_increased_total",
			Help: "Strike count increments applied by the decision engine.",
		}, labels),
		strikeDecreased: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_strikes_decreased_total",
			Help: "Strike count decrements applied on progress.",
		}, labels),
		reannounceScheduled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_reannounce_scheduled_total",
			Help: "Reannounce requests scheduled by the decision engine.",
		}, labels),
		reannounceAttempted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_reannounce_attempted_total",
			Help: "Reannounce calls actually issued to a torrent client.",
		}, labels),
		reannounceSuccessful: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_reannounce_successful_total",
			Help: "Reannounce calls the torrent client accepted.",
		}, labels),
		indexerFailureRemovals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "decluttd_indexer_failure_removals_total",
			Help: "Removals driven by a per-indexer failure policy.",
		}, labels),
		itemsWithStrikes: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "decluttd_items_with_strikes",
			Help: "Ledger entries with a non-zero strike count, as of the last cycle.",
		}, labels),
		cycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "decluttd_cycle_duration_seconds",
			Help:    "Wall-clock duration of one full runner cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Observe records one manager's cycle counters.
func (c *Collector) Observe(manager string, counters stats.Counters, itemsWithStrikes int) {
	c.processed.WithLabelValues(manager).Add(float64(counters.Processed))
	c.removed.WithLabelValues(manager).Add(float64(counters.Removed))
	c.queued.WithLabelValues(manager).Add(float64(counters.Queued))
	c.strikeIncreased.WithLabelValues(manager).Add(float64(counters.StrikeIncreased))
	c.strikeDecreased.WithLabelValues(manager).Add(float64(counters.StrikeDecreased))
	c.reannounceScheduled.WithLabelValues(manager).Add(float64(counters.ReannounceScheduled))
	c.reannounceAttempted.WithLabelValues(manager).Add(float64(counters.ReannounceAttempted))
	c.reannounceSuccessful.WithLabelValues(manager).Add(float64(counters.ReannounceSuccessful))
	c.indexerFailureRemovals.WithLabelValues(manager).Add(float64(counters.IndexerFailureRemovals))
	c.itemsWithStrikes.WithLabelValues(manager).Set(float64(itemsWithStrikes))
}

// ObserveCycleDuration records one cycle's wall-clock duration in seconds.
func (c *Collector) ObserveCycleDuration(seconds float64) {
	c.cycleDuration.Observe(seconds)
}
