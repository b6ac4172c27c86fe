package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parkmeter"

// Ledger holds the collectors for the access ledger. A nil *Ledger is a valid no-op.
type Ledger struct {
	registry *prometheus.Registry

	appends      *prometheus.CounterVec
	aggregations *prometheus.CounterVec
	casRetries   prometheus.Counter
	reconciled   *prometheus.CounterVec
	busySpaces   *prometheus.GaugeVec
}

func NewLedger() *Ledger {
	m := &Ledger{
		registry: prometheus.NewRegistry(),
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accesses_appended_total",
			Help:      "Vehicle accesses submitted to the ledger, by result.",
		}, []string{"result"}),
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "Aggregation attempts by outcome.",
		}, []string{"outcome"}),
		casRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_cas_retries_total",
			Help:      "Compare-and-swap retries caused by version conflicts.",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_accesses_total",
			Help:      "Pending accesses re-driven by the reconciler, by outcome.",
		}, []string{"outcome"}),
		busySpaces: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy_spaces",
			Help:      "Last aggregated busy space count per facility.",
		}, []string{"facility"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.appends, m.aggregations, m.casRetries, m.reconciled, m.busySpaces,
	)
	return m
}

func (m *Ledger) Appended(result string) {
	if m == nil {
		return
	}
	m.appends.WithLabelValues(result).Inc()
}

func (m *Ledger) Aggregated(outcome string) {
	if m == nil {
		return
	}
	m.aggregations.WithLabelValues(outcome).Inc()
}

func (m *Ledger) CASRetry() {
	if m == nil {
		return
	}
	m.casRetries.Inc()
}

func (m *Ledger) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(outcome).Inc()
}

func (m *Ledger) SetBusySpaces(facilityID, busy int) {
	if m == nil {
		return
	}
	m.busySpaces.WithLabelValues(strconv.Itoa(facilityID)).Set(float64(busy))
}

// Handler serves the registry in the Prometheus text format.
func (m *Ledger) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
