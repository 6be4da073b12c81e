// Package metrics provides Prometheus metrics for commits, SQL statements
// and RPC requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all Prometheus metrics of a process.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Commit metrics
	CommitsTotal   *prometheus.CounterVec
	CommitDuration *prometheus.HistogramVec

	// SQL statement metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Load metrics
	EntitiesLoaded *prometheus.CounterVec

	// RPC request metrics
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
	RPCRequestsInFlight prometheus.Gauge

	reg *prometheus.Registry
}

// New creates the metrics and registers them on reg. A nil reg gets a
// fresh registry, so tests never collide on the global one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	m := &Metrics{reg: reg}

	m.CommitsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qof_commits_total",
			Help: "Total number of entity commits dispatched to a backend",
		},
		[]string{"type", "op", "status"},
	)

	m.CommitDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qof_commit_duration_seconds",
			Help:    "Duration of entity commits in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"type"},
	)

	m.QueriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qof_sql_statements_total",
			Help: "Total number of SQL statements executed",
		},
		[]string{"op", "table", "status"},
	)

	m.QueryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qof_sql_statement_duration_seconds",
			Help:    "Duration of SQL statements in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	m.EntitiesLoaded = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qof_entities_loaded_total",
			Help: "Total number of entities loaded from a backend",
		},
		[]string{"type"},
	)

	m.RPCRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qof_rpc_requests_total",
			Help: "Total number of RPC requests",
		},
		[]string{"method", "status"},
	)

	m.RPCRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qof_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.RPCRequestsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "qof_rpc_requests_in_flight",
			Help: "Number of RPC requests currently being processed",
		},
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// ObserveQuery records one SQL statement.
//
// Implements sqlmap.QueryObserver interface.
func (m *Metrics) ObserveQuery(op, table string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(op, table, status(err)).Inc()
	m.QueryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordCommit records one entity commit.
func (m *Metrics) RecordCommit(entityType, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(entityType, op, status(err)).Inc()
	m.CommitDuration.WithLabelValues(entityType).Observe(d.Seconds())
}

// RecordLoad records n entities of one type read from a backend.
func (m *Metrics) RecordLoad(entityType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntitiesLoaded.WithLabelValues(entityType).Add(float64(n))
}

// RecordRPCRequest records an RPC request with its status code name.
func (m *Metrics) RecordRPCRequest(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RPCStarted increments the in-flight gauge and returns its decrement.
func (m *Metrics) RPCStarted() func() {
	if m == nil {
		return func() {}
	}
	m.RPCRequestsInFlight.Inc()
	return m.RPCRequestsInFlight.Dec
}
