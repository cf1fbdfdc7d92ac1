// Package metrics holds the prometheus instruments of the service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agrichain/internal/txqueue"
	"agrichain/pkg/ledger"
)

const namespace = "agrichain"

// Metrics owns a private registry so tests and multiple servers never collide.
type Metrics struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	txDuration   *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	reqDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Contract calls by contract, function and outcome.",
		}, []string{"contract", "function", "outcome"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time spent executing contract calls on the contract goroutine.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"contract", "function"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.transactions,
		m.txDuration,
		m.requests,
		m.reqDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Outcome labels a transaction result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, txqueue.ErrBusy):
		return "busy"
	case errors.Is(err, txqueue.ErrTimeout):
		return "timeout"
	}
	if kind := ledger.KindOf(err); kind != ledger.KindUnknown {
		return kind.String()
	}
	return "error"
}

// ObserveTransaction satisfies txqueue.Observer.
func (m *Metrics) ObserveTransaction(contract, function string, err error, elapsed time.Duration) {
	m.transactions.WithLabelValues(contract, function, Outcome(err)).Inc()
	m.txDuration.WithLabelValues(contract, function).Observe(elapsed.Seconds())
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.reqDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
