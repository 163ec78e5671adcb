// Package telemetry exposes process counters for Prometheus scraping.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendsentinel_cycles_total", Help: "Orchestrator cycles by result"},
		[]string{"result"},
	)
	BiasChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendsentinel_bias_changes_total", Help: "Persisted bias changes"},
		[]string{"symbol", "bias"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendsentinel_signals_total", Help: "Entry signals detected"},
		[]string{"symbol", "pattern"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendsentinel_orders_total", Help: "Execution outcomes per account"},
		[]string{"account", "outcome"},
	)
	OrderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trendsentinel_order_attempts_total", Help: "Order placement attempts"},
		[]string{"account"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, BiasChangesTotal, SignalsTotal, OrdersTotal, OrderAttemptsTotal)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
