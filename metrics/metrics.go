// Package metrics exposes Prometheus metrics the bot updates during
// operation:
//   - gapfill_scans_total{result}     – scan outcomes (signal|no_signal|no_data|skipped)
//   - gapfill_orders_total{kind}      – orders submitted (entry|stop|target|eod)
//   - gapfill_order_failures_total{kind} – terminal order failures
//   - gapfill_request_retries_total   – transient brokerage responses retried
//   - gapfill_open_positions          – currently held instruments (gauge)
//   - gapfill_session_spent           – capital committed so far today (gauge)
//
// Registered in init() and served at /metrics by the run command.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapfill_scans_total",
			Help: "Scan outcomes per instrument",
		},
		[]string{"result"}, // signal|no_signal|no_data|skipped
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapfill_orders_total",
			Help: "Orders submitted to the brokerage",
		},
		[]string{"kind"}, // entry|stop|target|eod
	)

	orderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapfill_order_failures_total",
			Help: "Terminal order failures after retries",
		},
		[]string{"kind"},
	)

	requestRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gapfill_request_retries_total",
			Help: "Transient brokerage responses that were retried",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gapfill_open_positions",
			Help: "Instruments currently held",
		},
	)

	sessionSpent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gapfill_session_spent",
			Help: "Capital committed so far in the session",
		},
	)
)

func init() {
	prometheus.MustRegister(scans, orders, orderFailures, requestRetries, openPositions, sessionSpent)
}

func IncScan(result string)        { scans.WithLabelValues(result).Inc() }
func IncOrder(kind string)         { orders.WithLabelValues(kind).Inc() }
func IncOrderFailure(kind string)  { orderFailures.WithLabelValues(kind).Inc() }
func IncRequestRetry()             { requestRetries.Inc() }
func SetOpenPositions(n int)       { openPositions.Set(float64(n)) }
func SetSessionSpent(spent float64) { sessionSpent.Set(spent) }
