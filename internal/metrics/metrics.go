// Package metrics exposes the trading loop's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fxbot_ticks_total", Help: "Trading loop ticks completed"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_orders_total", Help: "Order dispatch attempts by strategy and outcome"},
		[]string{"strategy", "outcome"},
	)
	VenueErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fxbot_venue_errors_total", Help: "Venue call failures by venue"},
		[]string{"venue"},
	)
	TradesRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "fxbot_trades_recorded_total", Help: "Trades handed to the monitoring sink"},
	)
	DailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "fxbot_daily_pnl", Help: "Realized PnL for the current trading day"},
	)
	WindowBars = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "fxbot_window_bars", Help: "Bars currently held in the rolling window"},
	)
	RiskGateOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "fxbot_risk_gate_open", Help: "1 while directional trading is allowed"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		OrdersTotal,
		VenueErrorsTotal,
		TradesRecordedTotal,
		DailyPnL,
		WindowBars,
		RiskGateOpen,
	)
}

// Serve exposes /metrics on the given address in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
