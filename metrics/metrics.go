// Package metrics exposes the engine's counters and gauges to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/signalgov/guard"
	"github.com/rustyeddy/signalgov/lifecycle"
)

type Metrics struct {
	reg *prometheus.Registry

	events   *prometheus.CounterVec
	accepted *prometheus.CounterVec
	rejected *prometheus.CounterVec
	closed   *prometheus.CounterVec
	realized prometheus.Counter

	rDay        prometheus.Gauge
	lossStreak  prometheus.Gauge
	signalsSent prometheus.Gauge
	openSignals prometheus.Gauge
	riskUsed    prometheus.Gauge
	cooldown    prometheus.Gauge
	passes      prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgov_events_total",
			Help: "Lifecycle events emitted",
		}, []string{"kind"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgov_signals_accepted_total",
			Help: "Signals accepted",
		}, []string{"strategy"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgov_candidates_rejected_total",
			Help: "Candidates rejected by a gate",
		}, []string{"reason"}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgov_signals_closed_total",
			Help: "Signals closed",
		}, []string{"outcome"}),
		realized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalgov_won_r_total",
			Help: "Sum of R over winning closures",
		}),
		rDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalgov_r_day",
			Help: "Realized R today",
		}),
		lossStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalgov_loss_streak",
			Help: "Consecutive losing closures",
		}),
		signalsSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalgov_signals_sent_today",
			Help: "Signals accepted today",
		}),
		openSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalgov_open_signals",
			Help: "Currently open signals",
		}),
		riskUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalgov_day_risk_used_ratio",
			Help: "Share of deposit committed as risk today",
		}),
		cooldown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalgov_cooldown_remaining_seconds",
			Help: "Time left on the guard cooldown",
		}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalgov_scan_passes_total",
			Help: "Acceptance passes run",
		}),
	}

	m.reg.MustRegister(
		m.events, m.accepted, m.rejected, m.closed, m.realized,
		m.rDay, m.lossStreak, m.signalsSent, m.openSignals, m.riskUsed, m.cooldown,
		m.passes,
	)
	return m
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// HandleEvent counts lifecycle events.
func (m *Metrics) HandleEvent(_ context.Context, ev lifecycle.Event) error {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case lifecycle.EventAccepted:
		m.accepted.WithLabelValues(ev.StrategyType).Inc()
	case lifecycle.EventClosed:
		m.closed.WithLabelValues(string(ev.Outcome)).Inc()
		// counters only go up; losses show in r_day
		if ev.Outcome.Scored() && ev.R > 0 {
			m.realized.Add(ev.R)
		}
	}
	return nil
}

// Rejected counts a candidate dropped by the gate with the given code.
func (m *Metrics) Rejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Pass() { m.passes.Inc() }

// ObserveGuard copies the guard's state into the gauges.
func (m *Metrics) ObserveGuard(st guard.State, day guard.DayPortfolio, cooldown time.Duration) {
	m.rDay.Set(st.RDay)
	m.lossStreak.Set(float64(st.LossStreak))
	m.signalsSent.Set(float64(st.SignalsSent))
	m.openSignals.Set(float64(day.OpenSignals))
	m.riskUsed.Set(day.RiskUsedPct)
	m.cooldown.Set(cooldown.Seconds())
}
