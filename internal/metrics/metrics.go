// Package metrics exposes delivery counters over Prometheus.
//
// All record methods are nil-safe so components can hold a *Metrics that is
// simply nil when metrics are disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	broadcastsTotal prometheus.Counter
	sendsTotal      *prometheus.CounterVec
	sendRetries     prometheus.Counter
	channelsRemoved prometheus.Counter
	outboxDepth     prometheus.Gauge
	sweepDuration   prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalbot", Name: "broadcasts_total",
			Help: "Broadcast invocations, including empty-registry ones.",
		}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalbot", Name: "sends_total",
			Help: "Per-channel terminal outcomes.",
		}, []string{"outcome"}),
		sendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalbot", Name: "send_retries_total",
			Help: "Transient failures that triggered a retry.",
		}),
		channelsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalbot", Name: "channels_auto_removed_total",
			Help: "Channels deregistered after repeated permanent rejections.",
		}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "signalbot", Name: "outbox_pending",
			Help: "Outbox entries not yet terminal.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "signalbot", Name: "outbox_sweep_seconds",
			Help:    "Duration of one outbox sweep cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		m.broadcastsTotal, m.sendsTotal, m.sendRetries,
		m.channelsRemoved, m.outboxDepth, m.sweepDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBroadcast() {
	if m != nil {
		m.broadcastsTotal.Inc()
	}
}

func (m *Metrics) ObserveSend(outcome string) {
	if m != nil {
		m.sendsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveRetry() {
	if m != nil {
		m.sendRetries.Inc()
	}
}

func (m *Metrics) ObserveChannelRemoved() {
	if m != nil {
		m.channelsRemoved.Inc()
	}
}

func (m *Metrics) SetOutboxDepth(n int) {
	if m != nil {
		m.outboxDepth.Set(float64(n))
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.sweepDuration.Observe(d.Seconds())
	}
}
