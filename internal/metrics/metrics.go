// Package metrics exports dispatcher activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snotify/pkg/notify"
)

const namespace = "snotify"

// Metrics is a notify.Observer backed by its own registry.
type Metrics struct {
	reg *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	skipped         *prometheus.CounterVec
	sends           *prometheus.CounterVec
	sendDuration    *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_attempts_total",
			Help:      "Channel send attempts by result.",
		}, []string{"channel", "result"}),
		attemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_attempt_duration_seconds",
			Help:      "Duration of a single channel send attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_skipped_total",
			Help:      "Fallback entries skipped because the channel was not registered.",
		}, []string{"channel"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Completed sends by mode and result.",
		}, []string{"mode", "result"}),
		sendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "End-to-end duration of a send.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sends_in_flight",
			Help:      "Channel attempts currently running.",
		}),
	}
}

// Registry exposes the registry for extra collectors and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Observe(_ context.Context, ev notify.Event) {
	switch ev.Kind {
	case notify.EventAttemptStarted:
		m.inFlight.Inc()
	case notify.EventAttemptSucceeded:
		m.inFlight.Dec()
		m.attempts.WithLabelValues(ev.Channel, "success").Inc()
		m.attemptDuration.WithLabelValues(ev.Channel).Observe(ev.Duration.Seconds())
	case notify.EventAttemptFailed:
		m.inFlight.Dec()
		m.attempts.WithLabelValues(ev.Channel, "failure").Inc()
		m.attemptDuration.WithLabelValues(ev.Channel).Observe(ev.Duration.Seconds())
	case notify.EventChannelSkipped:
		m.skipped.WithLabelValues(ev.Channel).Inc()
	case notify.EventSendCompleted:
		result := "delivered"
		switch {
		case ev.Err != nil && !ev.Outcome.OK():
			result = "error"
		case !ev.Outcome.OK():
			result = "undelivered"
		}
		m.sends.WithLabelValues(string(ev.Mode), result).Inc()
		m.sendDuration.WithLabelValues(string(ev.Mode)).Observe(ev.Duration.Seconds())
	}
}

// RegisterBusDropped exports the event bus drop counter.
func (m *Metrics) RegisterBusDropped(dropped func() uint64) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eventbus_dropped_total",
		Help:      "Events dropped because a bus subscriber was full.",
	}, func() float64 { return float64(dropped()) }))
}
