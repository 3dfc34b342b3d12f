// Package metrics exposes Prometheus metrics for the scheduler, the bar and
// the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"statusbar/internal/bar"
	"statusbar/internal/eventbus"
	"statusbar/internal/schedule"
)

const namespace = "statusbar"

// Metrics holds all collectors. Each instance owns its registry so tests
// and reloads never collide on the default registerer.
type Metrics struct {
	reg *prometheus.Registry

	// Scheduler metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	RetriesTotal *prometheus.CounterVec
	TickDuration prometheus.Histogram
	TicksTotal   prometheus.Counter
	QueueLength  prometheus.Gauge
	TickEvents   prometheus.Gauge

	// Bar metrics
	RendersTotal *prometheus.CounterVec

	// Event bus
	BusDropped prometheus.GaugeFunc

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance. dropped may be nil.
func New(dropped func() uint64) *Metrics {
	if dropped == nil {
		dropped = func() uint64 { return 0 }
	}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of event runs.",
		}, []string{"event", "kind", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Event run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 15),
		}, []string{"kind"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of runs rescheduled after a failure.",
		}, []string{"event"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Scheduler tick duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "due_events",
			Help:      "Scheduled events due on the last tick.",
		}),
		TickEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tick_events",
			Help:      "Tick events run on the last tick.",
		}),
		RendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Total number of module renders.",
		}, []string{"module", "status"}),
		BusDropped: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_dropped_events",
			Help:      "Events dropped by slow bus subscribers.",
		}, func() float64 { return float64(dropped()) }),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RetriesTotal,
		m.TickDuration,
		m.TicksTotal,
		m.QueueLength,
		m.TickEvents,
		m.RendersTotal,
		m.BusDropped,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RecordRun records one event run.
func (m *Metrics) RecordRun(rec schedule.RunRecord) {
	status := "success"
	if !rec.OK() {
		status = "failed"
		if rec.RescheduleCount > 0 {
			m.RetriesTotal.WithLabelValues(rec.EventID).Inc()
		}
	}
	m.RunsTotal.WithLabelValues(rec.EventID, rec.Kind, status).Inc()
	m.RunDuration.WithLabelValues(rec.Kind).Observe(rec.Duration.Seconds())
}

// RecordTick records one settled tick.
func (m *Metrics) RecordTick(rec schedule.TickRecord) {
	m.TicksTotal.Inc()
	m.TickDuration.Observe(rec.Duration.Seconds())
	m.QueueLength.Set(float64(rec.Due))
	m.TickEvents.Set(float64(rec.TickEvents))
}

// RecordRender records one module render.
func (m *Metrics) RecordRender(rec bar.RenderRecord) {
	status := "ok"
	if rec.Error != "" {
		status = "error"
	}
	m.RendersTotal.WithLabelValues(rec.Module, status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Run feeds bus events into the collectors until ctx ends.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	if bus == nil {
		<-ctx.Done()
		return nil
	}
	ch, unsub := bus.Subscribe(512, schedule.EventRun, schedule.EventTick, bar.EventRender)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			m.observe(ev)
		}
	}
}

func (m *Metrics) observe(ev eventbus.Event) {
	switch rec := ev.Data.(type) {
	case schedule.RunRecord:
		m.RecordRun(rec)
	case schedule.TickRecord:
		m.RecordTick(rec)
	case bar.RenderRecord:
		m.RecordRender(rec)
	}
}
