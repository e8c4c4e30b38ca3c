package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notirelay/internal/eventbus"
	logx "notirelay/pkg/logx"
)

// Collector turns bus events into Prometheus series on its own registry.
type Collector struct {
	reg *prometheus.Registry
	log logx.Logger

	routed       *prometheus.CounterVec
	flushes      *prometheus.CounterVec
	flushTopics  *prometheus.CounterVec
	notifies     *prometheus.CounterVec
	notifyTiming *prometheus.HistogramVec
	pending      *prometheus.GaugeVec
}

func New(log logx.Logger) *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		log: log,
		routed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notirelay_messages_total",
				Help: "Titled and untitled messages by routing outcome",
			},
			[]string{"outcome"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notirelay_flushes_total",
				Help: "Collation flushes by trigger",
			},
			[]string{"reason"},
		),
		flushTopics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notirelay_flush_topics_total",
				Help: "Topics handled by flushes, by result",
			},
			[]string{"result"},
		),
		notifies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notirelay_notifier_sends_total",
				Help: "Transport sends by kind and result",
			},
			[]string{"kind", "result"},
		),
		notifyTiming: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notirelay_notifier_send_duration_seconds",
				Help:    "Duration of transport sends",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notirelay_pending_entries",
				Help: "Entries waiting in the collation buffer per topic",
			},
			[]string{"topic"},
		),
	}
	c.reg.MustRegister(
		c.routed, c.flushes, c.flushTopics, c.notifies, c.notifyTiming, c.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// SetPending replaces the pending gauge with counts.
func (c *Collector) SetPending(counts map[string]int) {
	c.pending.Reset()
	for k, n := range counts {
		c.pending.WithLabelValues(k).Set(float64(n))
	}
}

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

// Observe records one event.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeRelaySent:
		c.routed.WithLabelValues("sent").Inc()
	case eventbus.TypeRelayCollated:
		c.routed.WithLabelValues("collated").Inc()
	case eventbus.TypeRelayFailed:
		c.routed.WithLabelValues("failed").Inc()
	case eventbus.TypeFlushDone:
		d, ok := e.Data.(eventbus.FlushData)
		if !ok {
			return
		}
		c.flushes.WithLabelValues(d.Reason).Inc()
		c.flushTopics.WithLabelValues("sent").Add(float64(d.Sent))
		c.flushTopics.WithLabelValues("failed").Add(float64(d.Failed))
	case eventbus.TypeNotifySent, eventbus.TypeNotifyFailed:
		d, ok := e.Data.(eventbus.NotifyData)
		if !ok {
			return
		}
		result := "ok"
		if e.Type == eventbus.TypeNotifyFailed {
			result = "error"
		}
		c.notifies.WithLabelValues(d.Kind, result).Inc()
		c.notifyTiming.WithLabelValues(d.Kind).Observe(d.Duration.Seconds())
	default:
		c.log.Trace("metrics: unhandled event", logx.String("type", e.Type))
	}
}
