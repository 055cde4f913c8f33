package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RequestsDispatched prometheus.Counter
	DispatchErrors     prometheus.Counter

	ProviderReplies  *prometheus.CounterVec   // provider, status
	ProviderDuration *prometheus.HistogramVec // provider

	Aggregations        *prometheus.CounterVec // trigger: complete|deadline
	AggregationDuration prometheus.Histogram
	JourneysPublished   prometheus.Counter
	GapResolutions      *prometheus.CounterVec // outcome: resolved|empty|unresolved

	QueuePublishDuration prometheus.Histogram
	QueuePublishErrs     prometheus.Counter
	QueueDeliveries      *prometheus.CounterVec // outcome: ack|retry|drop
	QueueConnected       prometheus.Gauge

	ArchiveWrites *prometheus.CounterVec // result: ok|error
	WSClients     prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RequestsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonvoyage_requests_dispatched_total",
			Help: "Total journey requests dispatched.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonvoyage_dispatch_errors_total",
			Help: "Total journey requests that could not be dispatched.",
		}),
		ProviderReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonvoyage_provider_replies_total",
			Help: "Provider replies stored, by provider and status.",
		}, []string{"provider", "status"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bonvoyage_provider_duration_seconds",
			Help:    "Duration of provider queries.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),
		Aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonvoyage_aggregations_total",
			Help: "Aggregations run, by what triggered them.",
		}, []string{"trigger"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bonvoyage_aggregation_duration_seconds",
			Help:    "Duration of stitching one request.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		JourneysPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonvoyage_journeys_published_total",
			Help: "Total stitched journeys published.",
		}),
		GapResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonvoyage_gap_resolutions_total",
			Help: "Distinct gap queries resolved, by outcome.",
		}, []string{"outcome"}),
		QueuePublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bonvoyage_queue_publish_duration_seconds",
			Help:    "Duration to publish a task.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		QueuePublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonvoyage_queue_publish_errors_total",
			Help: "Total task publish errors.",
		}),
		QueueDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonvoyage_queue_deliveries_total",
			Help: "Task deliveries, by outcome.",
		}, []string{"outcome"}),
		QueueConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bonvoyage_queue_connected",
			Help: "1 if the task transport is connected, 0 otherwise.",
		}),
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonvoyage_archive_writes_total",
			Help: "Published results written to the archive, by result.",
		}, []string{"result"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bonvoyage_ws_clients",
			Help: "Connected websocket clients.",
		}),
	}

	reg.MustRegister(
		c.RequestsDispatched, c.DispatchErrors,
		c.ProviderReplies, c.ProviderDuration,
		c.Aggregations, c.AggregationDuration, c.JourneysPublished, c.GapResolutions,
		c.QueuePublishDuration, c.QueuePublishErrs, c.QueueDeliveries, c.QueueConnected,
		c.ArchiveWrites, c.WSClients,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) Dispatched(err error) {
	if err != nil {
		c.DispatchErrors.Inc()
		return
	}
	c.RequestsDispatched.Inc()
}

func (c *Collector) ProviderObserve(provider, status string, d time.Duration) {
	c.ProviderReplies.WithLabelValues(provider, status).Inc()
	c.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (c *Collector) AggregationObserve(trigger string, d time.Duration) {
	c.Aggregations.WithLabelValues(trigger).Inc()
	c.AggregationDuration.Observe(d.Seconds())
}

func (c *Collector) GapResolved(outcome string) {
	c.GapResolutions.WithLabelValues(outcome).Inc()
}

func (c *Collector) Published(journeys int) {
	c.JourneysPublished.Add(float64(journeys))
}

func (c *Collector) Archived(err error) {
	if err != nil {
		c.ArchiveWrites.WithLabelValues("error").Inc()
		return
	}
	c.ArchiveWrites.WithLabelValues("ok").Inc()
}

func (c *Collector) QueuePublishObserve(d time.Duration, err error) {
	c.QueuePublishDuration.Observe(d.Seconds())
	if err != nil {
		c.QueuePublishErrs.Inc()
	}
}

func (c *Collector) QueueDelivery(_ string, outcome string) {
	c.QueueDeliveries.WithLabelValues(outcome).Inc()
}

func (c *Collector) QueueSetConnected(connected bool) {
	if connected {
		c.QueueConnected.Set(1)
		return
	}
	c.QueueConnected.Set(0)
}

func (c *Collector) SetWSClients(n int) {
	c.WSClients.Set(float64(n))
}
