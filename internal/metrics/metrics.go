package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Polls        *prometheus.CounterVec // stop label
	PollErrors   *prometheus.CounterVec
	FetchRetries prometheus.Counter

	TrackedJourneys   *prometheus.GaugeVec
	JourneysStarted   *prometheus.CounterVec
	JourneysCompleted *prometheus.CounterVec

	ClockAnomalies        prometheus.Counter
	MalformedObservations *prometheus.GaugeVec // cumulative, reported by the tracker
	DroppedObservations   *prometheus.GaugeVec

	SinkErrors *prometheus.CounterVec // sink label

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	FetchDuration prometheus.Histogram
	CycleDuration prometheus.Histogram

	PollInterval      prometheus.Gauge // seconds
	TrackingThreshold prometheus.Gauge // seconds
	GraceWindow       prometheus.Gauge // seconds
}

func NewCollector(pollInterval, trackingThreshold, graceWindow time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_polls_total",
			Help: "Total poll cycles attempted.",
		}, []string{"stop"}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_poll_errors_total",
			Help: "Poll cycles abandoned after exhausting fetch retries.",
		}, []string{"stop"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_fetch_retries_total",
			Help: "Individual fetch attempts that failed and were retried.",
		}),
		TrackedJourneys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monitor_tracked_journeys",
			Help: "Journeys currently being tracked.",
		}, []string{"stop"}),
		JourneysStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_journeys_started_total",
			Help: "Journeys that entered tracking.",
		}, []string{"stop"}),
		JourneysCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_journeys_completed_total",
			Help: "Journeys finalized after leaving the feed.",
		}, []string{"stop"}),
		ClockAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_clock_anomalies_total",
			Help: "Completed journeys with a negative actual duration.",
		}),
		MalformedObservations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monitor_malformed_observations",
			Help: "Cumulative observations skipped for missing fields.",
		}, []string{"stop"}),
		DroppedObservations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monitor_dropped_observations",
			Help: "Cumulative observations rejected by the tracked-set cap.",
		}, []string{"stop"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_sink_errors_total",
			Help: "Failures writing completed journeys to a sink.",
		}, []string{"sink"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_fetch_duration_seconds",
			Help:    "Duration of live feed fetches including retries.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_cycle_duration_seconds",
			Help:    "Duration of full poll cycles (fetch, ingest, persist).",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_poll_interval_seconds",
			Help: "Configured poll interval in seconds.",
		}),
		TrackingThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_tracking_threshold_seconds",
			Help: "Configured tracking threshold in seconds.",
		}),
		GraceWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_grace_window_seconds",
			Help: "Configured grace window in seconds.",
		}),
	}

	reg.MustRegister(
		c.Polls, c.PollErrors, c.FetchRetries,
		c.TrackedJourneys, c.JourneysStarted, c.JourneysCompleted,
		c.ClockAnomalies, c.MalformedObservations, c.DroppedObservations,
		c.SinkErrors, c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.PublishDuration, c.FetchDuration, c.CycleDuration,
		c.PollInterval, c.TrackingThreshold, c.GraceWindow,
	)

	c.PollInterval.Set(pollInterval.Seconds())
	c.TrackingThreshold.Set(trackingThreshold.Seconds())
	c.GraceWindow.Set(graceWindow.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
