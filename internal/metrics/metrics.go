package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the coordinator's Prometheus metrics on a private
// registry so tests can create collectors freely.
type Collector struct {
	registry *prometheus.Registry

	JobsCreated      prometheus.Counter
	JobsCompleted    prometheus.Counter
	JobsRequeued     prometheus.Counter
	JobsAbandoned    prometheus.Counter
	ProxiesValidated prometheus.Counter
	WorkingProxies   prometheus.Counter
	StaleSubmissions prometheus.Counter
	WorkersEvicted   prometheus.Counter
	SinkDropped      prometheus.Counter

	QueueDepth    prometheus.Gauge
	ActiveJobs    prometheus.Gauge
	ActiveWorkers prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		JobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_jobs_created_total",
			Help: "Total number of validation jobs created",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_jobs_completed_total",
			Help: "Total number of validation jobs completed",
		}),
		JobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_jobs_requeued_total",
			Help: "Total number of jobs returned to the queue after timeout or worker loss",
		}),
		JobsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_jobs_abandoned_total",
			Help: "Total number of jobs abandoned after exhausting retries",
		}),
		ProxiesValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_proxies_validated_total",
			Help: "Total number of proxy validation outcomes received",
		}),
		WorkingProxies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_working_proxies_total",
			Help: "Total number of outcomes that found a working proxy",
		}),
		StaleSubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_stale_submissions_total",
			Help: "Total number of results rejected because the job was reassigned",
		}),
		WorkersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_workers_evicted_total",
			Help: "Total number of workers evicted for missed heartbeats",
		}),
		SinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxygrid_sink_dropped_total",
			Help: "Total number of completed jobs dropped because the sink queue was full",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxygrid_queue_depth",
			Help: "Current number of pending jobs",
		}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxygrid_active_jobs",
			Help: "Current number of assigned jobs",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxygrid_active_workers",
			Help: "Current number of registered workers",
		}),
	}

	c.registry.MustRegister(
		c.JobsCreated, c.JobsCompleted, c.JobsRequeued, c.JobsAbandoned,
		c.ProxiesValidated, c.WorkingProxies, c.StaleSubmissions, c.WorkersEvicted, c.SinkDropped,
		c.QueueDepth, c.ActiveJobs, c.ActiveWorkers,
	)
	return c
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
