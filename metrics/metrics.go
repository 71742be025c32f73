// Package metrics exports per-worker classification statistics as
// Prometheus gauges, the same named-node telemetry the teacher's
// flow.counters HTTP endpoint serves as JSON, reworked onto
// client_golang's collector registry instead of a hand-rolled
// /telemetry handler.
package metrics

import (
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theojepsen/nuevomatch/nmlog"
	"github.com/theojepsen/nuevomatch/nmtype"
	"github.com/theojepsen/nuevomatch/worker"
)

// StatsSource is the narrow capability the collector needs from a
// worker: a point-in-time Snapshot of its counters.
type StatsSource interface {
	Stats() *worker.Stats
}

// Collector is a worker.Listener that counts batches and matches as
// they are published, and a prometheus.Collector that reports those
// counts plus each registered worker's derived Snapshot rates.
type Collector struct {
	batches prometheus.Counter
	matches prometheus.Counter

	workers      []StatsSource
	jobs         *prometheus.Desc
	throughput   *prometheus.Desc
	utilization  *prometheus.Desc
	backpressure *prometheus.Desc
	avgWorkUs    *prometheus.Desc
}

// New constructs a Collector with metric names under the given
// namespace (e.g. "nuevomatch").
func New(namespace string) *Collector {
	return &Collector{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_classified_total",
			Help: "Total number of batches published by any worker.",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lanes_matched_total",
			Help: "Total number of packet lanes that matched a rule.",
		}),
		jobs: prometheus.NewDesc(namespace+"_worker_jobs_total",
			"Cumulative jobs processed by this worker.", []string{"worker"}, nil),
		throughput: prometheus.NewDesc(namespace+"_worker_throughput_per_us",
			"Jobs processed per microsecond of measured time.", []string{"worker"}, nil),
		utilization: prometheus.NewDesc(namespace+"_worker_utilization_fraction",
			"Fraction of measured time spent on work and publish.", []string{"worker"}, nil),
		backpressure: prometheus.NewDesc(namespace+"_worker_backpressure_per_us",
			"Rejected enqueue attempts per microsecond of measured time.", []string{"worker"}, nil),
		avgWorkUs: prometheus.NewDesc(namespace+"_worker_avg_work_us",
			"Average per-job work time in microseconds.", []string{"worker"}, nil),
	}
}

// Track registers a worker so its Stats are exported as the "worker"
// label equal to index's string form.
func (c *Collector) Track(index int, source StatsSource) {
	c.workers = append(c.workers, labeledSource{index: index, StatsSource: source})
}

type labeledSource struct {
	index int
	StatsSource
}

// OnBatch implements worker.Listener: it only accumulates the
// cross-worker totals a single counter can represent; per-worker rates
// come from Collect via each tracked Stats.Snapshot.
func (c *Collector) OnBatch(batch nmtype.ActionBatch, workerIndex int, batchID uint32) {
	c.batches.Inc()
	for _, out := range batch {
		if out.IsMatch() {
			c.matches.Add(1)
		}
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.batches.Describe(ch)
	c.matches.Describe(ch)
	ch <- c.jobs
	ch <- c.throughput
	ch <- c.utilization
	ch <- c.backpressure
	ch <- c.avgWorkUs
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.batches.Collect(ch)
	c.matches.Collect(ch)
	for _, w := range c.workers {
		ls := w.(labeledSource)
		label := strconv.Itoa(ls.index)
		snap := ls.Stats().Snapshot()
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.CounterValue, float64(snap.Jobs), label)
		ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, snap.ThroughputPerUs, label)
		ch <- prometheus.MustNewConstMetric(c.utilization, prometheus.GaugeValue, snap.UtilizationFraction, label)
		ch <- prometheus.MustNewConstMetric(c.backpressure, prometheus.GaugeValue, snap.BackpressurePerUs, label)
		ch <- prometheus.MustNewConstMetric(c.avgWorkUs, prometheus.GaugeValue, snap.AvgWorkUs, label)
	}
}

// ServeHTTP starts a /metrics endpoint on addr in the background, the
// Prometheus analogue of the teacher's initCounters JSON telemetry
// server: both bind a listener up front and hand request serving to a
// goroutine, logging (not panicking) if serving later fails.
func ServeHTTP(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux}

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			nmlog.Warning(nmlog.Initialization, "metrics: serving HTTP failed:", err)
		}
	}()
	return nil
}
