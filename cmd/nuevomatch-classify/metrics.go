package main

import (
	"github.com/prometheus/client_golang/prometheus"

	nmmetrics "github.com/theojepsen/nuevomatch/metrics"
	"github.com/theojepsen/nuevomatch/nmlog"
	"github.com/theojepsen/nuevomatch/nuevomatch"
)

// serveMetrics tracks every worker in c and starts a /metrics endpoint
// on addr, the CLI-level wiring for nuevomatch/metrics.Collector.
func serveMetrics(c *nuevomatch.ClassifierContainer, addr string) error {
	collector := nmmetrics.New("nuevomatch")
	for _, w := range c.Workers() {
		collector.Track(w.Index(), w)
	}
	c.AddListener(collector)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	if err := nmmetrics.ServeHTTP(addr, reg); err != nil {
		return err
	}
	nmlog.Info(nmlog.Initialization, "nuevomatch-classify: serving metrics on", addr)
	return nil
}
