// Package xrtmetrics exports Prometheus metrics of the runs of an xrt.Manager.
//
// Create a Collector with New and pass it to xrt.Manager.WithObserver.
package xrtmetrics

import (
	"time"

	"github.com/gofpga/goxrt/xrt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements xrt.RunObserver, updating Prometheus metrics.
type Collector struct {
	RunsStarted   *prometheus.CounterVec
	RunsFinished  *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	BytesTransfer *prometheus.CounterVec
	LiveResources *prometheus.GaugeVec
}

var _ xrt.RunObserver = (*Collector)(nil)

// New creates the metrics and registers them with reg. If reg is nil they are not registered.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RunsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xrt_runs_started_total",
			Help: "The total number of kernel runs started",
		}, []string{"kernel"}),

		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xrt_runs_finished_total",
			Help: "The total number of kernel runs finished, by their final state",
		}, []string{"kernel", "state"}),

		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xrt_run_duration_ms",
			Help:    "Time from start until the run is seen finished, in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 18), // 0.1ms to ~13s
		}, []string{"kernel"}),

		BytesTransfer: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xrt_buffer_transfer_bytes_total",
			Help: "Bytes synced between host and device memory for kernel arguments",
		}, []string{"kernel", "direction"}),

		LiveResources: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrt_live_resources",
			Help: "Resources currently allocated by the process, by kind",
		}, []string{"kind"}),
	}
}

// RunStarted implements xrt.RunObserver.
func (c *Collector) RunStarted(kernel string) {
	c.RunsStarted.WithLabelValues(kernel).Inc()
	c.UpdateLiveResources()
}

// RunFinished implements xrt.RunObserver.
func (c *Collector) RunFinished(kernel string, state xrt.CommandState, elapsed time.Duration) {
	c.RunsFinished.WithLabelValues(kernel, state.String()).Inc()
	c.RunDuration.WithLabelValues(kernel).Observe(float64(elapsed.Microseconds()) / 1000)
}

// BytesTransferred implements xrt.RunObserver.
func (c *Collector) BytesTransferred(kernel string, dir xrt.SyncDirection, bytes int) {
	c.BytesTransfer.WithLabelValues(kernel, dir.String()).Add(float64(bytes))
}

// UpdateLiveResources sets the live resources gauge from the xrt package counters.
func (c *Collector) UpdateLiveResources() {
	c.LiveResources.WithLabelValues("device").Set(float64(xrt.DevicesAlive()))
	c.LiveResources.WithLabelValues("kernel").Set(float64(xrt.KernelsAlive()))
	c.LiveResources.WithLabelValues("buffer").Set(float64(xrt.BuffersAlive()))
	c.LiveResources.WithLabelValues("run").Set(float64(xrt.RunsAlive()))
}
