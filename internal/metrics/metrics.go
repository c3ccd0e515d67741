package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pvescale/lxc-autoscaler/pkg/models"
)

const namespace = "lxc_autoscaler"

// Metrics holds the Prometheus instrumentation for the control loop.
// All collectors live on a private registry so tests can build isolated
// instances.
type Metrics struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	operations *prometheus.CounterVec
	ticks      prometheus.Counter

	containerCPU    *prometheus.GaugeVec
	containerMemory *prometheus.GaugeVec
	containerCores  *prometheus.GaugeVec
	containerMemMB  *prometheus.GaugeVec
	hostCPU         prometheus.Gauge
	hostMemory      prometheus.Gauge
	inFlight        prometheus.Gauge

	tickDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Scaling decisions by action and reason.",
		}, []string{"action", "reason"}),

		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Executed scaling operations by action and outcome.",
		}, []string{"action", "outcome"}),

		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed evaluation ticks.",
		}),

		containerCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "container_cpu_percent",
			Help:      "Last observed container CPU utilization.",
		}, []string{"vmid"}),

		containerMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "container_memory_percent",
			Help:      "Last observed container memory utilization.",
		}, []string{"vmid"}),

		containerCores: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "container_cores",
			Help:      "Currently allocated CPU cores.",
		}, []string{"vmid"}),

		containerMemMB: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "container_memory_mb",
			Help:      "Currently allocated memory in MB.",
		}, []string{"vmid"}),

		hostCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_cpu_percent",
			Help:      "Cluster-wide host CPU utilization.",
		}),

		hostMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_memory_percent",
			Help:      "Cluster-wide host memory utilization.",
		}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_in_flight",
			Help:      "Scaling operations currently executing.",
		}),

		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of evaluation ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.decisions, m.operations, m.ticks,
		m.containerCPU, m.containerMemory, m.containerCores, m.containerMemMB,
		m.hostCPU, m.hostMemory, m.inFlight, m.tickDuration,
	)

	return m
}

func (m *Metrics) RecordDecision(decision models.ScalingDecision) {
	m.decisions.WithLabelValues(string(decision.Action), string(decision.Reason)).Inc()
}

func (m *Metrics) RecordOperation(record models.OperationRecord) {
	outcome := "success"
	if !record.Success {
		outcome = "failure"
	}
	m.operations.WithLabelValues(string(record.Action), outcome).Inc()
}

func (m *Metrics) RecordTick(seconds float64) {
	m.ticks.Inc()
	m.tickDuration.Observe(seconds)
}

func (m *Metrics) SetContainerUtilization(vmid int, util models.Utilization) {
	id := strconv.Itoa(vmid)
	m.containerCPU.WithLabelValues(id).Set(util.CPUPercent)
	m.containerMemory.WithLabelValues(id).Set(util.MemoryPercent)
}

func (m *Metrics) SetContainerAllocation(vmid int, alloc models.Allocation) {
	id := strconv.Itoa(vmid)
	m.containerCores.WithLabelValues(id).Set(float64(alloc.Cores))
	m.containerMemMB.WithLabelValues(id).Set(float64(alloc.MemoryMB))
}

func (m *Metrics) SetHostUtilization(cpu, memory float64) {
	m.hostCPU.Set(cpu)
	m.hostMemory.Set(memory)
}

func (m *Metrics) OperationStarted() {
	m.inFlight.Inc()
}

func (m *Metrics) OperationFinished() {
	m.inFlight.Dec()
}

// Handler exposes the registry for the API server's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
