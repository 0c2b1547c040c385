// Package metrics holds the hive's prometheus instrumentation: gauges
// mirroring live component state and counters for task, recovery and
// specification outcomes. Every collector registers into its own
// registry, exposed by the web server on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hived"

// Breaker state encoding for the breaker_state gauge.
const (
	BreakerClosedValue   = 0
	BreakerHalfOpenValue = 1
	BreakerOpenValue     = 2
)

// Collector owns the hive metric families. All methods are safe on a
// nil receiver, so instrumentation stays optional for callers that
// run without the web surface.
type Collector struct {
	registry *prometheus.Registry

	agentUtilization *prometheus.GaugeVec
	breakerState     *prometheus.GaugeVec
	activeAgents     prometheus.Gauge
	dormantAgents    prometheus.Gauge
	topologyMetric   *prometheus.GaugeVec
	topologyKind     *prometheus.GaugeVec

	tasksTotal          *prometheus.CounterVec
	recoveriesTotal     *prometheus.CounterVec
	specificationsTotal *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.agentUtilization = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_utilization",
		Help:      "Current load divided by max capacity per agent",
	}, []string{"agent"})

	c.breakerState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit breaker state per agent: 0 closed, 1 half-open, 2 open",
	}, []string{"agent"})

	c.activeAgents = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_agents",
		Help:      "Number of active agents in the hive",
	})

	c.dormantAgents = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dormant_agents",
		Help:      "Number of dormant agents parked by the capacity cap",
	})

	c.topologyMetric = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topology_metric",
		Help:      "Derived topology metrics: efficiency, latency, throughput, fault_tolerance, scalability",
	}, []string{"name"})

	c.topologyKind = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topology_kind",
		Help:      "Active topology kind, 1 for the current one",
	}, []string{"kind"})

	c.tasksTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Task executions by outcome",
	}, []string{"outcome"})

	c.recoveriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recoveries_total",
		Help:      "Recovery pipeline attempts by action",
	}, []string{"action"})

	c.specificationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "specifications_total",
		Help:      "Orchestrated specifications by outcome",
	}, []string{"outcome"})

	return c
}

// Handler serves the collector's registry in prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) SetAgentUtilization(agentID string, utilization float64) {
	if c == nil {
		return
	}
	c.agentUtilization.WithLabelValues(agentID).Set(utilization)
}

func (c *Collector) SetBreakerState(agentID string, state float64) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(agentID).Set(state)
}

// ForgetAgent drops the per-agent series of a terminated agent.
func (c *Collector) ForgetAgent(agentID string) {
	if c == nil {
		return
	}
	c.agentUtilization.DeleteLabelValues(agentID)
	c.breakerState.DeleteLabelValues(agentID)
}

func (c *Collector) SetAgentCounts(active, dormant int) {
	if c == nil {
		return
	}
	c.activeAgents.Set(float64(active))
	c.dormantAgents.Set(float64(dormant))
}

// SetTopology publishes the active kind and its derived metrics. The
// kind gauge is reset first so only the current kind reads 1.
func (c *Collector) SetTopology(kind string, values map[string]float64) {
	if c == nil {
		return
	}
	c.topologyKind.Reset()
	c.topologyKind.WithLabelValues(kind).Set(1)
	for name, v := range values {
		c.topologyMetric.WithLabelValues(name).Set(v)
	}
}

func (c *Collector) ObserveTask(success bool) {
	if c == nil {
		return
	}
	if success {
		c.tasksTotal.WithLabelValues("completed").Inc()
	} else {
		c.tasksTotal.WithLabelValues("failed").Inc()
	}
}

func (c *Collector) ObserveRecovery(action string) {
	if c == nil {
		return
	}
	c.recoveriesTotal.WithLabelValues(action).Inc()
}

func (c *Collector) ObserveSpecification(success bool) {
	if c == nil {
		return
	}
	if success {
		c.specificationsTotal.WithLabelValues("completed").Inc()
	} else {
		c.specificationsTotal.WithLabelValues("failed").Inc()
	}
}
