package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorGauges(t *testing.T) {
	c := NewCollector()

	c.SetAgentUtilization("agent-1", 0.75)
	if got := testutil.ToFloat64(c.agentUtilization.WithLabelValues("agent-1")); got != 0.75 {
		t.Fatalf("agent utilization = %v, want 0.75", got)
	}

	c.SetBreakerState("agent-1", BreakerOpenValue)
	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("agent-1")); got != 2 {
		t.Fatalf("breaker state = %v, want 2", got)
	}

	c.SetAgentCounts(4, 2)
	if got := testutil.ToFloat64(c.activeAgents); got != 4 {
		t.Fatalf("active agents = %v, want 4", got)
	}
	if got := testutil.ToFloat64(c.dormantAgents); got != 2 {
		t.Fatalf("dormant agents = %v, want 2", got)
	}
}

func TestCollectorTopologyKindReset(t *testing.T) {
	c := NewCollector()

	c.SetTopology("mesh", map[string]float64{"efficiency": 0.9})
	c.SetTopology("star", map[string]float64{"efficiency": 0.8})

	if got := testutil.ToFloat64(c.topologyKind.WithLabelValues("star")); got != 1 {
		t.Fatalf("star kind gauge = %v, want 1", got)
	}
	// reset dropped the previous kind entirely
	if got := testutil.CollectAndCount(c.topologyKind); got != 1 {
		t.Fatalf("topology kind series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(c.topologyMetric.WithLabelValues("efficiency")); got != 0.8 {
		t.Fatalf("efficiency = %v, want 0.8", got)
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.ObserveTask(true)
	c.ObserveTask(true)
	c.ObserveTask(false)
	if got := testutil.ToFloat64(c.tasksTotal.WithLabelValues("completed")); got != 2 {
		t.Fatalf("completed tasks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.tasksTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed tasks = %v, want 1", got)
	}

	c.ObserveRecovery("restart")
	c.ObserveRecovery("restart")
	if got := testutil.ToFloat64(c.recoveriesTotal.WithLabelValues("restart")); got != 2 {
		t.Fatalf("restart recoveries = %v, want 2", got)
	}

	c.ObserveSpecification(false)
	if got := testutil.ToFloat64(c.specificationsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed specifications = %v, want 1", got)
	}
}

func TestCollectorForgetAgent(t *testing.T) {
	c := NewCollector()

	c.SetAgentUtilization("agent-1", 0.5)
	c.SetAgentUtilization("agent-2", 0.1)
	c.ForgetAgent("agent-1")

	if got := testutil.CollectAndCount(c.agentUtilization); got != 1 {
		t.Fatalf("utilization series after forget = %d, want 1", got)
	}
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	c.SetAgentUtilization("a", 1)
	c.ObserveTask(true)
	c.SetTopology("mesh", nil)
	c.SetAgentCounts(1, 0)
	c.ForgetAgent("a")
	if c.Handler() == nil {
		t.Fatal("nil collector handler is nil")
	}
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.ObserveTask(true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hived_tasks_total") {
		t.Fatal("metrics output missing hived_tasks_total")
	}
}
