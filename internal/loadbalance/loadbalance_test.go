package loadbalance

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

func poolAgent(id string, typ agent.Type) agent.Agent {
	p, _ := agent.ProfileFor(typ)
	return agent.Agent{
		ID:           id,
		Type:         typ,
		Capabilities: p.Capabilities,
		Status:       agent.StatusIdle,
		Performance:  agent.NewPerformance(),
	}
}

func newTestBalancer(t *testing.T, agents ...agent.Agent) *Balancer {
	t.Helper()
	b := NewBalancer(0.3, nil)
	if err := b.InitializeAgents(agents); err != nil {
		t.Fatalf("initialize agents: %v", err)
	}
	return b
}

func setLoad(t *testing.T, b *Balancer, id string, load float64) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.agents[id]
	if !ok {
		t.Fatalf("unknown agent %s", id)
	}
	e.CurrentLoad = load
	e.recalc()
}

func TestRegisterCapacityScalesWithSuccess(t *testing.T) {
	fresh := poolAgent("c-1", agent.TypeCoder)
	worn := poolAgent("c-2", agent.TypeCoder)
	worn.Performance.SuccessRate = 0.5

	b := newTestBalancer(t, fresh, worn)

	if got, _ := b.Get("c-1"); got.MaxCapacity != 10 {
		t.Fatalf("expected capacity 10 for perfect coder, got %.1f", got.MaxCapacity)
	}
	if got, _ := b.Get("c-2"); got.MaxCapacity != 7.5 {
		t.Fatalf("expected capacity 7.5 for half-success coder, got %.1f", got.MaxCapacity)
	}
}

func TestRegisterRejectsUnknownType(t *testing.T) {
	b := NewBalancer(0.3, nil)
	if err := b.Register(agent.Agent{ID: "x", Type: "wizard"}); err == nil {
		t.Fatal("expected error for unknown agent type")
	}
}

func TestAssignPrefersSpecialist(t *testing.T) {
	b := newTestBalancer(t,
		poolAgent("coder-1", agent.TypeCoder),
		poolAgent("researcher-1", agent.TypeResearcher),
	)

	task := agent.TaskDefinition{ID: "t1", Type: "implementation", Priority: agent.PriorityMedium}
	got, err := b.Assign(task, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.AgentID != "coder-1" {
		t.Fatalf("expected coder-1, got %s", got.AgentID)
	}

	e, _ := b.Get("coder-1")
	if e.CurrentLoad != 1 {
		t.Fatalf("expected one load unit booked, got %.1f", e.CurrentLoad)
	}
}

func TestAssignTieBreaksOnLowestID(t *testing.T) {
	b := newTestBalancer(t,
		poolAgent("c-b", agent.TypeCoder),
		poolAgent("c-a", agent.TypeCoder),
	)

	task := agent.TaskDefinition{ID: "t1", Type: "implementation", Priority: agent.PriorityMedium}
	got, err := b.Assign(task, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.AgentID != "c-a" {
		t.Fatalf("expected tie to resolve to c-a, got %s", got.AgentID)
	}
}

func TestAssignGateFiltersCandidates(t *testing.T) {
	b := newTestBalancer(t,
		poolAgent("c-a", agent.TypeCoder),
		poolAgent("c-b", agent.TypeCoder),
	)

	task := agent.TaskDefinition{ID: "t1", Type: "implementation", Priority: agent.PriorityMedium}
	got, err := b.Assign(task, func(id string) bool { return id != "c-a" })
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.AgentID != "c-b" {
		t.Fatalf("expected gated assignment to pick c-b, got %s", got.AgentID)
	}
}

func TestAssignNeverExceedsCapacity(t *testing.T) {
	b := newTestBalancer(t, poolAgent("c-1", agent.TypeCoder))

	task := agent.TaskDefinition{ID: "t", Type: "implementation", Priority: agent.PriorityMedium}
	for i := 0; i < 10; i++ {
		if _, err := b.Assign(task, nil); err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
		e, _ := b.Get("c-1")
		if e.CurrentLoad > e.MaxCapacity {
			t.Fatalf("load %.1f exceeds capacity %.1f", e.CurrentLoad, e.MaxCapacity)
		}
	}

	_, err := b.Assign(task, nil)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestCompleteMovesAverages(t *testing.T) {
	b := newTestBalancer(t, poolAgent("c-1", agent.TypeCoder))

	if _, err := b.Complete("t1", "c-1", false, 2*time.Second); err != nil {
		t.Fatalf("complete: %v", err)
	}
	e, _ := b.Get("c-1")
	if math.Abs(e.Performance.SuccessRate-0.9) > 1e-9 {
		t.Fatalf("expected success rate 0.9 after one failure, got %.4f", e.Performance.SuccessRate)
	}
	if math.Abs(e.Performance.AvgResponseMs-200) > 1e-9 {
		t.Fatalf("expected avg response 200ms, got %.1f", e.Performance.AvgResponseMs)
	}

	if _, err := b.Complete("t2", "c-1", false, 2*time.Second); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Consecutive successes pull the rate back up, strictly, without
	// ever reaching 1 again.
	prev, _ := b.Performance("c-1")
	for i := 0; i < 5; i++ {
		if _, err := b.Complete("t", "c-1", true, time.Second); err != nil {
			t.Fatalf("complete: %v", err)
		}
		cur, _ := b.Performance("c-1")
		if cur.SuccessRate <= prev.SuccessRate {
			t.Fatalf("expected success rate to increase, %.4f -> %.4f", prev.SuccessRate, cur.SuccessRate)
		}
		if cur.SuccessRate >= 1 {
			t.Fatalf("expected success rate below 1, got %.4f", cur.SuccessRate)
		}
		prev = cur
	}
}

func TestCompleteUnknownAgent(t *testing.T) {
	b := newTestBalancer(t)
	if _, err := b.Complete("t1", "ghost", true, time.Second); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestObserveTokens(t *testing.T) {
	b := newTestBalancer(t, poolAgent("c-1", agent.TypeCoder))

	b.ObserveTokens("c-1", 2000)
	e, _ := b.Get("c-1")
	if math.Abs(e.Performance.TokenEfficiency-0.82) > 1e-9 {
		t.Fatalf("expected efficiency 0.82 after on-budget task, got %.4f", e.Performance.TokenEfficiency)
	}

	b.ObserveTokens("c-1", 20000)
	e, _ = b.Get("c-1")
	if math.Abs(e.Performance.TokenEfficiency-0.748) > 1e-9 {
		t.Fatalf("expected efficiency 0.748 after expensive task, got %.4f", e.Performance.TokenEfficiency)
	}
}

func TestRebalanceMovesLoadFromHotToCold(t *testing.T) {
	b := newTestBalancer(t,
		poolAgent("c-a", agent.TypeCoder),
		poolAgent("c-b", agent.TypeCoder),
	)
	setLoad(t, b, "c-a", 10)

	moved := b.Rebalance()
	if moved != 2 {
		t.Fatalf("expected 2 units moved, got %d", moved)
	}

	hot, _ := b.Get("c-a")
	cold, _ := b.Get("c-b")
	if hot.CurrentLoad != 8 || cold.CurrentLoad != 2 {
		t.Fatalf("expected 8/2 split, got %.1f/%.1f", hot.CurrentLoad, cold.CurrentLoad)
	}
}

func TestRebalanceNoopUnderThreshold(t *testing.T) {
	b := newTestBalancer(t,
		poolAgent("c-a", agent.TypeCoder),
		poolAgent("c-b", agent.TypeCoder),
	)
	setLoad(t, b, "c-a", 5)
	setLoad(t, b, "c-b", 4)

	if moved := b.Rebalance(); moved != 0 {
		t.Fatalf("expected no-op, moved %d units", moved)
	}

	a, _ := b.Get("c-a")
	bb, _ := b.Get("c-b")
	if a.CurrentLoad != 5 || bb.CurrentLoad != 4 {
		t.Fatalf("expected loads unchanged, got %.1f/%.1f", a.CurrentLoad, bb.CurrentLoad)
	}
}

func TestRebalancePrefersCapabilityOverlap(t *testing.T) {
	b := newTestBalancer(t,
		poolAgent("w-donor", agent.TypeCoder),
		poolAgent("a-tester", agent.TypeTester),
		poolAgent("z-coder", agent.TypeCoder),
	)
	setLoad(t, b, "w-donor", 9)

	if moved := b.Rebalance(); moved != 1 {
		t.Fatalf("expected 1 unit moved, got %d", moved)
	}

	coder, _ := b.Get("z-coder")
	tester, _ := b.Get("a-tester")
	if coder.CurrentLoad != 1 || tester.CurrentLoad != 0 {
		t.Fatalf("expected unit on matching coder, got coder=%.1f tester=%.1f",
			coder.CurrentLoad, tester.CurrentLoad)
	}
}

func TestPredictTopThree(t *testing.T) {
	b := newTestBalancer(t,
		poolAgent("t-1", agent.TypeTester),
		poolAgent("c-1", agent.TypeCoder),
		poolAgent("r-1", agent.TypeResearcher),
		poolAgent("a-1", agent.TypeAnalyst),
	)

	task := agent.TaskDefinition{ID: "t1", Type: "testing", Priority: agent.PriorityHigh}
	ranked := b.Predict(task)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(ranked))
	}
	if ranked[0].AgentID != "t-1" {
		t.Fatalf("expected tester ranked first for testing task, got %s", ranked[0].AgentID)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatal("expected scores in non-increasing order")
		}
	}

	for id, e := range b.Loads() {
		if e.CurrentLoad != 0 {
			t.Fatalf("expected no load booked by predict, agent %s has %.1f", id, e.CurrentLoad)
		}
	}
}

func TestInitializeAgentsResetsLedger(t *testing.T) {
	b := newTestBalancer(t, poolAgent("old-1", agent.TypeCoder))

	err := b.InitializeAgents([]agent.Agent{
		poolAgent("new-1", agent.TypeCoder),
		poolAgent("new-2", agent.TypeTester),
	})
	if err != nil {
		t.Fatalf("initialize agents: %v", err)
	}

	loads := b.Loads()
	if len(loads) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(loads))
	}
	if _, ok := loads["old-1"]; ok {
		t.Fatal("expected stale agent dropped on initialize")
	}
}
