package hive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/config"
	"github.com/hivedhq/hived/internal/executor"
	"github.com/hivedhq/hived/internal/fault"
)

func pickWorker(t *testing.T, o *Orchestrator, typ agent.Type) string {
	t.Helper()
	for _, a := range o.Agents() {
		if a.Type == typ {
			return a.ID
		}
	}
	t.Fatalf("no agent of type %s in pool", typ)
	return ""
}

func tripBreaker(o *Orchestrator, agentID string) {
	for i := 0; i < 3; i++ {
		o.Faults().RecordFailure(agentID, 100*time.Millisecond)
	}
}

func TestRestartAgentResetsBreaker(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), nil)
	coder := pickWorker(t, o, agent.TypeCoder)

	tripBreaker(o, coder)
	if o.Faults().CanRoute(coder) {
		t.Fatal("breaker still routing after threshold failures")
	}

	if err := o.RestartAgent(context.Background(), coder); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !o.Faults().CanRoute(coder) {
		t.Fatal("breaker not reset by restart")
	}

	a, err := o.Agent(coder)
	if err != nil {
		t.Fatalf("agent lookup: %v", err)
	}
	if a.Status != agent.StatusIdle {
		t.Fatalf("status = %s, want idle", a.Status)
	}
}

func TestRestartOfflineAgentFails(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), nil)
	coder := pickWorker(t, o, agent.TypeCoder)

	o.Faults().SetOnline(coder, false)
	if err := o.RestartAgent(context.Background(), coder); err == nil {
		t.Fatal("restart of offline agent should fail")
	}

	if err := o.RestartAgent(context.Background(), "ghost"); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("restart ghost = %v, want ErrAgentNotFound", err)
	}
}

func TestReassignTasksRequiresBookedWork(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), nil)
	coder := pickWorker(t, o, agent.TypeCoder)

	if err := o.ReassignTasks(context.Background(), coder); err == nil {
		t.Fatal("reassign with empty ledger should fail")
	}

	// Book one unit directly on the coder.
	task := agent.TaskDefinition{ID: "t1", Type: "implementation", Priority: agent.PriorityHigh}
	asn, err := o.Balancer().Assign(task, func(id string) bool { return id == coder })
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if asn.AgentID != coder {
		t.Fatalf("assigned to %s, want %s", asn.AgentID, coder)
	}

	if err := o.ReassignTasks(context.Background(), coder); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	load, ok := o.Balancer().Get(coder)
	if !ok {
		t.Fatal("agent dropped from balancer by reassign")
	}
	if load.CurrentLoad != 0 {
		t.Fatalf("current load = %v, want 0 after reassign", load.CurrentLoad)
	}
}

func TestSpawnBackupClonesType(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), nil)
	tester := pickWorker(t, o, agent.TypeTester)
	before := len(o.Agents())

	if err := o.SpawnBackup(context.Background(), tester); err != nil {
		t.Fatalf("spawn backup: %v", err)
	}

	testers := 0
	for _, a := range o.Agents() {
		if a.Type == agent.TypeTester {
			testers++
		}
	}
	if testers != 2 {
		t.Fatalf("testers = %d, want 2", testers)
	}
	if len(o.Agents()) != before+1 {
		t.Fatalf("pool = %d, want %d", len(o.Agents()), before+1)
	}
}

func TestIsolateAgent(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), nil)
	coder := pickWorker(t, o, agent.TypeCoder)

	if err := o.IsolateAgent(context.Background(), coder); err != nil {
		t.Fatalf("isolate: %v", err)
	}

	a, err := o.Agent(coder)
	if err != nil {
		t.Fatalf("agent lookup: %v", err)
	}
	if a.Status != agent.StatusOffline {
		t.Fatalf("status = %s, want offline", a.Status)
	}
	if _, ok := o.Balancer().Get(coder); ok {
		t.Fatal("isolated agent still in balancer")
	}
	if n, ok := o.Topology().Nodes()[coder]; !ok {
		t.Fatal("isolated agent missing from topology")
	} else if len(n.Connections) != 0 {
		t.Fatalf("isolated agent keeps %d connections", len(n.Connections))
	}

	if err := o.IsolateAgent(context.Background(), o.QueenID()); !errors.Is(err, ErrQueenImmortal) {
		t.Fatalf("isolate queen = %v, want ErrQueenImmortal", err)
	}
}

func TestRecoverPipelineRestartsFirst(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), nil)
	coder := pickWorker(t, o, agent.TypeCoder)
	tripBreaker(o, coder)

	action, err := o.Faults().Recover(context.Background(), o, coder, "breaker open")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if action.Type != fault.RecoveryRestart {
		t.Fatalf("action = %s, want restart", action.Type)
	}
	if !action.Success {
		t.Fatal("restart action recorded as failed")
	}
	if !o.Faults().CanRoute(coder) {
		t.Fatal("agent not routable after recovery")
	}
}

func TestRecoverOfflineAgentFallsThroughToBackup(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), nil)
	coder := pickWorker(t, o, agent.TypeCoder)
	o.Faults().SetOnline(coder, false)

	action, err := o.Faults().Recover(context.Background(), o, coder, "unreachable")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if action.Type != fault.RecoveryBackup {
		t.Fatalf("action = %s, want spawn_backup", action.Type)
	}

	// restart and reassign attempts are recorded as failures first
	actions := o.Faults().Actions()
	if len(actions) != 3 {
		t.Fatalf("recorded actions = %d, want 3", len(actions))
	}
	if actions[0].Type != fault.RecoveryRestart || actions[0].Success {
		t.Fatalf("first action = %+v, want failed restart", actions[0])
	}
	if actions[1].Type != fault.RecoveryReassign || actions[1].Success {
		t.Fatalf("second action = %+v, want failed reassign", actions[1])
	}
}

func TestRecoverWithoutBackupBudgetIsolates(t *testing.T) {
	o := newTestHive(t, executor.NewFake(), func(cfg *config.Config) {
		cfg.Fault.BackupRatio = 0 // backups rationed to zero
	})
	coder := pickWorker(t, o, agent.TypeCoder)
	o.Faults().SetOnline(coder, false)

	action, err := o.Faults().Recover(context.Background(), o, coder, "unreachable")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if action.Type != fault.RecoveryIsolate {
		t.Fatalf("action = %s, want isolate", action.Type)
	}

	a, lookupErr := o.Agent(coder)
	if lookupErr != nil {
		t.Fatalf("agent lookup: %v", lookupErr)
	}
	if a.Status != agent.StatusOffline {
		t.Fatalf("status = %s, want offline", a.Status)
	}
}
