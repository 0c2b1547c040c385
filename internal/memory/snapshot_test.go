package memory

import (
	"testing"

	"github.com/hivedhq/hived/internal/agent"
)

func TestSnapshotRoundTrip(t *testing.T) {
	src := newTestBank(t)

	_ = src.SaveSpecification(&agent.Specification{
		ID:   "spec-1",
		Name: "payments",
		Tasks: []*agent.TaskDefinition{
			{ID: "t1", Type: "implementation", Priority: agent.PriorityHigh},
		},
	})
	_ = src.SaveAgent(testAgent("a1", agent.TypeCoder))
	_ = src.SaveAgent(testAgent("a2", agent.TypeTester))
	_ = src.SaveInteraction("a1", "task", "implemented charge endpoint")
	_ = src.SaveExecutionResult(&ExecutionResult{ID: "r1", SpecID: "spec-1", Success: true, Summary: "1/1 succeeded"})
	_ = src.SaveTaskExecution(&TaskExecution{ID: "e1", TaskID: "t1", AgentID: "a1", Success: true, DurationMs: 42})
	_ = src.SaveDecision(&Decision{Topic: "retry", Decision: "two attempts"})
	_ = src.SavePattern(&Pattern{Name: "slow friday deploys", Score: 0.4})

	snap, err := src.ExportSnapshot()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if snap.Version != snapshotVersion {
		t.Errorf("expected version %d, got %d", snapshotVersion, snap.Version)
	}

	dst := newTestBank(t)
	if err := dst.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}

	h := dst.Health()
	for category, want := range map[string]int{
		"specifications":     1,
		"execution_results":  1,
		"agents":             2,
		"agent_interactions": 1,
		"task_executions":    1,
		"decisions":          1,
		"patterns":           1,
	} {
		if h.Counts[category] != want {
			t.Errorf("%s: expected %d, got %d", category, want, h.Counts[category])
		}
	}

	spec, _ := dst.GetSpecification("spec-1")
	if spec == nil || spec.Name != "payments" {
		t.Errorf("specification did not survive round trip: %+v", spec)
	}
	a, _ := dst.GetAgent("a1")
	if a == nil || a.Type != agent.TypeCoder {
		t.Errorf("agent did not survive round trip: %+v", a)
	}
	r, _ := dst.GetExecutionResult("spec-1")
	if r == nil || r.Summary != "1/1 succeeded" {
		t.Errorf("result did not survive round trip: %+v", r)
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	b := newTestBank(t)
	if err := b.ImportSnapshot(&Snapshot{Version: 99}); err == nil {
		t.Fatal("expected error for unknown snapshot version")
	}
}
