package hive

import (
	"testing"

	"github.com/hivedhq/hived/internal/agent"
)

func specWithTasks(tasks ...*agent.TaskDefinition) *agent.Specification {
	return &agent.Specification{
		ID:    "spec-1",
		Name:  "test spec",
		Tasks: tasks,
	}
}

func TestStagesDiamond(t *testing.T) {
	spec := specWithTasks(
		&agent.TaskDefinition{ID: "a", Type: "design"},
		&agent.TaskDefinition{ID: "b", Type: "implementation", DependsOn: []string{"a"}},
		&agent.TaskDefinition{ID: "c", Type: "implementation", DependsOn: []string{"a"}},
		&agent.TaskDefinition{ID: "d", Type: "testing", DependsOn: []string{"b", "c"}},
	)

	tiers, err := stages(spec)
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("tiers = %d, want 3", len(tiers))
	}
	if len(tiers[0]) != 1 || tiers[0][0].ID != "a" {
		t.Fatalf("tier 0 = %v, want [a]", taskIDs(tiers[0]))
	}
	if len(tiers[1]) != 2 || tiers[1][0].ID != "b" || tiers[1][1].ID != "c" {
		t.Fatalf("tier 1 = %v, want [b c]", taskIDs(tiers[1]))
	}
	if len(tiers[2]) != 1 || tiers[2][0].ID != "d" {
		t.Fatalf("tier 2 = %v, want [d]", taskIDs(tiers[2]))
	}
}

func TestStagesLongestPathWins(t *testing.T) {
	// c depends on both a and b, but b itself depends on a, so c must
	// land after b.
	spec := specWithTasks(
		&agent.TaskDefinition{ID: "a", Type: "design"},
		&agent.TaskDefinition{ID: "b", Type: "implementation", DependsOn: []string{"a"}},
		&agent.TaskDefinition{ID: "c", Type: "testing", DependsOn: []string{"a", "b"}},
	)

	tiers, err := stages(spec)
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("tiers = %d, want 3", len(tiers))
	}
	if tiers[2][0].ID != "c" {
		t.Fatalf("final tier = %v, want [c]", taskIDs(tiers[2]))
	}
}

func TestStagesCycle(t *testing.T) {
	spec := specWithTasks(
		&agent.TaskDefinition{ID: "a", Type: "design", DependsOn: []string{"b"}},
		&agent.TaskDefinition{ID: "b", Type: "testing", DependsOn: []string{"a"}},
	)

	if _, err := stages(spec); err == nil {
		t.Fatal("cycle should be rejected")
	}
}

func TestStagesUnknownDependency(t *testing.T) {
	spec := specWithTasks(
		&agent.TaskDefinition{ID: "a", Type: "design", DependsOn: []string{"ghost"}},
	)

	if _, err := stages(spec); err == nil {
		t.Fatal("unknown dependency should be rejected")
	}
}

func TestIndependent(t *testing.T) {
	free := specWithTasks(
		&agent.TaskDefinition{ID: "a", Type: "design"},
		&agent.TaskDefinition{ID: "b", Type: "testing"},
	)
	if !independent(free) {
		t.Fatal("dependency-free spec reported as dependent")
	}

	chained := specWithTasks(
		&agent.TaskDefinition{ID: "a", Type: "design"},
		&agent.TaskDefinition{ID: "b", Type: "testing", DependsOn: []string{"a"}},
	)
	if independent(chained) {
		t.Fatal("chained spec reported as independent")
	}
}

func taskIDs(tasks []*agent.TaskDefinition) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
