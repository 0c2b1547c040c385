package agent

// Profile is the static definition of an agent type: which model backs
// it, its cognitive pattern, what it can do, and how much parallel work
// it sustains at full health.
type Profile struct {
	Model          string
	Pattern        string
	Capabilities   []string
	BaseCapacity   float64
	Specialization map[string]float64
}

// DefaultSpecialization is assumed for task types a profile does not
// name explicitly.
const DefaultSpecialization = 0.5

var profiles = map[Type]Profile{
	TypeCoordinator: {
		Model:        "claude-opus-4-5",
		Pattern:      "systems",
		Capabilities: []string{"task_management", "resource_allocation", "consensus_building"},
		BaseCapacity: 15,
		Specialization: map[string]float64{
			"coordination": 0.95,
			"planning":     0.8,
		},
	},
	TypeArchitect: {
		Model:        "claude-opus-4-5",
		Pattern:      "abstract",
		Capabilities: []string{"system_design", "architecture_patterns", "integration_planning"},
		BaseCapacity: 8,
		Specialization: map[string]float64{
			"design":   0.9,
			"planning": 0.85,
		},
	},
	TypeCoder: {
		Model:        "claude-sonnet-4-5-20250929",
		Pattern:      "convergent",
		Capabilities: []string{"code_generation", "refactoring", "debugging"},
		BaseCapacity: 10,
		Specialization: map[string]float64{
			"implementation": 0.9,
			"debugging":      0.8,
			"refactoring":    0.85,
		},
	},
	TypeTester: {
		Model:        "claude-sonnet-4-5-20250929",
		Pattern:      "critical",
		Capabilities: []string{"test_generation", "quality_assurance", "edge_case_detection"},
		BaseCapacity: 12,
		Specialization: map[string]float64{
			"testing":    0.95,
			"validation": 0.8,
		},
	},
	TypeAnalyst: {
		Model:        "claude-sonnet-4-5-20250929",
		Pattern:      "systems",
		Capabilities: []string{"data_analysis", "performance_metrics", "bottleneck_detection"},
		BaseCapacity: 8,
		Specialization: map[string]float64{
			"analysis": 0.9,
			"research": 0.7,
		},
	},
	TypeResearcher: {
		Model:        "claude-sonnet-4-5-20250929",
		Pattern:      "divergent",
		Capabilities: []string{"information_gathering", "pattern_recognition", "knowledge_synthesis"},
		BaseCapacity: 6,
		Specialization: map[string]float64{
			"research": 0.95,
			"analysis": 0.7,
		},
	},
	TypeReviewer: {
		Model:        "claude-sonnet-4-5-20250929",
		Pattern:      "critical",
		Capabilities: []string{"code_review", "standards_compliance", "best_practices"},
		BaseCapacity: 10,
		Specialization: map[string]float64{
			"review":     0.9,
			"validation": 0.8,
		},
	},
	TypeOptimizer: {
		Model:        "claude-sonnet-4-5-20250929",
		Pattern:      "lateral",
		Capabilities: []string{"performance_tuning", "resource_optimization", "bottleneck_elimination"},
		BaseCapacity: 8,
		Specialization: map[string]float64{
			"optimization": 0.9,
			"analysis":     0.75,
		},
	},
}

// ProfileFor returns the static profile for an agent type.
func ProfileFor(t Type) (Profile, bool) {
	p, ok := profiles[t]
	return p, ok
}

// Types lists the known agent types in a fixed order.
func Types() []Type {
	return []Type{
		TypeCoordinator,
		TypeArchitect,
		TypeCoder,
		TypeTester,
		TypeAnalyst,
		TypeResearcher,
		TypeReviewer,
		TypeOptimizer,
	}
}

// Specialization returns how strong an agent type is at a task type,
// falling back to the neutral default.
func (p Profile) SpecializationFor(taskType string) float64 {
	if v, ok := p.Specialization[taskType]; ok {
		return v
	}
	return DefaultSpecialization
}

// SeedPool is the worker mix spawned alongside the coordinator when a
// hive initializes.
func SeedPool() []Type {
	return []Type{TypeArchitect, TypeCoder, TypeCoder, TypeTester, TypeAnalyst}
}

// TypeForTask maps a task type onto the agent specialization that
// handles it. Unknown task types land on coders, who take general work.
func TypeForTask(taskType string) Type {
	switch taskType {
	case "research":
		return TypeResearcher
	case "design":
		return TypeArchitect
	case "implementation", "debugging", "refactoring":
		return TypeCoder
	case "testing", "validation":
		return TypeTester
	case "analysis":
		return TypeAnalyst
	case "review":
		return TypeReviewer
	case "optimization":
		return TypeOptimizer
	case "coordination", "planning":
		return TypeCoordinator
	default:
		return TypeCoder
	}
}

// PreferredType resolves which agent type a task should run on: an
// explicit hint wins, otherwise the task type decides.
func PreferredType(task TaskDefinition) Type {
	if task.AgentType != "" && task.AgentType.Valid() {
		return task.AgentType
	}
	return TypeForTask(task.Type)
}

// RequirementsFor returns the capabilities a task needs. Explicit
// requirements win; otherwise the preferred agent type's capability set
// stands in for them.
func RequirementsFor(task TaskDefinition) []string {
	if len(task.RequiredCapabilities) > 0 {
		return append([]string(nil), task.RequiredCapabilities...)
	}
	p, ok := ProfileFor(PreferredType(task))
	if !ok {
		return nil
	}
	return append([]string(nil), p.Capabilities...)
}
