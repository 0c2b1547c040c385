package topology

import "github.com/hivedhq/hived/internal/agent"

type Strategy string

const (
	StrategyParallel   Strategy = "parallel"
	StrategySequential Strategy = "sequential"
	StrategyAdaptive   Strategy = "adaptive"
	StrategyHybrid     Strategy = "hybrid"
)

// taskWeights seed per-type complexity. Unknown types land on a middle
// value rather than failing, tasks are free-form.
var taskWeights = map[string]float64{
	"research":       0.3,
	"design":         0.5,
	"implementation": 0.6,
	"testing":        0.4,
	"analysis":       0.4,
	"review":         0.3,
	"optimization":   0.5,
	"coordination":   0.2,
}

// TaskComplexity derives a [0,1] complexity from a task's type and
// priority.
func TaskComplexity(task agent.TaskDefinition) float64 {
	weight, ok := taskWeights[task.Type]
	if !ok {
		weight = 0.4
	}

	var bump float64
	switch task.Priority {
	case agent.PriorityCritical:
		bump = 0.3
	case agent.PriorityHigh:
		bump = 0.2
	case agent.PriorityMedium:
		bump = 0.1
	}

	c := weight + bump
	if c > 1 {
		return 1
	}
	return c
}

// Strategy picks how a task should be driven given its complexity, how
// many agents sit idle, and how loaded the graph currently is.
func (m *Manager) Strategy(task agent.TaskDefinition) Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	complexity := TaskComplexity(task)
	idle := 0
	loads := make([]float64, 0, len(m.nodes))
	for _, n := range m.nodes {
		if n.Status == agent.StatusIdle {
			idle++
		}
		loads = append(loads, n.Load)
	}
	avgLoad := mean(loads)

	switch {
	case idle <= 1:
		return StrategySequential
	case complexity >= 0.7 && idle >= 3:
		return StrategyHybrid
	case complexity >= 0.7:
		return StrategySequential
	case complexity >= 0.4 && avgLoad >= 0.6:
		return StrategyAdaptive
	default:
		return StrategyParallel
	}
}
