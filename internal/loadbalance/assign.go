package loadbalance

import (
	"fmt"
	"sort"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

// Gate filters candidates during assignment, typically backed by the
// circuit breakers. A nil gate admits everyone.
type Gate func(agentID string) bool

// Assignment is one scored candidate.
type Assignment struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// Assign picks the highest-scoring agent with spare capacity and books
// one load unit on it. Equal top scores resolve to the lowest agent id.
func (b *Balancer) Assign(task agent.TaskDefinition, gate Gate) (Assignment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ranked := b.rank(task, gate, 1)
	if len(ranked) == 0 {
		return Assignment{}, fmt.Errorf("assign task %s: %w", task.ID, ErrCapacityExceeded)
	}

	e := b.agents[ranked[0].AgentID]
	e.CurrentLoad++
	e.recalc()
	b.notify(e.AgentID, e.Utilization)
	return ranked[0], nil
}

// Predict returns the top three candidates for a task without booking
// anything, for what-if queries.
func (b *Balancer) Predict(task agent.TaskDefinition) []Assignment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rank(task, nil, 3)
}

// Complete releases one load unit and folds the outcome into the
// agent's rolling profile.
func (b *Balancer) Complete(taskID, agentID string, success bool, duration time.Duration) (AgentLoad, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.agents[agentID]
	if !ok {
		return AgentLoad{}, fmt.Errorf("complete task %s: unknown agent %q", taskID, agentID)
	}

	if e.CurrentLoad > 0 {
		e.CurrentLoad--
	}
	e.recalc()

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	e.Performance.SuccessRate = ema(e.Performance.SuccessRate, outcome)
	e.Performance.AvgResponseMs = ema(e.Performance.AvgResponseMs, float64(duration.Milliseconds()))

	b.notify(agentID, e.Utilization)
	return copyEntry(e), nil
}

// tokenBaseline is the token spend at which a task counts as fully
// efficient; bigger spends decay the efficiency sample.
const tokenBaseline = 2000

// ObserveTokens folds a task's token usage into the agent's efficiency.
func (b *Balancer) ObserveTokens(agentID string, tokens int) {
	if tokens <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.agents[agentID]
	if !ok {
		return
	}
	sample := tokenBaseline / float64(tokens)
	if sample > 1 {
		sample = 1
	}
	e.Performance.TokenEfficiency = ema(e.Performance.TokenEfficiency, sample)
}

func ema(old, sample float64) float64 {
	return old*(1-emaAlpha) + sample*emaAlpha
}

// rank scores every agent with spare capacity that passes the gate and
// returns the best n, ordered by score then id. Callers hold b.mu.
func (b *Balancer) rank(task agent.TaskDefinition, gate Gate, n int) []Assignment {
	candidates := make([]Assignment, 0, len(b.agents))
	for id, e := range b.agents {
		if e.CurrentLoad >= e.MaxCapacity {
			continue
		}
		if gate != nil && !gate(id) {
			continue
		}
		candidates = append(candidates, Assignment{AgentID: id, Score: scoreAgent(task, e)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// scoreAgent weighs availability 0.3, capability match 0.4, rolling
// performance 0.3 and specialization affinity 0.2, then scales by the
// task priority and clamps to [0,1].
func scoreAgent(task agent.TaskDefinition, e *AgentLoad) float64 {
	avail := 1 - e.Utilization
	if avail < 0 {
		avail = 0
	}

	match := capabilityMatch(agent.RequirementsFor(task), e.Capabilities)

	spec, ok := e.Specialization[task.Type]
	if !ok {
		spec = agent.DefaultSpecialization
	}

	s := avail*0.3 + match*0.4 + e.Performance.Score()*0.3 + spec*0.2
	s *= task.Priority.Multiplier()

	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// capabilityMatch is the fraction of required capabilities the agent
// has. No requirements means any agent fits.
func capabilityMatch(required, have []string) float64 {
	if len(required) == 0 {
		return 1
	}
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	hits := 0
	for _, c := range required {
		if set[c] {
			hits++
		}
	}
	return float64(hits) / float64(len(required))
}
