package memory

import (
	"fmt"

	"github.com/hivedhq/hived/internal/agent"
)

// AgentContext bundles everything the bank knows about one agent, used
// when briefing a restored or backup agent.
type AgentContext struct {
	Agent            *agent.Agent    `json:"agent"`
	RecentExecutions []TaskExecution `json:"recent_executions"`
	RecentActivity   []Interaction   `json:"recent_activity"`
	Stats            *AgentStats     `json:"stats"`
}

func (b *Bank) GetAgentContext(agentID string) (*AgentContext, error) {
	a, err := b.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}

	executions, err := b.ListTaskExecutions(agentID, 10)
	if err != nil {
		return nil, fmt.Errorf("agent context: %w", err)
	}
	activity, err := b.GetInteractions(agentID, 10)
	if err != nil {
		return nil, fmt.Errorf("agent context: %w", err)
	}
	stats, err := b.GetAgentStats(agentID)
	if err != nil {
		return nil, fmt.Errorf("agent context: %w", err)
	}

	return &AgentContext{
		Agent:            a,
		RecentExecutions: executions,
		RecentActivity:   activity,
		Stats:            stats,
	}, nil
}
