// Package executor defines the contract for running one task on one
// agent. The orchestrator stays ignorant of how work actually runs;
// the bus-backed implementation delegates over NATS request/reply and
// tests script outcomes with a fake.
package executor

import (
	"context"

	"github.com/hivedhq/hived/internal/agent"
)

// Result is what an agent reports back for a single task. Success is
// task-level; transport and infrastructure problems surface as errors
// from Execute instead.
type Result struct {
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	TokenUsage int    `json:"token_usage,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Executor runs a single task on a specific agent. Implementations
// must honor context cancellation.
type Executor interface {
	Execute(ctx context.Context, task agent.TaskDefinition, a agent.Agent) (Result, error)
}
