package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/eventbus"
)

// Request is the wire envelope sent to an agent's task subject.
type Request struct {
	TaskID       string   `json:"task_id"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Priority     string   `json:"priority"`
	Capabilities []string `json:"capabilities,omitempty"`
	Model        string   `json:"model"`
	Pattern      string   `json:"pattern,omitempty"`
}

// BusExecutor dispatches tasks over NATS request/reply. Whatever
// process hosts the actual agent runtimes subscribes to the per-agent
// task subjects and answers with a Result.
type BusExecutor struct {
	client  *eventbus.Client
	timeout time.Duration
}

func NewBusExecutor(client *eventbus.Client, timeout time.Duration) *BusExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BusExecutor{client: client, timeout: timeout}
}

func (e *BusExecutor) Execute(ctx context.Context, task agent.TaskDefinition, a agent.Agent) (Result, error) {
	req := Request{
		TaskID:       task.ID,
		Type:         task.Type,
		Description:  task.Description,
		Priority:     string(task.Priority),
		Capabilities: agent.RequirementsFor(task),
		Model:        a.Model,
		Pattern:      a.Pattern,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode task request: %w", err)
	}

	// The bus request timeout shrinks to the context deadline when the
	// caller's is tighter.
	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return Result{}, context.DeadlineExceeded
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	reply, err := e.client.RequestTask(a.ID, data, timeout)
	if err != nil {
		return Result{}, fmt.Errorf("execute task %s on agent %s: %w", task.ID, a.ID, err)
	}

	var res Result
	if err := json.Unmarshal(reply, &res); err != nil {
		return Result{}, fmt.Errorf("decode task response from agent %s: %w", a.ID, err)
	}
	return res, nil
}
