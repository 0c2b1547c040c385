package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

// Loopback handles tasks in-process with a deterministic synthetic
// result, so a gateway runs end to end before any real agent runtime
// attaches to the bus.
type Loopback struct{}

// loopbackCap bounds how long a simulated task may take regardless of
// its estimate.
const loopbackCap = 2 * time.Second

func (Loopback) Execute(ctx context.Context, task agent.TaskDefinition, a agent.Agent) (Result, error) {
	if d := time.Duration(task.EstimatedMs) * time.Millisecond; d > 0 {
		if d > loopbackCap {
			d = loopbackCap
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(d):
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return Result{
		Success:    true,
		Output:     fmt.Sprintf("task %s handled by %s agent %s", task.ID, a.Type, a.ID),
		TokenUsage: 200 + 4*len(task.Description),
	}, nil
}
