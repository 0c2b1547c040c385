package hive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/eventbus"
	"github.com/hivedhq/hived/internal/executor"
	"github.com/hivedhq/hived/internal/fault"
	"github.com/hivedhq/hived/internal/loadbalance"
	"github.com/hivedhq/hived/internal/memory"
	"github.com/hivedhq/hived/internal/topology"
)

// abortTaskType names the task type whose failure stops a sequential
// chain: later work builds on the implementation, so running it after
// a failed one only burns agents.
const abortTaskType = "implementation"

// OrchestrateSpecification validates and persists the specification,
// then executes it on a background goroutine so the caller is not held
// for the run. Progress is observable through events and the memory
// bank; the final result lands as an ExecutionResult keyed by spec ID.
func (o *Orchestrator) OrchestrateSpecification(spec *agent.Specification) (*agent.Specification, error) {
	if err := o.requireInit(); err != nil {
		return nil, err
	}

	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = time.Now().UTC()
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if _, err := stages(spec); err != nil {
		return nil, err
	}

	spec.Status = agent.SpecRunning
	for _, t := range spec.Tasks {
		if t.Status == "" {
			t.Status = agent.TaskPending
		}
	}
	if err := o.bank.SaveSpecification(spec); err != nil {
		return nil, fmt.Errorf("persist specification: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.active[spec.ID] = cancel
	o.mu.Unlock()

	go func() {
		defer o.release(spec.ID)
		o.executeSpecification(ctx, spec)
	}()
	return spec, nil
}

// Cancel removes a running specification from the active set and emits
// the failure event. Cancellation is cooperative: a dispatched task
// execution is not preempted, the chain stops at its next checkpoint.
func (o *Orchestrator) Cancel(specID string) error {
	o.mu.Lock()
	cancel, ok := o.active[specID]
	delete(o.active, specID)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("specification %s is not running", specID)
	}

	cancel()
	o.publishEvent(eventbus.EventSpecFailed, map[string]any{
		"spec":   specID,
		"reason": "cancelled",
	})
	slog.Info("specification cancelled", "spec", specID)
	return nil
}

// ActiveSpecifications lists the IDs currently executing.
func (o *Orchestrator) ActiveSpecifications() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.active))
	for id := range o.active {
		out = append(out, id)
	}
	return out
}

func (o *Orchestrator) release(specID string) {
	o.mu.Lock()
	cancel, ok := o.active[specID]
	delete(o.active, specID)
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// executeSpecification runs every task tier of the specification and
// settles the aggregate result. Independent tasks run concurrently;
// anything with dependencies runs strictly one at a time in
// topological order, aborting the chain when an implementation-type
// task fails.
func (o *Orchestrator) executeSpecification(ctx context.Context, spec *agent.Specification) *memory.ExecutionResult {
	started := time.Now()
	complexity := specComplexity(spec)
	recommended := recommendTopology(complexity)

	slog.Info("orchestrating specification",
		"spec", spec.ID,
		"name", spec.Name,
		"tasks", len(spec.Tasks),
		"complexity", complexity,
		"recommended", recommended)

	if o.cfg.Topology.AutoOptimize && recommended != o.topo.Kind() {
		if _, err := o.SwitchTopology(recommended); err != nil {
			slog.Warn("recommended topology rejected", "kind", recommended, "error", err)
		}
	}

	var results []memory.TaskResult
	aborted := false

	if independent(spec) {
		var wg sync.WaitGroup
		var resultsMu sync.Mutex
		for _, t := range spec.Tasks {
			wg.Add(1)
			go func(t *agent.TaskDefinition) {
				defer wg.Done()
				r := o.runTask(ctx, spec, t)
				resultsMu.Lock()
				results = append(results, r)
				resultsMu.Unlock()
			}(t)
		}
		wg.Wait()
	} else {
		tiers, err := stages(spec)
		if err != nil {
			// Validated before dispatch, so this cannot happen.
			slog.Error("staging failed mid-run", "spec", spec.ID, "error", err)
		}
	chain:
		for _, tier := range tiers {
			for _, t := range tier {
				if ctx.Err() != nil {
					aborted = true
					break chain
				}
				r := o.runTask(ctx, spec, t)
				results = append(results, r)
				if !r.Success && t.Type == abortTaskType {
					slog.Warn("implementation task failed, aborting chain",
						"spec", spec.ID, "task", t.ID)
					aborted = true
					break chain
				}
			}
		}
	}

	duration := time.Since(started)
	success := !aborted && len(results) == len(spec.Tasks)
	for _, r := range results {
		if !r.Success {
			success = false
		}
	}

	result := &memory.ExecutionResult{
		ID:         uuid.New().String(),
		SpecID:     spec.ID,
		Success:    success,
		Summary:    buildSummary(spec, results, duration),
		Tasks:      results,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.bank.SaveExecutionResult(result); err != nil {
		slog.Error("persist execution result failed", "spec", spec.ID, "error", err)
	}

	if success {
		spec.Status = agent.SpecCompleted
	} else {
		spec.Status = agent.SpecFailed
	}
	if err := o.bank.SaveSpecification(spec); err != nil {
		slog.Error("persist specification failed", "spec", spec.ID, "error", err)
	}

	o.collector.ObserveSpecification(success)
	if ctx.Err() == nil {
		t := eventbus.EventSpecCompleted
		if !success {
			t = eventbus.EventSpecFailed
		}
		o.publishEvent(t, map[string]any{
			"spec":        spec.ID,
			"name":        spec.Name,
			"tasks":       len(results),
			"duration_ms": result.DurationMs,
		})
	}

	slog.Info("specification finished",
		"spec", spec.ID,
		"status", spec.Status,
		"duration", duration.Round(time.Millisecond),
		"summary", result.Summary)
	return result
}

// runTask resolves an agent, books it on the balancer and dispatches
// the task. When the first assignee fails through its retry budget the
// task moves to one other capable agent before failing terminally.
// Failures stay local to the task result.
func (o *Orchestrator) runTask(ctx context.Context, spec *agent.Specification, task *agent.TaskDefinition) memory.TaskResult {
	started := time.Now()
	res := memory.TaskResult{TaskID: task.ID}

	if ctx.Err() != nil {
		task.Status = agent.TaskFailed
		res.Error = "cancelled"
		return res
	}

	o.ensureAgentFor(*task)

	assignment, err := o.balancer.Assign(*task, o.faults.CanRoute)
	if err != nil {
		task.Status = agent.TaskFailed
		res.Error = err.Error()
		o.collector.ObserveTask(false)
		o.publishEvent(eventbus.EventTaskFailed, map[string]any{
			"spec":  spec.ID,
			"task":  task.ID,
			"error": res.Error,
		})
		slog.Warn("task assignment failed", "spec", spec.ID, "task", task.ID, "error", err)
		return res
	}

	out, execErr := o.dispatch(ctx, spec, task, assignment)

	// Retries on the first assignee are spent; one other capable agent
	// gets the task before it fails terminally.
	if (execErr != nil || !out.Success) && ctx.Err() == nil {
		excluded := assignment.AgentID
		gate := func(id string) bool {
			return id != excluded && o.faults.CanRoute(id)
		}
		if second, err := o.balancer.Assign(*task, gate); err == nil {
			slog.Warn("task reassigned after retries",
				"spec", spec.ID, "task", task.ID, "from", excluded, "to", second.AgentID)
			assignment = second
			out, execErr = o.dispatch(ctx, spec, task, second)
		}
	}

	duration := time.Since(started)
	res.AgentID = assignment.AgentID
	res.Success = execErr == nil && out.Success
	res.Output = out.Output
	res.TokenUsage = out.TokenUsage
	res.DurationMs = duration.Milliseconds()
	if execErr != nil {
		res.Error = execErr.Error()
	} else if out.Error != "" {
		res.Error = out.Error
	}

	if res.Success {
		task.Status = agent.TaskCompleted
	} else {
		task.Status = agent.TaskFailed
	}

	exec := &memory.TaskExecution{
		ID:         uuid.New().String(),
		TaskID:     task.ID,
		SpecID:     spec.ID,
		AgentID:    assignment.AgentID,
		TaskType:   task.Type,
		Success:    res.Success,
		Output:     res.Output,
		Error:      res.Error,
		TokenUsage: res.TokenUsage,
		DurationMs: res.DurationMs,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.bank.SaveTaskExecution(exec); err != nil {
		slog.Warn("persist task execution failed", "task", task.ID, "error", err)
	}

	o.collector.ObserveTask(res.Success)
	if res.Success {
		o.publishEvent(eventbus.EventTaskCompleted, map[string]any{
			"spec":        spec.ID,
			"task":        task.ID,
			"agent":       assignment.AgentID,
			"duration_ms": res.DurationMs,
		})
		slog.Info("task completed", "spec", spec.ID, "task", task.ID, "agent", assignment.AgentID)
	} else {
		o.publishEvent(eventbus.EventTaskFailed, map[string]any{
			"spec":  spec.ID,
			"task":  task.ID,
			"agent": assignment.AgentID,
			"error": res.Error,
		})
		slog.Warn("task failed", "spec", spec.ID, "task", task.ID, "agent", assignment.AgentID, "error", res.Error)
	}
	return res
}

// dispatch runs one booked assignment: it marks the assignee busy,
// drives the executor with retries and settles the load ledger for the
// outcome. The balancer booked the load unit in Assign.
func (o *Orchestrator) dispatch(ctx context.Context, spec *agent.Specification, task *agent.TaskDefinition, assignment loadbalance.Assignment) (executor.Result, error) {
	task.Status = agent.TaskRunning
	task.AssignedTo = assignment.AgentID
	o.markBusy(assignment.AgentID)

	o.publishEvent(eventbus.EventTaskStarted, map[string]any{
		"spec":  spec.ID,
		"task":  task.ID,
		"agent": assignment.AgentID,
		"score": assignment.Score,
	})

	started := time.Now()
	assignee, err := o.Agent(assignment.AgentID)
	var out executor.Result
	if err == nil {
		out, err = o.executeWithRetry(ctx, *task, assignee)
	}
	elapsed := time.Since(started)

	success := err == nil && out.Success
	load, completeErr := o.balancer.Complete(task.ID, assignment.AgentID, success, elapsed)
	if completeErr != nil {
		slog.Warn("load settle failed", "task", task.ID, "agent", assignment.AgentID, "error", completeErr)
	} else {
		if out.TokenUsage > 0 {
			o.balancer.ObserveTokens(assignment.AgentID, out.TokenUsage)
		}
		o.settleAgent(assignment.AgentID, load)
	}
	return out, err
}

// executeWithRetry drives the executor through the fault manager's
// retry budget, recording every attempt on the breaker. It returns nil
// only for a successful result.
func (o *Orchestrator) executeWithRetry(ctx context.Context, task agent.TaskDefinition, a agent.Agent) (executor.Result, error) {
	attempts := o.faults.MaxRetries() + 1
	var out executor.Result
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(o.faults.RetryDelay()):
			}
			slog.Debug("retrying task", "task", task.ID, "agent", a.ID, "attempt", attempt)
		}

		if !o.faults.Admit(a.ID) {
			lastErr = fmt.Errorf("agent %s: %w", a.ID, fault.ErrCircuitOpen)
			continue
		}

		attemptStart := time.Now()
		var err error
		out, err = o.exec.Execute(ctx, task, a)
		elapsed := time.Since(attemptStart)

		if err == nil && out.Success {
			o.faults.RecordSuccess(a.ID, elapsed)
			return out, nil
		}

		o.faults.RecordFailure(a.ID, elapsed)
		switch {
		case err != nil:
			lastErr = err
		case out.Error != "":
			lastErr = errors.New(out.Error)
		default:
			lastErr = fmt.Errorf("task %s reported failure", task.ID)
		}
		if ctx.Err() != nil {
			return out, lastErr
		}
	}
	return out, lastErr
}

func (o *Orchestrator) markBusy(agentID string) {
	o.mu.Lock()
	if a, ok := o.agents[agentID]; ok && a.Status == agent.StatusIdle {
		a.Status = agent.StatusBusy
	}
	o.mu.Unlock()
	o.topo.UpdateStatus(agentID, agent.StatusBusy)
}

// settleAgent refreshes an agent's status and performance after a task
// and persists the record.
func (o *Orchestrator) settleAgent(agentID string, load loadbalance.AgentLoad) {
	perf, havePerf := o.balancer.Performance(agentID)

	o.mu.Lock()
	a, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if havePerf {
		a.Performance = perf
	}
	if a.Status == agent.StatusBusy || a.Status == agent.StatusIdle {
		if load.CurrentLoad > 0 {
			a.Status = agent.StatusBusy
		} else {
			a.Status = agent.StatusIdle
		}
	}
	a.LastActive = time.Now().UTC()
	snapshot := *a
	o.mu.Unlock()

	o.topo.UpdateStatus(agentID, snapshot.Status)
	if err := o.bank.SaveAgent(&snapshot); err != nil {
		slog.Warn("persist agent failed", "agent", agentID, "error", err)
	}
}

// specComplexity scores how demanding a specification is: 0.2 per
// requirement, 0.3 per task and 0.1 per dependency edge, capped at 1.
func specComplexity(spec *agent.Specification) float64 {
	deps := 0
	for _, t := range spec.Tasks {
		deps += len(t.DependsOn)
	}
	c := 0.2*float64(len(spec.Requirements)) +
		0.3*float64(len(spec.Tasks)) +
		0.1*float64(deps)
	if c > 1 {
		return 1
	}
	return c
}

// recommendTopology maps specification complexity onto the kind that
// suits it: deep coordination for hard specs, full connectivity for
// medium ones, a cheap hub otherwise.
func recommendTopology(complexity float64) topology.Kind {
	switch {
	case complexity > 0.7:
		return topology.Hierarchical
	case complexity > 0.4:
		return topology.Mesh
	default:
		return topology.Star
	}
}

func buildSummary(spec *agent.Specification, results []memory.TaskResult, duration time.Duration) string {
	completed := 0
	var failed []string
	for _, r := range results {
		if r.Success {
			completed++
		} else {
			failed = append(failed, r.TaskID)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d/%d tasks completed in %s", completed, len(spec.Tasks), duration.Round(time.Millisecond))
	if len(failed) > 0 {
		fmt.Fprintf(&sb, "; failed: %s", strings.Join(failed, ", "))
	}
	if skipped := len(spec.Tasks) - len(results); skipped > 0 {
		fmt.Fprintf(&sb, "; skipped: %d", skipped)
	}
	return sb.String()
}
