package hive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

// The orchestrator is the fault manager's Recoverer: each method below
// is one step of the pipeline, ordered restart, reassign, backup,
// isolate. A step returning an error hands the agent to the next one.

// RestartAgent resets a reachable agent in place: breaker, health and
// load ledger all restart from their baselines. An unreachable agent
// cannot be restarted.
func (o *Orchestrator) RestartAgent(ctx context.Context, agentID string) error {
	if h, tracked := o.faults.Check(agentID); tracked && !h.Online {
		return fmt.Errorf("agent %s is offline", agentID)
	}

	o.mu.Lock()
	a, ok := o.agents[agentID]
	if !ok || a.Status == agent.StatusDormant {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	a.Status = agent.StatusIdle
	a.LastActive = time.Now().UTC()
	snapshot := *a
	o.mu.Unlock()

	o.faults.Watch(agentID)
	if err := o.balancer.Register(snapshot); err != nil {
		return err
	}
	o.topo.UpdateStatus(agentID, agent.StatusIdle)
	if err := o.bank.SaveAgent(&snapshot); err != nil {
		slog.Warn("persist restarted agent failed", "agent", agentID, "error", err)
	}
	slog.Info("agent restarted", "agent", agentID)
	return nil
}

// ReassignTasks drops the agent's booked load and lets the balancer
// spread the equivalent work across healthy peers. In-flight
// executions are cooperative and finish on their own. Fails when there
// is nothing booked to move.
func (o *Orchestrator) ReassignTasks(ctx context.Context, agentID string) error {
	load, ok := o.balancer.Get(agentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if load.CurrentLoad == 0 {
		return fmt.Errorf("agent %s has no booked work", agentID)
	}

	snapshot, err := o.Agent(agentID)
	if err != nil {
		return err
	}
	o.balancer.Remove(agentID)
	if err := o.balancer.Register(snapshot); err != nil {
		return err
	}
	moved := o.balancer.Rebalance()
	slog.Info("agent load reassigned",
		"agent", agentID,
		"dropped", load.CurrentLoad,
		"rebalanced", moved)
	return nil
}

// SpawnBackup adds a fresh agent of the failing agent's type so the
// pool keeps its capacity while the sick one drains. The fault manager
// rations how many backups the pool may carry.
func (o *Orchestrator) SpawnBackup(ctx context.Context, agentID string) error {
	failing, err := o.Agent(agentID)
	if err != nil {
		return err
	}

	backup, err := o.SpawnSpecializedAgent(failing.Type, failing.Capabilities)
	if err != nil {
		return err
	}
	slog.Info("backup agent spawned", "for", agentID, "backup", backup.ID)
	return nil
}

// IsolateAgent cuts the agent out of the topology and stops routing to
// it; the record stays for inspection. The queen is never isolated,
// losing the hub would orphan star and hierarchical layouts.
func (o *Orchestrator) IsolateAgent(ctx context.Context, agentID string) error {
	o.mu.Lock()
	a, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if agentID == o.queenID {
		o.mu.Unlock()
		return ErrQueenImmortal
	}
	a.Status = agent.StatusOffline
	snapshot := *a
	o.mu.Unlock()

	o.balancer.Remove(agentID)
	o.faults.SetOnline(agentID, false)
	if err := o.topo.Isolate(agentID); err != nil {
		return err
	}
	if err := o.bank.SaveAgent(&snapshot); err != nil {
		slog.Warn("persist isolated agent failed", "agent", agentID, "error", err)
	}
	slog.Warn("agent isolated", "agent", agentID)
	return nil
}

// ActiveAgents counts the non-dormant pool, the base for the backup
// ration.
func (o *Orchestrator) ActiveAgents() int {
	active, _ := o.poolCounts()
	return active
}
