package fault

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type RecoveryType string

const (
	RecoveryRestart  RecoveryType = "restart"
	RecoveryReassign RecoveryType = "reassign"
	RecoveryBackup   RecoveryType = "spawn_backup"
	RecoveryIsolate  RecoveryType = "isolate"
)

// RecoveryAction is one recorded attempt of the pipeline.
type RecoveryAction struct {
	AgentID string       `json:"agent_id"`
	Type    RecoveryType `json:"type"`
	Reason  string       `json:"reason"`
	Success bool         `json:"success"`
	At      time.Time    `json:"at"`
}

// Recoverer is what the recovery pipeline drives; the orchestrator
// implements it. Methods must be safe to call from the fault manager
// without holding orchestrator locks across the call.
type Recoverer interface {
	RestartAgent(ctx context.Context, agentID string) error
	ReassignTasks(ctx context.Context, agentID string) error
	SpawnBackup(ctx context.Context, agentID string) error
	IsolateAgent(ctx context.Context, agentID string) error
	ActiveAgents() int
}

// maxActionLog bounds the in-memory recovery history.
const maxActionLog = 200

// Recover walks the pipeline in order, restart, reassign, backup,
// isolate, until a step succeeds. The backup step is skipped, not
// recorded, once the backup ratio is spent. Every attempted step is
// recorded.
func (m *Manager) Recover(ctx context.Context, r Recoverer, agentID, reason string) (RecoveryAction, error) {
	steps := []struct {
		typ RecoveryType
		run func(context.Context, string) error
	}{
		{RecoveryRestart, r.RestartAgent},
		{RecoveryReassign, r.ReassignTasks},
		{RecoveryBackup, r.SpawnBackup},
		{RecoveryIsolate, r.IsolateAgent},
	}

	var last RecoveryAction
	for _, s := range steps {
		if s.typ == RecoveryBackup && !m.backupAllowed(r.ActiveAgents()) {
			continue
		}

		err := s.run(ctx, agentID)
		last = RecoveryAction{
			AgentID: agentID,
			Type:    s.typ,
			Reason:  reason,
			Success: err == nil,
			At:      time.Now().UTC(),
		}
		m.record(last)

		if err == nil {
			slog.Info("agent recovered", "agent", agentID, "action", s.typ)
			return last, nil
		}
		slog.Warn("recovery step failed", "agent", agentID, "action", s.typ, "error", err)

		if ctx.Err() != nil {
			return last, ctx.Err()
		}
	}
	return last, fmt.Errorf("recovery exhausted for agent %s", agentID)
}

// Actions returns the recorded recovery history, oldest first.
func (m *Manager) Actions() []RecoveryAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecoveryAction(nil), m.actions...)
}

func (m *Manager) backupAllowed(activeAgents int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := int(m.cfg.BackupRatio * float64(activeAgents))
	return m.backups < limit
}

func (m *Manager) record(a RecoveryAction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.actions = append(m.actions, a)
	if len(m.actions) > maxActionLog {
		m.actions = m.actions[len(m.actions)-maxActionLog:]
	}
	if a.Type == RecoveryBackup && a.Success {
		m.backups++
	}
}
