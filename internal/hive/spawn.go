package hive

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/eventbus"
)

// newAgent builds an agent of the given type from its static profile.
// Explicit capabilities override the profile's set.
func newAgent(t agent.Type, caps []string) *agent.Agent {
	profile, _ := agent.ProfileFor(t)
	if len(caps) == 0 {
		caps = append([]string(nil), profile.Capabilities...)
	}
	now := time.Now().UTC()
	return &agent.Agent{
		ID:           fmt.Sprintf("%s-%s", t, uuid.New().String()[:8]),
		Type:         t,
		Capabilities: caps,
		Status:       agent.StatusIdle,
		Performance:  agent.NewPerformance(),
		Model:        profile.Model,
		Pattern:      profile.Pattern,
		CreatedAt:    now,
		LastActive:   now,
	}
}

// SpawnSpecializedAgent adds an agent of the given type. When the
// active pool is at the cap, the least-recently-active non-coordinator
// is parked dormant to make room.
func (o *Orchestrator) SpawnSpecializedAgent(t agent.Type, caps []string) (agent.Agent, error) {
	if err := o.requireInit(); err != nil {
		return agent.Agent{}, err
	}
	if !t.Valid() {
		return agent.Agent{}, fmt.Errorf("unknown agent type %q", t)
	}

	o.mu.Lock()
	a, evicted, err := o.spawnLocked(t, caps)
	o.mu.Unlock()
	if err != nil {
		return agent.Agent{}, err
	}

	o.announceSpawn(a, evicted)
	return *a, nil
}

// TerminateAgent removes an agent from the hive and its persisted
// record. The queen coordinator is refused.
func (o *Orchestrator) TerminateAgent(id string) error {
	if err := o.requireInit(); err != nil {
		return err
	}

	o.mu.Lock()
	a, ok := o.agents[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if id == o.queenID {
		o.mu.Unlock()
		return ErrQueenImmortal
	}
	wasDormant := a.Status == agent.StatusDormant
	delete(o.agents, id)
	o.mu.Unlock()

	// Ledger and breaker first: once the balancer forgets the agent no
	// new work can land on it, and only then is the graph rebuilt.
	if !wasDormant {
		o.balancer.Remove(id)
		o.faults.Unwatch(id)
		o.topo.RemoveAgent(id)
	}
	o.collector.ForgetAgent(id)
	if err := o.bank.DeleteAgent(id); err != nil {
		slog.Warn("delete agent record failed", "agent", id, "error", err)
	}

	o.publishEvent(eventbus.EventAgentTerminated, map[string]any{
		"agent": id,
		"type":  string(a.Type),
	})
	o.recordPoolMetrics()
	slog.Info("agent terminated", "agent", id, "type", a.Type)
	return nil
}

// ensureAgentFor makes the preferred type for a task present before
// assignment: an idle agent is enough, then a dormant one is restored,
// then a fresh one is spawned under the cap. A failed spawn is not
// fatal, busy agents of the type can still take the task.
func (o *Orchestrator) ensureAgentFor(task agent.TaskDefinition) {
	typ := agent.PreferredType(task)

	o.mu.Lock()
	for _, a := range o.agents {
		if a.Type == typ && a.Status == agent.StatusIdle {
			o.mu.Unlock()
			return
		}
	}

	if a := o.findDormantLocked(typ); a != nil {
		evicted := ""
		if o.activeCountLocked() >= o.cfg.Hive.MaxAgents {
			id, err := o.evictLocked()
			if err != nil {
				o.mu.Unlock()
				slog.Debug("restore skipped, pool full", "type", typ, "error", err)
				return
			}
			evicted = id
		}
		err := o.restoreLocked(a)
		o.mu.Unlock()
		if err != nil {
			slog.Warn("dormant restore failed", "agent", a.ID, "error", err)
			return
		}
		if evicted != "" {
			o.publishEvent(eventbus.EventAgentDormant, map[string]any{"agent": evicted})
		}
		o.publishEvent(eventbus.EventAgentRestored, map[string]any{
			"agent": a.ID,
			"type":  string(typ),
		})
		o.recordPoolMetrics()
		slog.Info("dormant agent restored", "agent", a.ID, "type", typ)
		return
	}

	a, evicted, err := o.spawnLocked(typ, nil)
	o.mu.Unlock()
	if err != nil {
		slog.Debug("spawn for task skipped", "type", typ, "error", err)
		return
	}
	o.announceSpawn(a, evicted)
}

// spawnLocked creates and registers a new agent, evicting first when
// the pool is full. Caller holds o.mu.
func (o *Orchestrator) spawnLocked(t agent.Type, caps []string) (*agent.Agent, string, error) {
	evicted := ""
	if o.activeCountLocked() >= o.cfg.Hive.MaxAgents {
		id, err := o.evictLocked()
		if err != nil {
			return nil, "", fmt.Errorf("agent cap %d reached: %w", o.cfg.Hive.MaxAgents, err)
		}
		evicted = id
	}

	a := newAgent(t, caps)
	o.agents[a.ID] = a
	o.topo.AddAgent(*a)
	if err := o.balancer.Register(*a); err != nil {
		delete(o.agents, a.ID)
		o.topo.RemoveAgent(a.ID)
		return nil, evicted, err
	}
	o.faults.Watch(a.ID)
	if err := o.bank.SaveAgent(a); err != nil {
		return nil, evicted, fmt.Errorf("persist agent %s: %w", a.ID, err)
	}
	return a, evicted, nil
}

// evictLocked parks the least-recently-active non-coordinator as
// dormant, preferring idle agents over busy ones. Caller holds o.mu.
func (o *Orchestrator) evictLocked() (string, error) {
	var candidate *agent.Agent
	better := func(a, b *agent.Agent) bool {
		if b == nil {
			return true
		}
		aIdle := a.Status == agent.StatusIdle
		bIdle := b.Status == agent.StatusIdle
		if aIdle != bIdle {
			return aIdle
		}
		if !a.LastActive.Equal(b.LastActive) {
			return a.LastActive.Before(b.LastActive)
		}
		return a.ID < b.ID
	}
	for _, a := range o.agents {
		if a.Type == agent.TypeCoordinator || a.Status == agent.StatusDormant {
			continue
		}
		if better(a, candidate) {
			candidate = a
		}
	}
	if candidate == nil {
		return "", fmt.Errorf("no evictable agent")
	}

	candidate.Status = agent.StatusDormant
	o.balancer.Remove(candidate.ID)
	o.faults.Unwatch(candidate.ID)
	o.topo.RemoveAgent(candidate.ID)
	o.collector.ForgetAgent(candidate.ID)
	if err := o.bank.SaveAgent(candidate); err != nil {
		slog.Warn("persist dormant agent failed", "agent", candidate.ID, "error", err)
	}
	slog.Info("agent parked dormant", "agent", candidate.ID, "type", candidate.Type)
	return candidate.ID, nil
}

// findDormantLocked picks the most-recently-active dormant agent of
// the type. Caller holds o.mu.
func (o *Orchestrator) findDormantLocked(t agent.Type) *agent.Agent {
	var best *agent.Agent
	for _, a := range o.agents {
		if a.Type != t || a.Status != agent.StatusDormant {
			continue
		}
		if best == nil || a.LastActive.After(best.LastActive) {
			best = a
		}
	}
	return best
}

// restoreLocked brings a dormant agent back into the active pool.
// Caller holds o.mu.
func (o *Orchestrator) restoreLocked(a *agent.Agent) error {
	a.Status = agent.StatusIdle
	a.LastActive = time.Now().UTC()
	o.topo.AddAgent(*a)
	if err := o.balancer.Register(*a); err != nil {
		a.Status = agent.StatusDormant
		o.topo.RemoveAgent(a.ID)
		return err
	}
	o.faults.Watch(a.ID)
	return o.bank.SaveAgent(a)
}

func (o *Orchestrator) activeCountLocked() int {
	n := 0
	for _, a := range o.agents {
		if a.Status != agent.StatusDormant {
			n++
		}
	}
	return n
}

func (o *Orchestrator) announceSpawn(a *agent.Agent, evicted string) {
	if evicted != "" {
		o.publishEvent(eventbus.EventAgentDormant, map[string]any{"agent": evicted})
	}
	o.publishEvent(eventbus.EventAgentSpawned, map[string]any{
		"agent": a.ID,
		"type":  string(a.Type),
		"model": a.Model,
	})
	o.recordPoolMetrics()
	slog.Info("agent spawned", "agent", a.ID, "type", a.Type, "model", a.Model)
}
