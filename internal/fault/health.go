package fault

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

type HealthState string

const (
	Healthy  HealthState = "healthy"
	Degraded HealthState = "degraded"
	Critical HealthState = "critical"
	Offline  HealthState = "offline"
)

// healthAlpha smooths the rolling error rate and response time.
const healthAlpha = 0.1

// AgentHealth is the rolling health record for one agent.
type AgentHealth struct {
	AgentID       string      `json:"agent_id"`
	State         HealthState `json:"state"`
	Online        bool        `json:"online"`
	ErrorRate     float64     `json:"error_rate"`
	AvgResponseMs float64     `json:"avg_response_ms"`
	LastChecked   time.Time   `json:"last_checked"`
}

func (h *AgentHealth) observe(errSample, responseMs float64) {
	h.ErrorRate = h.ErrorRate*(1-healthAlpha) + errSample*healthAlpha
	h.AvgResponseMs = h.AvgResponseMs*(1-healthAlpha) + responseMs*healthAlpha
}

// classify derives the health state from liveness, the rolling stats,
// and the breaker. An open breaker is critical by definition; once it
// relaxes to half-open the stats decide again. Callers hold m.mu.
func (m *Manager) classify(h *AgentHealth) HealthState {
	if !h.Online {
		return Offline
	}

	state := Healthy
	if h.ErrorRate >= 0.2 || h.AvgResponseMs >= 5000 {
		state = Degraded
	}
	if h.ErrorRate >= 0.5 || h.AvgResponseMs >= 10000 {
		state = Critical
	}
	if b, ok := m.breakers[h.AgentID]; ok && b.current(time.Now()) == BreakerOpen {
		state = Critical
	}
	return state
}

// reclassify commits the derived state and fires the transition hook.
// Callers hold m.mu.
func (m *Manager) reclassify(h *AgentHealth) {
	from := h.State
	to := m.classify(h)
	h.State = to
	h.LastChecked = time.Now().UTC()

	if from != to {
		slog.Info("agent health changed", "agent", h.AgentID, "from", from, "to", to)
		if m.onTransition != nil {
			m.onTransition(h.AgentID, from, to)
		}
	}
}

// Check reclassifies one agent and returns its record.
func (m *Manager) Check(agentID string) (AgentHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.health[agentID]
	if !ok {
		return AgentHealth{}, false
	}
	m.reclassify(h)
	return *h, true
}

// CheckAll reclassifies every watched agent, ordered by id.
func (m *Manager) CheckAll() []AgentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AgentHealth, 0, len(m.health))
	for _, h := range m.health {
		m.reclassify(h)
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// StartMonitor probes all agents on the configured interval until the
// context is cancelled. Run it in its own goroutine.
func (m *Manager) StartMonitor(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	slog.Info("health monitor started", "interval", m.cfg.ProbeInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.CheckAll()
		}
	}
}

// Snapshot is the aggregated view of all health checks and breakers.
type Snapshot struct {
	Status   HealthState             `json:"status"`
	Agents   map[string]AgentHealth  `json:"agents"`
	Breakers map[string]BreakerState `json:"breakers"`
	Issues   []string                `json:"issues,omitempty"`
}

// SystemHealth aggregates every agent into one snapshot. The overall
// status is the worst individual state, with offline ranking as
// critical.
func (m *Manager) SystemHealth() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	snap := Snapshot{
		Status:   Healthy,
		Agents:   make(map[string]AgentHealth, len(m.health)),
		Breakers: make(map[string]BreakerState, len(m.breakers)),
	}

	ids := make([]string, 0, len(m.health))
	for id := range m.health {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		h := m.health[id]
		m.reclassify(h)
		snap.Agents[id] = *h

		switch h.State {
		case Degraded:
			if snap.Status == Healthy {
				snap.Status = Degraded
			}
			snap.Issues = append(snap.Issues, fmt.Sprintf("agent %s is degraded", id))
		case Critical:
			snap.Status = Critical
			snap.Issues = append(snap.Issues, fmt.Sprintf("agent %s is critical", id))
		case Offline:
			snap.Status = Critical
			snap.Issues = append(snap.Issues, fmt.Sprintf("agent %s is offline", id))
		}
	}

	for id, b := range m.breakers {
		state := b.current(now)
		snap.Breakers[id] = state
		if state == BreakerOpen {
			snap.Issues = append(snap.Issues, fmt.Sprintf("breaker open for agent %s", id))
		}
	}
	sort.Strings(snap.Issues)
	return snap
}
