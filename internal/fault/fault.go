// Package fault watches agent reliability: a circuit breaker per
// agent, rolling health classification, and the ordered recovery
// pipeline that runs when an agent goes bad.
package fault

import (
	"sync"
	"time"
)

// Config carries the tunables; the composition root maps the file
// configuration onto it.
type Config struct {
	BreakerThreshold int
	BreakerCooldown  time.Duration
	ProbeInterval    time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	BackupRatio      float64
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BreakerThreshold < 1 {
		out.BreakerThreshold = 3
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 30 * time.Second
	}
	if out.ProbeInterval <= 0 {
		out.ProbeInterval = 30 * time.Second
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 2
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 2 * time.Second
	}
	if out.BackupRatio < 0 || out.BackupRatio > 1 {
		out.BackupRatio = 0.25
	}
	return out
}

// Manager tracks one breaker and one health record per watched agent.
// The onTransition hook fires on health state changes; it runs under
// the manager lock.
type Manager struct {
	mu           sync.Mutex
	cfg          Config
	breakers     map[string]*breaker
	health       map[string]*AgentHealth
	actions      []RecoveryAction
	backups      int
	onTransition func(agentID string, from, to HealthState)
}

func NewManager(cfg Config, onTransition func(string, HealthState, HealthState)) *Manager {
	return &Manager{
		cfg:          cfg.withDefaults(),
		breakers:     make(map[string]*breaker),
		health:       make(map[string]*AgentHealth),
		onTransition: onTransition,
	}
}

// Watch starts tracking an agent with a closed breaker and healthy
// baseline. Watching an already-watched agent resets it.
func (m *Manager) Watch(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.breakers[agentID] = &breaker{
		threshold: m.cfg.BreakerThreshold,
		cooldown:  m.cfg.BreakerCooldown,
	}
	m.health[agentID] = &AgentHealth{
		AgentID:     agentID,
		State:       Healthy,
		Online:      true,
		LastChecked: time.Now().UTC(),
	}
}

// Unwatch drops all tracking for an agent.
func (m *Manager) Unwatch(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, agentID)
	delete(m.health, agentID)
}

// RecordSuccess feeds a successful task outcome into the agent's
// breaker and rolling health.
func (m *Manager) RecordSuccess(agentID string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[agentID]; ok {
		b.recordSuccess()
	}
	if h, ok := m.health[agentID]; ok {
		h.observe(0, float64(duration.Milliseconds()))
		m.reclassify(h)
	}
}

// RecordFailure feeds a failed task outcome into the agent's breaker
// and rolling health.
func (m *Manager) RecordFailure(agentID string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[agentID]; ok {
		b.recordFailure(time.Now())
	}
	if h, ok := m.health[agentID]; ok {
		h.observe(1, float64(duration.Milliseconds()))
		m.reclassify(h)
	}
}

// SetOnline flips an agent's liveness, which overrides every other
// health signal while false.
func (m *Manager) SetOnline(agentID string, online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.health[agentID]
	if !ok {
		return
	}
	h.Online = online
	m.reclassify(h)
}

// MaxRetries is the per-task attempt limit before reassignment.
func (m *Manager) MaxRetries() int {
	return m.cfg.MaxRetries
}

// RetryDelay is the fixed pause between attempts on the same agent.
func (m *Manager) RetryDelay() time.Duration {
	return m.cfg.RetryDelay
}
