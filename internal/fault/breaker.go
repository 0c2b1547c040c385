package fault

import (
	"errors"
	"time"
)

// ErrCircuitOpen reports that an agent's breaker refuses traffic.
var ErrCircuitOpen = errors.New("circuit open")

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// breaker is the three-state gate for one agent. Closed trips open at
// the consecutive-failure threshold; open relaxes to half-open once
// the cooldown elapses; half-open admits a single probe whose outcome
// settles it.
type breaker struct {
	state     BreakerState
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	cooldown  time.Duration
}

// current returns the state as of now, committing the open → half_open
// transition when the cooldown has elapsed.
func (b *breaker) current(now time.Time) BreakerState {
	if b.state == "" {
		b.state = BreakerClosed
	}
	if b.state == BreakerOpen && now.Sub(b.openedAt) >= b.cooldown {
		b.state = BreakerHalfOpen
		b.probing = false
	}
	return b.state
}

func (b *breaker) recordSuccess() {
	b.failures = 0
	if b.current(time.Now()) == BreakerHalfOpen {
		b.state = BreakerClosed
	}
	b.probing = false
}

func (b *breaker) recordFailure(now time.Time) {
	switch b.current(now) {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = now
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = now
		}
	}
	b.probing = false
}

// CanRoute reports whether tasks may be routed to the agent. Unwatched
// agents are routable; a half-open breaker is routable only while its
// probe slot is free. CanRoute never claims the slot, so it is safe as
// a candidate filter; Admit claims it.
func (m *Manager) CanRoute(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[agentID]
	if !ok {
		return true
	}
	switch b.current(time.Now()) {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		return !b.probing
	default:
		return true
	}
}

// Admit gates an execution attempt. A half-open breaker grants one
// probe slot at a time; the next recorded outcome releases it.
func (m *Manager) Admit(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[agentID]
	if !ok {
		return true
	}
	switch b.current(time.Now()) {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// BreakerState returns the agent's current breaker state.
func (m *Manager) BreakerState(agentID string) (BreakerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[agentID]
	if !ok {
		return "", false
	}
	return b.current(time.Now()), true
}

// BreakerStates snapshots every watched breaker.
func (m *Manager) BreakerStates() map[string]BreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make(map[string]BreakerState, len(m.breakers))
	for id, b := range m.breakers {
		out[id] = b.current(now)
	}
	return out
}
