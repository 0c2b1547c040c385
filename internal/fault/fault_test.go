package fault

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		BreakerThreshold: 3,
		BreakerCooldown:  40 * time.Millisecond,
		ProbeInterval:    time.Hour,
		MaxRetries:       2,
		RetryDelay:       time.Millisecond,
		BackupRatio:      0.25,
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	m := NewManager(testConfig(), nil)
	m.Watch("a-1")

	if !m.CanRoute("a-1") {
		t.Fatal("expected fresh agent to be routable")
	}

	m.RecordFailure("a-1", time.Second)
	m.RecordFailure("a-1", time.Second)
	if !m.CanRoute("a-1") {
		t.Fatal("expected agent routable below the failure threshold")
	}

	m.RecordFailure("a-1", time.Second)
	if m.CanRoute("a-1") {
		t.Fatal("expected breaker open after three consecutive failures")
	}
	if state, _ := m.BreakerState("a-1"); state != BreakerOpen {
		t.Fatalf("expected open breaker, got %s", state)
	}
}

func TestBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	m := NewManager(testConfig(), nil)
	m.Watch("a-1")

	m.RecordFailure("a-1", time.Second)
	m.RecordFailure("a-1", time.Second)
	m.RecordSuccess("a-1", time.Second)
	m.RecordFailure("a-1", time.Second)
	m.RecordFailure("a-1", time.Second)

	if state, _ := m.BreakerState("a-1"); state != BreakerClosed {
		t.Fatalf("expected closed breaker after interleaved success, got %s", state)
	}

	m.RecordFailure("a-1", time.Second)
	if state, _ := m.BreakerState("a-1"); state != BreakerOpen {
		t.Fatalf("expected open breaker, got %s", state)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	m := NewManager(testConfig(), nil)
	m.Watch("a-1")

	for i := 0; i < 3; i++ {
		m.RecordFailure("a-1", time.Second)
	}
	if m.CanRoute("a-1") {
		t.Fatal("expected breaker open")
	}

	time.Sleep(60 * time.Millisecond)
	if state, _ := m.BreakerState("a-1"); state != BreakerHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", state)
	}
	if !m.CanRoute("a-1") {
		t.Fatal("expected half-open breaker to admit probe traffic")
	}

	// A failed probe trips it straight back open.
	m.RecordFailure("a-1", time.Second)
	if m.CanRoute("a-1") {
		t.Fatal("expected breaker re-opened after failed probe")
	}

	time.Sleep(60 * time.Millisecond)
	m.RecordSuccess("a-1", time.Second)
	if state, _ := m.BreakerState("a-1"); state != BreakerClosed {
		t.Fatalf("expected closed breaker after successful probe, got %s", state)
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	m := NewManager(testConfig(), nil)
	m.Watch("a-1")

	for i := 0; i < 3; i++ {
		m.RecordFailure("a-1", time.Second)
	}
	time.Sleep(60 * time.Millisecond)

	if !m.Admit("a-1") {
		t.Fatal("expected half-open breaker to grant the first probe")
	}
	if m.Admit("a-1") {
		t.Fatal("expected second concurrent probe to be refused")
	}
	if m.CanRoute("a-1") {
		t.Fatal("expected agent unroutable while a probe is in flight")
	}

	m.RecordSuccess("a-1", time.Second)
	if state, _ := m.BreakerState("a-1"); state != BreakerClosed {
		t.Fatalf("expected closed breaker after successful probe, got %s", state)
	}
	if !m.Admit("a-1") {
		t.Fatal("expected closed breaker to admit traffic")
	}

	// A failed probe re-opens the breaker and frees the slot for the
	// next half-open window.
	for i := 0; i < 3; i++ {
		m.RecordFailure("a-1", time.Second)
	}
	time.Sleep(60 * time.Millisecond)
	if !m.Admit("a-1") {
		t.Fatal("expected new half-open window to grant a probe")
	}
	m.RecordFailure("a-1", time.Second)
	if m.Admit("a-1") {
		t.Fatal("expected breaker re-opened after failed probe")
	}
}

func TestUnwatchedAgentIsRoutable(t *testing.T) {
	m := NewManager(testConfig(), nil)
	if !m.CanRoute("ghost") {
		t.Fatal("expected unwatched agent to be routable")
	}
	if !m.Admit("ghost") {
		t.Fatal("expected unwatched agent to be admitted")
	}
}

func TestHealthDegradesWithErrorRate(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerThreshold = 50
	m := NewManager(cfg, nil)
	m.Watch("a-1")

	for i := 0; i < 3; i++ {
		m.RecordFailure("a-1", time.Second)
	}
	h, ok := m.Check("a-1")
	if !ok {
		t.Fatal("expected health record")
	}
	if h.State != Degraded {
		t.Fatalf("expected degraded at error rate %.3f, got %s", h.ErrorRate, h.State)
	}

	for i := 0; i < 4; i++ {
		m.RecordFailure("a-1", time.Second)
	}
	h, _ = m.Check("a-1")
	if h.State != Critical {
		t.Fatalf("expected critical at error rate %.3f, got %s", h.ErrorRate, h.State)
	}
}

func TestHealthTransitionHook(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerThreshold = 50

	type transition struct {
		agent    string
		from, to HealthState
	}
	var seen []transition
	m := NewManager(cfg, func(id string, from, to HealthState) {
		seen = append(seen, transition{id, from, to})
	})
	m.Watch("a-1")

	for i := 0; i < 3; i++ {
		m.RecordFailure("a-1", time.Second)
	}

	if len(seen) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(seen))
	}
	if seen[0].from != Healthy || seen[0].to != Degraded {
		t.Fatalf("expected healthy->degraded, got %s->%s", seen[0].from, seen[0].to)
	}
}

func TestSetOnlineOverridesStats(t *testing.T) {
	m := NewManager(testConfig(), nil)
	m.Watch("a-1")

	m.SetOnline("a-1", false)
	h, _ := m.Check("a-1")
	if h.State != Offline {
		t.Fatalf("expected offline, got %s", h.State)
	}

	m.SetOnline("a-1", true)
	h, _ = m.Check("a-1")
	if h.State != Healthy {
		t.Fatalf("expected healthy after coming back, got %s", h.State)
	}
}

func TestSystemHealthAggregates(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerThreshold = 1
	m := NewManager(cfg, nil)
	m.Watch("good")
	m.Watch("bad")

	m.RecordSuccess("good", time.Second)
	m.RecordFailure("bad", time.Second)

	snap := m.SystemHealth()
	if snap.Status != Critical {
		t.Fatalf("expected critical overall status, got %s", snap.Status)
	}
	if len(snap.Agents) != 2 {
		t.Fatalf("expected 2 agents in snapshot, got %d", len(snap.Agents))
	}
	if snap.Breakers["bad"] != BreakerOpen {
		t.Fatalf("expected open breaker for bad agent, got %s", snap.Breakers["bad"])
	}

	joined := strings.Join(snap.Issues, "; ")
	if !strings.Contains(joined, "breaker open for agent bad") {
		t.Fatalf("expected breaker issue, got %q", joined)
	}
	if !strings.Contains(joined, "agent bad is critical") {
		t.Fatalf("expected critical issue, got %q", joined)
	}
}

type fakeRecoverer struct {
	restartErr  error
	reassignErr error
	backupErr   error
	isolateErr  error
	active      int
	calls       []string
}

func (f *fakeRecoverer) RestartAgent(_ context.Context, _ string) error {
	f.calls = append(f.calls, "restart")
	return f.restartErr
}

func (f *fakeRecoverer) ReassignTasks(_ context.Context, _ string) error {
	f.calls = append(f.calls, "reassign")
	return f.reassignErr
}

func (f *fakeRecoverer) SpawnBackup(_ context.Context, _ string) error {
	f.calls = append(f.calls, "backup")
	return f.backupErr
}

func (f *fakeRecoverer) IsolateAgent(_ context.Context, _ string) error {
	f.calls = append(f.calls, "isolate")
	return f.isolateErr
}

func (f *fakeRecoverer) ActiveAgents() int { return f.active }

func TestRecoveryPipelineStopsAtFirstSuccess(t *testing.T) {
	m := NewManager(testConfig(), nil)
	r := &fakeRecoverer{
		restartErr:  errors.New("restart failed"),
		reassignErr: errors.New("no takers"),
		active:      8,
	}

	action, err := m.Recover(context.Background(), r, "a-1", "probe timeout")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if action.Type != RecoveryBackup || !action.Success {
		t.Fatalf("expected successful backup action, got %+v", action)
	}
	if len(r.calls) != 3 || r.calls[2] != "backup" {
		t.Fatalf("expected restart, reassign, backup calls, got %v", r.calls)
	}

	actions := m.Actions()
	if len(actions) != 3 {
		t.Fatalf("expected 3 recorded actions, got %d", len(actions))
	}
	if actions[0].Type != RecoveryRestart || actions[0].Success {
		t.Fatalf("expected failed restart first, got %+v", actions[0])
	}
}

func TestRecoveryBackupBoundedByRatio(t *testing.T) {
	m := NewManager(testConfig(), nil)
	r := &fakeRecoverer{
		restartErr:  errors.New("restart failed"),
		reassignErr: errors.New("no takers"),
		active:      4,
	}

	// Ratio 0.25 of 4 active agents allows exactly one backup.
	if _, err := m.Recover(context.Background(), r, "a-1", "first failure"); err != nil {
		t.Fatalf("recover: %v", err)
	}

	r.calls = nil
	action, err := m.Recover(context.Background(), r, "a-2", "second failure")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if action.Type != RecoveryIsolate {
		t.Fatalf("expected isolate once backups are spent, got %s", action.Type)
	}
	for _, call := range r.calls {
		if call == "backup" {
			t.Fatal("expected backup step skipped after ratio spent")
		}
	}
}

func TestRecoveryExhausted(t *testing.T) {
	m := NewManager(testConfig(), nil)
	boom := errors.New("boom")
	r := &fakeRecoverer{
		restartErr:  boom,
		reassignErr: boom,
		backupErr:   boom,
		isolateErr:  boom,
		active:      8,
	}

	action, err := m.Recover(context.Background(), r, "a-1", "unresponsive")
	if err == nil {
		t.Fatal("expected error when every step fails")
	}
	if action.Type != RecoveryIsolate || action.Success {
		t.Fatalf("expected failed isolate as last action, got %+v", action)
	}
}
