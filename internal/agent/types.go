// Package agent holds the shared domain types for the hive: agent
// identities, task and specification definitions, and the static
// per-type capability profiles.
package agent

import (
	"fmt"
	"time"
)

// Type identifies an agent specialization. All dispatch tables are
// keyed by Type, so an unknown type fails at lookup instead of being
// silently treated as a worker.
type Type string

const (
	TypeCoordinator Type = "coordinator"
	TypeArchitect   Type = "architect"
	TypeCoder       Type = "coder"
	TypeTester      Type = "tester"
	TypeAnalyst     Type = "analyst"
	TypeResearcher  Type = "researcher"
	TypeReviewer    Type = "reviewer"
	TypeOptimizer   Type = "optimizer"
)

func (t Type) Valid() bool {
	_, ok := profiles[t]
	return ok
}

// ParseType validates a raw string against the known agent types.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown agent type %q", s)
	}
	return t, nil
}

type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
	StatusDormant Status = "dormant"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Multiplier scales an assignment score so urgent tasks win contested
// agents. Unknown priorities fall back to medium.
func (p Priority) Multiplier() float64 {
	switch p {
	case PriorityCritical:
		return 1.5
	case PriorityHigh:
		return 1.2
	case PriorityLow:
		return 0.8
	default:
		return 1.0
	}
}

// Performance is the rolling quality profile of an agent. All fields
// except AvgResponseMs live in [0,1] and move by exponential smoothing
// as task outcomes arrive.
type Performance struct {
	SuccessRate     float64 `json:"success_rate"`
	AvgResponseMs   float64 `json:"avg_response_ms"`
	TokenEfficiency float64 `json:"token_efficiency"`
	Accuracy        float64 `json:"accuracy"`
	Reliability     float64 `json:"reliability"`
}

// NewPerformance returns the optimistic baseline for a fresh agent.
// Real outcomes pull the numbers down from here.
func NewPerformance() Performance {
	return Performance{
		SuccessRate:     1.0,
		AvgResponseMs:   0,
		TokenEfficiency: 0.8,
		Accuracy:        0.9,
		Reliability:     1.0,
	}
}

// Responsiveness maps average response time onto [0,1], where an
// instant agent scores 1 and anything at or beyond 10s scores 0.
func (p Performance) Responsiveness() float64 {
	r := 1 - p.AvgResponseMs/10000
	if r < 0 {
		return 0
	}
	return r
}

// Score blends the profile into a single number used by assignment:
// success 0.4, responsiveness 0.2, token efficiency 0.2, accuracy 0.1,
// reliability 0.1.
func (p Performance) Score() float64 {
	return p.SuccessRate*0.4 +
		p.Responsiveness()*0.2 +
		p.TokenEfficiency*0.2 +
		p.Accuracy*0.1 +
		p.Reliability*0.1
}

type Agent struct {
	ID           string      `json:"id"`
	Type         Type        `json:"type"`
	Capabilities []string    `json:"capabilities"`
	Status       Status      `json:"status"`
	Performance  Performance `json:"performance"`
	Model        string      `json:"model"`
	Pattern      string      `json:"pattern"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActive   time.Time   `json:"last_active"`
}

func (a *Agent) HasCapability(c string) bool {
	for _, have := range a.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Available reports whether the agent can take new work at all;
// capacity and breaker checks happen elsewhere.
func (a *Agent) Available() bool {
	return a.Status == StatusIdle || a.Status == StatusBusy
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskDefinition is one unit of work inside a specification. Fields
// other than Status and AssignedTo are read-only once execution starts.
// RequiredCapabilities may be left empty, in which case assignment
// derives requirements from the task type.
type TaskDefinition struct {
	ID                   string     `json:"id"`
	Type                 string     `json:"type"`
	Description          string     `json:"description"`
	Priority             Priority   `json:"priority"`
	DependsOn            []string   `json:"depends_on,omitempty"`
	AgentType            Type       `json:"agent_type,omitempty"`
	RequiredCapabilities []string   `json:"required_capabilities,omitempty"`
	EstimatedMs          int64      `json:"estimated_ms,omitempty"`
	Status               TaskStatus `json:"status"`
	AssignedTo           string     `json:"assigned_to,omitempty"`
}

type SpecStatus string

const (
	SpecPending   SpecStatus = "pending"
	SpecRunning   SpecStatus = "running"
	SpecCompleted SpecStatus = "completed"
	SpecFailed    SpecStatus = "failed"
)

type Specification struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Requirements []string          `json:"requirements"`
	Tasks        []*TaskDefinition `json:"tasks"`
	Status       SpecStatus        `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Validate rejects specifications the orchestrator cannot execute:
// empty task lists, duplicate task IDs, dangling or unknown-type
// references.
func (s *Specification) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("specification has no name")
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("specification %q has no tasks", s.Name)
	}
	ids := make(map[string]bool, len(s.Tasks))
	for _, t := range s.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task in %q has no id", s.Name)
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		ids[t.ID] = true
		if t.AgentType != "" && !t.AgentType.Valid() {
			return fmt.Errorf("task %q: unknown agent type %q", t.ID, t.AgentType)
		}
	}
	for _, t := range s.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}
	return nil
}
