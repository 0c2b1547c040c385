package eventbus

import "time"

// EventType names a hive lifecycle event. The constant value doubles
// as the topic suffix, so subscribers can filter with NATS wildcards
// ("events.agent.*", "events.>").
type EventType string

const (
	EventHiveInitialized EventType = "hive.initialized"
	EventAgentSpawned    EventType = "agent.spawned"
	EventAgentTerminated EventType = "agent.terminated"
	EventAgentDormant    EventType = "agent.dormant"
	EventAgentRestored   EventType = "agent.restored"
	EventSpecCompleted   EventType = "specification.completed"
	EventSpecFailed      EventType = "specification.failed"
	EventTaskStarted     EventType = "task.started"
	EventTaskCompleted   EventType = "task.completed"
	EventTaskFailed      EventType = "task.failed"
	EventTopologySwitch  EventType = "topology.switched"
	EventTopologyOptim   EventType = "topology.optimized"
	EventRecovery        EventType = "recovery.attempted"
	EventHealthChanged   EventType = "health.changed"
)

// Event is the JSON envelope published for every lifecycle event.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
