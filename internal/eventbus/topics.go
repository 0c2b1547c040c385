package eventbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

func TopicEvent(t EventType) string {
	return "events." + string(t)
}

// TopicAgentTask is the request/reply subject an external worker
// listens on to execute tasks for one agent.
func TopicAgentTask(agentID string) string {
	return fmt.Sprintf("agent.%s.task", agentID)
}

func TopicAgentControl(agentID string) string {
	return fmt.Sprintf("agent.%s.control", agentID)
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsAgent    = "events.agent.*"
	TopicEventsTask     = "events.task.*"
	TopicEventsSpec     = "events.specification.*"
	TopicEventsTopology = "events.topology.*"
)
