package eventbus

import (
	"testing"
	"time"

	"github.com/hivedhq/hived/internal/config"
	"github.com/nats-io/nats.go"
)

func newTestBus(t *testing.T) (*Bus, *Client) {
	t.Helper()
	bus, err := New(config.NATSConfig{
		Port:    -1, // random port
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	t.Cleanup(bus.Close)

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(client.Close)
	return bus, client
}

func TestBusStartStop(t *testing.T) {
	bus, _ := newTestBus(t)
	if bus.ClientURL() == "" {
		t.Fatal("expected non-empty client URL")
	}
}

func TestPubSub(t *testing.T) {
	_, client := newTestBus(t)

	received := make(chan string, 1)
	_, err := client.Subscribe("test.topic", func(msg *nats.Msg) {
		received <- string(msg.Data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := client.Publish("test.topic", []byte("hello")); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if data != "hello" {
			t.Errorf("expected 'hello', got '%s'", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishEvent(t *testing.T) {
	_, client := newTestBus(t)

	received := make(chan Event, 1)
	_, err := client.SubscribeEvents(TopicEventsAgent, func(e Event) {
		received <- e
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := client.PublishEvent(EventAgentSpawned, map[string]any{"agent": "a1"}); err != nil {
		t.Fatalf("publish event error: %v", err)
	}
	client.Flush()

	select {
	case e := <-received:
		if e.Type != EventAgentSpawned {
			t.Errorf("expected %s, got %s", EventAgentSpawned, e.Type)
		}
		if e.Data["agent"] != "a1" {
			t.Errorf("expected agent a1, got %v", e.Data["agent"])
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventWildcardScopes(t *testing.T) {
	_, client := newTestBus(t)

	all := make(chan Event, 4)
	_, err := client.SubscribeEvents(TopicEventsAll, func(e Event) {
		all <- e
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	taskOnly := make(chan Event, 4)
	_, err = client.SubscribeEvents(TopicEventsTask, func(e Event) {
		taskOnly <- e
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	_ = client.PublishEvent(EventTaskStarted, nil)
	_ = client.PublishEvent(EventTopologySwitch, nil)
	client.Flush()

	deadline := time.After(2 * time.Second)
	got := 0
	for got < 2 {
		select {
		case <-all:
			got++
		case <-deadline:
			t.Fatalf("expected 2 events on events.>, got %d", got)
		}
	}

	select {
	case e := <-taskOnly:
		if e.Type != EventTaskStarted {
			t.Errorf("task scope received %s", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for task event")
	}
	select {
	case e := <-taskOnly:
		t.Errorf("task scope should not receive %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequestTaskRoundTrip(t *testing.T) {
	_, client := newTestBus(t)

	_, err := client.Subscribe(TopicAgentTask("a1"), func(msg *nats.Msg) {
		msg.Respond([]byte(`{"success":true}`))
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}
	client.Flush()

	reply, err := client.RequestTask("a1", []byte(`{"task_id":"t1"}`), 2*time.Second)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if string(reply) != `{"success":true}` {
		t.Errorf("expected success reply, got %s", reply)
	}

	if _, err := client.RequestTask("nobody", nil, 50*time.Millisecond); err == nil {
		t.Error("expected timeout for unanswered subject")
	}
}

func TestTopicNames(t *testing.T) {
	if got := TopicAgentTask("a1"); got != "agent.a1.task" {
		t.Errorf("expected agent.a1.task, got %s", got)
	}
	if got := TopicAgentControl("a1"); got != "agent.a1.control" {
		t.Errorf("expected agent.a1.control, got %s", got)
	}
	if got := TopicEvent(EventSpecCompleted); got != "events.specification.completed" {
		t.Errorf("expected events.specification.completed, got %s", got)
	}
}
