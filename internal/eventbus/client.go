package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Client is the hive's handle on the bus: lifecycle events out, event
// subscriptions in, and task request/reply to external workers.
type Client struct {
	conn *nats.Conn
}

func NewClient(bus *Bus) (*Client, error) {
	return NewClientFromURL(bus.ClientURL())
}

func NewClientFromURL(url string) (*Client, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{conn: conn}, nil
}

// PublishEvent wraps the payload in an Event envelope and publishes it
// on the topic derived from its type.
func (c *Client) PublishEvent(t EventType, data map[string]any) error {
	e := Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", t, err)
	}
	return c.conn.Publish(TopicEvent(t), payload)
}

// SubscribeEvents decodes event envelopes arriving on a topic pattern
// ("events.>", "events.task.*"). Payloads that do not parse are
// dropped.
func (c *Client) SubscribeEvents(pattern string, handler func(Event)) (*nats.Subscription, error) {
	return c.conn.Subscribe(pattern, func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		handler(e)
	})
}

// RequestTask sends a task payload to the agent's worker subject and
// waits for the raw reply.
func (c *Client) RequestTask(agentID string, payload []byte, timeout time.Duration) ([]byte, error) {
	msg, err := c.conn.Request(TopicAgentTask(agentID), payload, timeout)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

// Publish and Subscribe carry subjects outside the event scheme, such
// as the per-agent control channels.
func (c *Client) Publish(topic string, data []byte) error {
	return c.conn.Publish(topic, data)
}

func (c *Client) Subscribe(topic string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	return c.conn.Subscribe(topic, handler)
}

func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	c.conn.Close()
}
