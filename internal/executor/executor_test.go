package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hivedhq/hived/internal/agent"
	"github.com/hivedhq/hived/internal/config"
	"github.com/hivedhq/hived/internal/eventbus"
	"github.com/nats-io/nats.go"
)

func testAgent(id string, typ agent.Type) agent.Agent {
	p, _ := agent.ProfileFor(typ)
	return agent.Agent{
		ID:           id,
		Type:         typ,
		Capabilities: p.Capabilities,
		Model:        p.Model,
		Pattern:      p.Pattern,
	}
}

func TestFakeScriptedResults(t *testing.T) {
	f := NewFake()
	f.Script("t1", Result{Success: false, Error: "compile error"})
	f.FailWith("t2", errors.New("agent unreachable"))

	coder := testAgent("c-1", agent.TypeCoder)

	r, err := f.Execute(context.Background(), agent.TaskDefinition{ID: "t1"}, coder)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if r.Success || r.Error != "compile error" {
		t.Fatalf("expected scripted failure, got %+v", r)
	}

	if _, err := f.Execute(context.Background(), agent.TaskDefinition{ID: "t2"}, coder); err == nil {
		t.Fatal("expected transport error")
	}

	r, err = f.Execute(context.Background(), agent.TaskDefinition{ID: "t3"}, coder)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !r.Success {
		t.Fatalf("expected default success, got %+v", r)
	}

	calls := f.Calls()
	if len(calls) != 3 || calls[0].TaskID != "t1" || calls[2].AgentID != "c-1" {
		t.Fatalf("unexpected call log: %+v", calls)
	}
}

func TestLoopbackResult(t *testing.T) {
	task := agent.TaskDefinition{
		ID:          "t1",
		Type:        "implementation",
		Description: "build the parser",
	}
	coder := testAgent("c-1", agent.TypeCoder)

	r, err := Loopback{}.Execute(context.Background(), task, coder)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !r.Success {
		t.Fatal("expected success")
	}
	if !strings.Contains(r.Output, "t1") || !strings.Contains(r.Output, "c-1") {
		t.Fatalf("expected task and agent in output, got %q", r.Output)
	}
	if want := 200 + 4*len(task.Description); r.TokenUsage != want {
		t.Fatalf("expected token usage %d, got %d", want, r.TokenUsage)
	}
}

func TestLoopbackHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := agent.TaskDefinition{ID: "t1", EstimatedMs: 500}
	if _, err := (Loopback{}).Execute(ctx, task, testAgent("c-1", agent.TypeCoder)); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestBusExecutorRoundTrip(t *testing.T) {
	bus, err := eventbus.New(config.NATSConfig{Port: -1, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(bus.Close)

	client, err := eventbus.NewClient(bus)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(client.Close)

	responder, err := eventbus.NewClient(bus)
	if err != nil {
		t.Fatalf("connect responder: %v", err)
	}
	t.Cleanup(responder.Close)

	sub, err := responder.Subscribe(eventbus.TopicAgentTask("c-1"), func(msg *nats.Msg) {
		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		reply, _ := json.Marshal(Result{
			Success:    true,
			Output:     "done " + req.TaskID,
			TokenUsage: 1234,
		})
		if err := msg.Respond(reply); err != nil {
			t.Errorf("respond: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if err := responder.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	exec := NewBusExecutor(client, 5*time.Second)
	task := agent.TaskDefinition{ID: "t1", Type: "implementation", Priority: agent.PriorityHigh}

	r, err := exec.Execute(context.Background(), task, testAgent("c-1", agent.TypeCoder))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !r.Success || r.Output != "done t1" || r.TokenUsage != 1234 {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestBusExecutorTimesOutWithoutRuntime(t *testing.T) {
	bus, err := eventbus.New(config.NATSConfig{Port: -1, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start bus: %v", err)
	}
	t.Cleanup(bus.Close)

	client, err := eventbus.NewClient(bus)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(client.Close)

	exec := NewBusExecutor(client, 200*time.Millisecond)
	task := agent.TaskDefinition{ID: "t1", Type: "implementation"}

	if _, err := exec.Execute(context.Background(), task, testAgent("ghost", agent.TypeCoder)); err == nil {
		t.Fatal("expected timeout with no runtime attached")
	}
}
