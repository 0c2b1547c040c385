package executor

import (
	"context"
	"sync"
	"time"

	"github.com/hivedhq/hived/internal/agent"
)

// Call records one Execute invocation on the fake.
type Call struct {
	TaskID  string
	AgentID string
}

// Fake is a scripted Executor for tests. Outcomes are keyed by task
// id; unscripted tasks get the Default result.
type Fake struct {
	mu      sync.Mutex
	results map[string]Result
	errs    map[string]error
	calls   []Call

	Default Result
	Delay   time.Duration
}

func NewFake() *Fake {
	return &Fake{
		results: make(map[string]Result),
		errs:    make(map[string]error),
		Default: Result{Success: true, Output: "ok"},
	}
}

// Script fixes the result for a task id.
func (f *Fake) Script(taskID string, r Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[taskID] = r
}

// FailWith makes Execute return a transport-level error for a task id.
func (f *Fake) FailWith(taskID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[taskID] = err
}

// Calls returns every recorded invocation in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) Execute(ctx context.Context, task agent.TaskDefinition, a agent.Agent) (Result, error) {
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(f.Delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{TaskID: task.ID, AgentID: a.ID})

	if err, ok := f.errs[task.ID]; ok {
		return Result{}, err
	}
	if r, ok := f.results[task.ID]; ok {
		return r, nil
	}
	return f.Default, nil
}
