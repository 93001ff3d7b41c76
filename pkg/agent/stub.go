package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
)

// StubAgent is a scriptable agent for tests: fixed name, per-call results,
// optional delay and panic injection.
type StubAgent struct {
	AgentName models.AgentName

	// Results are returned in order; the last one repeats. Errs lines up
	// with Results by index.
	Results []*AgentResult
	Errs    []error

	// Delay blocks each call, respecting ctx cancellation.
	Delay time.Duration

	// PanicMessage makes every call panic when non-empty.
	PanicMessage string

	calls atomic.Int32
}

// NewStubAgent returns a stub that always succeeds with an empty payload.
func NewStubAgent(name models.AgentName) *StubAgent {
	return &StubAgent{
		AgentName: name,
		Results: []*AgentResult{{
			AgentName: name,
			Success:   true,
			Data:      &models.AgentData{},
		}},
	}
}

// Name implements Agent.
func (s *StubAgent) Name() models.AgentName {
	return s.AgentName
}

// Description implements Agent.
func (s *StubAgent) Description() string {
	return "scripted stand-in for " + string(s.AgentName)
}

// RequiredServices implements Agent. Stubs resolve nothing.
func (s *StubAgent) RequiredServices() []string {
	return nil
}

// Calls returns how many times Execute ran.
func (s *StubAgent) Calls() int {
	return int(s.calls.Load())
}

// Execute implements Agent with the scripted behavior.
func (s *StubAgent) Execute(ctx context.Context, _ ExecutionContext) (*AgentResult, error) {
	call := int(s.calls.Add(1)) - 1

	if s.PanicMessage != "" {
		panic(s.PanicMessage)
	}
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var err error
	if len(s.Errs) > 0 {
		idx := call
		if idx >= len(s.Errs) {
			idx = len(s.Errs) - 1
		}
		err = s.Errs[idx]
	}
	var result *AgentResult
	if len(s.Results) > 0 {
		idx := call
		if idx >= len(s.Results) {
			idx = len(s.Results) - 1
		}
		result = s.Results[idx]
	}
	return result, err
}
