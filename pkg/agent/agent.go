// Package agent defines the uniform contract every analysis stage
// implements, plus the registry the orchestrator resolves stages from.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
	"github.com/medcode-ai/opnote/pkg/worklog"
)

// ExecutionContext is everything an agent receives for one execution:
// a deep clone of the workflow state, the shared services, and the
// run-scoped logger. Agents must treat State as theirs to read, never
// to publish — results flow back only through AgentResult.
type ExecutionContext struct {
	State    *models.WorkflowState
	Services *services.Registry
	Logger   *worklog.Logger

	// Attempt is 1-based and increments across retries.
	Attempt int
}

// ResultMetadata describes how an execution went.
type ResultMetadata struct {
	ExecutionTime time.Duration `json:"executionTime"`
	Version       string        `json:"version,omitempty"`
	Confidence    float64       `json:"confidence,omitempty"`
	Attempt       int           `json:"attempt,omitempty"`
}

// AgentResult is the uniform envelope every agent returns. On failure
// Data may still carry partial output; Errors explains what went wrong.
type AgentResult struct {
	AgentName models.AgentName         `json:"agentName"`
	Success   bool                     `json:"success"`
	Data      *models.AgentData        `json:"data,omitempty"`
	Evidence  []models.StandardizedEvidence `json:"evidence,omitempty"`
	Errors    []models.ProcessingError `json:"errors,omitempty"`
	Metadata  ResultMetadata           `json:"metadata"`
}

// Confidence returns the reported execution confidence, defaulting to 0.
func (r *AgentResult) Confidence() float64 {
	if r == nil {
		return 0
	}
	return r.Metadata.Confidence
}

// FailureResult builds a failed envelope carrying one error.
func FailureResult(name models.AgentName, err models.ProcessingError) *AgentResult {
	return &AgentResult{
		AgentName: name,
		Success:   false,
		Errors:    []models.ProcessingError{err},
	}
}

// Agent is one analysis stage. Execute must honor ctx cancellation and
// return rather than panic; the executor recovers panics as a backstop.
// RequiredServices names the registry services the agent resolves; it
// must validate their presence before touching them.
type Agent interface {
	Name() models.AgentName
	Description() string
	RequiredServices() []string
	Execute(ctx context.Context, ec ExecutionContext) (*AgentResult, error)
}

// RequireServices verifies each named service is resolvable from the
// registry. Agents call it at the top of Execute.
func RequireServices(reg *services.Registry, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	if reg == nil {
		return fmt.Errorf("service registry is not available")
	}
	for _, name := range names {
		if !reg.Has(name) {
			return fmt.Errorf("required service %s is not available", name)
		}
	}
	return nil
}
