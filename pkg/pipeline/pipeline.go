// Package pipeline is the single entry point for processing a case: it
// wires the service registry, agent registry, logger, and orchestrator
// together and returns the assembled result envelope.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/agents"
	"github.com/medcode-ai/opnote/pkg/assembler"
	"github.com/medcode-ai/opnote/pkg/executor"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/orchestrator"
	"github.com/medcode-ai/opnote/pkg/services"
	"github.com/medcode-ai/opnote/pkg/worklog"
)

// PriorityLevel is an advisory scheduling hint.
type PriorityLevel string

// Priority levels.
const (
	PriorityLow    PriorityLevel = "low"
	PriorityNormal PriorityLevel = "normal"
	PriorityHigh   PriorityLevel = "high"
)

// RetryPolicyOptions overrides executor retry defaults.
type RetryPolicyOptions struct {
	MaxRetries int `json:"maxRetries,omitempty"`
	BackoffMs  int `json:"backoffMs,omitempty"`
}

// ProcessingOptions tunes one run. The zero value uses all defaults.
type ProcessingOptions struct {
	PriorityLevel  PriorityLevel            `json:"priorityLevel,omitempty"`
	RequiredAgents []models.AgentName       `json:"requiredAgents,omitempty"`
	OptionalAgents []models.AgentName       `json:"optionalAgents,omitempty"`
	TimeoutMs      int                      `json:"timeout,omitempty"`
	RetryPolicy    *RetryPolicyOptions      `json:"retryPolicy,omitempty"`
	AIModelConfig  *services.AIModelConfig  `json:"aiModelConfig,omitempty"`
	ErrorPolicy    orchestrator.ErrorPolicy `json:"errorPolicy,omitempty"`
	Jurisdiction   string                   `json:"jurisdiction,omitempty"`
}

// ResultMetadata summarizes one run for the caller.
type ResultMetadata struct {
	ExecutionTime     time.Duration `json:"executionTime"`
	AgentsExecuted    int           `json:"agentsExecuted"`
	StepsCompleted    []string      `json:"stepsCompleted"`
	ErrorsEncountered int           `json:"errorsEncountered"`
}

// ProcessingResult is the envelope returned to the caller. Data is
// best-effort: present even on failure when partial output exists.
type ProcessingResult struct {
	Success          bool                      `json:"success"`
	Data             *assembler.CaseOutput     `json:"data,omitempty"`
	Error            string                    `json:"error,omitempty"`
	Metadata         ResultMetadata            `json:"metadata"`
	ExecutionSummary *worklog.ExecutionSummary `json:"executionSummary,omitempty"`
}

// Pipeline processes cases against a shared service registry.
type Pipeline struct {
	services *services.Registry
	progress orchestrator.ProgressFunc
}

// New builds a pipeline over an initialized registry. progress may be nil.
func New(registry *services.Registry, progress orchestrator.ProgressFunc) *Pipeline {
	return &Pipeline{services: registry, progress: progress}
}

// defaultAgentRegistry wires the fixed topology.
func defaultAgentRegistry() (*agent.Registry, error) {
	reg := agent.NewRegistry()
	registrations := []agent.Registration{
		{Agent: agents.NewCPTAgent(), Priority: 0},
		{Agent: agents.NewICDAgent(), Dependencies: []models.AgentName{models.AgentCPT}, Priority: 1},
		{Agent: agents.NewCCIAgent(), Dependencies: []models.AgentName{models.AgentCPT}, Priority: 1},
		{Agent: agents.NewRVUAgent(), Dependencies: []models.AgentName{models.AgentCPT}, Priority: 1},
		{Agent: agents.NewLCDAgent(), Dependencies: []models.AgentName{models.AgentICD}, Priority: 2, Optional: true},
		{Agent: agents.NewModifierAgent(), Dependencies: []models.AgentName{models.AgentCCI}, Priority: 2, Timeout: executor.ModifierTimeout},
	}
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// ProcessCase runs one case end to end. The returned envelope is always
// non-nil and always carries metadata; Success is false when the workflow
// terminated on an error or accumulated a CRITICAL error.
func (p *Pipeline) ProcessCase(ctx context.Context, notes models.CaseNotes, meta models.CaseMeta, opts *ProcessingOptions) *ProcessingResult {
	start := time.Now()
	if opts == nil {
		opts = &ProcessingOptions{}
	}

	workflowID := meta.CaseID
	if workflowID == "" {
		workflowID = "case-" + uuid.NewString()
	}
	logger := worklog.New(workflowID, nil)
	defer logger.Close()

	ws := models.NewWorkflowState(meta.CaseID)
	ws.CaseMeta.PatientID = meta.PatientID
	ws.CaseMeta.ProviderID = meta.ProviderID
	ws.CaseMeta.DateOfService = meta.DateOfService
	ws.CaseMeta.ClaimType = meta.ClaimType
	ws.CaseNotes = normalizeNotes(notes)
	if ws.CaseMeta.PatientID == "" {
		ws.CaseMeta.PatientID = "patient-" + uuid.NewString()
	}
	if ws.CaseMeta.ProviderID == "" {
		ws.CaseMeta.ProviderID = "provider-" + uuid.NewString()
	}

	if opts.AIModelConfig != nil {
		p.services.SetAI(services.NewAIModelService(*opts.AIModelConfig))
	}

	agentReg, err := defaultAgentRegistry()
	if err != nil {
		return failureResult(ws, logger, start, err.Error())
	}

	cfg := orchestrator.Config{
		ErrorPolicy:    opts.ErrorPolicy,
		OptionalAgents: opts.OptionalAgents,
		RequiredAgents: opts.RequiredAgents,
		Retry:          retryPolicy(opts.RetryPolicy),
	}
	if opts.TimeoutMs > 0 {
		cfg.GlobalTimeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	orch := orchestrator.New(agentReg, p.services, logger, p.progress, cfg)
	final, runErr := orch.Run(ctx, ws)

	output := assembler.Assemble(final)
	summary := logger.GenerateExecutionSummary()
	if p.services.Monitor() != nil {
		p.services.Monitor().ObserveCase()
	}

	result := &ProcessingResult{
		Success:          runErr == nil && !final.HasCriticalError(),
		Data:             &output,
		Metadata:         buildMetadata(final, start, summary),
		ExecutionSummary: &summary,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result
}

func normalizeNotes(notes models.CaseNotes) models.CaseNotes {
	for i := range notes.AdditionalNotes {
		notes.AdditionalNotes[i].Type = models.NormalizeNoteType(string(notes.AdditionalNotes[i].Type))
	}
	return notes
}

func retryPolicy(opts *RetryPolicyOptions) executor.RetryPolicy {
	policy := executor.DefaultRetryPolicy()
	if opts == nil {
		return policy
	}
	if opts.MaxRetries > 0 {
		policy.MaxRetries = opts.MaxRetries
	}
	if opts.BackoffMs > 0 {
		policy.BackoffBase = time.Duration(opts.BackoffMs) * time.Millisecond
	}
	return policy
}

func buildMetadata(ws *models.WorkflowState, start time.Time, summary worklog.ExecutionSummary) ResultMetadata {
	steps := make([]string, 0, len(ws.CompletedSteps))
	for _, s := range ws.CompletedSteps {
		steps = append(steps, string(s))
	}
	return ResultMetadata{
		ExecutionTime:     time.Since(start),
		AgentsExecuted:    summary.AgentExecutions,
		StepsCompleted:    steps,
		ErrorsEncountered: len(ws.Errors),
	}
}

func failureResult(ws *models.WorkflowState, logger *worklog.Logger, start time.Time, msg string) *ProcessingResult {
	output := assembler.Assemble(ws)
	output.PartialData = true
	output.TransformationError = msg
	summary := logger.GenerateExecutionSummary()
	return &ProcessingResult{
		Success:          false,
		Data:             &output,
		Error:            msg,
		Metadata:         buildMetadata(ws, start, summary),
		ExecutionSummary: &summary,
	}
}
