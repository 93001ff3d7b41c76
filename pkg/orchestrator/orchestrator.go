// Package orchestrator drives the fixed case topology: initial
// validation, the CPT foundation stage, three parallel pathways
// (ICD→LCD, CCI→MODIFIER, RVU), the union merge, and final validation.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/executor"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
	"github.com/medcode-ai/opnote/pkg/state"
	"github.com/medcode-ai/opnote/pkg/worklog"
)

// DefaultGlobalTimeout bounds one complete workflow run.
const DefaultGlobalTimeout = 300 * time.Second

// ErrorPolicy selects how non-critical agent failures propagate.
type ErrorPolicy string

// Error policies. CRITICAL errors halt the run under any policy.
const (
	PolicyFailFast       ErrorPolicy = "fail-fast"
	PolicySkipDependents ErrorPolicy = "skip-dependents"
	PolicyContinue       ErrorPolicy = "continue"
)

// AgentState tracks one stage through its lifecycle.
type AgentState string

// Agent lifecycle states.
const (
	StatePending   AgentState = "pending"
	StateScheduled AgentState = "scheduled"
	StateRunning   AgentState = "running"
	StateSucceeded AgentState = "succeeded"
	StateFailed    AgentState = "failed"
	StateSkipped   AgentState = "skipped"
	StateTimeout   AgentState = "timeout"
)

// ProgressEvent is one advisory progress record. Progress is 0..100 and
// never decreases across the run.
type ProgressEvent struct {
	Step     string           `json:"step"`
	Agent    models.AgentName `json:"agent,omitempty"`
	Progress int              `json:"progress"`
}

// ProgressFunc receives progress events. Called synchronously from
// whichever goroutine emits them.
type ProgressFunc func(ProgressEvent)

// Config tunes one orchestrator run.
type Config struct {
	ErrorPolicy   ErrorPolicy
	GlobalTimeout time.Duration
	Retry         executor.RetryPolicy

	// OptionalAgents fail without propagating under any policy.
	OptionalAgents []models.AgentName

	// RequiredAgents must succeed; a required-agent failure terminates the
	// workflow under any policy, continue included.
	RequiredAgents []models.AgentName
}

// Orchestrator runs cases through the fixed topology.
type Orchestrator struct {
	registry *agent.Registry
	services *services.Registry
	logger   *worklog.Logger
	progress ProgressFunc
	cfg      Config

	mu          sync.Mutex
	agentStates map[models.AgentName]AgentState
	lastEmitted int
}

// New builds an orchestrator. progress may be nil.
func New(registry *agent.Registry, svcs *services.Registry, logger *worklog.Logger, progress ProgressFunc, cfg Config) *Orchestrator {
	if cfg.ErrorPolicy == "" {
		cfg.ErrorPolicy = PolicyContinue
	}
	if cfg.GlobalTimeout == 0 {
		cfg.GlobalTimeout = DefaultGlobalTimeout
	}
	// A fully zero retry policy means unset; an explicit zero-retry policy
	// sets BackoffBase or ShouldRetry.
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.BackoffBase == 0 && cfg.Retry.ShouldRetry == nil {
		cfg.Retry = executor.DefaultRetryPolicy()
	}
	return &Orchestrator{
		registry:    registry,
		services:    svcs,
		logger:      logger,
		progress:    progress,
		cfg:         cfg,
		agentStates: make(map[models.AgentName]AgentState),
	}
}

// AgentStates returns a snapshot of the per-agent lifecycle states.
func (o *Orchestrator) AgentStates() map[models.AgentName]AgentState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[models.AgentName]AgentState, len(o.agentStates))
	for k, v := range o.agentStates {
		out[k] = v
	}
	return out
}

// pathwayResult carries one pathway's final sub-state back to the
// orchestrator goroutine, indexed for deterministic merge order.
type pathwayResult struct {
	index int
	state *models.WorkflowState
	err   error
}

// pathway is one sequential agent chain within Phase 2.
type pathway struct {
	name   string
	agents []models.AgentName
}

func topologyPathways() []pathway {
	return []pathway{
		{name: "diagnosis", agents: []models.AgentName{models.AgentICD, models.AgentLCD}},
		{name: "compliance", agents: []models.AgentName{models.AgentCCI, models.AgentModifier}},
		{name: "reimbursement", agents: []models.AgentName{models.AgentRVU}},
	}
}

// Run executes the full topology and returns the final state. The state
// is returned even on failure; CaseMeta.Status reports the outcome.
func (o *Orchestrator) Run(ctx context.Context, ws *models.WorkflowState) (*models.WorkflowState, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	for _, name := range models.KnownAgents {
		o.setAgentState(name, StatePending)
	}
	o.emit("workflow_start", "", 0)
	o.logWorkflow("Orchestrator.Run", "workflow started", map[string]any{"caseId": ws.CaseMeta.CaseID})

	// Phase 0: initial validation.
	ws = ws.Clone()
	ws.CaseMeta.Status = models.CaseStatusProcessing
	ws.CurrentStep = models.StepInitialization
	ws.Errors = append(ws.Errors, state.ValidateInitial(ws)...)
	if ws.HasCriticalError() {
		return o.finish(ws, fmt.Errorf("initial validation failed for case %q", ws.CaseMeta.CaseID))
	}
	ws.MarkStepCompleted(models.StepInitialization)
	o.emit("initialization", "", 5)

	// Phase 1: CPT foundation.
	baseMerger := state.NewMerger()
	ws.CurrentStep = models.StepCPTExtraction
	var cptFailed bool
	ws, cptFailed = o.runAgent(ctx, baseMerger, ws, models.AgentCPT, 10, 25)
	if ws.HasCriticalError() {
		return o.finish(ws, fmt.Errorf("workflow halted on critical error"))
	}
	if cptFailed && o.cfg.ErrorPolicy == PolicyFailFast && !o.isOptional(models.AgentCPT) {
		o.skipRemaining()
		return o.finish(ws, fmt.Errorf("cpt extraction failed under fail-fast policy"))
	}
	if cptFailed && o.isRequired(models.AgentCPT) {
		o.skipRemaining()
		return o.finish(ws, fmt.Errorf("required agent %s failed", models.AgentCPT))
	}

	// Phase 2: three pathways from the same post-CPT state.
	pathways := topologyPathways()
	results := make(chan pathwayResult, len(pathways))
	var wg sync.WaitGroup
	for i, pw := range pathways {
		if cptFailed && o.cfg.ErrorPolicy == PolicySkipDependents {
			for _, name := range pw.agents {
				o.setAgentState(name, StateSkipped)
			}
			continue
		}
		wg.Add(1)
		go func(index int, pw pathway, sub *models.WorkflowState) {
			defer wg.Done()
			final, err := o.runPathway(ctx, pw, sub)
			results <- pathwayResult{index: index, state: final, err: err}
		}(i, pw, ws.Clone())
	}
	wg.Wait()
	close(results)

	collected := make([]pathwayResult, 0, len(pathways))
	for r := range results {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	// Phase 3: union merge in pathway order. Failed pathways still
	// contribute whatever they produced. Suffixes are computed against the
	// post-CPT snapshot the pathways cloned, not the evolving base.
	o.emit("pathway_merge", "", 85)
	shared := ws
	for _, r := range collected {
		if r.state != nil {
			ws = state.Union(ws, r.state, shared)
		}
		if r.err != nil {
			o.logWorkflow("Orchestrator.Run", "pathway completed with error", map[string]any{
				"pathway": pathways[r.index].name,
				"error":   r.err.Error(),
			})
		}
	}
	if ws.HasCriticalError() {
		return o.finish(ws, fmt.Errorf("workflow halted on critical error"))
	}
	if o.cfg.ErrorPolicy == PolicyFailFast {
		for _, r := range collected {
			if r.err != nil {
				return o.finish(ws, fmt.Errorf("pathway %s failed under fail-fast policy: %w", pathways[r.index].name, r.err))
			}
		}
	}
	if name, failed := o.requiredFailure(); failed {
		return o.finish(ws, fmt.Errorf("required agent %s failed", name))
	}

	// Phase 4: final validation.
	ws.CurrentStep = models.StepFinalValidation
	o.emit("final_validation", "", 95)
	ws.Errors = append(ws.Errors, state.ValidateFinal(ws)...)
	ws.MarkStepCompleted(models.StepFinalValidation)

	ws.CurrentStep = models.StepComplete
	ws.MarkStepCompleted(models.StepComplete)
	ws.CaseMeta.Status = models.CaseStatusCompleted
	ws.UpdatedAt = time.Now()
	o.emit("workflow_complete", "", 100)
	o.logWorkflow("Orchestrator.Run", "workflow completed", map[string]any{
		"caseId":     ws.CaseMeta.CaseID,
		"procedures": len(ws.ProcedureCodes),
		"diagnoses":  len(ws.DiagnosisCodes),
		"errors":     len(ws.Errors),
	})
	return ws, nil
}

// runPathway executes one agent chain sequentially over its own sub-state.
// A failed agent stops the chain under fail-fast and skip-dependents; under
// continue the chain presses on.
func (o *Orchestrator) runPathway(ctx context.Context, pw pathway, sub *models.WorkflowState) (*models.WorkflowState, error) {
	merger := state.NewMerger()
	var firstErr error
	for i, name := range pw.agents {
		if firstErr != nil && o.cfg.ErrorPolicy != PolicyContinue {
			o.setAgentState(name, StateSkipped)
			sub.Errors = append(sub.Errors, models.NewProcessingError(
				fmt.Sprintf("agent %s skipped: upstream failure in %s pathway", name, pw.name),
				models.SeverityMedium, string(name),
			).WithCode(models.ErrCodeDependencyFailed))
			continue
		}

		lo, hi := pathwayProgressBand(pw.name, i, len(pw.agents))
		var failed bool
		sub.CurrentStep = models.StepForAgent(name)
		sub, failed = o.runAgent(ctx, merger, sub, name, lo, hi)
		if sub.HasCriticalError() {
			return sub, fmt.Errorf("critical error in %s pathway at %s", pw.name, name)
		}
		if failed && !o.isOptional(name) && firstErr == nil {
			firstErr = fmt.Errorf("agent %s failed in %s pathway", name, pw.name)
		}
	}
	return sub, firstErr
}

// runAgent resolves, executes, and merges one stage. Returns the merged
// state and whether the stage failed.
func (o *Orchestrator) runAgent(ctx context.Context, merger *state.Merger, ws *models.WorkflowState, name models.AgentName, progressStart, progressEnd int) (*models.WorkflowState, bool) {
	reg, ok := o.registry.Get(name)
	if !ok {
		o.setAgentState(name, StateSkipped)
		out := ws.Clone()
		out.Errors = append(out.Errors, models.NewProcessingError(
			fmt.Sprintf("agent %s is not registered", name),
			models.SeverityMedium, string(name),
		).WithCode(models.ErrCodeDependencyFailed))
		return out, true
	}

	o.setAgentState(name, StateScheduled)
	o.emit("agent_start", name, progressStart)
	o.setAgentState(name, StateRunning)

	// Agents get their own deep clone; the authoritative state advances
	// only through the merger.
	exec := executor.New(o.cfg.Retry, o.logger)
	result := exec.Execute(ctx, reg.Agent, agent.ExecutionContext{
		State:    ws.Clone(),
		Services: o.services,
		Logger:   o.logger,
	}, executor.TimeoutFor(name, reg.Timeout))

	merged := merger.Merge(ws, result, name)
	if result.Success {
		merged.MarkStepCompleted(models.StepForAgent(name))
		o.setAgentState(name, StateSucceeded)
	} else if timedOut(result) {
		o.setAgentState(name, StateTimeout)
	} else {
		o.setAgentState(name, StateFailed)
	}
	o.emit("agent_complete", name, progressEnd)
	return merged, !result.Success
}

func timedOut(result *agent.AgentResult) bool {
	for _, e := range result.Errors {
		if e.Code == models.ErrCodeAgentTimeout {
			return true
		}
	}
	return false
}

// pathwayProgressBand spreads each pathway's agents across the shared
// 25..85 band. Bands overlap across pathways; the monotonic clamp in emit
// keeps the reported sequence non-decreasing.
func pathwayProgressBand(name string, index, total int) (int, int) {
	const lo, hi = 25, 85
	span := (hi - lo) / total
	start := lo + span*index
	return start, start + span
}

func (o *Orchestrator) isRequired(name models.AgentName) bool {
	for _, n := range o.cfg.RequiredAgents {
		if n == name {
			return true
		}
	}
	return false
}

// requiredFailure reports the first required agent that did not succeed.
func (o *Orchestrator) requiredFailure() (models.AgentName, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, name := range o.cfg.RequiredAgents {
		switch o.agentStates[name] {
		case StateFailed, StateTimeout, StateSkipped:
			return name, true
		}
	}
	return "", false
}

func (o *Orchestrator) isOptional(name models.AgentName) bool {
	if reg, ok := o.registry.Get(name); ok && reg.Optional {
		return true
	}
	for _, n := range o.cfg.OptionalAgents {
		if n == name {
			return true
		}
	}
	return false
}

func (o *Orchestrator) skipRemaining() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name, st := range o.agentStates {
		if st == StatePending {
			o.agentStates[name] = StateSkipped
		}
	}
}

func (o *Orchestrator) setAgentState(name models.AgentName, st AgentState) {
	o.mu.Lock()
	o.agentStates[name] = st
	o.mu.Unlock()
}

// emit publishes a progress event, clamped so reported progress never
// decreases even when pathway events interleave.
func (o *Orchestrator) emit(step string, agentName models.AgentName, progress int) {
	if o.progress == nil {
		return
	}
	o.mu.Lock()
	if progress < o.lastEmitted {
		progress = o.lastEmitted
	}
	o.lastEmitted = progress
	o.mu.Unlock()
	o.progress(ProgressEvent{Step: step, Agent: agentName, Progress: progress})
}

// finish stamps a failed run and returns it with the terminal error.
func (o *Orchestrator) finish(ws *models.WorkflowState, err error) (*models.WorkflowState, error) {
	ws.CaseMeta.Status = models.CaseStatusError
	ws.UpdatedAt = time.Now()
	o.emit("workflow_complete", "", 100)
	o.logWorkflow("Orchestrator.Run", "workflow terminated", map[string]any{
		"caseId": ws.CaseMeta.CaseID,
		"error":  err.Error(),
	})
	return ws, err
}

func (o *Orchestrator) logWorkflow(fn, msg string, meta map[string]any) {
	if o.logger != nil {
		o.logger.Workflow(fn, msg, meta)
	}
}
