package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/executor"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

func fastRetry() executor.RetryPolicy {
	return executor.RetryPolicy{MaxRetries: 1, BackoffBase: time.Millisecond}
}

func testServices(t *testing.T) *services.Registry {
	t.Helper()
	r := services.NewRegistry()
	require.NoError(t, r.Initialize(context.Background(), services.RegistryConfig{Jurisdiction: "WI"}))
	return r
}

func successfulStubs(t *testing.T) (*agent.Registry, map[models.AgentName]*agent.StubAgent) {
	t.Helper()
	reg := agent.NewRegistry()
	stubs := make(map[models.AgentName]*agent.StubAgent)

	cpt := agent.NewStubAgent(models.AgentCPT)
	cpt.Results = []*agent.AgentResult{{
		AgentName: models.AgentCPT,
		Success:   true,
		Data: &models.AgentData{
			Kind: models.DataKindCPT,
			ProcedureCodes: []models.EnhancedProcedureCode{{
				Code: "47562", Description: "Laparoscopic cholecystectomy", Units: 1,
				Evidence: []models.StandardizedEvidence{{SourceAgent: models.AgentCPT, Confidence: 0.95}},
			}},
		},
		Evidence: []models.StandardizedEvidence{{SourceAgent: models.AgentCPT, Confidence: 0.95}},
	}}

	icd := agent.NewStubAgent(models.AgentICD)
	icd.Results = []*agent.AgentResult{{
		AgentName: models.AgentICD,
		Success:   true,
		Data: &models.AgentData{
			Kind: models.DataKindICD,
			DiagnosisCodes: []models.EnhancedDiagnosisCode{{
				Code: "K80.20", Description: "Calculus of gallbladder",
				Evidence: []models.StandardizedEvidence{{SourceAgent: models.AgentICD, Confidence: 0.9}},
			}},
		},
		Evidence: []models.StandardizedEvidence{{SourceAgent: models.AgentICD, Confidence: 0.9}},
	}}

	cci := agent.NewStubAgent(models.AgentCCI)
	cci.Results = []*agent.AgentResult{{
		AgentName: models.AgentCCI,
		Success:   true,
		Data: &models.AgentData{
			Kind: models.DataKindCCI,
			CCIResult: &models.CCIResult{
				GlobalFlags: []models.GlobalFlag{{
					Code: "47562", Severity: models.FlagSeverityWarning,
					Message: "unplanned return to OR", RecommendedModifier: "78",
				}},
				Summary: models.CCISummary{GlobalViolations: 1, OverallStatus: models.CCIStatusWarning},
			},
		},
	}}

	mod78 := "78"
	modifier := agent.NewStubAgent(models.AgentModifier)
	modifier.Results = []*agent.AgentResult{{
		AgentName: models.AgentModifier,
		Success:   true,
		Data: &models.AgentData{
			Kind: models.DataKindModifier,
			FinalModifiers: []models.StandardizedModifier{{
				Modifier: &mod78, LinkedCptCode: "47562",
				Description:    "Unplanned return to the operating room",
				Rationale:      "global period conflict",
				Classification: models.ClassificationPayment,
			}},
		},
	}}

	lcd := agent.NewStubAgent(models.AgentLCD)
	lcd.Results = []*agent.AgentResult{{
		AgentName: models.AgentLCD,
		Success:   true,
		Data: &models.AgentData{
			Kind:      models.DataKindLCD,
			LCDResult: &models.LCDResult{Jurisdiction: "WI", OverallCoverageStatus: models.CoveragePass},
		},
	}}

	rvu := agent.NewStubAgent(models.AgentRVU)
	rvu.Results = []*agent.AgentResult{{
		AgentName: models.AgentRVU,
		Success:   true,
		Data: &models.AgentData{
			Kind:      models.DataKindRVU,
			RVUResult: &models.RVUResult{ContractorLocality: "WI"},
			RVUSequencingResult: &models.RVUSequencingResult{
				SequencedCodes: []models.SequencedCode{{Code: "47562", TotalAdjustedRVU: 18.1, Units: 1}},
				TotalRVU:       18.1,
			},
		},
	}}

	for _, stub := range []*agent.StubAgent{cpt, icd, cci, modifier, lcd, rvu} {
		stubs[stub.AgentName] = stub
		require.NoError(t, reg.Register(agent.Registration{Agent: stub}))
	}
	return reg, stubs
}

func newCase() *models.WorkflowState {
	ws := models.NewWorkflowState("case-1")
	ws.CaseMeta.PatientID = "p-1"
	ws.CaseNotes.PrimaryNoteText = "Laparoscopic cholecystectomy performed."
	return ws
}

func TestRunHappyPath(t *testing.T) {
	reg, stubs := successfulStubs(t)

	var mu sync.Mutex
	var events []ProgressEvent
	progress := func(ev ProgressEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	orch := New(reg, testServices(t), nil, progress, Config{Retry: fastRetry()})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	assert.Equal(t, models.CaseStatusCompleted, final.CaseMeta.Status)
	require.Len(t, final.ProcedureCodes, 1)
	require.Len(t, final.DiagnosisCodes, 1)
	require.Len(t, final.FinalModifiers, 1)
	assert.Equal(t, "78", *final.FinalModifiers[0].Modifier)
	require.NotNil(t, final.CCIResult)
	require.NotNil(t, final.LCDResult)
	require.NotNil(t, final.RVUSequencingResult)

	for name, stub := range stubs {
		assert.Equal(t, 1, stub.Calls(), "agent %s", name)
	}
	for _, st := range orch.AgentStates() {
		assert.Equal(t, StateSucceeded, st)
	}

	// Progress is monotone, 0 at start and 100 at the end.
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, 0, events[0].Progress)
	assert.Equal(t, 100, events[len(events)-1].Progress)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Progress, events[i-1].Progress)
	}
}

func TestRunRetainsEveryPathwayRecord(t *testing.T) {
	reg, _ := successfulStubs(t)

	orch := New(reg, testServices(t), nil, nil, Config{Retry: fastRetry()})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	// Every agent's execution history and evidence must survive the
	// union fold, including the pathways merged last.
	executed := make(map[models.AgentName]bool)
	for _, h := range final.History {
		if h.Action == "agent_execution" {
			executed[h.AgentName] = true
		}
	}
	for _, name := range models.KnownAgents {
		assert.True(t, executed[name], "history entry for %s", name)
	}

	sources := make(map[models.AgentName]bool)
	for _, ev := range final.AllEvidence {
		sources[ev.SourceAgent] = true
	}
	assert.True(t, sources[models.AgentCPT])
	assert.True(t, sources[models.AgentICD])
}

func TestRunRequiredAgentFailureTerminates(t *testing.T) {
	reg, stubs := successfulStubs(t)
	stubs[models.AgentRVU].Results = []*agent.AgentResult{
		agent.FailureResult(models.AgentRVU,
			models.NewProcessingError("fee schedule unavailable", models.SeverityHigh, "RVU")),
	}

	orch := New(reg, testServices(t), nil, nil, Config{
		ErrorPolicy:    PolicyContinue,
		RequiredAgents: []models.AgentName{models.AgentRVU},
		Retry:          fastRetry(),
	})
	final, err := orch.Run(context.Background(), newCase())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "required agent RVU")
	assert.Equal(t, models.CaseStatusError, final.CaseMeta.Status)
	// The other pathways still ran and contributed before termination.
	assert.NotNil(t, final.CCIResult)
}

func TestRunRequiredCPTFailureSkipsPathways(t *testing.T) {
	reg, stubs := successfulStubs(t)
	stubs[models.AgentCPT].Results = []*agent.AgentResult{
		agent.FailureResult(models.AgentCPT,
			models.NewProcessingError("extraction failed", models.SeverityHigh, "CPT")),
	}

	orch := New(reg, testServices(t), nil, nil, Config{
		RequiredAgents: []models.AgentName{models.AgentCPT},
		Retry:          fastRetry(),
	})
	_, err := orch.Run(context.Background(), newCase())

	require.Error(t, err)
	assert.Equal(t, 0, stubs[models.AgentICD].Calls())
	assert.Equal(t, StateSkipped, orch.AgentStates()[models.AgentICD])
}

// stateWriterAgent mutates the state it receives instead of returning
// data through its result envelope.
type stateWriterAgent struct {
	name models.AgentName
}

func (a *stateWriterAgent) Name() models.AgentName { return a.name }

func (a *stateWriterAgent) Description() string { return "writes into its input state" }

func (a *stateWriterAgent) RequiredServices() []string { return nil }

func (a *stateWriterAgent) Execute(_ context.Context, ec agent.ExecutionContext) (*agent.AgentResult, error) {
	ec.State.ProcedureCodes = append(ec.State.ProcedureCodes, models.EnhancedProcedureCode{
		Code: "99999", Description: "smuggled", Units: 1,
		Evidence: []models.StandardizedEvidence{{SourceAgent: a.name}},
	})
	return &agent.AgentResult{AgentName: a.name, Success: true, Data: &models.AgentData{}}, nil
}

func TestRunAgentsReceiveClonedState(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.Registration{Agent: &stateWriterAgent{name: models.AgentCPT}}))

	orch := New(reg, testServices(t), nil, nil, Config{Retry: fastRetry()})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	// Direct writes to the execution-context state must not reach the
	// authoritative state; results flow only through the merger.
	assert.False(t, final.HasProcedureCode("99999"))
}

func TestRunPathwayFailureDoesNotBlockOthers(t *testing.T) {
	reg, stubs := successfulStubs(t)
	stubs[models.AgentICD].Results = []*agent.AgentResult{
		agent.FailureResult(models.AgentICD,
			models.NewProcessingError("model unavailable", models.SeverityHigh, "ICD")),
	}

	orch := New(reg, testServices(t), nil, nil, Config{Retry: fastRetry()})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	// The compliance and reimbursement pathways still contributed.
	assert.Equal(t, models.CaseStatusCompleted, final.CaseMeta.Status)
	require.NotNil(t, final.CCIResult)
	require.NotNil(t, final.RVUSequencingResult)
	assert.NotEmpty(t, final.FinalModifiers)

	states := orch.AgentStates()
	assert.Equal(t, StateFailed, states[models.AgentICD])
	assert.Equal(t, StateSucceeded, states[models.AgentCCI])
	assert.Equal(t, StateSucceeded, states[models.AgentRVU])
}

func TestRunModifierTimeout(t *testing.T) {
	_, stubs := successfulStubs(t)
	stubs[models.AgentModifier].Delay = 200 * time.Millisecond

	// Shrink the modifier deadline through the registration override.
	reg2 := agent.NewRegistry()
	for _, stub := range stubs {
		r := agent.Registration{Agent: stub}
		if stub.AgentName == models.AgentModifier {
			r.Timeout = 20 * time.Millisecond
		}
		require.NoError(t, reg2.Register(r))
	}

	orch := New(reg2, testServices(t), nil, nil, Config{
		Retry: executor.RetryPolicy{MaxRetries: 1, BackoffBase: time.Millisecond},
	})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	assert.Equal(t, models.CaseStatusCompleted, final.CaseMeta.Status)
	assert.Equal(t, StateTimeout, orch.AgentStates()[models.AgentModifier])

	var sawTimeout bool
	for _, e := range final.Errors {
		if e.Code == models.ErrCodeAgentTimeout {
			sawTimeout = true
		}
	}
	assert.True(t, sawTimeout)
}

func TestRunDuplicateCodesDeduplicated(t *testing.T) {
	reg, stubs := successfulStubs(t)
	dup := stubs[models.AgentCPT].Results[0].Data.ProcedureCodes[0]
	stubs[models.AgentCPT].Results[0].Data.ProcedureCodes = append(
		stubs[models.AgentCPT].Results[0].Data.ProcedureCodes, dup, dup)

	orch := New(reg, testServices(t), nil, nil, Config{Retry: fastRetry()})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	assert.Len(t, final.ProcedureCodes, 1)
}

func TestRunMissingCaseIDHaltsBeforeAgents(t *testing.T) {
	reg, stubs := successfulStubs(t)

	ws := models.NewWorkflowState("")
	orch := New(reg, testServices(t), nil, nil, Config{Retry: fastRetry()})
	final, err := orch.Run(context.Background(), ws)

	require.Error(t, err)
	assert.Equal(t, models.CaseStatusError, final.CaseMeta.Status)
	assert.True(t, final.HasCriticalError())
	for name, stub := range stubs {
		assert.Equal(t, 0, stub.Calls(), "agent %s must not run", name)
	}
}

func TestRunFailFastOnCPT(t *testing.T) {
	reg, stubs := successfulStubs(t)
	stubs[models.AgentCPT].Results = []*agent.AgentResult{
		agent.FailureResult(models.AgentCPT,
			models.NewProcessingError("extraction failed", models.SeverityHigh, "CPT")),
	}

	orch := New(reg, testServices(t), nil, nil, Config{
		ErrorPolicy: PolicyFailFast,
		Retry:       fastRetry(),
	})
	final, err := orch.Run(context.Background(), newCase())

	require.Error(t, err)
	assert.Equal(t, models.CaseStatusError, final.CaseMeta.Status)
	assert.Equal(t, 0, stubs[models.AgentICD].Calls())
	assert.Equal(t, StateSkipped, orch.AgentStates()[models.AgentICD])
}

func TestRunSkipDependentsAfterCPTFailure(t *testing.T) {
	reg, stubs := successfulStubs(t)
	stubs[models.AgentCPT].Results = []*agent.AgentResult{
		agent.FailureResult(models.AgentCPT,
			models.NewProcessingError("extraction failed", models.SeverityHigh, "CPT")),
	}

	orch := New(reg, testServices(t), nil, nil, Config{
		ErrorPolicy: PolicySkipDependents,
		Retry:       fastRetry(),
	})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	assert.Equal(t, models.CaseStatusCompleted, final.CaseMeta.Status)
	for _, name := range []models.AgentName{models.AgentICD, models.AgentCCI, models.AgentRVU} {
		assert.Equal(t, 0, stubs[name].Calls(), "agent %s must be skipped", name)
		assert.Equal(t, StateSkipped, orch.AgentStates()[name])
	}
}

func TestRunUnregisteredAgentRecorded(t *testing.T) {
	reg := agent.NewRegistry()
	cpt := agent.NewStubAgent(models.AgentCPT)
	require.NoError(t, reg.Register(agent.Registration{Agent: cpt}))

	orch := New(reg, testServices(t), nil, nil, Config{Retry: fastRetry()})
	final, err := orch.Run(context.Background(), newCase())
	require.NoError(t, err)

	states := orch.AgentStates()
	assert.Equal(t, StateSkipped, states[models.AgentICD])

	var sawDependency bool
	for _, e := range final.Errors {
		if e.Code == models.ErrCodeDependencyFailed {
			sawDependency = true
		}
	}
	assert.True(t, sawDependency)
}
