package models

import "time"

// WorkflowStep names a position in the fixed topology.
type WorkflowStep string

// Workflow step constants.
const (
	StepInitialization     WorkflowStep = "INITIALIZATION"
	StepCPTExtraction      WorkflowStep = "CPT_EXTRACTION"
	StepICDSelection       WorkflowStep = "ICD_SELECTION"
	StepCCIValidation      WorkflowStep = "CCI_VALIDATION"
	StepLCDCoverage        WorkflowStep = "LCD_COVERAGE"
	StepModifierAssignment WorkflowStep = "MODIFIER_ASSIGNMENT"
	StepRVUCalculation     WorkflowStep = "RVU_CALCULATION"
	StepFinalValidation    WorkflowStep = "FINAL_VALIDATION"
	StepComplete           WorkflowStep = "COMPLETE"
)

// StepForAgent maps an agent stage to its workflow step.
func StepForAgent(name AgentName) WorkflowStep {
	switch name {
	case AgentCPT:
		return StepCPTExtraction
	case AgentICD:
		return StepICDSelection
	case AgentCCI:
		return StepCCIValidation
	case AgentLCD:
		return StepLCDCoverage
	case AgentModifier:
		return StepModifierAssignment
	case AgentRVU:
		return StepRVUCalculation
	default:
		return StepInitialization
	}
}

// HistoryResult classifies a history entry outcome.
type HistoryResult string

// History result constants.
const (
	HistorySuccess HistoryResult = "success"
	HistoryFailure HistoryResult = "failure"
	HistoryWarning HistoryResult = "warning"
)

// HistoryEntry records one action taken against the workflow state.
type HistoryEntry struct {
	AgentName AgentName      `json:"agentName"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Result    HistoryResult  `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
}

// WorkflowState is the shared, append-mostly record of a case run. It is
// passed by value (deep clone) into each agent execution; only the state
// merger writes to the authoritative copy, from the orchestrator goroutine.
type WorkflowState struct {
	CaseMeta     CaseMeta     `json:"caseMeta"`
	CaseNotes    CaseNotes    `json:"caseNotes"`
	Demographics Demographics `json:"demographics"`

	CandidateProcedureCodes []EnhancedProcedureCode `json:"candidateProcedureCodes,omitempty"`
	ProcedureCodes          []EnhancedProcedureCode `json:"procedureCodes,omitempty"`
	DiagnosisCodes          []EnhancedDiagnosisCode `json:"diagnosisCodes,omitempty"`
	HCPCSCodes              []HCPCSCode             `json:"hcpcsCodes,omitempty"`

	CCIResult           *CCIResult           `json:"cciResult,omitempty"`
	MUEResult           *MUEResult           `json:"mueResult,omitempty"`
	LCDResult           *LCDResult           `json:"lcdResult,omitempty"`
	RVUResult           *RVUResult           `json:"rvuResult,omitempty"`
	RVUCalculations     []RVUCalculation     `json:"rvuCalculations,omitempty"`
	RVUSequencingResult *RVUSequencingResult `json:"rvuSequencingResult,omitempty"`

	FinalModifiers []StandardizedModifier `json:"finalModifiers,omitempty"`
	ClaimSequence  []SequencedCode        `json:"claimSequence,omitempty"`

	CurrentStep    WorkflowStep           `json:"currentStep"`
	CompletedSteps []WorkflowStep         `json:"completedSteps,omitempty"`
	Errors         []ProcessingError      `json:"errors,omitempty"`
	History        []HistoryEntry         `json:"history,omitempty"`
	AllEvidence    []StandardizedEvidence `json:"allEvidence,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   string    `json:"version"`
}

// StateVersion is stamped on newly initialized states.
const StateVersion = "2.0"

// NewWorkflowState initializes state for a case. All collection fields start
// empty; status is pending and a workflow_initialized history entry is
// recorded.
func NewWorkflowState(caseID string) *WorkflowState {
	now := time.Now()
	return &WorkflowState{
		CaseMeta: CaseMeta{
			CaseID: caseID,
			Status: CaseStatusPending,
		},
		CurrentStep: StepInitialization,
		History: []HistoryEntry{{
			AgentName: AgentSystem,
			Timestamp: now,
			Action:    "workflow_initialized",
			Result:    HistorySuccess,
		}},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   StateVersion,
	}
}

// HasCompletedStep reports whether the step is in the completed set.
func (s *WorkflowState) HasCompletedStep(step WorkflowStep) bool {
	for _, done := range s.CompletedSteps {
		if done == step {
			return true
		}
	}
	return false
}

// MarkStepCompleted adds the step to the completed set. Each step appears
// at most once.
func (s *WorkflowState) MarkStepCompleted(step WorkflowStep) {
	if !s.HasCompletedStep(step) {
		s.CompletedSteps = append(s.CompletedSteps, step)
	}
}

// HasProcedureCode reports whether a CPT code is already present.
func (s *WorkflowState) HasProcedureCode(code string) bool {
	for _, pc := range s.ProcedureCodes {
		if pc.Code == code {
			return true
		}
	}
	return false
}

// HasDiagnosisCode reports whether an ICD-10 code is already present.
func (s *WorkflowState) HasDiagnosisCode(code string) bool {
	for _, dc := range s.DiagnosisCodes {
		if dc.Code == code {
			return true
		}
	}
	return false
}

// HasCriticalError reports whether any accumulated error is CRITICAL.
func (s *WorkflowState) HasCriticalError() bool {
	for _, e := range s.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the state. Pathways receive clones so their
// sub-states stay independent until the union merge.
func (s *WorkflowState) Clone() *WorkflowState {
	out := *s

	out.CaseNotes.AdditionalNotes = append([]AdditionalNote(nil), s.CaseNotes.AdditionalNotes...)
	out.CandidateProcedureCodes = cloneProcedures(s.CandidateProcedureCodes)
	out.ProcedureCodes = cloneProcedures(s.ProcedureCodes)
	out.DiagnosisCodes = cloneDiagnoses(s.DiagnosisCodes)
	out.HCPCSCodes = append([]HCPCSCode(nil), s.HCPCSCodes...)
	out.FinalModifiers = append([]StandardizedModifier(nil), s.FinalModifiers...)
	out.ClaimSequence = append([]SequencedCode(nil), s.ClaimSequence...)
	out.CompletedSteps = append([]WorkflowStep(nil), s.CompletedSteps...)
	out.Errors = append([]ProcessingError(nil), s.Errors...)
	out.History = append([]HistoryEntry(nil), s.History...)
	out.AllEvidence = append([]StandardizedEvidence(nil), s.AllEvidence...)
	out.RVUCalculations = append([]RVUCalculation(nil), s.RVUCalculations...)

	if s.CCIResult != nil {
		cci := *s.CCIResult
		out.CCIResult = &cci
	}
	if s.MUEResult != nil {
		mue := *s.MUEResult
		out.MUEResult = &mue
	}
	if s.LCDResult != nil {
		lcd := *s.LCDResult
		out.LCDResult = &lcd
	}
	if s.RVUResult != nil {
		rvu := *s.RVUResult
		out.RVUResult = &rvu
	}
	if s.RVUSequencingResult != nil {
		seq := *s.RVUSequencingResult
		out.RVUSequencingResult = &seq
	}

	return &out
}

func cloneProcedures(in []EnhancedProcedureCode) []EnhancedProcedureCode {
	if in == nil {
		return nil
	}
	out := make([]EnhancedProcedureCode, len(in))
	copy(out, in)
	for i := range out {
		out[i].Evidence = append([]StandardizedEvidence(nil), in[i].Evidence...)
		out[i].ICD10Linked = append([]string(nil), in[i].ICD10Linked...)
	}
	return out
}

func cloneDiagnoses(in []EnhancedDiagnosisCode) []EnhancedDiagnosisCode {
	if in == nil {
		return nil
	}
	out := make([]EnhancedDiagnosisCode, len(in))
	copy(out, in)
	for i := range out {
		out[i].Evidence = append([]StandardizedEvidence(nil), in[i].Evidence...)
	}
	return out
}
