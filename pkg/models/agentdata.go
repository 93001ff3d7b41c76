package models

// AgentDataKind tags the variant of an agent result payload.
type AgentDataKind string

// Agent data kinds, one per stage.
const (
	DataKindCPT      AgentDataKind = "cpt"
	DataKindICD      AgentDataKind = "icd"
	DataKindCCI      AgentDataKind = "cci"
	DataKindLCD      AgentDataKind = "lcd"
	DataKindModifier AgentDataKind = "modifier"
	DataKindRVU      AgentDataKind = "rvu"
)

// AgentData is the tagged payload of an agent result. Only the fields for
// the tagged kind are expected to be set; the merger tolerates the legacy
// shapes (flattened CCI flags, agentSpecificData nesting, the old
// procedureCode modifier key) that predate the tagged layout.
type AgentData struct {
	Kind AgentDataKind `json:"kind,omitempty"`

	// CPT
	ProcedureCodes []EnhancedProcedureCode `json:"procedureCodes,omitempty"`
	HCPCSCodes     []HCPCSCode             `json:"hcpcsCodes,omitempty"`

	// ICD. LinkedDiagnoses maps CPT code → supporting ICD-10 codes and is
	// applied to procedureCodes[i].icd10Linked on merge.
	DiagnosisCodes  []EnhancedDiagnosisCode `json:"diagnosisCodes,omitempty"`
	LinkedDiagnoses map[string][]string     `json:"linkedDiagnoses,omitempty"`

	// CCI — either the nested result or the flattened legacy flags.
	CCIResult   *CCIResult   `json:"cciResult,omitempty"`
	MUEResult   *MUEResult   `json:"mueResult,omitempty"`
	PTPFlags    []PTPFlag    `json:"ptpFlags,omitempty"`
	MUEFlags    []MUEFlag    `json:"mueFlags,omitempty"`
	GlobalFlags []GlobalFlag `json:"globalFlags,omitempty"`

	// LCD
	LCDResult *LCDResult `json:"lcdResult,omitempty"`

	// MODIFIER
	FinalModifiers []StandardizedModifier `json:"finalModifiers,omitempty"`

	// RVU
	RVUResult           *RVUResult           `json:"rvuResult,omitempty"`
	RVUCalculations     []RVUCalculation     `json:"rvuCalculations,omitempty"`
	RVUSequencingResult *RVUSequencingResult `json:"rvuSequencingResult,omitempty"`

	// AgentSpecific is the tolerated legacy nesting: payloads that arrive
	// under an agentSpecificData envelope instead of at the top level.
	AgentSpecific *AgentData `json:"agentSpecificData,omitempty"`
}

// FlattenedCCI assembles a CCIResult from the legacy flattened flag arrays,
// or returns nil when no flags are present.
func (d *AgentData) FlattenedCCI() *CCIResult {
	if d == nil {
		return nil
	}
	if len(d.PTPFlags) == 0 && len(d.MUEFlags) == 0 && len(d.GlobalFlags) == 0 {
		return nil
	}
	result := &CCIResult{
		PTPFlags:    d.PTPFlags,
		MUEFlags:    d.MUEFlags,
		GlobalFlags: d.GlobalFlags,
	}
	result.Summary = SummarizeCCI(result)
	return result
}

// SummarizeCCI recomputes flag counts and the overall status from the flags.
func SummarizeCCI(r *CCIResult) CCISummary {
	summary := CCISummary{
		PTPViolations:    len(r.PTPFlags),
		MUEViolations:    len(r.MUEFlags),
		GlobalViolations: len(r.GlobalFlags),
		RVUViolations:    len(r.RVUFlags),
		OverallStatus:    CCIStatusPass,
	}
	hasWarning := false
	for _, f := range r.PTPFlags {
		switch f.Severity {
		case FlagSeverityError:
			summary.OverallStatus = CCIStatusFail
			return summary
		case FlagSeverityWarning:
			hasWarning = true
		}
	}
	for _, f := range r.MUEFlags {
		switch f.Severity {
		case FlagSeverityError:
			summary.OverallStatus = CCIStatusFail
			return summary
		case FlagSeverityWarning:
			hasWarning = true
		}
	}
	for _, f := range r.GlobalFlags {
		if f.Severity == FlagSeverityWarning || f.Severity == FlagSeverityError {
			hasWarning = true
		}
	}
	for _, f := range r.RVUFlags {
		if f.Severity == FlagSeverityWarning || f.Severity == FlagSeverityError {
			hasWarning = true
		}
	}
	if hasWarning {
		summary.OverallStatus = CCIStatusWarning
	}
	return summary
}
