package state

import (
	"github.com/medcode-ai/opnote/pkg/models"
)

// Union merges a pathway sub-state into the base state after the parallel
// phase. Code-keyed collections union with the base entry winning on
// collision; evidence, history, and errors concatenate; single-writer
// analysis fields take the pathway value only when the base has none.
// shared is the snapshot every pathway cloned from: entries past its
// lengths are the pathway's own contributions. The base evolves as
// pathways fold in, so the prefix must come from shared, not base. A nil
// shared uses base, which is only correct for a single two-way union.
// No input is mutated.
func Union(base, pathway, shared *models.WorkflowState) *models.WorkflowState {
	out := base.Clone()
	if pathway == nil {
		return out
	}
	if shared == nil {
		shared = base
	}

	for _, pc := range pathway.ProcedureCodes {
		if !out.HasProcedureCode(pc.Code) {
			out.ProcedureCodes = append(out.ProcedureCodes, pc)
		}
	}
	for _, dc := range pathway.DiagnosisCodes {
		if !out.HasDiagnosisCode(dc.Code) {
			out.DiagnosisCodes = append(out.DiagnosisCodes, dc)
		}
	}
	for _, hc := range pathway.HCPCSCodes {
		if !hasHCPCS(out, hc.Code) {
			out.HCPCSCodes = append(out.HCPCSCodes, hc)
		}
	}
	for _, mod := range pathway.FinalModifiers {
		if !hasModifier(out, mod) {
			out.FinalModifiers = append(out.FinalModifiers, mod)
		}
	}

	// Pathway histories replay everything from the shared snapshot; only
	// the entries past that common prefix are new.
	if len(pathway.AllEvidence) > len(shared.AllEvidence) {
		out.AllEvidence = append(out.AllEvidence, pathway.AllEvidence[len(shared.AllEvidence):]...)
	}
	if len(pathway.History) > len(shared.History) {
		out.History = append(out.History, pathway.History[len(shared.History):]...)
	}
	if len(pathway.Errors) > len(shared.Errors) {
		out.Errors = append(out.Errors, pathway.Errors[len(shared.Errors):]...)
	}

	for _, step := range pathway.CompletedSteps {
		out.MarkStepCompleted(step)
	}

	if out.CCIResult == nil {
		out.CCIResult = pathway.CCIResult
	}
	if out.MUEResult == nil {
		out.MUEResult = pathway.MUEResult
	}
	if out.LCDResult == nil {
		out.LCDResult = pathway.LCDResult
	}
	if out.RVUResult == nil {
		out.RVUResult = pathway.RVUResult
	}
	if len(out.RVUCalculations) == 0 {
		out.RVUCalculations = append([]models.RVUCalculation(nil), pathway.RVUCalculations...)
	}
	if out.RVUSequencingResult == nil {
		out.RVUSequencingResult = pathway.RVUSequencingResult
	}
	if len(out.ClaimSequence) == 0 {
		out.ClaimSequence = append([]models.SequencedCode(nil), pathway.ClaimSequence...)
	}

	if pathway.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = pathway.UpdatedAt
	}
	return out
}
