// Package state implements the deterministic merge rules that integrate
// agent results into workflow state, the inter-pathway union merge, and
// the initial/final state validations.
package state

import (
	"time"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
)

// Merger applies agent results to workflow state. It keeps a backup of
// ICD-produced diagnosis codes so a later agent that drops the diagnosis
// list cannot lose them.
type Merger struct {
	icdBackup []models.EnhancedDiagnosisCode
}

// NewMerger returns a merger with an empty backup.
func NewMerger() *Merger {
	return &Merger{}
}

// Merge integrates one agent result into a copy of the state and returns
// it. The input state is never mutated. Evidence, history, and errors only
// grow; analysis result fields are written only by their owning agent.
func (m *Merger) Merge(s *models.WorkflowState, result *agent.AgentResult, agentName models.AgentName) *models.WorkflowState {
	out := s.Clone()
	out.UpdatedAt = time.Now()

	if result == nil {
		out.History = append(out.History, models.HistoryEntry{
			AgentName: agentName,
			Timestamp: out.UpdatedAt,
			Action:    "agent_execution",
			Result:    models.HistoryFailure,
			Details:   map[string]any{"evidenceCount": 0},
		})
		return out
	}

	out.AllEvidence = append(out.AllEvidence, result.Evidence...)

	historyResult := models.HistorySuccess
	if !result.Success {
		historyResult = models.HistoryFailure
	}
	out.History = append(out.History, models.HistoryEntry{
		AgentName: agentName,
		Timestamp: out.UpdatedAt,
		Action:    "agent_execution",
		Result:    historyResult,
		Details: map[string]any{
			"evidenceCount": len(result.Evidence),
			"executionTime": result.Metadata.ExecutionTime.Milliseconds(),
			"confidence":    result.Metadata.Confidence,
		},
	})

	for _, e := range result.Errors {
		out.Errors = append(out.Errors, e.WithContext("agentName", string(agentName)))
	}

	data := effectiveData(result.Data)
	switch agentName {
	case models.AgentCPT:
		m.mergeCPT(out, data)
	case models.AgentICD:
		m.mergeICD(out, data)
	case models.AgentCCI:
		m.mergeCCI(out, data)
	case models.AgentLCD:
		m.mergeLCD(out, data)
	case models.AgentModifier:
		// handled by the shared modifier pass below
	case models.AgentRVU:
		m.mergeRVU(out, data)
	}

	// Modifier output may arrive from the modifier stage or nested under a
	// legacy envelope; valid entries append regardless of source stage.
	if data != nil && len(data.FinalModifiers) > 0 {
		m.mergeModifiers(out, data.FinalModifiers)
	}
	if data != nil && data.RVUSequencingResult != nil {
		out.RVUSequencingResult = data.RVUSequencingResult
	}

	if len(out.DiagnosisCodes) == 0 && len(m.icdBackup) > 0 {
		out.DiagnosisCodes = append([]models.EnhancedDiagnosisCode(nil), m.icdBackup...)
	}
	return out
}

// effectiveData unwraps the tolerated legacy agentSpecificData nesting.
func effectiveData(d *models.AgentData) *models.AgentData {
	if d == nil {
		return nil
	}
	if d.AgentSpecific != nil {
		return d.AgentSpecific
	}
	return d
}

func (m *Merger) mergeCPT(s *models.WorkflowState, data *models.AgentData) {
	if data == nil {
		return
	}
	for _, pc := range data.ProcedureCodes {
		if !ValidProcedureCode(pc) || s.HasProcedureCode(pc.Code) {
			continue
		}
		s.ProcedureCodes = append(s.ProcedureCodes, pc)
	}
	for _, hc := range data.HCPCSCodes {
		if hc.Code == "" || hasHCPCS(s, hc.Code) {
			continue
		}
		if hc.Category == "" {
			hc.Category = models.HCPCSCategoryForCode(hc.Code)
		}
		s.HCPCSCodes = append(s.HCPCSCodes, hc)
	}
}

func (m *Merger) mergeICD(s *models.WorkflowState, data *models.AgentData) {
	if data == nil || len(data.DiagnosisCodes) == 0 {
		// Empty diagnosis payloads are skipped outright; the backup from a
		// prior ICD merge still protects the state.
		if data != nil {
			m.applyLinkedDiagnoses(s, data.LinkedDiagnoses)
		}
		return
	}
	for _, dc := range data.DiagnosisCodes {
		if !ValidDiagnosisCode(dc) || s.HasDiagnosisCode(dc.Code) {
			continue
		}
		s.DiagnosisCodes = append(s.DiagnosisCodes, dc)
	}
	m.applyLinkedDiagnoses(s, data.LinkedDiagnoses)
	m.icdBackup = append([]models.EnhancedDiagnosisCode(nil), s.DiagnosisCodes...)
}

func (m *Merger) applyLinkedDiagnoses(s *models.WorkflowState, linked map[string][]string) {
	if len(linked) == 0 {
		return
	}
	for i := range s.ProcedureCodes {
		codes, ok := linked[s.ProcedureCodes[i].Code]
		if !ok {
			continue
		}
		for _, icd := range codes {
			if !containsString(s.ProcedureCodes[i].ICD10Linked, icd) {
				s.ProcedureCodes[i].ICD10Linked = append(s.ProcedureCodes[i].ICD10Linked, icd)
			}
		}
	}
}

func (m *Merger) mergeCCI(s *models.WorkflowState, data *models.AgentData) {
	if data == nil {
		return
	}
	// Enriched codes from the compliance pass replace matching entries.
	for _, pc := range data.ProcedureCodes {
		if !ValidProcedureCode(pc) {
			continue
		}
		replaced := false
		for i := range s.ProcedureCodes {
			if s.ProcedureCodes[i].Code == pc.Code {
				s.ProcedureCodes[i] = pc
				replaced = true
				break
			}
		}
		if !replaced {
			s.ProcedureCodes = append(s.ProcedureCodes, pc)
		}
	}
	for _, dc := range data.DiagnosisCodes {
		if !ValidDiagnosisCode(dc) || s.HasDiagnosisCode(dc.Code) {
			continue
		}
		s.DiagnosisCodes = append(s.DiagnosisCodes, dc)
	}

	switch {
	case data.CCIResult != nil:
		s.CCIResult = data.CCIResult
	default:
		if flattened := data.FlattenedCCI(); flattened != nil {
			s.CCIResult = flattened
		}
	}
	if data.MUEResult != nil {
		s.MUEResult = data.MUEResult
	}
}

func (m *Merger) mergeLCD(s *models.WorkflowState, data *models.AgentData) {
	if data == nil || data.LCDResult == nil {
		return
	}
	s.LCDResult = data.LCDResult
}

func (m *Merger) mergeRVU(s *models.WorkflowState, data *models.AgentData) {
	if data == nil {
		return
	}
	if data.RVUResult != nil {
		s.RVUResult = data.RVUResult
	}
	s.RVUCalculations = append(s.RVUCalculations, data.RVUCalculations...)
}

func (m *Merger) mergeModifiers(s *models.WorkflowState, modifiers []models.StandardizedModifier) {
	for _, mod := range modifiers {
		if !ValidModifier(mod) || hasModifier(s, mod) {
			continue
		}
		s.FinalModifiers = append(s.FinalModifiers, mod)
	}
}

func hasHCPCS(s *models.WorkflowState, code string) bool {
	for _, hc := range s.HCPCSCodes {
		if hc.Code == code {
			return true
		}
	}
	return false
}

// hasModifier dedupes on the (linkedCptCode, modifier) pair.
func hasModifier(s *models.WorkflowState, mod models.StandardizedModifier) bool {
	for _, existing := range s.FinalModifiers {
		if existing.LinkedCode() == mod.LinkedCode() && existing.ModifierValue() == mod.ModifierValue() {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
