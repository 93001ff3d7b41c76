package assembler

import (
	"fmt"
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
)

// Assemble projects the final state into a CaseOutput. It never panics
// through to the caller: a panic during projection is recovered into a
// minimal artifact with PartialData set.
func Assemble(s *models.WorkflowState) (out CaseOutput) {
	defer func() {
		if r := recover(); r != nil {
			out = minimalOutput(s, fmt.Sprintf("assembly panic: %v", r))
		}
	}()

	if s == nil {
		return minimalOutput(nil, "nil state")
	}

	out = CaseOutput{
		CaseID:              s.CaseMeta.CaseID,
		Status:              s.CaseMeta.Status,
		Encounter:           buildEncounter(s),
		ProcedureCodes:      buildProcedureCodes(s),
		HCPCSCodes:          buildHCPCSCodes(s),
		DiagnosisCodes:      append([]models.EnhancedDiagnosisCode{}, s.DiagnosisCodes...),
		ModifierSuggestions: append([]models.StandardizedModifier{}, s.FinalModifiers...),
		ModifiersByCode:     buildModifiersByCode(s),
		ComplianceIssues:    buildComplianceIssues(s),
		RVUSequencing:       buildRVUSequencing(s),
	}
	if s.CaseMeta.Status == models.CaseStatusError {
		out.PartialData = true
	}
	return out
}

// minimalOutput is the neutral artifact returned when projection cannot
// proceed. Every collection is non-nil so the external schema holds.
func minimalOutput(s *models.WorkflowState, reason string) CaseOutput {
	out := CaseOutput{
		Status:              models.CaseStatusError,
		Encounter:           Encounter{ServiceDate: time.Now(), EncounterDate: time.Now()},
		ProcedureCodes:      []OutputProcedureCode{},
		HCPCSCodes:          []OutputHCPCSCode{},
		DiagnosisCodes:      []models.EnhancedDiagnosisCode{},
		ModifierSuggestions: []models.StandardizedModifier{},
		ModifiersByCode:     map[string][]AppliedModifier{},
		ComplianceIssues:    []ComplianceIssue{},
		RVUSequencing:       RVUSequencing{SequencedCodes: []models.SequencedCode{}},
		PartialData:         true,
		TransformationError: reason,
	}
	if s != nil {
		out.CaseID = s.CaseMeta.CaseID
	}
	return out
}

func buildEncounter(s *models.WorkflowState) Encounter {
	serviceDate := s.CaseMeta.DateOfService
	if serviceDate.IsZero() {
		serviceDate = time.Now()
	}
	return Encounter{
		ServiceDate:   serviceDate,
		EncounterDate: serviceDate,
		PatientAge:    s.Demographics.Age,
		PatientGender: string(s.Demographics.Gender),
		FacilityType:  s.Demographics.FacilityType,
		ProviderType:  s.Demographics.ProviderType,
	}
}

// buildProcedureCodes substitutes RVUs from the sequencing calculations
// when present, falling back to the code's own RVU or zeros.
func buildProcedureCodes(s *models.WorkflowState) []OutputProcedureCode {
	calcByCode := make(map[string]models.RVUCalculation)
	if s.RVUSequencingResult != nil {
		for _, c := range s.RVUSequencingResult.Calculations {
			calcByCode[c.Code] = c
		}
	}
	modsByCode := make(map[string][]string)
	for _, m := range s.FinalModifiers {
		if m.Modifier != nil {
			modsByCode[m.LinkedCode()] = append(modsByCode[m.LinkedCode()], *m.Modifier)
		}
	}

	out := make([]OutputProcedureCode, 0, len(s.ProcedureCodes))
	for i, pc := range s.ProcedureCodes {
		line := OutputProcedureCode{
			Code:        pc.Code,
			Description: pc.Description,
			Units:       pc.Units,
			IsPrimary:   pc.IsPrimary || i == 0,
			Modifiers:   modsByCode[pc.Code],
			ICD10Linked: pc.ICD10Linked,
			Evidence:    pc.Evidence,
		}
		switch calc, ok := calcByCode[pc.Code]; {
		case ok:
			line.RVU = calc.AdjustedRVU
			line.PaymentAmount = calc.PaymentAmount
		case pc.RVU != nil:
			line.RVU = *pc.RVU
		}
		out = append(out, line)
	}
	return out
}

func buildHCPCSCodes(s *models.WorkflowState) []OutputHCPCSCode {
	out := make([]OutputHCPCSCode, 0, len(s.HCPCSCodes))
	for _, hc := range s.HCPCSCodes {
		quantity := hc.Units
		if quantity == 0 {
			quantity = 1
		}
		category := hc.Category
		if category == "" {
			category = models.HCPCSCategoryForCode(hc.Code)
		}
		out = append(out, OutputHCPCSCode{
			Code:        hc.Code,
			Description: hc.Description,
			Quantity:    quantity,
			Units:       "each",
			Category:    category,
		})
	}
	return out
}

func buildModifiersByCode(s *models.WorkflowState) map[string][]AppliedModifier {
	out := make(map[string][]AppliedModifier)
	for _, m := range s.FinalModifiers {
		if m.Modifier == nil {
			continue
		}
		code := m.LinkedCode()
		out[code] = append(out[code], AppliedModifier{
			Modifier:              *m.Modifier,
			Source:                "AI",
			Rationale:             m.Rationale,
			Timestamp:             s.UpdatedAt,
			Classification:        string(m.Classification),
			FeeAdjustment:         m.FeeAdjustment,
			Evidence:              m.Evidence,
			RequiredDocumentation: m.RequiredDocumentation,
		})
	}
	return out
}

func buildComplianceIssues(s *models.WorkflowState) []ComplianceIssue {
	issues := []ComplianceIssue{}
	if s.CCIResult != nil {
		for _, f := range s.CCIResult.PTPFlags {
			issue := ComplianceIssue{
				Type:          IssueTypeCCIEdit,
				Description:   f.Message,
				Severity:      string(f.Severity),
				AffectedCodes: []string{f.PrimaryCode, f.SecondaryCode},
			}
			if len(f.AllowedModifiers) > 0 {
				issue.Recommendation = fmt.Sprintf("a bypass modifier may apply: %v", f.AllowedModifiers)
			} else {
				issue.Recommendation = "codes are mutually exclusive; remove the secondary code"
			}
			issues = append(issues, issue)
		}
		for _, f := range s.CCIResult.MUEFlags {
			issues = append(issues, ComplianceIssue{
				Type:           IssueTypeMUE,
				Description:    f.Message,
				Severity:       string(f.Severity),
				AffectedCodes:  []string{f.Code},
				Recommendation: fmt.Sprintf("claimed %d units against a limit of %d", f.ClaimedUnits, f.MaxUnits),
			})
		}
		for _, f := range s.CCIResult.GlobalFlags {
			issue := ComplianceIssue{
				Type:          IssueTypeGlobalPeriod,
				Description:   f.Message,
				Severity:      string(f.Severity),
				AffectedCodes: []string{f.Code},
			}
			if f.RecommendedModifier != "" {
				issue.Recommendation = "append modifier " + f.RecommendedModifier
			}
			issues = append(issues, issue)
		}
		for _, f := range s.CCIResult.RVUFlags {
			issues = append(issues, ComplianceIssue{
				Type:          IssueTypeRVU,
				Description:   f.Message,
				Severity:      string(models.FlagSeverityWarning),
				AffectedCodes: []string{f.Code},
			})
		}
	}
	if s.LCDResult != nil && s.LCDResult.OverallCoverageStatus == models.CoverageFail {
		issues = append(issues, ComplianceIssue{
			Type:           IssueTypeLCD,
			Description:    "coverage criteria not met for jurisdiction " + s.LCDResult.Jurisdiction,
			Severity:       string(models.FlagSeverityWarning),
			Recommendation: firstOrEmpty(s.LCDResult.Recommendations),
		})
	}
	return issues
}

func buildRVUSequencing(s *models.WorkflowState) RVUSequencing {
	if s.RVUSequencingResult == nil {
		return RVUSequencing{SequencedCodes: []models.SequencedCode{}}
	}
	return RVUSequencing{
		SequencedCodes:      s.RVUSequencingResult.SequencedCodes,
		SequencingRationale: s.RVUSequencingResult.SequencingRationale,
		TotalRVU:            s.RVUSequencingResult.TotalRVU,
	}
}

func firstOrEmpty(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
