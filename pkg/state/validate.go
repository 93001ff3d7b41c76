package state

import (
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/medcode-ai/opnote/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidProcedureCode is the merge-time validity predicate for CPT entries:
// code and description present, evidence a sequence, units non-negative.
func ValidProcedureCode(pc models.EnhancedProcedureCode) bool {
	return pc.Code != "" && pc.Description != "" && pc.Evidence != nil && pc.Units >= 0
}

// ValidDiagnosisCode is the merge-time validity predicate for ICD entries.
func ValidDiagnosisCode(dc models.EnhancedDiagnosisCode) bool {
	return dc.Code != "" && dc.Description != "" && dc.Evidence != nil
}

// ValidModifier is the merge-time validity predicate for modifier entries.
// A nil Modifier (no-modifier recommendation) is valid; evidence entries,
// when present, must carry either a verbatim excerpt or a rationale.
func ValidModifier(m models.StandardizedModifier) bool {
	if m.LinkedCode() == "" {
		return false
	}
	if m.Description == "" || m.Rationale == "" {
		return false
	}
	switch m.Classification {
	case models.ClassificationPricing, models.ClassificationPayment,
		models.ClassificationLocation, models.ClassificationInformational:
	default:
		return false
	}
	for _, e := range m.Evidence {
		if !e.HasSubstance() {
			return false
		}
	}
	return true
}

// ValidateInitial checks state before any agent runs. A missing caseId is
// CRITICAL; a missing patientId is HIGH; demographics bounds are MEDIUM.
func ValidateInitial(s *models.WorkflowState) []models.ProcessingError {
	var errs []models.ProcessingError
	if s.CaseMeta.CaseID == "" {
		errs = append(errs, models.NewProcessingError(
			"caseId is required", models.SeverityCritical, "state_validation",
		).WithCode(models.ErrCodeValidationFailed))
	}
	if s.CaseMeta.PatientID == "" {
		errs = append(errs, models.NewProcessingError(
			"patientId is missing", models.SeverityHigh, "state_validation",
		).WithCode(models.ErrCodeValidationFailed))
	}
	if err := validate.Struct(s.Demographics); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, ve := range verrs {
				errs = append(errs, models.NewProcessingError(
					fmt.Sprintf("demographics field %s fails %s", ve.Field(), ve.Tag()),
					models.SeverityMedium, "state_validation",
				).WithCode(models.ErrCodeValidationFailed))
			}
		}
	}
	if utf8.RuneCountInString(s.CaseNotes.PrimaryNoteText) > models.MaxPrimaryNoteLength {
		errs = append(errs, models.NewProcessingError(
			"primary note exceeds maximum length", models.SeverityMedium, "state_validation",
		).WithCode(models.ErrCodeValidationFailed))
	}
	return errs
}

// ValidateFinal checks the assembled state after all agents ran. Findings
// are advisory (MEDIUM and below); they never fail the workflow alone.
func ValidateFinal(s *models.WorkflowState) []models.ProcessingError {
	var errs []models.ProcessingError
	if len(s.ProcedureCodes) == 0 && len(s.HCPCSCodes) == 0 {
		errs = append(errs, models.NewProcessingError(
			"no procedure or HCPCS codes extracted", models.SeverityMedium, "state_validation",
		).WithCode(models.ErrCodeValidationFailed))
	}
	if len(s.DiagnosisCodes) == 0 {
		errs = append(errs, models.NewProcessingError(
			"no diagnosis codes selected", models.SeverityMedium, "state_validation",
		).WithCode(models.ErrCodeValidationFailed))
	}
	if s.LCDResult != nil && s.LCDResult.OverallCoverageStatus == models.CoverageFail {
		errs = append(errs, models.NewProcessingError(
			"coverage evaluation failed for jurisdiction "+s.LCDResult.Jurisdiction,
			models.SeverityLow, "state_validation",
		).WithCode(models.ErrCodeValidationFailed))
	}
	for _, calc := range s.RVUCalculations {
		if calc.Code == "" || calc.TotalAdjustedRVU < 0 {
			errs = append(errs, models.NewProcessingError(
				"malformed RVU calculation", models.SeverityMedium, "state_validation",
			).WithCode(models.ErrCodeDataShape))
			break
		}
	}
	return errs
}
