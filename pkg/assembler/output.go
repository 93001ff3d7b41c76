// Package assembler projects the final workflow state into the external
// CaseOutput artifact. Assembly is total: it never fails outright; any
// internal inconsistency yields a minimal artifact with partialData set
// and a transformation error string.
package assembler

import (
	"time"

	"github.com/medcode-ai/opnote/pkg/models"
)

// Compliance issue type strings on the wire.
const (
	IssueTypeCCIEdit      = "CCI Edit"
	IssueTypeMUE          = "MUE"
	IssueTypeGlobalPeriod = "Global Period"
	IssueTypeRVU          = "RVU"
	IssueTypeLCD          = "LCD"
)

// Encounter is the projected service context.
type Encounter struct {
	ServiceDate   time.Time `json:"serviceDate"`
	EncounterDate time.Time `json:"encounterDate"`
	PatientAge    int       `json:"patientAge,omitempty"`
	PatientGender string    `json:"patientGender,omitempty"`
	FacilityType  string    `json:"facilityType,omitempty"`
	ProviderType  string    `json:"providerType,omitempty"`
}

// OutputProcedureCode is one projected CPT line.
type OutputProcedureCode struct {
	Code          string                        `json:"code"`
	Description   string                        `json:"description"`
	Units         int                           `json:"units"`
	IsPrimary     bool                          `json:"isPrimary"`
	RVU           models.RVUComponents          `json:"rvu"`
	PaymentAmount float64                       `json:"paymentAmount,omitempty"`
	Modifiers     []string                      `json:"modifiers,omitempty"`
	ICD10Linked   []string                      `json:"icd10Linked,omitempty"`
	Evidence      []models.StandardizedEvidence `json:"evidence,omitempty"`
}

// OutputHCPCSCode is one projected HCPCS line.
type OutputHCPCSCode struct {
	Code        string               `json:"code"`
	Description string               `json:"description"`
	Quantity    int                  `json:"quantity"`
	Units       string               `json:"units"`
	Category    models.HCPCSCategory `json:"category"`
}

// AppliedModifier is one entry in the per-code modifier map.
type AppliedModifier struct {
	Modifier              string                        `json:"modifier"`
	Source                string                        `json:"source"`
	Rationale             string                        `json:"rationale"`
	Timestamp             time.Time                     `json:"timestamp"`
	Classification        string                        `json:"classification"`
	FeeAdjustment         string                        `json:"feeAdjustment,omitempty"`
	Evidence              []models.StandardizedEvidence `json:"evidence,omitempty"`
	RequiredDocumentation string                        `json:"requiredDocumentation,omitempty"`
}

// ComplianceIssue is one projected compliance finding.
type ComplianceIssue struct {
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	AffectedCodes  []string `json:"affectedCodes,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// RVUSequencing is the projected claim ordering.
type RVUSequencing struct {
	SequencedCodes      []models.SequencedCode `json:"sequencedCodes"`
	SequencingRationale string                 `json:"sequencingRationale,omitempty"`
	TotalRVU            float64                `json:"totalRVU"`
}

// ClinicalContextSummary is a placeholder narrative block.
type ClinicalContextSummary struct {
	Findings      string `json:"findings"`
	Procedure     string `json:"procedure"`
	Indication    string `json:"indication"`
	Complications string `json:"complications"`
}

// CaseOutput is the external artifact for one processed case.
type CaseOutput struct {
	CaseID                 string                         `json:"caseId"`
	Status                 models.CaseStatus              `json:"status"`
	Encounter              Encounter                      `json:"encounter"`
	ProcedureCodes         []OutputProcedureCode          `json:"procedureCodes"`
	HCPCSCodes             []OutputHCPCSCode              `json:"hcpcsCodes"`
	DiagnosisCodes         []models.EnhancedDiagnosisCode `json:"diagnosisCodes"`
	ModifierSuggestions    []models.StandardizedModifier  `json:"modifierSuggestions"`
	ModifiersByCode        map[string][]AppliedModifier   `json:"modifiersByCode"`
	ComplianceIssues       []ComplianceIssue              `json:"complianceIssues"`
	RVUSequencing          RVUSequencing                  `json:"rvuSequencing"`
	ClinicalContextSummary ClinicalContextSummary         `json:"clinicalContextSummary"`
	PartialData            bool                           `json:"partialData"`
	TransformationError    string                         `json:"transformationError,omitempty"`
}
