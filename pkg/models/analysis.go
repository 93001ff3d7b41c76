package models

import "time"

// FlagSeverity grades a compliance flag.
type FlagSeverity string

// Flag severity constants.
const (
	FlagSeverityError   FlagSeverity = "ERROR"
	FlagSeverityWarning FlagSeverity = "WARNING"
	FlagSeverityInfo    FlagSeverity = "INFO"
)

// CCIStatus is the overall outcome of a bundling check.
type CCIStatus string

// CCI status constants.
const (
	CCIStatusPass    CCIStatus = "PASS"
	CCIStatusFail    CCIStatus = "FAIL"
	CCIStatusWarning CCIStatus = "WARNING"
)

// PTPFlag reports a procedure-to-procedure bundling edit between two codes.
type PTPFlag struct {
	PrimaryCode       string       `json:"primaryCode"`
	SecondaryCode     string       `json:"secondaryCode"`
	Severity          FlagSeverity `json:"severity"`
	Message           string       `json:"message"`
	ModifierIndicator string       `json:"modifierIndicator,omitempty"`
	AllowedModifiers  []string     `json:"allowedModifiers,omitempty"`
}

// MUEFlag reports a medically-unlikely-edit units violation for one code.
type MUEFlag struct {
	Code         string       `json:"code"`
	ClaimedUnits int          `json:"claimedUnits"`
	MaxUnits     int          `json:"maxUnits"`
	MAI          int          `json:"mai,omitempty"`
	Severity     FlagSeverity `json:"severity"`
	Message      string       `json:"message"`
}

// GlobalFlag reports a global-period conflict for one code.
type GlobalFlag struct {
	Code                string       `json:"code"`
	GlobalDays          string       `json:"globalDays,omitempty"`
	Severity            FlagSeverity `json:"severity"`
	Message             string       `json:"message"`
	RecommendedModifier string       `json:"recommendedModifier,omitempty"`
}

// RVUFlag reports an RVU plausibility concern for one code.
type RVUFlag struct {
	Code     string       `json:"code"`
	Severity FlagSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// CCISummary aggregates flag counts and the overall bundling status.
type CCISummary struct {
	PTPViolations    int       `json:"ptpViolations"`
	MUEViolations    int       `json:"mueViolations"`
	GlobalViolations int       `json:"globalViolations"`
	RVUViolations    int       `json:"rvuViolations"`
	OverallStatus    CCIStatus `json:"overallStatus"`
}

// CCIResult is the bundling-check outcome for a case. Single-writer state
// field owned by the CCI stage.
type CCIResult struct {
	PTPFlags    []PTPFlag    `json:"ptpFlags,omitempty"`
	MUEFlags    []MUEFlag    `json:"mueFlags,omitempty"`
	GlobalFlags []GlobalFlag `json:"globalFlags,omitempty"`
	RVUFlags    []RVUFlag    `json:"rvuFlags,omitempty"`
	Summary     CCISummary   `json:"summary"`
	ProcessedAt time.Time    `json:"processedAt,omitempty"`
	DataSource  string       `json:"dataSource,omitempty"`
}

// MUEResult is the standalone units-check outcome, owned by the CCI stage.
type MUEResult struct {
	Flags       []MUEFlag `json:"flags,omitempty"`
	Status      CCIStatus `json:"status"`
	ProcessedAt time.Time `json:"processedAt,omitempty"`
}

// CoverageStatus is the coverage outcome of an LCD policy evaluation.
type CoverageStatus string

// Coverage status constants. Partial applies only to the overall status.
const (
	CoveragePass    CoverageStatus = "Pass"
	CoverageFail    CoverageStatus = "Fail"
	CoveragePartial CoverageStatus = "Partial"
	CoverageUnknown CoverageStatus = "Unknown"
)

// UnmetCriterion is a coverage criterion the documentation does not satisfy.
type UnmetCriterion struct {
	Criterion string       `json:"criterion"`
	Action    string       `json:"action,omitempty"`
	Severity  FlagSeverity `json:"severity"`
}

// PolicyEvaluation is the evaluation of one LCD policy against the case.
type PolicyEvaluation struct {
	PolicyID                string           `json:"policyId"`
	Title                   string           `json:"title"`
	RetrievalScore          float64          `json:"retrievalScore,omitempty"`
	Status                  CoverageStatus   `json:"status"`
	UnmetCriteria           []UnmetCriterion `json:"unmetCriteria,omitempty"`
	SpecificEvidence        []string         `json:"specificEvidence,omitempty"`
	AdditionalDocumentation []string         `json:"additionalDocumentation,omitempty"`
}

// LCDResult is the local-coverage outcome for a MAC jurisdiction and date.
// Single-writer state field owned by the LCD stage.
type LCDResult struct {
	Jurisdiction          string             `json:"jurisdiction"`
	DateOfService         time.Time          `json:"dateOfService,omitempty"`
	Evaluations           []PolicyEvaluation `json:"evaluations,omitempty"`
	BestMatch             *PolicyEvaluation  `json:"bestMatch,omitempty"`
	OverallCoverageStatus CoverageStatus     `json:"overallCoverageStatus"`
	CriticalIssues        []string           `json:"criticalIssues,omitempty"`
	Recommendations       []string           `json:"recommendations,omitempty"`
}

// GPCI holds the geographic practice cost indices for a locality.
type GPCI struct {
	Work float64 `json:"work"`
	PE   float64 `json:"pe"`
	MP   float64 `json:"mp"`
}

// RVUCalculation is the per-code payment computation.
type RVUCalculation struct {
	Code             string        `json:"code"`
	BaseRVU          RVUComponents `json:"baseRvu"`
	GPCI             GPCI          `json:"gpci"`
	AdjustedRVU      RVUComponents `json:"adjustedRvu"`
	TotalAdjustedRVU float64       `json:"totalAdjustedRvu"`
	ConversionFactor float64       `json:"conversionFactor"`
	PaymentAmount    float64       `json:"paymentAmount"`
	Flags            []string      `json:"flags,omitempty"`
}

// RVUResult is the RVU computation outcome, owned by the RVU stage.
type RVUResult struct {
	Calculations       []RVUCalculation `json:"calculations,omitempty"`
	ContractorLocality string           `json:"contractorLocality,omitempty"`
	ProcessedAt        time.Time        `json:"processedAt,omitempty"`
}

// SequencedCode is one line of the final claim sequence.
type SequencedCode struct {
	Code             string  `json:"code"`
	Rationale        string  `json:"rationale,omitempty"`
	TotalAdjustedRVU float64 `json:"totalAdjustedRvu"`
	Units            int     `json:"units,omitempty"`
}

// RVUSequencingResult is the final code ordering with per-line RVU totals,
// owned by the RVU stage.
type RVUSequencingResult struct {
	SequencedCodes      []SequencedCode  `json:"sequencedCodes,omitempty"`
	Calculations        []RVUCalculation `json:"calculations,omitempty"`
	SequencingRationale string           `json:"sequencingRationale,omitempty"`
	TotalRVU            float64          `json:"totalRvu"`
}
