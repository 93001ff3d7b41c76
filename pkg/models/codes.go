package models

// RVUComponents is the work / practice-expense / malpractice decomposition
// of a relative value unit.
type RVUComponents struct {
	Work float64 `json:"work"`
	PE   float64 `json:"pe"`
	MP   float64 `json:"mp"`
}

// Total returns the sum of the three components.
func (r RVUComponents) Total() float64 {
	return r.Work + r.PE + r.MP
}

// EnhancedProcedureCode is a CPT code extracted from the case notes,
// progressively enriched by downstream agents.
type EnhancedProcedureCode struct {
	Code        string                 `json:"code"`
	Description string                 `json:"description"`
	Units       int                    `json:"units"`
	Evidence    []StandardizedEvidence `json:"evidence"`

	// Enrichment — optional, filled in by reference-data lookups.
	OfficialDescription        string   `json:"officialDescription,omitempty"`
	ShortDescription           string   `json:"shortDescription,omitempty"`
	IsPrimary                  bool     `json:"isPrimary,omitempty"`
	StatusCode                 string   `json:"statusCode,omitempty"`
	GlobalDays                 string   `json:"globalDays,omitempty"`
	MultipleProcedureIndicator string   `json:"multipleProcedureIndicator,omitempty"`
	BilateralIndicator         string   `json:"bilateralIndicator,omitempty"`
	AssistantSurgeon           string   `json:"assistantSurgeon,omitempty"`
	CoSurgeon                  string   `json:"coSurgeon,omitempty"`
	TeamSurgeon                string   `json:"teamSurgeon,omitempty"`
	TypeOfService              string   `json:"tos,omitempty"`
	BETOS                      string   `json:"betos,omitempty"`
	HierarchyPath              []string `json:"hierarchyPath,omitempty"`
	CodeHistory                []string `json:"codeHistory,omitempty"`

	ApplicableModifiers []string `json:"applicableModifiers,omitempty"`
	LinkedModifiers     []string `json:"linkedModifiers,omitempty"`
	ApplicableAddOns    []string `json:"applicableAddOns,omitempty"`
	LinkedAddOns        []string `json:"linkedAddOns,omitempty"`
	ApplicableICD10     []string `json:"applicableIcd10,omitempty"`
	ICD10Linked         []string `json:"icd10Linked,omitempty"`

	RVU      *RVUComponents `json:"rvu,omitempty"`
	MAI      int            `json:"mai,omitempty"`
	MUELimit int            `json:"mueLimit,omitempty"`
}

// EnhancedDiagnosisCode is an ICD-10 code selected for the case.
type EnhancedDiagnosisCode struct {
	Code          string                 `json:"code"`
	Description   string                 `json:"description"`
	Evidence      []StandardizedEvidence `json:"evidence"`
	LinkedCptCode string                 `json:"linkedCptCode,omitempty"`
}

// HCPCSCategory classifies a HCPCS code by supply type.
type HCPCSCategory string

// HCPCS category constants.
const (
	HCPCSCategoryDME            HCPCSCategory = "DME"
	HCPCSCategoryDrugs          HCPCSCategory = "Drugs"
	HCPCSCategorySupplies       HCPCSCategory = "Supplies"
	HCPCSCategoryTransportation HCPCSCategory = "Transportation"
	HCPCSCategoryOther          HCPCSCategory = "Other"
)

// HCPCSCategoryForCode derives the category from the code's first character:
// J→Drugs, E→DME, A→Supplies, T→Transportation, anything else→Other.
func HCPCSCategoryForCode(code string) HCPCSCategory {
	if code == "" {
		return HCPCSCategoryOther
	}
	switch code[0] {
	case 'J', 'j':
		return HCPCSCategoryDrugs
	case 'E', 'e':
		return HCPCSCategoryDME
	case 'A', 'a':
		return HCPCSCategorySupplies
	case 'T', 't':
		return HCPCSCategoryTransportation
	default:
		return HCPCSCategoryOther
	}
}

// HCPCSCode is a HCPCS Level II code (supplies, drugs, DME) for the case.
type HCPCSCode struct {
	Code        string                 `json:"code"`
	Description string                 `json:"description"`
	Evidence    []StandardizedEvidence `json:"evidence,omitempty"`
	Units       int                    `json:"units,omitempty"`
	Category    HCPCSCategory          `json:"category,omitempty"`
}
