package models

import "strings"

// ModifierClassification categorizes the billing effect of a modifier.
type ModifierClassification string

// Modifier classification constants — the four title-cased wire values.
const (
	ClassificationPricing       ModifierClassification = "Pricing"
	ClassificationPayment       ModifierClassification = "Payment"
	ClassificationLocation      ModifierClassification = "Location"
	ClassificationInformational ModifierClassification = "Informational"
)

// NormalizeClassification maps case-insensitive classification strings onto
// the four canonical title-cased values. Unknown values map to Informational.
func NormalizeClassification(raw string) ModifierClassification {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pricing":
		return ClassificationPricing
	case "payment":
		return ClassificationPayment
	case "location":
		return ClassificationLocation
	default:
		return ClassificationInformational
	}
}

// StandardizedModifier is a modifier recommendation for one CPT line.
// Modifier is nil when the agent determined no modifier applies.
//
// LinkedCptCode is the canonical link key; ProcedureCode is the legacy key
// still accepted by the merger's validity predicate.
type StandardizedModifier struct {
	Modifier              *string                `json:"modifier"`
	Description           string                 `json:"description"`
	Rationale             string                 `json:"rationale"`
	LinkedCptCode         string                 `json:"linkedCptCode,omitempty"`
	ProcedureCode         string                 `json:"procedureCode,omitempty"`
	Evidence              []StandardizedEvidence `json:"evidence,omitempty"`
	Classification        ModifierClassification `json:"classification"`
	RequiredDocumentation string                 `json:"requiredDocumentation,omitempty"`
	FeeAdjustment         string                 `json:"feeAdjustment,omitempty"`
	EditType              string                 `json:"editType,omitempty"`
	AppliesTo             string                 `json:"appliesTo,omitempty"`
}

// LinkedCode returns the canonical CPT link, falling back to the legacy
// procedureCode key.
func (m StandardizedModifier) LinkedCode() string {
	if m.LinkedCptCode != "" {
		return m.LinkedCptCode
	}
	return m.ProcedureCode
}

// ModifierValue returns the modifier string, or "" for a nil (no-modifier)
// recommendation. Used as part of the (linkedCptCode, modifier) dedup key.
func (m StandardizedModifier) ModifierValue() string {
	if m.Modifier == nil {
		return ""
	}
	return *m.Modifier
}
