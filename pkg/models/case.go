// Package models defines the shared data model for the billing workflow:
// case identity, notes, extracted codes, evidence, analysis results, and
// the workflow state mutated by the state merger.
package models

import (
	"strings"
	"time"
)

// ClaimType identifies the claim position for a case.
type ClaimType string

// Claim type constants.
const (
	ClaimTypePrimary   ClaimType = "primary"
	ClaimTypeSecondary ClaimType = "secondary"
	ClaimTypeTertiary  ClaimType = "tertiary"
)

// CaseStatus is the lifecycle status of a case.
type CaseStatus string

// Case status constants. Transitions: pending → processing → {completed, error}.
const (
	CaseStatusPending    CaseStatus = "pending"
	CaseStatusProcessing CaseStatus = "processing"
	CaseStatusCompleted  CaseStatus = "completed"
	CaseStatusError      CaseStatus = "error"
)

// CaseMeta holds the identity and lifecycle of a case.
// CaseID is immutable after state initialization.
type CaseMeta struct {
	CaseID        string     `json:"caseId" validate:"required"`
	PatientID     string     `json:"patientId,omitempty"`
	ProviderID    string     `json:"providerId,omitempty"`
	DateOfService time.Time  `json:"dateOfService,omitempty"`
	ClaimType     ClaimType  `json:"claimType,omitempty" validate:"omitempty,oneof=primary secondary tertiary"`
	Status        CaseStatus `json:"status"`
}

// NoteType classifies a clinical note.
type NoteType string

// Note type constants.
const (
	NoteTypeOperative NoteType = "operative"
	NoteTypeAdmission NoteType = "admission"
	NoteTypeDischarge NoteType = "discharge"
	NoteTypePathology NoteType = "pathology"
	NoteTypeProgress  NoteType = "progress"
	NoteTypeBedside   NoteType = "bedside"
)

// MaxPrimaryNoteLength bounds the primary note text, in code points.
const MaxPrimaryNoteLength = 100_000

// NormalizeNoteType maps free-form note type strings to the known set.
// Unknown types map to operative.
func NormalizeNoteType(raw string) NoteType {
	switch NoteType(strings.ToLower(strings.TrimSpace(raw))) {
	case NoteTypeAdmission:
		return NoteTypeAdmission
	case NoteTypeDischarge:
		return NoteTypeDischarge
	case NoteTypePathology:
		return NoteTypePathology
	case NoteTypeProgress:
		return NoteTypeProgress
	case NoteTypeBedside:
		return NoteTypeBedside
	default:
		return NoteTypeOperative
	}
}

// AdditionalNote is a supplementary note attached to a case.
type AdditionalNote struct {
	Type NoteType `json:"type"`
	Text string   `json:"text"`
}

// CaseNotes carries the clinical documentation for a case.
// Immutable after state initialization.
type CaseNotes struct {
	PrimaryNoteText string           `json:"primaryNoteText" validate:"required,max=100000"`
	AdditionalNotes []AdditionalNote `json:"additionalNotes,omitempty"`
}

// Gender enumerates patient gender codes.
type Gender string

// Gender constants.
const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

// Demographics holds patient and encounter descriptors. Defaults are set at
// state initialization and may be refined by agents.
type Demographics struct {
	Age               int    `json:"age,omitempty" validate:"omitempty,min=0,max=150"`
	Gender            Gender `json:"gender,omitempty" validate:"omitempty,oneof=M F O"`
	ZipCode           string `json:"zipCode,omitempty"`
	InsuranceType     string `json:"insuranceType,omitempty"`
	MembershipStatus  string `json:"membershipStatus,omitempty"`
	ProviderType      string `json:"providerType,omitempty"`
	ProviderSpecialty string `json:"providerSpecialty,omitempty"`
	FacilityType      string `json:"facilityType,omitempty"`
	FacilityName      string `json:"facilityName,omitempty"`
}
