package models

// AgentName identifies an analysis stage. Evidence routing in the state
// merger keys off this value.
type AgentName string

// Agent name constants — the fixed set of analysis stages.
const (
	AgentCPT      AgentName = "CPT"
	AgentICD      AgentName = "ICD"
	AgentCCI      AgentName = "CCI"
	AgentLCD      AgentName = "LCD"
	AgentModifier AgentName = "MODIFIER"
	AgentRVU      AgentName = "RVU"

	// AgentSystem tags history entries written by the orchestrator itself.
	AgentSystem AgentName = "system"
)

// KnownAgents lists the agent stages in registration order.
var KnownAgents = []AgentName{AgentCPT, AgentICD, AgentCCI, AgentLCD, AgentModifier, AgentRVU}

// StandardizedEvidence is the unit of provenance attached to every derived
// fact. VerbatimEvidence excerpts are copied unmodified from a source note.
// Evidence is append-only once merged into state.
type StandardizedEvidence struct {
	VerbatimEvidence []string         `json:"verbatimEvidence,omitempty"`
	Rationale        string           `json:"rationale,omitempty"`
	SourceAgent      AgentName        `json:"sourceAgent"`
	SourceNote       NoteType         `json:"sourceNote,omitempty"`
	Confidence       float64          `json:"confidence" validate:"min=0,max=1"`
	Content          *EvidenceContent `json:"content,omitempty"`
}

// HasSubstance reports whether the evidence carries either a verbatim
// excerpt or a rationale. Used by the modifier validity predicate.
func (e StandardizedEvidence) HasSubstance() bool {
	return len(e.VerbatimEvidence) > 0 || e.Rationale != ""
}

// EvidenceContentKind tags the typed payload carried by an evidence entry.
type EvidenceContentKind string

// Evidence content kinds, one per producing stage.
const (
	ContentKindCPT      EvidenceContentKind = "cpt"
	ContentKindICD      EvidenceContentKind = "icd"
	ContentKindCCI      EvidenceContentKind = "cci"
	ContentKindLCD      EvidenceContentKind = "lcd"
	ContentKindModifier EvidenceContentKind = "modifier"
	ContentKindRVU      EvidenceContentKind = "rvu"
)

// EvidenceContent is the optional structured payload on an evidence entry,
// carrying the agent's typed domain data alongside the verbatim excerpts.
type EvidenceContent struct {
	Kind EvidenceContentKind `json:"kind,omitempty"`

	ProcedureCodes []EnhancedProcedureCode `json:"procedureCodes,omitempty"`
	DiagnosisCodes []EnhancedDiagnosisCode `json:"diagnosisCodes,omitempty"`
	HCPCSCodes     []HCPCSCode             `json:"hcpcsCodes,omitempty"`
	Modifiers      []StandardizedModifier  `json:"modifiers,omitempty"`
}
