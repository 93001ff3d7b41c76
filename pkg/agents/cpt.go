package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

const cptSystemPrompt = `You are a certified professional coder extracting CPT and HCPCS codes
from operative documentation. Reply with a single JSON object:
{"procedureCodes": [{"code": "", "description": "", "units": 1,
  "verbatimEvidence": [""], "rationale": "", "confidence": 0.0}],
 "hcpcsCodes": [{"code": "", "description": "", "units": 1,
  "verbatimEvidence": [""], "rationale": "", "confidence": 0.0}]}
Quote verbatimEvidence exactly from the note. Omit codes you cannot support.`

// extractedCode is the wire shape of one code in the model reply.
type extractedCode struct {
	Code             string   `json:"code"`
	Description      string   `json:"description"`
	Units            int      `json:"units"`
	VerbatimEvidence []string `json:"verbatimEvidence"`
	Rationale        string   `json:"rationale"`
	Confidence       float64  `json:"confidence"`
}

type cptReply struct {
	ProcedureCodes []extractedCode `json:"procedureCodes"`
	HCPCSCodes     []extractedCode `json:"hcpcsCodes"`
}

// CPTAgent extracts procedure and HCPCS codes from the case notes. It is
// the foundation stage; every pathway depends on its output.
type CPTAgent struct{}

// NewCPTAgent returns the CPT extraction stage.
func NewCPTAgent() *CPTAgent { return &CPTAgent{} }

// Name implements agent.Agent.
func (a *CPTAgent) Name() models.AgentName { return models.AgentCPT }

// Description implements agent.Agent.
func (a *CPTAgent) Description() string {
	return "Extracts CPT and HCPCS codes with verbatim evidence from the case notes"
}

// RequiredServices implements agent.Agent.
func (a *CPTAgent) RequiredServices() []string {
	return []string{services.ServiceAIModel}
}

// Execute implements agent.Agent.
func (a *CPTAgent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.AgentResult, error) {
	if err := agent.RequireServices(ec.Services, a.RequiredServices()...); err != nil {
		return nil, fmt.Errorf("cpt extraction: %w", err)
	}
	resp, err := ec.Services.AI().Chat(ctx, ec.Logger, services.ChatRequest{
		AgentName:    string(models.AgentCPT),
		SystemPrompt: cptSystemPrompt,
		UserPrompt:   buildNotePrompt(ec.State),
	})
	if err != nil {
		return nil, fmt.Errorf("cpt extraction: %w", err)
	}

	var reply cptReply
	if err := decodeModelJSON(resp.Content, &reply); err != nil {
		return nil, fmt.Errorf("cpt extraction: %w", err)
	}

	data := &models.AgentData{Kind: models.DataKindCPT}
	var evidence []models.StandardizedEvidence
	var confidenceSum float64

	for _, c := range reply.ProcedureCodes {
		if c.Code == "" {
			continue
		}
		units := c.Units
		if units == 0 {
			units = 1
		}
		ev := models.StandardizedEvidence{
			VerbatimEvidence: c.VerbatimEvidence,
			Rationale:        c.Rationale,
			SourceAgent:      models.AgentCPT,
			SourceNote:       models.NoteTypeOperative,
			Confidence:       c.Confidence,
		}
		data.ProcedureCodes = append(data.ProcedureCodes, models.EnhancedProcedureCode{
			Code:        c.Code,
			Description: c.Description,
			Units:       units,
			Evidence:    []models.StandardizedEvidence{ev},
		})
		evidence = append(evidence, ev)
		confidenceSum += c.Confidence
	}
	for _, c := range reply.HCPCSCodes {
		if c.Code == "" {
			continue
		}
		units := c.Units
		if units == 0 {
			units = 1
		}
		ev := models.StandardizedEvidence{
			VerbatimEvidence: c.VerbatimEvidence,
			Rationale:        c.Rationale,
			SourceAgent:      models.AgentCPT,
			SourceNote:       models.NoteTypeOperative,
			Confidence:       c.Confidence,
		}
		data.HCPCSCodes = append(data.HCPCSCodes, models.HCPCSCode{
			Code:        c.Code,
			Description: c.Description,
			Units:       units,
			Category:    models.HCPCSCategoryForCode(c.Code),
			Evidence:    []models.StandardizedEvidence{ev},
		})
		evidence = append(evidence, ev)
		confidenceSum += c.Confidence
	}

	result := &agent.AgentResult{
		AgentName: models.AgentCPT,
		Success:   true,
		Data:      data,
		Evidence:  evidence,
	}
	if n := len(evidence); n > 0 {
		result.Metadata.Confidence = confidenceSum / float64(n)
	}
	return result, nil
}

// buildNotePrompt folds the primary and additional notes into one prompt.
func buildNotePrompt(s *models.WorkflowState) string {
	var b strings.Builder
	b.WriteString("PRIMARY OPERATIVE NOTE:\n")
	b.WriteString(s.CaseNotes.PrimaryNoteText)
	for _, note := range s.CaseNotes.AdditionalNotes {
		fmt.Fprintf(&b, "\n\nADDITIONAL NOTE (%s):\n%s", note.Type, note.Text)
	}
	return b.String()
}
