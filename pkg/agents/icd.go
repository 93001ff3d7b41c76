package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

const icdSystemPrompt = `You are a certified professional coder selecting ICD-10-CM diagnosis
codes that establish medical necessity for the listed procedures. Reply
with a single JSON object:
{"diagnosisCodes": [{"code": "", "description": "", "linkedCptCode": "",
  "verbatimEvidence": [""], "rationale": "", "confidence": 0.0}],
 "linkedDiagnoses": {"<cptCode>": ["<icdCode>"]}}
Quote verbatimEvidence exactly from the note.`

type icdCode struct {
	Code             string   `json:"code"`
	Description      string   `json:"description"`
	LinkedCptCode    string   `json:"linkedCptCode"`
	VerbatimEvidence []string `json:"verbatimEvidence"`
	Rationale        string   `json:"rationale"`
	Confidence       float64  `json:"confidence"`
}

type icdReply struct {
	DiagnosisCodes  []icdCode           `json:"diagnosisCodes"`
	LinkedDiagnoses map[string][]string `json:"linkedDiagnoses"`
}

// ICDAgent selects diagnosis codes supporting the extracted procedures.
type ICDAgent struct{}

// NewICDAgent returns the ICD selection stage.
func NewICDAgent() *ICDAgent { return &ICDAgent{} }

// Name implements agent.Agent.
func (a *ICDAgent) Name() models.AgentName { return models.AgentICD }

// Description implements agent.Agent.
func (a *ICDAgent) Description() string {
	return "Selects ICD-10-CM diagnosis codes establishing medical necessity"
}

// RequiredServices implements agent.Agent.
func (a *ICDAgent) RequiredServices() []string {
	return []string{services.ServiceAIModel}
}

// Execute implements agent.Agent.
func (a *ICDAgent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.AgentResult, error) {
	if err := agent.RequireServices(ec.Services, a.RequiredServices()...); err != nil {
		return nil, fmt.Errorf("icd selection: %w", err)
	}
	var b strings.Builder
	b.WriteString("EXTRACTED PROCEDURES:\n")
	for _, pc := range ec.State.ProcedureCodes {
		fmt.Fprintf(&b, "- %s: %s\n", pc.Code, pc.Description)
	}
	b.WriteString("\n")
	b.WriteString(buildNotePrompt(ec.State))

	resp, err := ec.Services.AI().Chat(ctx, ec.Logger, services.ChatRequest{
		AgentName:    string(models.AgentICD),
		SystemPrompt: icdSystemPrompt,
		UserPrompt:   b.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("icd selection: %w", err)
	}

	var reply icdReply
	if err := decodeModelJSON(resp.Content, &reply); err != nil {
		return nil, fmt.Errorf("icd selection: %w", err)
	}

	data := &models.AgentData{
		Kind:            models.DataKindICD,
		LinkedDiagnoses: reply.LinkedDiagnoses,
	}
	var evidence []models.StandardizedEvidence
	var confidenceSum float64

	for _, c := range reply.DiagnosisCodes {
		if c.Code == "" {
			continue
		}
		ev := models.StandardizedEvidence{
			VerbatimEvidence: c.VerbatimEvidence,
			Rationale:        c.Rationale,
			SourceAgent:      models.AgentICD,
			SourceNote:       models.NoteTypeOperative,
			Confidence:       c.Confidence,
		}
		data.DiagnosisCodes = append(data.DiagnosisCodes, models.EnhancedDiagnosisCode{
			Code:          c.Code,
			Description:   c.Description,
			LinkedCptCode: c.LinkedCptCode,
			Evidence:      []models.StandardizedEvidence{ev},
		})
		evidence = append(evidence, ev)
		confidenceSum += c.Confidence
	}

	result := &agent.AgentResult{
		AgentName: models.AgentICD,
		Success:   true,
		Data:      data,
		Evidence:  evidence,
	}
	if n := len(evidence); n > 0 {
		result.Metadata.Confidence = confidenceSum / float64(n)
	}
	return result, nil
}
