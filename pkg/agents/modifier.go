package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

const modifierSystemPrompt = `You are a certified professional coder assigning CPT modifiers. You
receive the procedure lines, the bundling review, and the operative note.
Reply with a single JSON object:
{"modifiers": [{"modifier": "59", "linkedCptCode": "", "description": "",
  "rationale": "", "classification": "Payment", "feeAdjustment": "",
  "requiredDocumentation": "", "verbatimEvidence": [""], "confidence": 0.0}]}
Use a null modifier for lines where no modifier applies. classification is
one of Pricing, Payment, Location, Informational.`

type modifierReply struct {
	Modifiers []struct {
		Modifier              *string         `json:"modifier"`
		LinkedCptCode         string          `json:"linkedCptCode"`
		ProcedureCode         string          `json:"procedureCode"`
		Description           string          `json:"description"`
		Rationale             string          `json:"rationale"`
		Classification        string          `json:"classification"`
		FeeAdjustment         string          `json:"feeAdjustment"`
		RequiredDocumentation json.RawMessage `json:"requiredDocumentation"`
		VerbatimEvidence      []string        `json:"verbatimEvidence"`
		Confidence            float64         `json:"confidence"`
	} `json:"modifiers"`
}

// ModifierAgent assigns modifiers per CPT line, combining the model's
// judgment with the deterministic recommendations carried on compliance
// flags. It runs after the CCI stage in the compliance pathway.
type ModifierAgent struct{}

// NewModifierAgent returns the modifier assignment stage.
func NewModifierAgent() *ModifierAgent { return &ModifierAgent{} }

// Name implements agent.Agent.
func (a *ModifierAgent) Name() models.AgentName { return models.AgentModifier }

// Description implements agent.Agent.
func (a *ModifierAgent) Description() string {
	return "Assigns CPT modifiers per line from model judgment and compliance flags"
}

// RequiredServices implements agent.Agent.
func (a *ModifierAgent) RequiredServices() []string {
	return []string{services.ServiceAIModel}
}

// Execute implements agent.Agent.
func (a *ModifierAgent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.AgentResult, error) {
	if err := agent.RequireServices(ec.Services, a.RequiredServices()...); err != nil {
		return nil, fmt.Errorf("modifier assignment: %w", err)
	}
	if len(ec.State.ProcedureCodes) == 0 {
		return &agent.AgentResult{AgentName: models.AgentModifier, Success: true}, nil
	}

	resp, err := ec.Services.AI().Chat(ctx, ec.Logger, services.ChatRequest{
		AgentName:    string(models.AgentModifier),
		SystemPrompt: modifierSystemPrompt,
		UserPrompt:   buildModifierPrompt(ec.State),
	})
	if err != nil {
		return nil, fmt.Errorf("modifier assignment: %w", err)
	}

	var reply modifierReply
	if err := decodeModelJSON(resp.Content, &reply); err != nil {
		return nil, fmt.Errorf("modifier assignment: %w", err)
	}

	var modifiers []models.StandardizedModifier
	var evidence []models.StandardizedEvidence
	var confidenceSum float64

	for _, m := range reply.Modifiers {
		linked := m.LinkedCptCode
		if linked == "" {
			linked = m.ProcedureCode
		}
		if linked == "" {
			continue
		}
		ev := models.StandardizedEvidence{
			VerbatimEvidence: m.VerbatimEvidence,
			Rationale:        m.Rationale,
			SourceAgent:      models.AgentModifier,
			SourceNote:       models.NoteTypeOperative,
			Confidence:       m.Confidence,
		}
		modifiers = append(modifiers, models.StandardizedModifier{
			Modifier:              m.Modifier,
			LinkedCptCode:         linked,
			Description:           m.Description,
			Rationale:             m.Rationale,
			Classification:        models.NormalizeClassification(m.Classification),
			FeeAdjustment:         m.FeeAdjustment,
			RequiredDocumentation: decodeRequiredDocumentation(m.RequiredDocumentation),
			Evidence:              []models.StandardizedEvidence{ev},
		})
		evidence = append(evidence, ev)
		confidenceSum += m.Confidence
	}

	modifiers = append(modifiers, complianceModifiers(ec.State, existingKeys(modifiers))...)

	result := &agent.AgentResult{
		AgentName: models.AgentModifier,
		Success:   true,
		Data: &models.AgentData{
			Kind:           models.DataKindModifier,
			FinalModifiers: modifiers,
		},
		Evidence: evidence,
	}
	if n := len(evidence); n > 0 {
		result.Metadata.Confidence = confidenceSum / float64(n)
	}
	return result, nil
}

// decodeRequiredDocumentation tolerates the legacy boolean shape.
func decodeRequiredDocumentation(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil && b {
		return "documentation required"
	}
	return ""
}

func existingKeys(modifiers []models.StandardizedModifier) map[string]bool {
	keys := make(map[string]bool, len(modifiers))
	for _, m := range modifiers {
		keys[m.LinkedCode()+"|"+m.ModifierValue()] = true
	}
	return keys
}

// complianceModifiers turns the recommendations on global-period flags into
// modifier entries the model did not already propose.
func complianceModifiers(s *models.WorkflowState, seen map[string]bool) []models.StandardizedModifier {
	if s.CCIResult == nil {
		return nil
	}
	var out []models.StandardizedModifier
	for _, f := range s.CCIResult.GlobalFlags {
		if f.RecommendedModifier == "" || seen[f.Code+"|"+f.RecommendedModifier] {
			continue
		}
		mod := f.RecommendedModifier
		out = append(out, models.StandardizedModifier{
			Modifier:       &mod,
			LinkedCptCode:  f.Code,
			Description:    "global period modifier",
			Rationale:      f.Message,
			Classification: models.ClassificationPayment,
			Evidence: []models.StandardizedEvidence{{
				Rationale:   f.Message,
				SourceAgent: models.AgentModifier,
				Confidence:  1.0,
			}},
		})
		seen[f.Code+"|"+mod] = true
	}
	return out
}

func buildModifierPrompt(s *models.WorkflowState) string {
	var b strings.Builder
	b.WriteString("PROCEDURE LINES:\n")
	for _, pc := range s.ProcedureCodes {
		fmt.Fprintf(&b, "- %s: %s (units %d, global days %s)\n", pc.Code, pc.Description, pc.Units, pc.GlobalDays)
	}
	if s.CCIResult != nil {
		b.WriteString("\nBUNDLING REVIEW:\n")
		for _, f := range s.CCIResult.PTPFlags {
			fmt.Fprintf(&b, "- PTP %s/%s (%s): %s", f.PrimaryCode, f.SecondaryCode, f.Severity, f.Message)
			if len(f.AllowedModifiers) > 0 {
				fmt.Fprintf(&b, " [bypass modifiers: %s]", strings.Join(f.AllowedModifiers, ", "))
			}
			b.WriteString("\n")
		}
		for _, f := range s.CCIResult.MUEFlags {
			fmt.Fprintf(&b, "- MUE %s: %d of %d units (%s)\n", f.Code, f.ClaimedUnits, f.MaxUnits, f.Severity)
		}
		for _, f := range s.CCIResult.GlobalFlags {
			fmt.Fprintf(&b, "- GLOBAL %s: %s\n", f.Code, f.Message)
		}
	}
	if !s.CaseMeta.DateOfService.IsZero() {
		fmt.Fprintf(&b, "\nDATE OF SERVICE: %s\n", s.CaseMeta.DateOfService.Format(time.DateOnly))
	}
	b.WriteString("\n")
	b.WriteString(buildNotePrompt(s))
	return b.String()
}
