package agents

import (
	"context"
	"fmt"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

// LCDAgent evaluates local coverage determinations for the case's
// jurisdiction against the extracted codes and documentation.
type LCDAgent struct{}

// NewLCDAgent returns the coverage stage.
func NewLCDAgent() *LCDAgent { return &LCDAgent{} }

// Name implements agent.Agent.
func (a *LCDAgent) Name() models.AgentName { return models.AgentLCD }

// Description implements agent.Agent.
func (a *LCDAgent) Description() string {
	return "Evaluates local coverage determinations for the case jurisdiction"
}

// RequiredServices implements agent.Agent.
func (a *LCDAgent) RequiredServices() []string {
	return []string{services.ServiceLCD}
}

// Execute implements agent.Agent.
func (a *LCDAgent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.AgentResult, error) {
	if err := agent.RequireServices(ec.Services, a.RequiredServices()...); err != nil {
		return nil, fmt.Errorf("lcd coverage: %w", err)
	}
	codes := make([]string, 0, len(ec.State.ProcedureCodes))
	for _, pc := range ec.State.ProcedureCodes {
		codes = append(codes, pc.Code)
	}
	if len(codes) == 0 {
		return &agent.AgentResult{AgentName: models.AgentLCD, Success: true}, nil
	}

	result, err := ec.Services.LCD().Evaluate(ctx, codes, ec.State.CaseNotes.PrimaryNoteText, ec.State.CaseMeta.DateOfService)
	if err != nil {
		return nil, fmt.Errorf("lcd coverage: %w", err)
	}

	rationale := fmt.Sprintf("coverage evaluation for jurisdiction %s: %s across %d policies",
		result.Jurisdiction, result.OverallCoverageStatus, len(result.Evaluations))
	if result.BestMatch != nil {
		rationale += fmt.Sprintf(", best match %s", result.BestMatch.PolicyID)
	}

	return &agent.AgentResult{
		AgentName: models.AgentLCD,
		Success:   true,
		Data: &models.AgentData{
			Kind:      models.DataKindLCD,
			LCDResult: result,
		},
		Evidence: []models.StandardizedEvidence{{
			Rationale:   rationale,
			SourceAgent: models.AgentLCD,
			Confidence:  1.0,
			Content:     &models.EvidenceContent{Kind: models.ContentKindLCD},
		}},
		Metadata: agent.ResultMetadata{Confidence: 1.0},
	}, nil
}
