package agents

import (
	"context"
	"fmt"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

// RVUAgent computes adjusted RVUs and payments per procedure line and
// sequences the claim. Pure fee-schedule work; no model call.
type RVUAgent struct{}

// NewRVUAgent returns the RVU calculation stage.
func NewRVUAgent() *RVUAgent { return &RVUAgent{} }

// Name implements agent.Agent.
func (a *RVUAgent) Name() models.AgentName { return models.AgentRVU }

// Description implements agent.Agent.
func (a *RVUAgent) Description() string {
	return "Computes adjusted RVUs and payments and sequences the claim"
}

// RequiredServices implements agent.Agent.
func (a *RVUAgent) RequiredServices() []string {
	return []string{services.ServiceRVUData, services.ServiceLCD}
}

// Execute implements agent.Agent.
func (a *RVUAgent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.AgentResult, error) {
	if err := agent.RequireServices(ec.Services, a.RequiredServices()...); err != nil {
		return nil, fmt.Errorf("rvu calculation: %w", err)
	}
	procedures := ec.State.ProcedureCodes
	if len(procedures) == 0 {
		return &agent.AgentResult{AgentName: models.AgentRVU, Success: true}, nil
	}

	locality := ec.Services.LCD().Jurisdiction()
	result, err := ec.Services.RVU().Calculate(ctx, procedures, locality)
	if err != nil {
		return nil, fmt.Errorf("rvu calculation: %w", err)
	}
	sequencing := ec.Services.RVU().Sequence(result.Calculations, procedures)

	return &agent.AgentResult{
		AgentName: models.AgentRVU,
		Success:   true,
		Data: &models.AgentData{
			Kind:                models.DataKindRVU,
			RVUResult:           result,
			RVUCalculations:     result.Calculations,
			RVUSequencingResult: sequencing,
		},
		Evidence: []models.StandardizedEvidence{{
			Rationale: fmt.Sprintf("computed adjusted RVUs for %d codes in locality %s, total %.2f",
				len(result.Calculations), locality, sequencing.TotalRVU),
			SourceAgent: models.AgentRVU,
			Confidence:  1.0,
			Content:     &models.EvidenceContent{Kind: models.ContentKindRVU},
		}},
		Metadata: agent.ResultMetadata{Confidence: 1.0},
	}, nil
}
