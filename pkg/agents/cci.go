package agents

import (
	"context"
	"fmt"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

// CCIAgent runs the bundling checks (PTP edits, MUE limits, global-period
// review) against the extracted procedure codes. Pure reference-data work;
// no model call.
type CCIAgent struct{}

// NewCCIAgent returns the compliance stage.
func NewCCIAgent() *CCIAgent { return &CCIAgent{} }

// Name implements agent.Agent.
func (a *CCIAgent) Name() models.AgentName { return models.AgentCCI }

// Description implements agent.Agent.
func (a *CCIAgent) Description() string {
	return "Checks PTP bundling edits, MUE limits, and global periods"
}

// RequiredServices implements agent.Agent.
func (a *CCIAgent) RequiredServices() []string {
	return []string{services.ServiceCCIData}
}

// Execute implements agent.Agent.
func (a *CCIAgent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.AgentResult, error) {
	if err := agent.RequireServices(ec.Services, a.RequiredServices()...); err != nil {
		return nil, fmt.Errorf("cci validation: %w", err)
	}
	procedures := ec.State.ProcedureCodes
	if len(procedures) == 0 {
		// Nothing to validate is a success with no contribution.
		return &agent.AgentResult{AgentName: models.AgentCCI, Success: true}, nil
	}

	cciResult, mueResult, err := ec.Services.CCI().CheckProcedures(ctx, procedures)
	if err != nil {
		return nil, fmt.Errorf("cci validation: %w", err)
	}

	// Enrich procedure codes with MUE and global-period reference data.
	enriched := make([]models.EnhancedProcedureCode, 0, len(procedures))
	for _, pc := range procedures {
		ref, ok, err := ec.Services.CCI().Reference(ctx, pc.Code)
		if err != nil {
			return nil, fmt.Errorf("cci reference: %w", err)
		}
		if ok {
			pc.MUELimit = ref.MUELimit
			pc.MAI = ref.MAI
			pc.GlobalDays = ref.GlobalDays
			pc.StatusCode = ref.StatusCode
			if pc.OfficialDescription == "" {
				pc.OfficialDescription = ref.Description
			}
		}
		enriched = append(enriched, pc)
	}

	summary := cciResult.Summary
	evidence := []models.StandardizedEvidence{{
		Rationale: fmt.Sprintf("bundling review: %d PTP, %d MUE, %d global-period flags, status %s",
			summary.PTPViolations, summary.MUEViolations, summary.GlobalViolations, summary.OverallStatus),
		SourceAgent: models.AgentCCI,
		Confidence:  1.0,
		Content:     &models.EvidenceContent{Kind: models.ContentKindCCI},
	}}

	return &agent.AgentResult{
		AgentName: models.AgentCCI,
		Success:   true,
		Data: &models.AgentData{
			Kind:           models.DataKindCCI,
			ProcedureCodes: enriched,
			CCIResult:      cciResult,
			MUEResult:      mueResult,
		},
		Evidence: evidence,
		Metadata: agent.ResultMetadata{Confidence: 1.0},
	}, nil
}
