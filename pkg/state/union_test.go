package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcode-ai/opnote/pkg/models"
)

func baseState() *models.WorkflowState {
	s := models.NewWorkflowState("case-1")
	s.ProcedureCodes = []models.EnhancedProcedureCode{{
		Code: "47562", Description: "base description", Units: 1,
		Evidence: []models.StandardizedEvidence{{SourceAgent: models.AgentCPT}},
	}}
	return s
}

func TestUnionBaseWinsOnCollision(t *testing.T) {
	base := baseState()
	pathway := base.Clone()
	pathway.ProcedureCodes[0].Description = "pathway rewrote this"
	pathway.ProcedureCodes = append(pathway.ProcedureCodes, models.EnhancedProcedureCode{
		Code: "76000", Description: "fluoroscopy", Units: 1,
		Evidence: []models.StandardizedEvidence{{SourceAgent: models.AgentCPT}},
	})

	merged := Union(base, pathway, nil)

	require.Len(t, merged.ProcedureCodes, 2)
	assert.Equal(t, "base description", merged.ProcedureCodes[0].Description)
	assert.Equal(t, "76000", merged.ProcedureCodes[1].Code)
}

func TestUnionSingleWriterFields(t *testing.T) {
	base := baseState()
	pathway := base.Clone()
	pathway.LCDResult = &models.LCDResult{
		Jurisdiction:          "WI",
		OverallCoverageStatus: models.CoveragePass,
	}
	pathway.RVUResult = &models.RVUResult{ContractorLocality: "WI"}

	merged := Union(base, pathway, nil)
	require.NotNil(t, merged.LCDResult)
	assert.Equal(t, models.CoveragePass, merged.LCDResult.OverallCoverageStatus)
	require.NotNil(t, merged.RVUResult)

	// An existing base value is kept.
	base.LCDResult = &models.LCDResult{Jurisdiction: "IL", OverallCoverageStatus: models.CoverageFail}
	merged = Union(base, pathway, nil)
	assert.Equal(t, "IL", merged.LCDResult.Jurisdiction)
}

func TestUnionCommutativeForDisjointWriters(t *testing.T) {
	base := baseState()

	pa := base.Clone()
	pa.DiagnosisCodes = []models.EnhancedDiagnosisCode{{
		Code: "K80.20", Description: "cholelithiasis",
		Evidence: []models.StandardizedEvidence{{SourceAgent: models.AgentICD}},
	}}
	pa.LCDResult = &models.LCDResult{Jurisdiction: "WI", OverallCoverageStatus: models.CoveragePass}

	pb := base.Clone()
	pb.CCIResult = &models.CCIResult{Summary: models.CCISummary{OverallStatus: models.CCIStatusPass}}
	mod := "59"
	pb.FinalModifiers = []models.StandardizedModifier{{
		Modifier: &mod, LinkedCptCode: "47562",
		Description: "d", Rationale: "r", Classification: models.ClassificationPayment,
	}}

	ab := Union(Union(base, pa, base), pb, base)
	ba := Union(Union(base, pb, base), pa, base)

	assert.Equal(t, ab.ProcedureCodes, ba.ProcedureCodes)
	assert.Equal(t, ab.DiagnosisCodes, ba.DiagnosisCodes)
	assert.Equal(t, ab.FinalModifiers, ba.FinalModifiers)
	assert.Equal(t, ab.LCDResult, ba.LCDResult)
	assert.Equal(t, ab.CCIResult, ba.CCIResult)
	assert.ElementsMatch(t, ab.CompletedSteps, ba.CompletedSteps)
}

func TestUnionConcatenatesNewEntries(t *testing.T) {
	base := baseState()
	base.History = append(base.History, models.HistoryEntry{AgentName: models.AgentCPT, Action: "agent_execution"})

	pathway := base.Clone()
	pathway.History = append(pathway.History, models.HistoryEntry{AgentName: models.AgentICD, Action: "agent_execution"})
	pathway.AllEvidence = append(pathway.AllEvidence, models.StandardizedEvidence{SourceAgent: models.AgentICD})
	pathway.Errors = append(pathway.Errors, models.NewProcessingError("late", models.SeverityLow, "ICD"))

	merged := Union(base, pathway, nil)
	assert.Len(t, merged.History, len(base.History)+1)
	assert.Len(t, merged.AllEvidence, 1)
	assert.Len(t, merged.Errors, 1)
}

func TestUnionFoldKeepsEveryPathwayContribution(t *testing.T) {
	shared := baseState()
	shared.History = append(shared.History, models.HistoryEntry{AgentName: models.AgentCPT, Action: "agent_execution"})
	shared.AllEvidence = append(shared.AllEvidence, models.StandardizedEvidence{SourceAgent: models.AgentCPT})

	// The diagnosis pathway appends two entries, reimbursement one. The
	// fold base grows as each pathway merges; the later pathway's entries
	// must still survive.
	diagnosis := shared.Clone()
	diagnosis.History = append(diagnosis.History,
		models.HistoryEntry{AgentName: models.AgentICD, Action: "agent_execution"},
		models.HistoryEntry{AgentName: models.AgentLCD, Action: "agent_execution"})
	diagnosis.AllEvidence = append(diagnosis.AllEvidence,
		models.StandardizedEvidence{SourceAgent: models.AgentICD},
		models.StandardizedEvidence{SourceAgent: models.AgentLCD})
	diagnosis.Errors = append(diagnosis.Errors,
		models.NewProcessingError("model unavailable", models.SeverityHigh, "ICD"))

	reimbursement := shared.Clone()
	reimbursement.History = append(reimbursement.History,
		models.HistoryEntry{AgentName: models.AgentRVU, Action: "agent_execution"})
	reimbursement.AllEvidence = append(reimbursement.AllEvidence,
		models.StandardizedEvidence{SourceAgent: models.AgentRVU})

	merged := Union(Union(shared, diagnosis, shared), reimbursement, shared)

	require.Len(t, merged.History, 4)
	require.Len(t, merged.AllEvidence, 4)
	require.Len(t, merged.Errors, 1)

	agents := make(map[models.AgentName]bool)
	for _, h := range merged.History {
		agents[h.AgentName] = true
	}
	for _, name := range []models.AgentName{models.AgentCPT, models.AgentICD, models.AgentLCD, models.AgentRVU} {
		assert.True(t, agents[name], "history entry for %s", name)
	}
	assert.Equal(t, models.AgentRVU, merged.AllEvidence[3].SourceAgent)
}

func TestUnionUpdatedAtIsMax(t *testing.T) {
	base := baseState()
	pathway := base.Clone()
	pathway.UpdatedAt = base.UpdatedAt.Add(5 * time.Second)

	merged := Union(base, pathway, nil)
	assert.Equal(t, pathway.UpdatedAt, merged.UpdatedAt)
}

func TestUnionNilPathway(t *testing.T) {
	base := baseState()
	merged := Union(base, nil, nil)
	assert.Equal(t, base.ProcedureCodes, merged.ProcedureCodes)
}
