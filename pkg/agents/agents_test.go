package agents

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/services"
)

// scriptedClient returns one canned completion per call.
type scriptedClient struct {
	replies []string
	calls   int
}

func (c *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	reply := c.replies[len(c.replies)-1]
	if c.calls < len(c.replies) {
		reply = c.replies[c.calls]
	}
	c.calls++
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Content: reply},
		}},
		Usage: openai.Usage{PromptTokens: 50, CompletionTokens: 20},
	}, nil
}

func testContext(t *testing.T, replies ...string) agent.ExecutionContext {
	t.Helper()
	registry := services.NewRegistry()
	require.NoError(t, registry.Initialize(context.Background(), services.RegistryConfig{Jurisdiction: "WI"}))
	if len(replies) > 0 {
		registry.SetAI(services.NewAIModelServiceWithClient(&scriptedClient{replies: replies}, services.AIModelConfig{}))
	}

	ws := models.NewWorkflowState("case-1")
	ws.CaseNotes.PrimaryNoteText = "Laparoscopic cholecystectomy for symptomatic cholelithiasis with chronic cholecystitis."
	return agent.ExecutionContext{State: ws, Services: registry}
}

func TestAgentsDeclareServiceDependencies(t *testing.T) {
	cases := []struct {
		a        agent.Agent
		requires string
	}{
		{NewCPTAgent(), services.ServiceAIModel},
		{NewICDAgent(), services.ServiceAIModel},
		{NewCCIAgent(), services.ServiceCCIData},
		{NewLCDAgent(), services.ServiceLCD},
		{NewModifierAgent(), services.ServiceAIModel},
		{NewRVUAgent(), services.ServiceRVUData},
	}
	for _, tc := range cases {
		assert.NotEmpty(t, tc.a.Description(), "agent %s", tc.a.Name())
		assert.Contains(t, tc.a.RequiredServices(), tc.requires, "agent %s", tc.a.Name())
	}
}

func TestAgentsFailWhenServicesMissing(t *testing.T) {
	// An uninitialized registry resolves nothing.
	ws := models.NewWorkflowState("case-1")
	ws.ProcedureCodes = []models.EnhancedProcedureCode{{Code: "47562", Description: "chole", Units: 1}}
	ec := agent.ExecutionContext{State: ws, Services: services.NewRegistry()}

	for _, a := range []agent.Agent{
		NewCPTAgent(), NewICDAgent(), NewCCIAgent(), NewLCDAgent(), NewModifierAgent(), NewRVUAgent(),
	} {
		_, err := a.Execute(context.Background(), ec)
		require.Error(t, err, "agent %s", a.Name())
		assert.Contains(t, err.Error(), "not available", "agent %s", a.Name())
	}
}

func TestDecodeModelJSON(t *testing.T) {
	var out map[string]any

	require.NoError(t, decodeModelJSON(`{"a": 1}`, &out))
	require.NoError(t, decodeModelJSON("```json\n{\"a\": 1}\n```", &out))
	require.NoError(t, decodeModelJSON("Here is the result:\n{\"a\": 1}", &out))
	assert.Error(t, decodeModelJSON("no json here", &out))
}

func TestCPTAgentParsesReply(t *testing.T) {
	ec := testContext(t, `{
		"procedureCodes": [
			{"code": "47562", "description": "Laparoscopic cholecystectomy", "units": 1,
			 "verbatimEvidence": ["laparoscopic cholecystectomy"], "rationale": "documented", "confidence": 0.95}
		],
		"hcpcsCodes": [
			{"code": "J1885", "description": "Ketorolac injection", "units": 1,
			 "verbatimEvidence": ["ketorolac 30mg IV"], "rationale": "administered", "confidence": 0.8}
		]
	}`)

	result, err := NewCPTAgent().Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, result.Data.ProcedureCodes, 1)
	assert.Equal(t, "47562", result.Data.ProcedureCodes[0].Code)
	assert.Equal(t, 1, result.Data.ProcedureCodes[0].Units)

	require.Len(t, result.Data.HCPCSCodes, 1)
	assert.Equal(t, models.HCPCSCategoryDrugs, result.Data.HCPCSCodes[0].Category)

	require.Len(t, result.Evidence, 2)
	for _, ev := range result.Evidence {
		assert.Equal(t, models.AgentCPT, ev.SourceAgent)
	}
	assert.InDelta(t, 0.875, result.Metadata.Confidence, 0.001)
}

func TestCPTAgentSkipsEmptyCodes(t *testing.T) {
	ec := testContext(t, `{"procedureCodes": [{"code": "", "description": "junk"}]}`)
	result, err := NewCPTAgent().Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Data.ProcedureCodes)
}

func TestICDAgentLinksDiagnoses(t *testing.T) {
	ec := testContext(t, `{
		"diagnosisCodes": [
			{"code": "K80.20", "description": "Calculus of gallbladder", "linkedCptCode": "47562",
			 "verbatimEvidence": ["symptomatic cholelithiasis"], "rationale": "principal indication", "confidence": 0.9}
		],
		"linkedDiagnoses": {"47562": ["K80.20"]}
	}`)
	ec.State.ProcedureCodes = []models.EnhancedProcedureCode{{Code: "47562", Description: "chole", Units: 1}}

	result, err := NewICDAgent().Execute(context.Background(), ec)
	require.NoError(t, err)

	require.Len(t, result.Data.DiagnosisCodes, 1)
	assert.Equal(t, "K80.20", result.Data.DiagnosisCodes[0].Code)
	assert.Equal(t, []string{"K80.20"}, result.Data.LinkedDiagnoses["47562"])
	assert.Equal(t, models.AgentICD, result.Evidence[0].SourceAgent)
}

func TestCCIAgentFlagsAndEnriches(t *testing.T) {
	ec := testContext(t)
	ec.State.ProcedureCodes = []models.EnhancedProcedureCode{
		{Code: "47562", Description: "chole", Units: 1},
		{Code: "76000", Description: "fluoro", Units: 1},
	}

	result, err := NewCCIAgent().Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.NotNil(t, result.Data.CCIResult)
	assert.NotEmpty(t, result.Data.CCIResult.PTPFlags)

	// Reference enrichment fills MUE and global-period data.
	for _, pc := range result.Data.ProcedureCodes {
		if pc.Code == "47562" {
			assert.Equal(t, 1, pc.MUELimit)
			assert.Equal(t, "090", pc.GlobalDays)
		}
	}
}

func TestCCIAgentNoProcedures(t *testing.T) {
	ec := testContext(t)
	result, err := NewCCIAgent().Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Data)
}

func TestLCDAgentEvaluatesCoverage(t *testing.T) {
	ec := testContext(t)
	ec.State.ProcedureCodes = []models.EnhancedProcedureCode{{Code: "47562", Description: "chole", Units: 1}}
	ec.State.CaseNotes.PrimaryNoteText = "Cholecystectomy for cholelithiasis and chronic cholecystitis of the gallbladder."

	result, err := NewLCDAgent().Execute(context.Background(), ec)
	require.NoError(t, err)

	require.NotNil(t, result.Data.LCDResult)
	assert.Equal(t, "WI", result.Data.LCDResult.Jurisdiction)
	assert.Equal(t, models.CoveragePass, result.Data.LCDResult.OverallCoverageStatus)
}

func TestModifierAgentCombinesModelAndComplianceOutput(t *testing.T) {
	ec := testContext(t, `{
		"modifiers": [
			{"modifier": "59", "linkedCptCode": "76000", "description": "Distinct procedural service",
			 "rationale": "separate session", "classification": "payment",
			 "requiredDocumentation": true, "verbatimEvidence": ["separate session"], "confidence": 0.8}
		]
	}`)
	ec.State.ProcedureCodes = []models.EnhancedProcedureCode{{Code: "76000", Description: "fluoro", Units: 1}}
	ec.State.CCIResult = &models.CCIResult{
		GlobalFlags: []models.GlobalFlag{{
			Code: "47562", Message: "staged return to OR", RecommendedModifier: "78",
		}},
	}

	result, err := NewModifierAgent().Execute(context.Background(), ec)
	require.NoError(t, err)

	require.Len(t, result.Data.FinalModifiers, 2)
	first := result.Data.FinalModifiers[0]
	assert.Equal(t, "59", *first.Modifier)
	assert.Equal(t, models.ClassificationPayment, first.Classification)
	assert.Equal(t, "documentation required", first.RequiredDocumentation)

	second := result.Data.FinalModifiers[1]
	assert.Equal(t, "78", *second.Modifier)
	assert.Equal(t, "47562", second.LinkedCptCode)
}

func TestRVUAgentCalculatesAndSequences(t *testing.T) {
	ec := testContext(t)
	ec.State.ProcedureCodes = []models.EnhancedProcedureCode{
		{Code: "47562", Description: "chole", Units: 1},
		{Code: "76000", Description: "fluoro", Units: 1},
	}

	result, err := NewRVUAgent().Execute(context.Background(), ec)
	require.NoError(t, err)

	require.NotNil(t, result.Data.RVUResult)
	require.NotNil(t, result.Data.RVUSequencingResult)
	assert.Len(t, result.Data.RVUCalculations, 2)
	assert.Equal(t, "47562", result.Data.RVUSequencingResult.SequencedCodes[0].Code)
	assert.Greater(t, result.Data.RVUSequencingResult.TotalRVU, 0.0)
}
