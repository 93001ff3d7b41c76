package services

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcode-ai/opnote/pkg/models"
)

func TestCacheTTL(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	c.Set("k", "v")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCachePurge(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestBackendAssignmentDeterministic(t *testing.T) {
	svc := NewAIModelService(AIModelConfig{Provider: ProviderOpenAI})
	svc.RegisterBackends([]Backend{
		{Name: "east", Endpoint: "https://east.example.com"},
		{Name: "west", Endpoint: "https://west.example.com"},
	})

	first := svc.BackendFor("CPT")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, svc.BackendFor("CPT"))
	}
}

func TestBackendFallbackWithoutRegistrations(t *testing.T) {
	svc := NewAIModelService(AIModelConfig{Provider: ProviderLocal})
	b := svc.BackendFor("ICD")
	assert.Equal(t, "default", b.Name)
	assert.Equal(t, "http://localhost:11434/v1", b.Endpoint)
}

// scriptedClient returns a fixed completion.
type scriptedClient struct {
	content string
	err     error
	seen    []openai.ChatCompletionRequest
}

func (c *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.seen = append(c.seen, req)
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Content: c.content},
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func TestChatReportsUsage(t *testing.T) {
	client := &scriptedClient{content: "  {\"ok\": true}  "}
	svc := NewAIModelServiceWithClient(client, AIModelConfig{Provider: ProviderOpenAI, Model: "gpt-4o"})

	resp, err := svc.Chat(context.Background(), nil, ChatRequest{
		AgentName:    "CPT",
		SystemPrompt: "system",
		UserPrompt:   "user",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Content)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)

	require.Len(t, client.seen, 1)
	require.Len(t, client.seen[0].Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, client.seen[0].Messages[0].Role)
}

func TestCCICheckProcedures(t *testing.T) {
	svc := NewCCIDataService(nil, nil, nil)

	procedures := []models.EnhancedProcedureCode{
		{Code: "47562", Description: "chole", Units: 1},
		{Code: "76000", Description: "fluoro", Units: 3},
	}
	cci, mue, err := svc.CheckProcedures(context.Background(), procedures)
	require.NoError(t, err)

	// 47562/76000 is a modifier-indicator-1 edit → WARNING.
	require.Len(t, cci.PTPFlags, 1)
	assert.Equal(t, models.FlagSeverityWarning, cci.PTPFlags[0].Severity)
	assert.Contains(t, cci.PTPFlags[0].AllowedModifiers, "59")

	// 3 units of 76000 exceeds the MUE limit of 2 with MAI 3 → ERROR.
	require.Len(t, cci.MUEFlags, 1)
	assert.Equal(t, models.FlagSeverityError, cci.MUEFlags[0].Severity)
	assert.Equal(t, 3, cci.MUEFlags[0].ClaimedUnits)
	assert.Equal(t, models.CCIStatusFail, mue.Status)

	// 47562 carries a 90-day global period.
	require.NotEmpty(t, cci.GlobalFlags)
	assert.Equal(t, "47562", cci.GlobalFlags[0].Code)
}

func TestLCDEvaluate(t *testing.T) {
	svc := NewLCDService(nil, "", nil)
	assert.Equal(t, DefaultJurisdiction, svc.Jurisdiction())

	note := "Patient with symptomatic cholelithiasis underwent laparoscopic cholecystectomy for gallbladder disease."
	result, err := svc.Evaluate(context.Background(), []string{"47562"}, note, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "WI", result.Jurisdiction)
	require.NotEmpty(t, result.Evaluations)
	require.NotNil(t, result.BestMatch)
	assert.Equal(t, "L34555", result.BestMatch.PolicyID)
}

func TestLCDEvaluateUnmetCriteria(t *testing.T) {
	svc := NewLCDService(nil, "WI", nil)

	note := "Knee arthroscopy performed."
	result, err := svc.Evaluate(context.Background(), []string{"29881"}, note, time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.CoverageFail, result.OverallCoverageStatus)
	require.NotNil(t, result.BestMatch)
	assert.NotEmpty(t, result.BestMatch.UnmetCriteria)
}

func TestRVUCalculateAndSequence(t *testing.T) {
	svc := NewRVUDataService(nil, nil, nil)

	procedures := []models.EnhancedProcedureCode{
		{Code: "76000", Units: 1},
		{Code: "47562", Units: 1},
	}
	result, err := svc.Calculate(context.Background(), procedures, "WI")
	require.NoError(t, err)
	require.Len(t, result.Calculations, 2)

	for _, calc := range result.Calculations {
		assert.Equal(t, DefaultConversionFactor, calc.ConversionFactor)
	}

	seq := svc.Sequence(result.Calculations, procedures)
	require.Len(t, seq.SequencedCodes, 2)
	// Highest adjusted RVU sequences first.
	assert.Equal(t, "47562", seq.SequencedCodes[0].Code)
	assert.Greater(t, seq.TotalRVU, 0.0)
	// Secondary line takes the multiple-procedure reduction.
	assert.Less(t, seq.Calculations[1].PaymentAmount, seq.Calculations[0].PaymentAmount)
}

func TestRVUUnknownCodeFlagged(t *testing.T) {
	svc := NewRVUDataService(nil, nil, nil)
	result, err := svc.Calculate(context.Background(), []models.EnhancedProcedureCode{{Code: "00000"}}, "WI")
	require.NoError(t, err)
	require.Len(t, result.Calculations, 1)
	assert.Contains(t, result.Calculations[0].Flags, "no fee schedule entry")
	assert.Zero(t, result.Calculations[0].TotalAdjustedRVU)
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Healthy())

	err := r.Initialize(context.Background(), RegistryConfig{Jurisdiction: "WI"})
	require.NoError(t, err)
	assert.True(t, r.Healthy())
	assert.NotNil(t, r.AI())
	assert.NotNil(t, r.CCI())
	assert.Equal(t, "WI", r.LCD().Jurisdiction())

	assert.Error(t, r.Initialize(context.Background(), RegistryConfig{}))
}
