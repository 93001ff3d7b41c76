package worklog

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	return New("wf-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStepNumbersMonotonic(t *testing.T) {
	l := newTestLogger(t)

	l.Info("fn", "first", nil)
	l.Warn("fn", "second", nil)
	l.Workflow("fn", "third", nil)

	summary := l.GenerateExecutionSummary()
	require.Len(t, summary.ExecutionTrace, 3)
	for i, rec := range summary.ExecutionTrace {
		assert.Equal(t, i+1, rec.StepNumber)
		assert.Equal(t, "wf-test", rec.WorkflowID)
	}
	assert.Equal(t, 3, summary.TotalSteps)
}

func TestMessagesAndMetadataScrubbed(t *testing.T) {
	l := newTestLogger(t)

	l.Error("fn", "patient ssn 123-45-6789", map[string]any{
		"password": "secret",
		"contact":  "nurse@clinic.org",
	})

	trace := l.GenerateExecutionSummary().ExecutionTrace
	require.Len(t, trace, 1)
	assert.Equal(t, "patient ssn [SSN-REDACTED]", trace[0].Message)
	assert.Equal(t, "[REDACTED]", trace[0].Metadata["password"])
	assert.Equal(t, "[EMAIL-REDACTED]", trace[0].Metadata["contact"])
}

func TestExecutionSummaryAggregation(t *testing.T) {
	l := newTestLogger(t)

	l.RecordAgentExecution("CPT", 200*time.Millisecond, true)
	l.RecordAgentExecution("CPT", 100*time.Millisecond, false)
	l.RecordAgentExecution("RVU", 50*time.Millisecond, true)
	l.LogAIUsage("fn", "call", "CPT", AIUsage{InputTokens: 120, OutputTokens: 30})

	summary := l.GenerateExecutionSummary()
	assert.Equal(t, 3, summary.AgentExecutions)
	assert.Equal(t, 1, summary.APICalls)

	cpt := summary.PerAgent["CPT"]
	assert.Equal(t, 2, cpt.Executions)
	assert.Equal(t, 1, cpt.Failures)
	assert.Equal(t, 300*time.Millisecond, cpt.TotalTime)
	assert.Equal(t, 150, cpt.TotalTokens)
	assert.Equal(t, 1, cpt.APICalls)
}

func TestCloseDropsLaterRecords(t *testing.T) {
	l := newTestLogger(t)

	l.Info("fn", "kept", nil)
	l.Close()
	l.Info("fn", "dropped", nil)

	trace := l.GenerateExecutionSummary().ExecutionTrace
	require.Len(t, trace, 1)
	assert.Equal(t, "kept", trace[0].Message)
}

func TestLevelMapping(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, LevelWarn.slogLevel())
	assert.Equal(t, slog.LevelError, LevelError.slogLevel())
	assert.Equal(t, slog.LevelInfo, LevelPerformance.slogLevel())
	assert.Equal(t, slog.LevelInfo, LevelAIUsage.slogLevel())
	assert.Equal(t, slog.LevelDebug, LevelDebug.slogLevel())
}
