package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BackoffBase: time.Millisecond}
}

func TestExecuteSuccess(t *testing.T) {
	stub := agent.NewStubAgent(models.AgentCPT)
	exec := New(fastPolicy(), nil)

	result := exec.Execute(context.Background(), stub, agent.ExecutionContext{}, time.Second)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, models.AgentCPT, result.AgentName)
	assert.Equal(t, 1, result.Metadata.Attempt)
	assert.Equal(t, 1, stub.Calls())
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	stub := agent.NewStubAgent(models.AgentICD)
	stub.Errs = []error{errors.New("transient"), nil}
	stub.Results = []*agent.AgentResult{
		nil,
		{AgentName: models.AgentICD, Success: true},
	}
	exec := New(fastPolicy(), nil)

	result := exec.Execute(context.Background(), stub, agent.ExecutionContext{}, time.Second)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Metadata.Attempt)
	assert.Equal(t, 2, stub.Calls())
}

func TestExecuteExhaustsRetries(t *testing.T) {
	stub := agent.NewStubAgent(models.AgentICD)
	stub.Errs = []error{errors.New("permanent")}
	stub.Results = []*agent.AgentResult{nil}
	exec := New(fastPolicy(), nil)

	result := exec.Execute(context.Background(), stub, agent.ExecutionContext{}, time.Second)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrCodeAgentExecutionFailed, result.Errors[0].Code)
	assert.Equal(t, 3, stub.Calls()) // initial + 2 retries
}

func TestExecuteCriticalNotRetried(t *testing.T) {
	calls := 0
	critical := &criticalAgent{onCall: func() { calls++ }}
	exec := New(fastPolicy(), nil)

	result := exec.Execute(context.Background(), critical, agent.ExecutionContext{}, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.SeverityCritical, result.Errors[0].Severity)
}

// criticalAgent surfaces a cancellation error, which classifies as
// CRITICAL and must not be retried.
type criticalAgent struct {
	onCall func()
}

func (a *criticalAgent) Name() models.AgentName { return models.AgentCPT }

func (a *criticalAgent) Description() string { return "always reports cancellation" }

func (a *criticalAgent) RequiredServices() []string { return nil }

func (a *criticalAgent) Execute(ctx context.Context, _ agent.ExecutionContext) (*agent.AgentResult, error) {
	a.onCall()
	return nil, context.Canceled
}

func TestExecuteZeroRetriesRunsOnce(t *testing.T) {
	stub := agent.NewStubAgent(models.AgentICD)
	stub.Errs = []error{errors.New("permanent")}
	stub.Results = []*agent.AgentResult{nil}
	exec := New(RetryPolicy{MaxRetries: 0, BackoffBase: time.Millisecond}, nil)

	result := exec.Execute(context.Background(), stub, agent.ExecutionContext{}, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, 1, stub.Calls())
}

func TestExecuteTimeout(t *testing.T) {
	stub := agent.NewStubAgent(models.AgentLCD)
	stub.Delay = 200 * time.Millisecond
	policy := fastPolicy()
	policy.ShouldRetry = func(models.ProcessingError) bool { return false }
	exec := New(policy, nil)

	result := exec.Execute(context.Background(), stub, agent.ExecutionContext{}, 20*time.Millisecond)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.ErrCodeAgentTimeout, result.Errors[0].Code)
	assert.Equal(t, models.SeverityHigh, result.Errors[0].Severity)
	assert.Equal(t, "Operation timed out after 20ms", result.Errors[0].Message)
}

func TestExecuteTimeoutIsRetryable(t *testing.T) {
	stub := agent.NewStubAgent(models.AgentLCD)
	stub.Delay = 100 * time.Millisecond
	exec := New(RetryPolicy{MaxRetries: 1, BackoffBase: time.Millisecond}, nil)

	result := exec.Execute(context.Background(), stub, agent.ExecutionContext{}, 10*time.Millisecond)

	assert.False(t, result.Success)
	assert.Equal(t, 2, stub.Calls())
}

func TestExecuteRecoversPanic(t *testing.T) {
	stub := agent.NewStubAgent(models.AgentRVU)
	stub.PanicMessage = "index out of range"
	policy := fastPolicy()
	policy.ShouldRetry = func(models.ProcessingError) bool { return false }
	exec := New(policy, nil)

	result := exec.Execute(context.Background(), stub, agent.ExecutionContext{}, time.Second)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "panicked")
	assert.NotEmpty(t, result.Errors[0].StackTrace)
}

func TestExecuteParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := agent.NewStubAgent(models.AgentCPT)
	exec := New(fastPolicy(), nil)

	result := exec.Execute(ctx, stub, agent.ExecutionContext{}, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, models.SeverityCritical, result.Errors[0].Severity)
	assert.Equal(t, 0, stub.Calls())
}

func TestTimeoutFor(t *testing.T) {
	assert.Equal(t, DefaultTimeout, TimeoutFor(models.AgentCPT, 0))
	assert.Equal(t, ModifierTimeout, TimeoutFor(models.AgentModifier, 0))
	assert.Equal(t, 5*time.Second, TimeoutFor(models.AgentModifier, 5*time.Second))
}
