// Package executor runs a single agent with a deadline, panic recovery,
// and a bounded retry policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/medcode-ai/opnote/pkg/agent"
	"github.com/medcode-ai/opnote/pkg/models"
	"github.com/medcode-ai/opnote/pkg/worklog"
)

// Default timing parameters. The modifier stage reasons across every CPT
// line and the full compliance output, so it gets a longer deadline.
const (
	DefaultTimeout     = 30 * time.Second
	ModifierTimeout    = 120 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
)

// RetryPolicy bounds re-execution after failures. Backoff is linear:
// BackoffBase * attempt.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration

	// ShouldRetry accepts or rejects a failure for retry. Nil means the
	// default predicate: retry anything except CRITICAL errors.
	ShouldRetry func(models.ProcessingError) bool
}

// DefaultRetryPolicy returns the standard bounded policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		BackoffBase: DefaultBackoffBase,
	}
}

func (p RetryPolicy) shouldRetry(e models.ProcessingError) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(e)
	}
	return e.Severity != models.SeverityCritical
}

// Executor runs agents under the configured policy.
type Executor struct {
	policy RetryPolicy
	logger *worklog.Logger
}

// New creates an executor. logger may be nil. MaxRetries is taken as
// given, so zero means a single attempt; use DefaultRetryPolicy for the
// standard bounds.
func New(policy RetryPolicy, logger *worklog.Logger) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = DefaultBackoffBase
	}
	return &Executor{policy: policy, logger: logger}
}

// TimeoutFor resolves the deadline for a stage: the registration override
// when positive, the modifier default for the modifier stage, otherwise
// the global default.
func TimeoutFor(name models.AgentName, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if name == models.AgentModifier {
		return ModifierTimeout
	}
	return DefaultTimeout
}

// Execute runs the agent until it produces a terminal outcome: a result
// envelope (successful or failed). The returned envelope is never nil.
// Parent-context cancellation stops the retry loop immediately.
func (e *Executor) Execute(ctx context.Context, a agent.Agent, ec agent.ExecutionContext, timeout time.Duration) *agent.AgentResult {
	name := a.Name()
	if timeout <= 0 {
		timeout = TimeoutFor(name, 0)
	}

	var lastFailure models.ProcessingError
	for attempt := 1; attempt <= e.policy.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return agent.FailureResult(name, cancellationError(name, err))
		}

		ec.Attempt = attempt
		start := time.Now()
		result, failure := e.runOnce(ctx, a, ec, timeout)
		elapsed := time.Since(start)

		if failure == nil {
			result.Metadata.ExecutionTime = elapsed
			result.Metadata.Attempt = attempt
			if e.logger != nil {
				e.logger.RecordAgentExecution(string(name), elapsed, result.Success)
			}
			return result
		}

		lastFailure = *failure
		if e.logger != nil {
			e.logger.RecordAgentExecution(string(name), elapsed, false)
			e.logger.Warn("Executor.Execute", fmt.Sprintf("agent %s attempt %d failed: %s", name, attempt, failure.Message), map[string]any{
				"agent":    string(name),
				"attempt":  attempt,
				"severity": string(failure.Severity),
			})
		}

		if attempt > e.policy.MaxRetries || !e.policy.shouldRetry(lastFailure) {
			break
		}
		backoff := e.policy.BackoffBase * time.Duration(attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return agent.FailureResult(name, cancellationError(name, ctx.Err()))
		}
	}

	failed := agent.FailureResult(name, lastFailure)
	failed.Metadata.Attempt = e.policy.MaxRetries + 1
	return failed
}

// runOnce performs one attempt under its own deadline. A non-nil failure
// means the attempt did not produce a usable envelope.
func (e *Executor) runOnce(parent context.Context, a agent.Agent, ec agent.ExecutionContext, timeout time.Duration) (result *agent.AgentResult, failure *models.ProcessingError) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	name := a.Name()
	defer func() {
		if r := recover(); r != nil {
			pe := models.NewProcessingError(
				fmt.Sprintf("agent %s panicked: %v", name, r),
				models.SeverityHigh, string(name),
			).WithCode(models.ErrCodeAgentExecutionFailed)
			pe.StackTrace = string(debug.Stack())
			result, failure = nil, &pe
		}
	}()

	res, err := a.Execute(ctx, ec)
	if err != nil {
		pe := classifyError(name, err, ctx, timeout)
		return nil, &pe
	}
	if res == nil {
		pe := models.NewProcessingError(
			fmt.Sprintf("agent %s returned no result", name),
			models.SeverityHigh, string(name),
		).WithCode(models.ErrCodeDataShape)
		return nil, &pe
	}
	res.AgentName = name
	return res, nil
}

// classifyError maps an execution error onto a processing error. Deadline
// expiry is HIGH severity and retryable; everything else defaults to HIGH
// with the generic execution code.
func classifyError(name models.AgentName, err error, ctx context.Context, timeout time.Duration) models.ProcessingError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewProcessingError(
			fmt.Sprintf("Operation timed out after %dms", timeout.Milliseconds()),
			models.SeverityHigh, string(name),
		).WithCode(models.ErrCodeAgentTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return cancellationError(name, err)
	}
	return models.NewProcessingError(
		fmt.Sprintf("agent %s failed: %v", name, err),
		models.SeverityHigh, string(name),
	).WithCode(models.ErrCodeAgentExecutionFailed)
}

// cancellationError is CRITICAL so the retry predicate rejects it and the
// workflow stops rather than retrying into a dead context.
func cancellationError(name models.AgentName, err error) models.ProcessingError {
	return models.NewProcessingError(
		fmt.Sprintf("agent %s cancelled: %v", name, err),
		models.SeverityCritical, string(name),
	).WithCode(models.ErrCodeAgentExecutionFailed)
}
