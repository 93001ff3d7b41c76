// Package worklog implements the workflow logger: leveled structured
// records with monotonic step numbers, PII scrubbing applied before any
// sink sees a message, and a per-run execution summary.
//
// The entry point constructs and closes the logger; the orchestrator and
// agents only borrow it.
package worklog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/medcode-ai/opnote/pkg/masking"
)

// Level is the workflow log level. Beyond the standard levels, the
// contract carries PERFORMANCE, WORKFLOW, and AI_USAGE records.
type Level string

// Log level constants.
const (
	LevelTrace       Level = "TRACE"
	LevelDebug       Level = "DEBUG"
	LevelInfo        Level = "INFO"
	LevelWarn        Level = "WARN"
	LevelError       Level = "ERROR"
	LevelPerformance Level = "PERFORMANCE"
	LevelWorkflow    Level = "WORKFLOW"
	LevelAIUsage     Level = "AI_USAGE"
)

// slogLevel maps workflow levels onto slog levels for the emit path.
// The specialty levels log at INFO with their own level attribute.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelTrace:
		return slog.LevelDebug - 4
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PerformanceMetrics is the optional timing payload on a record.
type PerformanceMetrics struct {
	DurationMs int64  `json:"durationMs"`
	Operation  string `json:"operation,omitempty"`
}

// AIUsage is the optional model-usage payload on a record.
type AIUsage struct {
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
}

// Record is one structured log entry. Timestamps serialize as RFC 3339.
type Record struct {
	Timestamp          time.Time           `json:"timestamp"`
	Level              Level               `json:"level"`
	WorkflowID         string              `json:"workflowId"`
	StepNumber         int                 `json:"stepNumber"`
	FunctionName       string              `json:"functionName"`
	Message            string              `json:"message"`
	Metadata           map[string]any      `json:"metadata,omitempty"`
	PerformanceMetrics *PerformanceMetrics `json:"performanceMetrics,omitempty"`
	AIUsage            *AIUsage            `json:"aiUsage,omitempty"`
}

// agentStats accumulates per-agent metrics for the execution summary.
type agentStats struct {
	Executions  int           `json:"executions"`
	Failures    int           `json:"failures"`
	TotalTime   time.Duration `json:"totalTime"`
	APICalls    int           `json:"apiCalls"`
	TotalTokens int           `json:"totalTokens"`
}

// Logger is a per-run workflow logger. Safe for concurrent use by the
// pathway goroutines; step numbers are globally monotonic within the run.
type Logger struct {
	workflowID string
	scrubber   *masking.Scrubber
	out        *slog.Logger
	startedAt  time.Time

	mu       sync.Mutex
	step     int
	trace    []Record
	agents   map[string]*agentStats
	apiCalls int
	closed   bool
}

// New creates a workflow logger. out may be nil, in which case records are
// emitted through slog.Default().
func New(workflowID string, out *slog.Logger) *Logger {
	if out == nil {
		out = slog.Default()
	}
	return &Logger{
		workflowID: workflowID,
		scrubber:   masking.NewScrubber(),
		out:        out.With("workflow_id", workflowID),
		startedAt:  time.Now(),
		agents:     make(map[string]*agentStats),
	}
}

// WorkflowID returns the run identifier this logger is bound to.
func (l *Logger) WorkflowID() string {
	return l.workflowID
}

// Trace logs at TRACE level.
func (l *Logger) Trace(functionName, message string, metadata map[string]any) {
	l.log(LevelTrace, functionName, message, metadata, nil, nil)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(functionName, message string, metadata map[string]any) {
	l.log(LevelDebug, functionName, message, metadata, nil, nil)
}

// Info logs at INFO level.
func (l *Logger) Info(functionName, message string, metadata map[string]any) {
	l.log(LevelInfo, functionName, message, metadata, nil, nil)
}

// Warn logs at WARN level.
func (l *Logger) Warn(functionName, message string, metadata map[string]any) {
	l.log(LevelWarn, functionName, message, metadata, nil, nil)
}

// Error logs at ERROR level.
func (l *Logger) Error(functionName, message string, metadata map[string]any) {
	l.log(LevelError, functionName, message, metadata, nil, nil)
}

// Performance logs a PERFORMANCE record with timing metrics.
func (l *Logger) Performance(functionName, message string, metrics PerformanceMetrics) {
	l.log(LevelPerformance, functionName, message, nil, &metrics, nil)
}

// Workflow logs a WORKFLOW lifecycle record.
func (l *Logger) Workflow(functionName, message string, metadata map[string]any) {
	l.log(LevelWorkflow, functionName, message, metadata, nil, nil)
}

// LogAIUsage logs an AI_USAGE record and counts the API call toward the
// execution summary.
func (l *Logger) LogAIUsage(functionName, message string, agentName string, usage AIUsage) {
	l.log(LevelAIUsage, functionName, message, nil, nil, &usage)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.apiCalls++
	st := l.statsFor(agentName)
	st.APICalls++
	st.TotalTokens += usage.InputTokens + usage.OutputTokens
}

// RecordAgentExecution feeds per-agent metrics into the execution summary.
func (l *Logger) RecordAgentExecution(agentName string, duration time.Duration, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.statsFor(agentName)
	st.Executions++
	st.TotalTime += duration
	if !success {
		st.Failures++
	}
}

// log scrubs, numbers, buffers, and emits one record.
func (l *Logger) log(level Level, functionName, message string, metadata map[string]any, perf *PerformanceMetrics, usage *AIUsage) {
	scrubbedMsg := l.scrubber.ScrubString(message)
	scrubbedMeta := l.scrubber.ScrubMap(metadata)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.step++
	rec := Record{
		Timestamp:          time.Now(),
		Level:              level,
		WorkflowID:         l.workflowID,
		StepNumber:         l.step,
		FunctionName:       functionName,
		Message:            scrubbedMsg,
		Metadata:           scrubbedMeta,
		PerformanceMetrics: perf,
		AIUsage:            usage,
	}
	l.trace = append(l.trace, rec)
	l.mu.Unlock()

	attrs := []any{
		slog.String("level_name", string(level)),
		slog.Int("step", rec.StepNumber),
		slog.String("function", functionName),
	}
	if scrubbedMeta != nil {
		attrs = append(attrs, slog.Any("metadata", scrubbedMeta))
	}
	if perf != nil {
		attrs = append(attrs, slog.Int64("duration_ms", perf.DurationMs))
	}
	if usage != nil {
		attrs = append(attrs, slog.Any("ai_usage", *usage))
	}
	l.out.Log(context.Background(), level.slogLevel(), scrubbedMsg, attrs...)
}

func (l *Logger) statsFor(agentName string) *agentStats {
	st, ok := l.agents[agentName]
	if !ok {
		st = &agentStats{}
		l.agents[agentName] = st
	}
	return st
}

// Close marks the logger closed. Records logged after Close are dropped;
// the buffered trace remains available for the execution summary.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}
