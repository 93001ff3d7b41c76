package models

import "time"

// ErrorSeverity grades a processing error. CRITICAL halts the workflow
// under any error policy.
type ErrorSeverity string

// Error severity constants.
const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// Error codes used on ProcessingError.Code.
const (
	ErrCodeAgentExecutionFailed = "AGENT_EXECUTION_FAILED"
	ErrCodeAgentTimeout         = "AGENT_TIMEOUT"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeDependencyFailed     = "DEPENDENCY_FAILED"
	ErrCodeDataShape            = "DATA_SHAPE_INVALID"
	ErrCodeAssemblyFailed       = "ASSEMBLY_FAILED"
)

// ProcessingError is a structured error record accumulated in workflow state.
type ProcessingError struct {
	Message    string         `json:"message"`
	Severity   ErrorSeverity  `json:"severity"`
	Code       string         `json:"code,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"source,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	StackTrace string         `json:"stackTrace,omitempty"`
}

// NewProcessingError builds a timestamped error record.
func NewProcessingError(message string, severity ErrorSeverity, source string) ProcessingError {
	return ProcessingError{
		Message:   message,
		Severity:  severity,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// WithCode sets the machine-readable error code.
func (e ProcessingError) WithCode(code string) ProcessingError {
	e.Code = code
	return e
}

// WithContext adds a context key without mutating the shared map.
func (e ProcessingError) WithContext(key string, value any) ProcessingError {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	e.Context = ctx
	return e
}
