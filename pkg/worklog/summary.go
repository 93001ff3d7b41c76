package worklog

import "time"

// AgentMetrics is the per-agent block of an execution summary.
type AgentMetrics struct {
	Executions  int           `json:"executions"`
	Failures    int           `json:"failures"`
	TotalTime   time.Duration `json:"totalTime"`
	APICalls    int           `json:"apiCalls"`
	TotalTokens int           `json:"totalTokens"`
}

// ExecutionSummary is the per-run trace rollup.
type ExecutionSummary struct {
	WorkflowID         string                  `json:"workflowId"`
	TotalExecutionTime time.Duration           `json:"totalExecutionTime"`
	TotalSteps         int                     `json:"totalSteps"`
	AgentExecutions    int                     `json:"agentExecutions"`
	APICalls           int                     `json:"apiCalls"`
	PerAgent           map[string]AgentMetrics `json:"perAgent,omitempty"`
	ExecutionTrace     []Record                `json:"executionTrace,omitempty"`
}

// GenerateExecutionSummary rolls the buffered trace and per-agent stats
// into one summary. Safe to call before or after Close.
func (l *Logger) GenerateExecutionSummary() ExecutionSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := ExecutionSummary{
		WorkflowID:         l.workflowID,
		TotalExecutionTime: time.Since(l.startedAt),
		TotalSteps:         l.step,
		APICalls:           l.apiCalls,
		PerAgent:           make(map[string]AgentMetrics, len(l.agents)),
		ExecutionTrace:     append([]Record(nil), l.trace...),
	}
	for name, st := range l.agents {
		summary.AgentExecutions += st.Executions
		summary.PerAgent[name] = AgentMetrics{
			Executions:  st.Executions,
			Failures:    st.Failures,
			TotalTime:   st.TotalTime,
			APICalls:    st.APICalls,
			TotalTokens: st.TotalTokens,
		}
	}
	return summary
}
