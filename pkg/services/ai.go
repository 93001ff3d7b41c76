// Package services provides the shared dependencies agents draw on:
// the AI model client, CCI/LCD/RVU reference data, a TTL cache, and the
// performance monitor. A Registry wires them together and owns their
// lifecycle.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/medcode-ai/opnote/pkg/worklog"
)

// AIProvider selects the chat-completion backend family.
type AIProvider string

// Supported providers. Anthropic and local backends are reached through
// their OpenAI-compatible endpoints, so one client type covers all four.
const (
	ProviderOpenAI    AIProvider = "openai"
	ProviderAnthropic AIProvider = "anthropic"
	ProviderLocal     AIProvider = "local"
	ProviderAzure     AIProvider = "azure"
)

// AIModelConfig overrides the model routing for one processing run.
type AIModelConfig struct {
	Provider    AIProvider `json:"provider,omitempty"`
	Model       string     `json:"model,omitempty"`
	Endpoint    string     `json:"endpoint,omitempty"`
	APIKey      string     `json:"apiKey,omitempty"`
	Deployment  string     `json:"deployment,omitempty"`
	MaxTokens   int        `json:"maxTokens,omitempty"`
	Temperature float32    `json:"temperature,omitempty"`
}

// Backend is one resolved chat-completion target.
type Backend struct {
	Name       string
	Endpoint   string
	Deployment string
	Model      string
}

// ChatRequest is a single completion call against the assigned backend.
type ChatRequest struct {
	AgentName    string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// ChatResponse carries the completion text and token accounting.
type ChatResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// completionClient is the slice of the OpenAI client the service uses.
// Tests substitute a scripted implementation.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AIModelService routes agent chat calls to deterministic backends and
// reports usage to the workflow logger.
type AIModelService struct {
	client   completionClient
	backends []Backend
	fallback Backend
	provider AIProvider
	defaults AIModelConfig
}

// NewAIModelService builds the service from the run configuration. When
// cfg.Endpoint is set it becomes the sole backend; otherwise the provider
// default endpoint is used.
func NewAIModelService(cfg AIModelConfig) *AIModelService {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = defaultModelFor(cfg.Provider)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	} else if base := defaultEndpointFor(cfg.Provider); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.Provider == ProviderAzure {
		clientCfg.APIType = openai.APITypeAzure
		clientCfg.APIVersion = "2024-06-01"
	}

	fallback := Backend{
		Name:       "default",
		Endpoint:   clientCfg.BaseURL,
		Deployment: cfg.Deployment,
		Model:      cfg.Model,
	}
	return &AIModelService{
		client:   openai.NewClientWithConfig(clientCfg),
		fallback: fallback,
		provider: cfg.Provider,
		defaults: cfg,
	}
}

// NewAIModelServiceWithClient injects a prebuilt client. Used by tests.
func NewAIModelServiceWithClient(client completionClient, cfg AIModelConfig) *AIModelService {
	svc := NewAIModelService(cfg)
	svc.client = client
	return svc
}

// RegisterBackends installs additional named backends. Assignment is
// deterministic: the agent name hashes onto the sorted backend list, so a
// given agent always lands on the same backend for a given topology.
func (s *AIModelService) RegisterBackends(backends []Backend) {
	s.backends = append([]Backend(nil), backends...)
	sort.Slice(s.backends, func(i, j int) bool { return s.backends[i].Name < s.backends[j].Name })
}

// BackendFor resolves the backend for an agent. With no registered
// backends every agent uses the fallback.
func (s *AIModelService) BackendFor(agentName string) Backend {
	if len(s.backends) == 0 {
		return s.fallback
	}
	h := uint32(2166136261)
	for i := 0; i < len(agentName); i++ {
		h ^= uint32(agentName[i])
		h *= 16777619
	}
	return s.backends[int(h%uint32(len(s.backends)))]
}

// Chat executes one completion against the agent's backend. Usage is
// logged through the workflow logger when one is supplied.
func (s *AIModelService) Chat(ctx context.Context, log *worklog.Logger, req ChatRequest) (*ChatResponse, error) {
	backend := s.BackendFor(req.AgentName)
	model := backend.Model
	if backend.Deployment != "" && s.provider == ProviderAzure {
		model = backend.Deployment
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = s.defaults.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = s.defaults.Temperature
	}

	messages := []openai.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("chat completion for %s: %w", req.AgentName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion for %s: empty choice list", req.AgentName)
	}

	out := &ChatResponse{
		Content:      strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     elapsed,
	}
	if log != nil {
		log.LogAIUsage("AIModelService.Chat", "model call completed", req.AgentName, worklog.AIUsage{
			Model:        out.Model,
			Provider:     string(s.provider),
			InputTokens:  out.InputTokens,
			OutputTokens: out.OutputTokens,
			DurationMs:   elapsed.Milliseconds(),
		})
	}
	return out, nil
}

func defaultModelFor(p AIProvider) string {
	switch p {
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderLocal:
		return "llama3.1:8b"
	default:
		return "gpt-4o"
	}
}

func defaultEndpointFor(p AIProvider) string {
	switch p {
	case ProviderAnthropic:
		return "https://api.anthropic.com/v1"
	case ProviderLocal:
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
