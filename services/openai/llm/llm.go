package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"rubberduck/core"
)

// Config holds configuration for the OpenAI reasoning service.
type Config struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// DefaultConfig returns a default configuration for the reasoning service.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		MaxTokens:   500,
		Temperature: 0.7,
	}
}

// OpenAILLMService generates replies through the OpenAI chat completion API.
type OpenAILLMService struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

// NewOpenAILLMService creates a new reasoning service.
// Use DefaultConfig() to get a config with sensible defaults and override
// only what you need.
func NewOpenAILLMService(config Config, logger *core.Logger) *OpenAILLMService {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 500
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &OpenAILLMService{
		client: newClient(config.APIKey, config.BaseURL),
		config: config,
		logger: logger,
	}
}

// Complete runs the assembled prompt through a non-streaming chat completion
// bounded by the configured output-token ceiling.
func (s *OpenAILLMService) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// newClient builds an OpenAI client, honoring an optional base URL override.
func newClient(apiKey, baseURL string) *openai.Client {
	if baseURL == "" {
		return openai.NewClient(apiKey)
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return openai.NewClientWithConfig(cfg)
}
