package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"rubberduck/core"
)

// Config holds configuration for the OpenAI speech synthesis service.
type Config struct {
	APIKey  string  `json:"api_key"`
	BaseURL string  `json:"base_url,omitempty"`
	Model   string  `json:"model"`
	Voice   string  `json:"voice"`
	Speed   float64 `json:"speed,omitempty"`
}

// DefaultConfig returns a default configuration for speech synthesis.
func DefaultConfig() Config {
	return Config{
		Model: string(openai.TTSModel1),
		Voice: string(openai.VoiceAlloy),
	}
}

// OpenAITTSService renders reply text to MP3 audio through the OpenAI
// speech API.
type OpenAITTSService struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

// NewOpenAITTSService creates a new speech synthesis service.
// Use DefaultConfig() to get a config with sensible defaults and override
// only what you need.
func NewOpenAITTSService(config Config, logger *core.Logger) *OpenAITTSService {
	if config.Model == "" {
		config.Model = string(openai.TTSModel1)
	}
	if config.Voice == "" {
		config.Voice = string(openai.VoiceAlloy)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &OpenAITTSService{
		client: newClient(config.APIKey, config.BaseURL),
		config: config,
		logger: logger,
	}
}

// Synthesize renders text with the configured voice and returns the binary
// audio payload.
func (s *OpenAITTSService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.config.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	}
	if s.config.Speed > 0 {
		req.Speed = s.config.Speed
	}

	resp, err := s.client.CreateSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: speech request: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech response: %w", err)
	}
	return data, nil
}

// MimeType reports the media type of synthesized payloads.
func (s *OpenAITTSService) MimeType() string {
	return "audio/mpeg"
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
