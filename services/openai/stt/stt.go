package stt

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"rubberduck/core"
	"rubberduck/utils/audio"
)

// Config holds configuration for the Whisper transcription service.
type Config struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

// DefaultConfig returns a default configuration for Whisper transcription.
func DefaultConfig() Config {
	return Config{
		Model:    openai.Whisper1,
		Language: "en",
	}
}

// WhisperSTTService transcribes a complete utterance through the OpenAI
// audio transcription API.
type WhisperSTTService struct {
	client *openai.Client
	config Config
	logger *core.Logger
}

// NewWhisperSTTService creates a new Whisper transcription service.
// Use DefaultConfig() to get a config with sensible defaults and override
// only what you need.
func NewWhisperSTTService(config Config, logger *core.Logger) *WhisperSTTService {
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	if config.Language == "" {
		config.Language = "en"
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &WhisperSTTService{
		client: newClient(config.APIKey, config.BaseURL),
		config: config,
		logger: logger,
	}
}

// Transcribe sends raw audio bytes and returns the transcribed text. The
// container type is sniffed from the payload's magic bytes so the provider
// receives a correctly named file.
func (s *WhisperSTTService) Transcribe(ctx context.Context, data []byte) (string, error) {
	format := audio.DetectFormat(data)
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.Model,
		Reader:   bytes.NewReader(data),
		FilePath: "utterance." + format.Extension(),
		Language: s.config.Language,
	})
	if err != nil {
		return "", fmt.Errorf("whisper: transcription request: %w", err)
	}
	return resp.Text, nil
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
