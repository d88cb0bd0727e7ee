// Package factories loads service settings and assembles the configured
// components.
package factories

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"rubberduck/core"
	"rubberduck/pipeline"
	"rubberduck/server"
	"rubberduck/services/openai/llm"
	"rubberduck/services/openai/stt"
	"rubberduck/services/openai/tts"
	"rubberduck/session"
)

// SessionSettings tunes conversation-state policy. This is the JSON surface
// for the three externally tunable policy constants plus backend selection.
type SessionSettings struct {
	// TimeoutMs is the idle-session eviction threshold.
	TimeoutMs int64 `json:"timeout_ms"`
	// SweepIntervalMs is the eviction pass cadence, independent of TimeoutMs.
	SweepIntervalMs int64 `json:"sweep_interval_ms"`
	// MaxTurns caps conversation history length.
	MaxTurns int `json:"max_turns"`
	// Backend selects "memory" (default) or "sqlite".
	Backend string `json:"backend,omitempty"`
	// SQLitePath is the database file used when Backend is "sqlite".
	SQLitePath string `json:"sqlite_path,omitempty"`
}

// StoreConfig converts the JSON surface to a session.Config.
func (s SessionSettings) StoreConfig() session.Config {
	return session.Config{
		Timeout:       time.Duration(s.TimeoutMs) * time.Millisecond,
		SweepInterval: time.Duration(s.SweepIntervalMs) * time.Millisecond,
		MaxTurns:      s.MaxTurns,
	}
}

// CallSettings tunes the uniform remote-call retry policy.
type CallSettings struct {
	// RetryDelayMs is the fixed wait before the single retry.
	RetryDelayMs int64 `json:"retry_delay_ms"`
	// AttemptTimeoutMs bounds each attempt individually.
	AttemptTimeoutMs int64 `json:"attempt_timeout_ms"`
}

// CallConfig converts the JSON surface to a core.CallConfig.
func (c CallSettings) CallConfig() core.CallConfig {
	cfg := core.DefaultCallConfig()
	if c.RetryDelayMs > 0 {
		cfg.RetryDelay = time.Duration(c.RetryDelayMs) * time.Millisecond
	}
	if c.AttemptTimeoutMs > 0 {
		cfg.AttemptTimeout = time.Duration(c.AttemptTimeoutMs) * time.Millisecond
	}
	return cfg
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	Server  server.Config   `json:"server"`
	Session SessionSettings `json:"session"`
	Call    CallSettings    `json:"call"`
	STT     stt.Config      `json:"stt"`
	LLM     llm.Config      `json:"llm"`
	TTS     tts.Config      `json:"tts"`
}

// APIKeys carries provider credentials injected from the environment rather
// than the settings file.
type APIKeys struct {
	OpenAI string
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with provider
// defaults.
func DefaultSettingsConfig() SettingsConfig {
	def := session.DefaultConfig()
	return SettingsConfig{
		Server: server.DefaultConfig(),
		Session: SessionSettings{
			TimeoutMs:       def.Timeout.Milliseconds(),
			SweepIntervalMs: def.SweepInterval.Milliseconds(),
			MaxTurns:        def.MaxTurns,
			Backend:         "memory",
		},
		Call: CallSettings{
			RetryDelayMs:     core.DefaultCallConfig().RetryDelay.Milliseconds(),
			AttemptTimeoutMs: core.DefaultCallConfig().AttemptTimeout.Milliseconds(),
		},
		STT: stt.DefaultConfig(),
		LLM: llm.DefaultConfig(),
		TTS: tts.DefaultConfig(),
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig, filling
// absent sections with defaults.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

// InjectAPIKeys overlays provider credentials onto the config.
func (c *SettingsConfig) InjectAPIKeys(keys APIKeys) {
	if keys.OpenAI != "" {
		c.STT.APIKey = keys.OpenAI
		c.LLM.APIKey = keys.OpenAI
		c.TTS.APIKey = keys.OpenAI
	}
}

// BuildStore constructs the configured session store backend.
func (c SettingsConfig) BuildStore(logger *core.Logger) (session.Store, error) {
	switch c.Session.Backend {
	case "", "memory":
		return session.NewMemoryStore(c.Session.StoreConfig(), logger), nil
	case "sqlite":
		if c.Session.SQLitePath == "" {
			return nil, fmt.Errorf("settings: sqlite backend requires session.sqlite_path")
		}
		return session.NewSQLiteStore(c.Session.SQLitePath, c.Session.StoreConfig(), logger)
	default:
		return nil, fmt.Errorf("settings: unknown session backend %q", c.Session.Backend)
	}
}

// BuildOrchestrator wires the provider services around the session store.
func (c SettingsConfig) BuildOrchestrator(store session.Store, logger *core.Logger) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(
		stt.NewWhisperSTTService(c.STT, logger),
		llm.NewOpenAILLMService(c.LLM, logger),
		tts.NewOpenAITTSService(c.TTS, logger),
		store,
		pipeline.Config{Call: c.Call.CallConfig()},
		logger,
	)
}
