package main

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rubberduck/core"
	"rubberduck/events"
	"rubberduck/factories"
	"rubberduck/server"
)

func main() {
	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	logger := core.GetLogger()
	settings := loadSettingsFromEnv(logger)

	store, err := settings.BuildStore(logger)
	if err != nil {
		logger.With(map[string]any{"error": err}).Fatal("failed to build session store")
	}
	defer store.Close()

	hub := events.NewHub(logger)
	defer hub.Close()

	orchestrator := settings.BuildOrchestrator(store, logger).WithPublisher(hub)
	srv := server.New(settings.Server, orchestrator, hub, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.With(map[string]any{"error": err}).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.With(map[string]any{"error": err}).Error("shutdown did not complete cleanly")
	}
}

// loadSettingsFromEnv loads SettingsConfig from file or SETTINGS_JSON_B64
// env var, applies env overrides for the tunable policy constants, and
// injects API keys from env vars.
func loadSettingsFromEnv(logger *core.Logger) factories.SettingsConfig {
	var settings factories.SettingsConfig
	var err error

	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, decErr := base64.StdEncoding.DecodeString(b64)
		if decErr != nil {
			logger.With(map[string]any{"error": decErr}).Error("failed to decode SETTINGS_JSON_B64")
			settings = factories.DefaultSettingsConfig()
		} else if settings, err = factories.SettingsConfigFromJSON(data); err != nil {
			logger.With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64")
			settings = factories.DefaultSettingsConfig()
		} else {
			logger.Info("loaded settings from SETTINGS_JSON_B64")
		}
	} else {
		settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
		settings, err = factories.SettingsConfigFromFile(settingsPath)
		if err != nil {
			logger.With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
			settings = factories.DefaultSettingsConfig()
		}
	}

	// The three policy constants stay tunable without touching settings.json.
	settings.Session.TimeoutMs = getEnvAsInt64("SESSION_TIMEOUT_MS", settings.Session.TimeoutMs)
	settings.Session.MaxTurns = int(getEnvAsInt64("MAX_TURNS", int64(settings.Session.MaxTurns)))
	settings.Call.RetryDelayMs = getEnvAsInt64("RETRY_DELAY_MS", settings.Call.RetryDelayMs)
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		settings.Server.Addr = addr
	}

	settings.InjectAPIKeys(factories.APIKeys{
		OpenAI: getEnv("OPENAI_API_KEY", ""),
	})
	return settings
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 gets an environment variable as integer with a default fallback
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return val
}
