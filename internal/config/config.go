// Package config loads server settings from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always win over it. Every setting has a default, so
// an empty environment yields a working local setup (JSON store, Ollama on
// localhost, ephemeral JWT secret).
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"

	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	defaultJSONPath   = "storage_data.json"
	defaultSQLitePath = "data/chat.db"
)

type Config struct {
	ProjectName string
	Version     string
	Host        string
	Port        int
	StaticDir   string

	Storage StorageConfig
	Auth    AuthConfig
	LLM     LLMConfig
	Log     LogConfig
}

type StorageConfig struct {
	Driver         string // DriverJSON or DriverSQLite
	Path           string
	ResetOnCorrupt bool
}

type AuthConfig struct {
	JWTSecret string
	// JWTSecretGenerated is true when JWT_SECRET was unset and a random secret
	// was made up; sessions then do not survive a restart.
	JWTSecretGenerated bool
	TokenTTL           time.Duration

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// GitHubEnabled reports whether the GitHub OAuth routes should be mounted.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type LLMConfig struct {
	Provider      string // ProviderOllama or ProviderGemini
	OllamaBaseURL string
	OllamaModel   string
	GeminiAPIKey  string
	GeminiModel   string
	Timeout       time.Duration
}

type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
}

// Addr is the listen address, e.g. ":8000".
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads .env (if any) and the environment. It fails on values that do
// not parse, never on missing ones.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		ProjectName: getEnv("PROJECT_NAME", "Chat API"),
		Version:     getEnv("VERSION", "0.1.0"),
		Host:        getEnv("HOST", ""),
		StaticDir:   getEnv("STATIC_DIR", "static"),
	}

	var err error
	cfg.Port, err = getEnvInt("PORT", 8000)
	collect(err)
	if cfg.Port < 1 || cfg.Port > 65535 {
		collect(fmt.Errorf("config: PORT %d out of range", cfg.Port))
	}

	// Storage
	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", DriverJSON))
	switch cfg.Storage.Driver {
	case DriverJSON:
		cfg.Storage.Path = getEnv("DATA_PATH", defaultJSONPath)
	case DriverSQLite:
		cfg.Storage.Path = getEnv("DATA_PATH", defaultSQLitePath)
	default:
		collect(fmt.Errorf("config: STORAGE_DRIVER must be %q or %q, got %q", DriverJSON, DriverSQLite, cfg.Storage.Driver))
	}
	cfg.Storage.ResetOnCorrupt, err = getEnvBool("STORAGE_RESET_ON_CORRUPT", false)
	collect(err)

	// Auth
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	if cfg.Auth.JWTSecret == "" {
		secret, err := randomSecret()
		collect(err)
		cfg.Auth.JWTSecret = secret
		cfg.Auth.JWTSecretGenerated = true
	} else if len(cfg.Auth.JWTSecret) < 16 {
		collect(errors.New("config: JWT_SECRET must be at least 16 characters"))
	}
	cfg.Auth.TokenTTL, err = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	collect(err)
	cfg.Auth.GitHubClientID = getEnv("GITHUB_CLIENT_ID", "")
	cfg.Auth.GitHubClientSecret = getEnv("GITHUB_CLIENT_SECRET", "")
	cfg.Auth.GitHubCallbackURL = getEnv("GITHUB_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port))

	// LLM
	cfg.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama))
	cfg.LLM.OllamaBaseURL = strings.TrimRight(getEnv("OLLAMA_BASE_URL", "http://127.0.0.1:11434"), "/")
	cfg.LLM.OllamaModel = getEnv("OLLAMA_MODEL", "gemma3:1b")
	cfg.LLM.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.LLM.GeminiModel = getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest")
	cfg.LLM.Timeout, err = getEnvDuration("GENERATION_TIMEOUT", 120*time.Second)
	collect(err)
	switch cfg.LLM.Provider {
	case ProviderOllama:
	case ProviderGemini:
		if cfg.LLM.GeminiAPIKey == "" {
			collect(errors.New("config: GEMINI_API_KEY is required when LLM_PROVIDER=gemini"))
		}
	default:
		collect(fmt.Errorf("config: LLM_PROVIDER must be %q or %q, got %q", ProviderOllama, ProviderGemini, cfg.LLM.Provider))
	}

	// Logging
	cfg.Log.Level, err = parseLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)
	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		collect(fmt.Errorf("config: LOG_FORMAT must be \"text\" or \"json\", got %q", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("config: %s=%q is not an integer", key, raw)
	}
	return v, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("config: %s=%q is not a boolean", key, raw)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return fallback, fmt.Errorf("config: %s=%q is not a positive duration", key, raw)
	}
	return v, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL=%q is not a log level", raw)
	}
	return level, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("config: generating JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
