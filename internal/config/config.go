// Package config provides environment configuration for the assistant.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Admin auth
	JWTSecret    string
	AdminUserIDs []string

	// LLM settings
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	DefaultLLM        string
	CompletionModel   string
	CompletionTimeout time.Duration
	MaxRetries        int
	RetryInitialWait  time.Duration

	// Transcription
	WhisperModel string

	// History / context window
	HistoryDBPath     string
	MaxHistoryTurns   int
	ContextCharBudget int
	KnowledgeMaxChars int

	// Knowledge source
	DriveFileID           string
	GoogleCredentialsFile string
	KnowledgeCachePath    string
	KnowledgeRefresh      time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Admin auth
		JWTSecret:    getEnv("JWT_SECRET", "development-secret-change-in-production"),
		AdminUserIDs: getListEnv("ADMIN_USER_IDS"),

		// LLM
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		DefaultLLM:        getEnv("DEFAULT_LLM", "openai"),
		CompletionModel:   getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		CompletionTimeout: getDurationEnv("COMPLETION_TIMEOUT", 60*time.Second),
		MaxRetries:        getIntEnv("COMPLETION_MAX_RETRIES", 2),
		RetryInitialWait:  getDurationEnv("COMPLETION_RETRY_WAIT", 250*time.Millisecond),

		// Transcription
		WhisperModel: getEnv("WHISPER_MODEL", "whisper-1"),

		// History / context window
		HistoryDBPath:     getEnv("HISTORY_DB_PATH", "data/vanilka.db"),
		MaxHistoryTurns:   getIntEnv("MAX_HISTORY_TURNS", 20),
		ContextCharBudget: getIntEnv("CONTEXT_CHAR_BUDGET", 12000),
		KnowledgeMaxChars: getIntEnv("KNOWLEDGE_MAX_CHARS", 8000),

		// Knowledge source
		DriveFileID:           getEnv("GOOGLE_DRIVE_FILE_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		KnowledgeCachePath:    getEnv("KNOWLEDGE_CACHE_PATH", "data/knowledge_base.md"),
		KnowledgeRefresh:      getDurationEnv("KNOWLEDGE_REFRESH_INTERVAL", 6*time.Hour),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// IsAdmin reports whether the given user ID is on the admin allow-list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
