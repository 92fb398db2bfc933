// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/careerbot/internal/provider"
	"github.com/ashureev/careerbot/internal/store"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendOrigins []string
	Store           store.Options
	OpenAI          ProviderConfig
	DeepSeek        ProviderConfig
	DefaultProvider string
	UseMockLLM      bool
	SetupsFile      string
	ClearOnStart    bool
	GRPCHealthPort  string
	ProbeInterval   time.Duration
	MaxBodySize     int64
	ConversationLog ConversationLogConfig
}

// ProviderConfig configures one OpenAI-compatible backend.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	StreamModel string
	Functions   bool
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// defaultOrigins are the front-ends allowed when FRONTEND_ORIGINS is unset.
var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"https://nepwoop.com",
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8000"),
		FrontendOrigins: getEnvList("FRONTEND_ORIGINS", defaultOrigins),
		Store: store.Options{
			Backend:    getEnv("STORE_BACKEND", store.BackendSQLite),
			SQLitePath: getEnv("DB_PATH", "./data/careerbot.db"),
			BadgerPath: getEnv("BADGER_PATH", "./data/badger"),
		},
		OpenAI: ProviderConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", provider.DefaultOpenAIBaseURL),
			Model:       getEnv("OPENAI_MODEL", provider.DefaultOpenAIModel),
			StreamModel: getEnv("OPENAI_STREAM_MODEL", provider.DefaultOpenAIStream),
			Functions:   true,
		},
		DeepSeek: ProviderConfig{
			APIKey:    getEnv("DEEPSEEK_API_KEY", ""),
			BaseURL:   getEnv("DEEPSEEK_BASE_URL", provider.DefaultDeepSeekBaseURL),
			Model:     getEnv("DEEPSEEK_MODEL", provider.DefaultDeepSeekModel),
			Functions: getEnvBool("DEEPSEEK_FUNCTIONS", false),
		},
		DefaultProvider: strings.ToLower(getEnv("DEFAULT_PROVIDER", provider.ChatGPT)),
		UseMockLLM:      getEnvBool("USE_MOCK_LLM", false),
		SetupsFile:      getEnv("SETUPS_FILE", ""),
		ClearOnStart:    getEnvBool("CLEAR_ON_START", false),
		GRPCHealthPort:  getEnv("GRPC_HEALTH_PORT", ""),
		ProbeInterval:   getEnvDuration("HEALTH_PROBE_INTERVAL", 15*time.Second),
		MaxBodySize:     int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	switch c.Store.Backend {
	case store.BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("DB_PATH cannot be empty")
		}
	case store.BackendBadger:
		if c.Store.BadgerPath == "" {
			return errors.New("BADGER_PATH cannot be empty")
		}
	case store.BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.DefaultProvider != provider.ChatGPT && c.DefaultProvider != provider.DeepSeek {
		return fmt.Errorf("unknown DEFAULT_PROVIDER %q", c.DefaultProvider)
	}
	if !c.UseMockLLM {
		if c.OpenAI.APIKey == "" && c.DeepSeek.APIKey == "" {
			return errors.New("OPENAI_API_KEY or DEEPSEEK_API_KEY is required unless USE_MOCK_LLM is set")
		}
		if c.DefaultProvider == provider.ChatGPT && c.OpenAI.APIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the default provider")
		}
		if c.DefaultProvider == provider.DeepSeek && c.DeepSeek.APIKey == "" {
			return errors.New("DEEPSEEK_API_KEY is required for the default provider")
		}
	}
	if c.ProbeInterval <= 0 {
		return errors.New("HEALTH_PROBE_INTERVAL must be > 0")
	}
	if c.MaxBodySize <= 0 {
		return errors.New("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return errors.New("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		return errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	return nil
}

// IsDevelopment returns true when every allowed origin is local.
func (c *Config) IsDevelopment() bool {
	for _, o := range c.FrontendOrigins {
		if !strings.Contains(o, "localhost") && !strings.Contains(o, "127.0.0.1") {
			return false
		}
	}
	return true
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
