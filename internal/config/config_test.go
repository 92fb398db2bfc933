package config

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/careerbot/internal/provider"
	"github.com/ashureev/careerbot/internal/store"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.Store.Backend != store.BackendSQLite {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.DefaultProvider != provider.ChatGPT {
		t.Errorf("DefaultProvider = %q, want chatgpt", cfg.DefaultProvider)
	}
	if cfg.ClearOnStart {
		t.Error("ClearOnStart = true, want false")
	}
	if cfg.DeepSeek.Functions {
		t.Error("DeepSeek.Functions = true, want false")
	}
	if !slices.Equal(cfg.FrontendOrigins, defaultOrigins) {
		t.Errorf("FrontendOrigins = %v, want %v", cfg.FrontendOrigins, defaultOrigins)
	}
	if cfg.ProbeInterval != 15*time.Second {
		t.Errorf("ProbeInterval = %v, want 15s", cfg.ProbeInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("USE_MOCK_LLM", "yes")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DEFAULT_PROVIDER", "DeepSeek")
	t.Setenv("FRONTEND_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("HEALTH_PROBE_INTERVAL", "2s")
	t.Setenv("CLEAR_ON_START", "on")
	t.Setenv("CONVERSATION_LOG_QUEUE_SIZE", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9000" || !cfg.UseMockLLM || cfg.Store.Backend != store.BackendMemory {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.DefaultProvider != provider.DeepSeek {
		t.Errorf("DefaultProvider = %q, want deepseek", cfg.DefaultProvider)
	}
	if want := []string{"http://a.test", "http://b.test"}; !slices.Equal(cfg.FrontendOrigins, want) {
		t.Errorf("FrontendOrigins = %v, want %v", cfg.FrontendOrigins, want)
	}
	if cfg.ProbeInterval != 2*time.Second {
		t.Errorf("ProbeInterval = %v, want 2s", cfg.ProbeInterval)
	}
	if !cfg.ClearOnStart {
		t.Error("ClearOnStart = false, want true")
	}
	if cfg.ConversationLog.QueueSize != 1000 {
		t.Errorf("QueueSize = %d, want 1000", cfg.ConversationLog.QueueSize)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:            "8000",
			Store:           store.Options{Backend: store.BackendMemory},
			OpenAI:          ProviderConfig{APIKey: "sk"},
			DefaultProvider: provider.ChatGPT,
			ProbeInterval:   time.Second,
			MaxBodySize:     1024,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "STORE_BACKEND"},
		{"sqlite without path", func(c *Config) { c.Store.Backend = store.BackendSQLite }, "DB_PATH"},
		{"badger without path", func(c *Config) { c.Store.Backend = store.BackendBadger }, "BADGER_PATH"},
		{"unknown provider", func(c *Config) { c.DefaultProvider = "claude" }, "DEFAULT_PROVIDER"},
		{"no keys", func(c *Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY or DEEPSEEK_API_KEY"},
		{"mock without keys", func(c *Config) { c.OpenAI.APIKey = ""; c.UseMockLLM = true }, ""},
		{"default deepseek without key", func(c *Config) { c.DefaultProvider = provider.DeepSeek }, "DEEPSEEK_API_KEY"},
		{"log dir", func(c *Config) { c.ConversationLog.Enabled = true }, "CONVERSATION_LOG_DIR"},
		{"probe interval", func(c *Config) { c.ProbeInterval = 0 }, "HEALTH_PROBE_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	c := &Config{FrontendOrigins: []string{"http://localhost:5173", "http://127.0.0.1:3000"}}
	if !c.IsDevelopment() {
		t.Error("IsDevelopment() = false for local origins")
	}
	c.FrontendOrigins = append(c.FrontendOrigins, "https://nepwoop.com")
	if c.IsDevelopment() {
		t.Error("IsDevelopment() = true with a public origin")
	}
}
