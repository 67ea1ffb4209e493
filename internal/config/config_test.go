package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/smartlecturer/lecturer/internal/layout"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Generation.APIKey != "${GEMINI_API_KEY}" {
		t.Error("expected gemini API key placeholder")
	}
	if cfg.Rate.RPM != 150 || cfg.Rate.TPM != 2_000_000 || cfg.Rate.RPD != 10000 {
		t.Errorf("unexpected rate defaults: %+v", cfg.Rate)
	}
	if cfg.Pool.Concurrency != 50 {
		t.Errorf("expected concurrency 50, got %d", cfg.Pool.Concurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_Conversions(t *testing.T) {
	t.Setenv("TEST_GEN_KEY", "gen-key-123")

	cfg := DefaultConfig()
	cfg.Generation.Provider = "openrouter"
	cfg.Generation.APIKey = "${TEST_GEN_KEY}"
	cfg.Rate.WindowSeconds = 30
	cfg.Layout.RenderMode = "text"
	cfg.Blank.Retry = false

	gen := cfg.GeneratorConfig()
	if gen.Type != "openrouter" || gen.APIKey != "gen-key-123" {
		t.Errorf("unexpected generator config: %+v", gen)
	}

	rate := cfg.RateLimitConfig()
	if rate.Window != 30*time.Second || rate.RPM != 150 {
		t.Errorf("unexpected rate config: %+v", rate)
	}

	opts, err := cfg.LayoutOptions()
	if err != nil {
		t.Fatalf("layout options: %v", err)
	}
	if opts.Mode != layout.ModePlain || opts.FontSize != 20 {
		t.Errorf("unexpected layout options: %+v", opts)
	}

	if blank := cfg.BlankRetry(); blank.Enabled || blank.MinChars != 10 || blank.Times != 1 {
		t.Errorf("unexpected blank config: %+v", blank)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dpi", func(c *Config) { c.Render.DPI = 0 }},
		{"zero concurrency", func(c *Config) { c.Pool.Concurrency = 0 }},
		{"negative font size", func(c *Config) { c.Layout.FontSize = -1 }},
		{"negative retries", func(c *Config) { c.Blank.RetryTimes = -1 }},
		{"unknown mode", func(c *Config) { c.Layout.RenderMode = "fancy" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
generation:
  provider: mock
rate:
  rpm: 30
`)

		mgr, err := NewManager(configFile, "", nil)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Generation.Provider != "mock" {
			t.Errorf("expected mock, got %s", cfg.Generation.Provider)
		}
		if cfg.Rate.RPM != 30 {
			t.Errorf("expected rpm 30, got %d", cfg.Rate.RPM)
		}
		// Untouched keys of a partially set section keep their defaults.
		if cfg.Rate.TPM != 2_000_000 {
			t.Errorf("expected default tpm, got %d", cfg.Rate.TPM)
		}
		if cfg.Generation.Model != DefaultConfig().Generation.Model {
			t.Errorf("expected default model, got %s", cfg.Generation.Model)
		}
		if mgr.File() != configFile {
			t.Errorf("expected file %s, got %s", configFile, mgr.File())
		}
	})

	t.Run("missing file in search path uses defaults", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir(), nil)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if mgr.Get().Render.DPI != 180 {
			t.Errorf("expected default dpi, got %d", mgr.Get().Render.DPI)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LECTURER_RATE_RPM", "60")
		t.Setenv("LECTURER_LAYOUT_RENDER_MODE", "plain")

		mgr, err := NewManager("", t.TempDir(), nil)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Rate.RPM != 60 {
			t.Errorf("expected rpm 60, got %d", cfg.Rate.RPM)
		}
		if cfg.Layout.RenderMode != "plain" {
			t.Errorf("expected plain, got %s", cfg.Layout.RenderMode)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		configFile := writeConfig(t, `
pool:
  concurrency: 0
`)
		if _, err := NewManager(configFile, "", nil); err == nil {
			t.Error("expected error for zero concurrency")
		}
	})

	t.Run("rejects unreadable file", func(t *testing.T) {
		configFile := writeConfig(t, "rate: [")
		if _, err := NewManager(configFile, "", nil); err == nil {
			t.Error("expected error for malformed yaml")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "pool:\n  concurrency: 4\n"), "", nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_ReloadRejected(t *testing.T) {
	configFile := writeConfig(t, "pool:\n  concurrency: 4\n")
	mgr, err := NewManager(configFile, "", nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var called atomic.Bool
	mgr.OnChange(func(*Config) { called.Store(true) })

	if err := os.WriteFile(configFile, []byte("pool:\n  concurrency: -3\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	if err := mgr.v.ReadInConfig(); err != nil {
		t.Fatalf("failed to re-read config: %v", err)
	}
	mgr.reload(configFile)

	if called.Load() {
		t.Error("callback should not run for a rejected config")
	}
	if got := mgr.Get().Pool.Concurrency; got != 4 {
		t.Errorf("expected previous concurrency 4, got %d", got)
	}
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "render:\n  dpi: 72\n"), "", nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Render.DPI
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "rate:\n  rpm: 100\n")

	mgr, err := NewManager(configFile, "", nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Verify initial value
	if got := mgr.Get().Rate.RPM; got != 100 {
		t.Errorf("initial value mismatch: expected 100, got %d", got)
	}

	// Track callback invocations
	var callbackCount atomic.Int32
	var lastValue atomic.Int64

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(int64(cfg.Rate.RPM))
	})

	// Start watching
	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	// Update the config file
	if err := os.WriteFile(configFile, []byte("rate:\n  rpm: 20\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}

	// Verify the config was updated
	if got := mgr.Get().Rate.RPM; got != 20 {
		t.Errorf("config not updated: expected 20, got %d", got)
	}

	// Verify callback received the updated value
	if v := lastValue.Load(); v != 20 {
		t.Errorf("callback received wrong value: expected 20, got %v", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid yaml: %v", err)
	}
	if cfg.Pool.Concurrency != 50 || cfg.Layout.RenderMode != "markdown" {
		t.Errorf("unexpected round-tripped config: %+v", cfg)
	}

	mgr, err := NewManager(path, "", nil)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if mgr.Get().Generation.Instruction != DefaultInstruction {
		t.Error("expected default instruction")
	}
}
