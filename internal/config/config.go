package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes environment overrides, e.g. LECTURER_RATE_RPM.
const EnvPrefix = "LECTURER"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// With an empty cfgFile, ./config.yaml and then homeDir/config.yaml are
// tried; a missing file is not an error.
func NewManager(cfgFile, homeDir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    logger,
	}

	if err := cm.initViper(cfgFile, homeDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homeDir string) error {
	v := cm.v
	for key, value := range defaultKeys() {
		v.SetDefault(key, value)
	}

	// Environment variables with LECTURER_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir != "" {
			v.AddConfigPath(homeDir)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// defaultKeys flattens DefaultConfig into dotted viper keys so a config
// file can override single fields of a section.
func defaultKeys() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"generation.provider":          d.Generation.Provider,
		"generation.model":             d.Generation.Model,
		"generation.api_key":           d.Generation.APIKey,
		"generation.base_url":          d.Generation.BaseURL,
		"generation.temperature":       d.Generation.Temperature,
		"generation.max_output_tokens": d.Generation.MaxOutputTokens,
		"generation.instruction":       d.Generation.Instruction,
		"render.dpi":                   d.Render.DPI,
		"render.preview_size":          d.Render.PreviewSize,
		"rate.rpm":                     d.Rate.RPM,
		"rate.tpm":                     d.Rate.TPM,
		"rate.rpd":                     d.Rate.RPD,
		"rate.window_seconds":          d.Rate.WindowSeconds,
		"pool.concurrency":             d.Pool.Concurrency,
		"layout.font_size":             d.Layout.FontSize,
		"layout.line_spacing":          d.Layout.LineSpacing,
		"layout.column_padding":        d.Layout.ColumnPadding,
		"layout.render_mode":           d.Layout.RenderMode,
		"layout.font_path":             d.Layout.FontPath,
		"blank.retry":                  d.Blank.Retry,
		"blank.min_chars":              d.Blank.MinChars,
		"blank.retry_times":            d.Blank.RetryTimes,
	}
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// File returns the config file in use, or "" when running on defaults.
func (cm *Manager) File() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. An edit that fails to
// load or validate is logged and the previous configuration stays active.
func (cm *Manager) WatchConfig() {
	if cm.File() == "" {
		return
	}
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.reload(e.Name)
	})
	cm.v.WatchConfig()
}

func (cm *Manager) reload(name string) {
	cfg, err := cm.load()
	if err != nil {
		cm.logger.Warn("config reload rejected", "file", name, "error", err)
		return
	}

	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	cm.logger.Info("config reloaded", "file", name)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Lecturer configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GEMINI_API_KEY=xxx (or OPENAI_API_KEY / OPENROUTER_API_KEY)
# Any key can be overridden from the environment, e.g. LECTURER_RATE_RPM=60

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
