package config

import (
	"fmt"
	"time"

	"github.com/smartlecturer/lecturer/internal/annotate"
	"github.com/smartlecturer/lecturer/internal/layout"
	"github.com/smartlecturer/lecturer/internal/providers"
)

// DefaultInstruction asks for a compact Chinese walkthrough of each slide
// with English key terms.
const DefaultInstruction = "请用中文讲解本页pdf，关键词给出英文，讲解详尽，语言简洁易懂。讲解让人一看就懂，便于快速学习。请避免不必要的换行，使页面保持紧凑。"

// Config holds lecturer configuration.
// Stored at: ~/.lecturer/config.yaml
type Config struct {
	Generation GenerationCfg `mapstructure:"generation" yaml:"generation"`
	Render     RenderCfg     `mapstructure:"render" yaml:"render"`
	Rate       RateCfg       `mapstructure:"rate" yaml:"rate"`
	Pool       PoolCfg       `mapstructure:"pool" yaml:"pool"`
	Layout     LayoutCfg     `mapstructure:"layout" yaml:"layout"`
	Blank      BlankCfg      `mapstructure:"blank" yaml:"blank"`
}

// GenerationCfg selects the generation service.
type GenerationCfg struct {
	Provider        string  `mapstructure:"provider" yaml:"provider"`         // gemini, openai, openrouter, mock
	Model           string  `mapstructure:"model" yaml:"model"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`           // supports ${ENV_VAR} syntax
	BaseURL         string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Instruction     string  `mapstructure:"instruction" yaml:"instruction"`
}

// RenderCfg controls page rasterization.
type RenderCfg struct {
	DPI         int `mapstructure:"dpi" yaml:"dpi"`
	PreviewSize int `mapstructure:"preview_size" yaml:"preview_size"`
}

// RateCfg holds the request budgets. A value <= 0 disables that budget.
type RateCfg struct {
	RPM           int `mapstructure:"rpm" yaml:"rpm"`
	TPM           int `mapstructure:"tpm" yaml:"tpm"`
	RPD           int `mapstructure:"rpd" yaml:"rpd"`
	WindowSeconds int `mapstructure:"window_seconds" yaml:"window_seconds"`
}

// PoolCfg bounds concurrent page requests.
type PoolCfg struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// LayoutCfg controls the explanation columns.
type LayoutCfg struct {
	FontSize      float64 `mapstructure:"font_size" yaml:"font_size"`
	LineSpacing   float64 `mapstructure:"line_spacing" yaml:"line_spacing"`
	ColumnPadding float64 `mapstructure:"column_padding" yaml:"column_padding"`
	RenderMode    string  `mapstructure:"render_mode" yaml:"render_mode"` // plain, markdown, empty_right
	FontPath      string  `mapstructure:"font_path" yaml:"font_path"`     // TrueType file; core fonts when empty
}

// BlankCfg controls re-annotation of blank pages.
type BlankCfg struct {
	Retry      bool `mapstructure:"retry" yaml:"retry"`
	MinChars   int  `mapstructure:"min_chars" yaml:"min_chars"`
	RetryTimes int  `mapstructure:"retry_times" yaml:"retry_times"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Generation: GenerationCfg{
			Provider:        providers.GeminiName,
			Model:           providers.GeminiDefaultModel,
			APIKey:          "${GEMINI_API_KEY}",
			Temperature:     0.4,
			MaxOutputTokens: 4096,
			Instruction:     DefaultInstruction,
		},
		Render: RenderCfg{
			DPI:         180,
			PreviewSize: 1024,
		},
		Rate: RateCfg{
			RPM:           150,
			TPM:           2_000_000,
			RPD:           10000,
			WindowSeconds: 60,
		},
		Pool: PoolCfg{
			Concurrency: 50,
		},
		Layout: LayoutCfg{
			FontSize:      layout.DefaultFontSize,
			LineSpacing:   layout.DefaultLineSpacing,
			ColumnPadding: layout.DefaultColumnPadding,
			RenderMode:    string(layout.ModeMarkdown),
		},
		Blank: BlankCfg{
			Retry:      true,
			MinChars:   10,
			RetryTimes: 1,
		},
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Render.DPI <= 0 {
		return fmt.Errorf("render.dpi must be positive, got %d", c.Render.DPI)
	}
	if c.Pool.Concurrency <= 0 {
		return fmt.Errorf("pool.concurrency must be positive, got %d", c.Pool.Concurrency)
	}
	if c.Layout.FontSize <= 0 {
		return fmt.Errorf("layout.font_size must be positive, got %v", c.Layout.FontSize)
	}
	if c.Blank.RetryTimes < 0 {
		return fmt.Errorf("blank.retry_times must not be negative, got %d", c.Blank.RetryTimes)
	}
	if _, err := layout.ParseRenderMode(c.Layout.RenderMode); err != nil {
		return fmt.Errorf("layout.render_mode: %w", err)
	}
	return nil
}

// GeneratorConfig converts the generation section for providers.NewGenerator.
// The API key's ${ENV_VAR} references are resolved.
func (c *Config) GeneratorConfig() providers.GeneratorConfig {
	return providers.GeneratorConfig{
		Type:    c.Generation.Provider,
		Model:   c.Generation.Model,
		APIKey:  ResolveEnvVars(c.Generation.APIKey),
		BaseURL: c.Generation.BaseURL,
	}
}

// RateLimitConfig converts the rate section.
func (c *Config) RateLimitConfig() providers.RateLimitConfig {
	return providers.RateLimitConfig{
		RPM:    c.Rate.RPM,
		TPM:    c.Rate.TPM,
		RPD:    c.Rate.RPD,
		Window: time.Duration(c.Rate.WindowSeconds) * time.Second,
	}
}

// LayoutOptions converts the layout section.
func (c *Config) LayoutOptions() (layout.Options, error) {
	mode, err := layout.ParseRenderMode(c.Layout.RenderMode)
	if err != nil {
		return layout.Options{}, err
	}
	return layout.Options{
		FontSize:      c.Layout.FontSize,
		LineSpacing:   c.Layout.LineSpacing,
		ColumnPadding: c.Layout.ColumnPadding,
		Mode:          mode,
	}.WithDefaults(), nil
}

// BlankRetry converts the blank section.
func (c *Config) BlankRetry() annotate.BlankRetryConfig {
	return annotate.BlankRetryConfig{
		Enabled:  c.Blank.Retry,
		MinChars: c.Blank.MinChars,
		Times:    c.Blank.RetryTimes,
	}
}
