// Package config loads monologue settings from defaults, a YAML file and the
// environment. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/monologue/internal/llm"
	"github.com/rcliao/monologue/internal/twopass"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "monologue.yaml"

// Config is the complete monologue configuration.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Generation GenerationConfig `yaml:"generation"`
	Retry      llm.RetryConfig  `yaml:"retry"`
	Output     string           `yaml:"output"`
	Vocabulary string           `yaml:"vocabulary_dir"`
	Tables     string           `yaml:"tables"`
	Cache      bool             `yaml:"cache"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ProviderConfig selects the generative service.
type ProviderConfig struct {
	// Name is openai, ollama or genai.
	Name    string        `yaml:"name"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// APIKey is only read from the environment.
	APIKey string `yaml:"-"`
}

// GenerationConfig tunes requests and concurrency.
type GenerationConfig struct {
	Temperature         float64       `yaml:"temperature"`
	MaxTokens           int           `yaml:"max_tokens"`
	SimplifiedMaxTokens int           `yaml:"simplified_max_tokens"`
	Concurrency         int           `yaml:"concurrency"`
	MinInterval         time.Duration `yaml:"min_interval"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	gen := twopass.DefaultConfig()
	return &Config{
		Provider: ProviderConfig{
			Name:    "openai",
			Model:   "gpt-4o-mini",
			Timeout: 180 * time.Second,
		},
		Generation: GenerationConfig{
			Temperature:         gen.Temperature,
			MaxTokens:           gen.MaxTokens,
			SimplifiedMaxTokens: gen.SimplifiedMaxTokens,
			Concurrency:         8,
			MinInterval:         llm.DefaultMinInterval,
		},
		Retry:  llm.DefaultRetryConfig(),
		Output: "output",
		Cache:  true,
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration. path names a YAML file that must exist;
// when empty, DefaultFile is used if present. Environment variables are
// read through getenv and override the file.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Provider.Name, "MONOLOGUE_PROVIDER")
	set(&c.Provider.Model, "MONOLOGUE_MODEL")
	set(&c.Provider.BaseURL, "MONOLOGUE_BASE_URL")
	set(&c.Output, "MONOLOGUE_OUTPUT")
	set(&c.Tables, "MONOLOGUE_TABLES")
	set(&c.Log.Level, "MONOLOGUE_LOG_LEVEL")

	if v := getenv("MONOLOGUE_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MONOLOGUE_CONCURRENCY: %w", err)
		}
		c.Generation.Concurrency = n
	}

	switch c.Provider.Name {
	case "genai":
		set(&c.Provider.APIKey, "GEMINI_API_KEY")
	default:
		set(&c.Provider.APIKey, "OPENAI_API_KEY")
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case "openai", "ollama", "genai":
	default:
		return fmt.Errorf("provider.name must be openai, ollama or genai, got %q", c.Provider.Name)
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	g := c.Generation
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2")
	}
	if g.MaxTokens <= 0 || g.SimplifiedMaxTokens <= 0 {
		return fmt.Errorf("generation token limits must be positive")
	}
	if g.SimplifiedMaxTokens > g.MaxTokens {
		return fmt.Errorf("generation.simplified_max_tokens must not exceed max_tokens")
	}
	if g.Concurrency < 1 {
		return fmt.Errorf("generation.concurrency must be at least 1")
	}
	if g.MinInterval < 0 {
		return fmt.Errorf("generation.min_interval must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

// Settings returns the provider settings.
func (c *Config) Settings() llm.Settings {
	return llm.Settings{
		Provider: c.Provider.Name,
		Model:    c.Provider.Model,
		BaseURL:  c.Provider.BaseURL,
		APIKey:   c.Provider.APIKey,
		Timeout:  c.Provider.Timeout,
	}
}

// TwoPass returns the generation parameters.
func (c *Config) TwoPass() twopass.Config {
	return twopass.Config{
		Temperature:         c.Generation.Temperature,
		MaxTokens:           c.Generation.MaxTokens,
		SimplifiedMaxTokens: c.Generation.SimplifiedMaxTokens,
	}
}

// SaveToFile writes c as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
