package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "lizzy.yml"

// Config models lizzy.yml.
type Config struct {
	Writer     WriterConfig     `yaml:"writer"`
	Generation GenerationConfig `yaml:"generation"`
	Export     ExportConfig     `yaml:"export"`
	Webhooks   []WebhookConfig  `yaml:"webhooks"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type WriterConfig struct {
	Style             string `yaml:"style"`
	Tone              string `yaml:"tone"`
	Format            string `yaml:"format"`
	EasterEgg         string `yaml:"easter_egg"`
	MinWords          int    `yaml:"min_words"`
	MaxWords          int    `yaml:"max_words"`
	RequireBrainstorm bool   `yaml:"require_brainstorm"`
	BrainstormPrefix  string `yaml:"brainstorm_prefix"`
	PrevSceneMaxChars int    `yaml:"prev_scene_max_chars"`
	OutlineMaxChars   int    `yaml:"outline_max_chars"`
}

type GenerationConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float32 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

const (
	FormatProse      = "prose"
	FormatScreenplay = "screenplay"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Writer.Format {
	case FormatProse, FormatScreenplay:
	default:
		return fmt.Errorf("writer.format must be %q or %q, got %q", FormatProse, FormatScreenplay, c.Writer.Format)
	}
	if c.Writer.MinWords < 0 || c.Writer.MaxWords < 0 {
		return fmt.Errorf("writer word targets must not be negative")
	}
	if c.Writer.MaxWords > 0 && c.Writer.MinWords > c.Writer.MaxWords {
		return fmt.Errorf("writer.min_words (%d) exceeds writer.max_words (%d)", c.Writer.MinWords, c.Writer.MaxWords)
	}
	if c.Writer.BrainstormPrefix == "" {
		return fmt.Errorf("writer.brainstorm_prefix is required")
	}
	if c.Writer.PrevSceneMaxChars <= 0 {
		return fmt.Errorf("writer.prev_scene_max_chars must be positive")
	}
	if c.Writer.OutlineMaxChars <= 0 {
		return fmt.Errorf("writer.outline_max_chars must be positive")
	}
	switch c.Generation.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("generation.provider must be %q or %q, got %q", ProviderOpenAI, ProviderOllama, c.Generation.Provider)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Generation.TimeoutSeconds < 0 {
		return fmt.Errorf("generation.timeout_seconds must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhooks[%d] has an empty event type", i)
			}
		}
	}
	switch c.Logging.Encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.encoding must be console or json")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with lizzy config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config on top of the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `writer:
  style: cinematic
  tone: witty and heartfelt
  format: prose
  easter_egg: ""
  min_words: 700
  max_words: 900
  require_brainstorm: true
  brainstorm_prefix: brainstorm
  prev_scene_max_chars: 2500
  outline_max_chars: 1200

generation:
  provider: openai
  model: gpt-4o-mini
  base_url: ""
  timeout_seconds: 120
  temperature: 0.8
  max_tokens: 2000

export:
  dir: ""

webhooks: []

logging:
  level: info
  encoding: console
`
