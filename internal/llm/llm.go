// Package llm wraps the external text-generation services used to write scenes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"lizzy/internal/config"
)

// ErrGenerationFailed wraps every backend failure.
var ErrGenerationFailed = errors.New("generation failed")

// Generator turns one prompt into one piece of text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Options struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
	Log         *zap.Logger
}

// OptionsFromConfig copies the generation section of lizzy.yml.
func OptionsFromConfig(cfg config.GenerationConfig, apiKey string, log *zap.Logger) Options {
	return Options{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      apiKey,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Log:         log,
	}
}

// New returns the Generator for opts.Provider.
func New(opts Options) (Generator, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	httpClient := &http.Client{Timeout: opts.Timeout}
	switch strings.ToLower(opts.Provider) {
	case config.ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai provider needs an API key (OPENAI_API_KEY)")
		}
		return newOpenAI(opts, httpClient), nil
	case config.ProviderOllama:
		return newOllama(opts, httpClient)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", opts.Provider)
	}
}
