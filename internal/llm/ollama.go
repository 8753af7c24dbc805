package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

const (
	providerOllama = "ollama"
	defaultOllama  = "http://localhost:11434"
)

// Ollama calls the native chat API of a local Ollama server.
type Ollama struct {
	client      *api.Client
	model       string
	temperature float32
	maxTokens   int
	log         *zap.Logger
}

func newOllama(opts Options, httpClient *http.Client) (*Ollama, error) {
	base := opts.BaseURL
	if base == "" {
		base = defaultOllama
	}
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url %q: %w", base, err)
	}
	return &Ollama{
		client:      api.NewClient(u, httpClient),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		log:         opts.Log,
	}, nil
}

func (c *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		requestsTotal.WithLabelValues(providerOllama, c.model, statusError).Inc()
		return "", fmt.Errorf("%w: empty prompt", ErrGenerationFailed)
	}
	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.temperature,
		},
	}
	if c.maxTokens > 0 {
		req.Options["num_predict"] = c.maxTokens
	}
	start := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(ctx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		requestsTotal.WithLabelValues(providerOllama, c.model, statusError).Inc()
		c.log.Debug("ollama request failed", zap.String("model", c.model), zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		requestsTotal.WithLabelValues(providerOllama, c.model, statusEmpty).Inc()
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	requestsTotal.WithLabelValues(providerOllama, c.model, statusSuccess).Inc()
	requestDuration.WithLabelValues(providerOllama, c.model).Observe(duration.Seconds())
	if resp.PromptEvalCount > 0 {
		promptTokens.WithLabelValues(providerOllama, c.model).Observe(float64(resp.PromptEvalCount))
	}
	c.log.Debug("ollama response",
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.PromptEvalCount),
		zap.Int("completion_tokens", resp.EvalCount))
	return strings.TrimSpace(resp.Message.Content), nil
}
