package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const providerOpenAI = "openai"

// OpenAI talks to any OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	log         *zap.Logger
}

func newOpenAI(opts Options, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	cfg.HTTPClient = httpClient
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		log:         opts.Log,
	}
}

func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		requestsTotal.WithLabelValues(providerOpenAI, c.model, statusError).Inc()
		return "", fmt.Errorf("%w: empty prompt", ErrGenerationFailed)
	}
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	duration := time.Since(start)
	if err != nil {
		requestsTotal.WithLabelValues(providerOpenAI, c.model, statusError).Inc()
		c.log.Debug("openai request failed", zap.String("model", c.model), zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		requestsTotal.WithLabelValues(providerOpenAI, c.model, statusEmpty).Inc()
		return "", fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	requestsTotal.WithLabelValues(providerOpenAI, c.model, statusSuccess).Inc()
	requestDuration.WithLabelValues(providerOpenAI, c.model).Observe(duration.Seconds())
	tokens := resp.Usage.PromptTokens
	if tokens == 0 {
		tokens = CountTokens(c.model, prompt)
	}
	promptTokens.WithLabelValues(providerOpenAI, c.model).Observe(float64(tokens))
	c.log.Debug("openai response",
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", tokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
