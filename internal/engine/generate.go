package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var errNoGenerator = errors.New("no text generator configured")

// GenerationResult is either generated text or the reason generation failed.
type GenerationResult struct {
	Text string
	Err  error
}

func (r GenerationResult) OK() bool {
	return r.Err == nil
}

// Output is the text persisted for the scene: the generated text, or an
// error marker naming the failure.
func (r GenerationResult) Output() string {
	if r.Err != nil {
		return ErrorMarker(r.Err)
	}
	return r.Text
}

func ErrorMarker(err error) string {
	return fmt.Sprintf("[GENERATION ERROR: %v]", err)
}

// IsErrorMarker reports whether persisted text is a failed generation.
func IsErrorMarker(text string) bool {
	return strings.HasPrefix(text, "[GENERATION ERROR:")
}

// generate makes exactly one generation call. Failures, including panics in
// the backend, come back inside the result.
func (e Engine) generate(ctx context.Context, prompt string) (res GenerationResult) {
	if e.Generator == nil {
		return GenerationResult{Err: errNoGenerator}
	}
	defer func() {
		if r := recover(); r != nil {
			res = GenerationResult{Err: fmt.Errorf("generator panic: %v", r)}
		}
	}()
	text, err := e.Generator.Generate(ctx, prompt)
	if err != nil {
		return GenerationResult{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return GenerationResult{Err: errors.New("empty response")}
	}
	return GenerationResult{Text: text}
}
