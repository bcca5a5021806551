package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// GeminiService wraps the external generation backend behind a single
// Generate seam. Transient failures are retried with bounded backoff;
// authentication errors fail fast; every call is bounded by a deadline.
type GeminiService struct {
	genaiClient *genai.Client
	model       string
	timeout     time.Duration
	maxAttempts int
}

var retryBackoff = []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond}

func NewGeminiService(cfg AIConfig) (*GeminiService, error) {
	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		slog.Error("Failed to create genai client", "error", err)
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GeminiService{
		genaiClient: genaiClient,
		model:       cfg.Model,
		timeout:     timeout,
		maxAttempts: maxAttempts,
	}, nil
}

// Generate submits the prompt and returns the raw model text. The returned
// error is one of ErrModelTimeout or ErrModelUnavailable (wrapped with the
// underlying cause).
func (g *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	if g.genaiClient == nil {
		return "", fmt.Errorf("%w: genai client not initialized", ErrModelUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff[min(attempt-1, len(retryBackoff)-1)]
			slog.Warn("Retrying model call", "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrModelUnavailable, ctx.Err())
			}
		}

		text, err := g.generateOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		// Auth failures will not heal on retry.
		if isAuthError(err) {
			slog.Error("Model call rejected, not retrying", "error", err)
			return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %v", ErrModelTimeout, lastErr)
	}
	return "", fmt.Errorf("%w: %v", ErrModelUnavailable, lastErr)
}

func (g *GeminiService) generateOnce(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.genaiClient.Models.GenerateContent(
		callCtx,
		g.model,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return "", err
	}

	response := result.Text()
	slog.Info("Model response generated", "model", g.model, "prompt_length", len(prompt), "response_length", len(response))
	return response, nil
}

func isAuthError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
	}
	return false
}
