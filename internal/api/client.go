package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/metrics"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the base delay for exponential backoff
	DefaultBaseRetryDelay = 2 * time.Second
	// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
	RateLimitBackoffMultiplier = 3
)

// Client handles HTTP requests to OpenAI-compatible API endpoints
type Client struct {
	httpClient      *http.Client
	rateLimiterPool *RateLimiterPool
	logger          *slog.Logger
	baseRetryDelay  time.Duration
}

// NewClient creates a new API client. Per-call timeouts come from the model
// config rather than the shared http.Client so different endpoints can carry
// different budgets.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient:      &http.Client{},
		rateLimiterPool: NewRateLimiterPool(),
		logger:          logger,
		baseRetryDelay:  DefaultBaseRetryDelay,
	}
}

// ChatCompletion sends a chat completion request to the specified model
func (c *Client) ChatCompletion(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	messages []Message,
) (*ChatCompletionResponse, error) {
	req := ChatCompletionRequest{
		Model:       modelCfg.ModelName,
		Messages:    messages,
		Temperature: modelCfg.Temperature,
		TopP:        modelCfg.TopP,
		MaxTokens:   modelCfg.MaxOutputTokens,
	}
	if modelCfg.UseJSONMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return c.complete(ctx, modelCfg, apiKey, req)
}

// ChatCompletionStructured sends a chat completion request with JSON output
// mode forced on, regardless of the model config.
func (c *Client) ChatCompletionStructured(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	messages []Message,
) (*ChatCompletionResponse, error) {
	req := ChatCompletionRequest{
		Model:          modelCfg.ModelName,
		Messages:       messages,
		Temperature:    modelCfg.Temperature,
		TopP:           modelCfg.TopP,
		MaxTokens:      modelCfg.MaxOutputTokens,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}
	return c.complete(ctx, modelCfg, apiKey, req)
}

func (c *Client) complete(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	req ChatCompletionRequest,
) (*ChatCompletionResponse, error) {
	// Rate limit per endpoint+model pair
	modelID := fmt.Sprintf("%s:%s", modelCfg.BaseURL, modelCfg.ModelName)
	if err := c.rateLimiterPool.Wait(ctx, modelID, modelCfg.RateLimitPerMinute); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	// Zero means unset; an explicit -1 disables HTTP-level retries so a
	// task-level budget can own the failure instead.
	maxRetries := modelCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay

			// Rate limit responses get longer delays (3^n: 6s, 18s, 54s)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
				backoff = time.Duration(math.Pow(RateLimitBackoffMultiplier, float64(attempt))) * c.baseRetryDelay
			}

			jitter := time.Duration(float64(backoff) * 0.1 * (2*float64(time.Now().UnixNano()%100)/100 - 1))
			sleepDuration := backoff + jitter

			c.logger.Warn("Retrying API request",
				"attempt", attempt,
				"max_retries", maxRetries,
				"backoff", sleepDuration,
				"model", modelCfg.ModelName)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		start := time.Now()
		resp, err := c.doRequest(ctx, modelCfg, apiKey, req)
		metrics.RecordModelRequest(modelCfg.ModelName, time.Since(start), err == nil)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(
	ctx context.Context,
	modelCfg config.ModelConfig,
	apiKey string,
	req ChatCompletionRequest,
) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Per-call timeout; exceeding it surfaces as a retryable transport error
	if modelCfg.HTTPTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(modelCfg.HTTPTimeoutSeconds)*time.Second)
		defer cancel()
	}

	endpoint := modelCfg.BaseURL
	if endpoint[len(endpoint)-1] != '/' {
		endpoint += "/"
	}
	endpoint += "chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	} else {
		c.logger.Warn("API request without key", "endpoint", endpoint)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Do not convert the caller's own cancellation into a retryable error
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, &APIError{
			Message:    fmt.Sprintf("request failed: %v", err),
			StatusCode: 0,
			Retryable:  true,
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		retryable := isStatusCodeRetryable(httpResp.StatusCode)

		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &APIError{
				Message:    errResp.Error.Message,
				StatusCode: httpResp.StatusCode,
				Type:       errResp.Error.Type,
				Code:       errResp.Error.Code,
				Retryable:  retryable,
			}
		}

		return nil, &APIError{
			Message:    fmt.Sprintf("API request failed with status %d: %s", httpResp.StatusCode, string(respBody)),
			StatusCode: httpResp.StatusCode,
			Retryable:  retryable,
		}
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned in response")
	}

	return &resp, nil
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	// Deadline-exceeded per-call timeouts count as transient
	return errors.Is(err, context.DeadlineExceeded)
}

func isStatusCodeRetryable(statusCode int) bool {
	// Retry on rate limits and server errors
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

// APIError represents an error returned by the API
type APIError struct {
	Message    string
	StatusCode int
	Type       string
	Code       string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}
