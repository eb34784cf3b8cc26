package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/xdotli/agentic-rl/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testModelConfig(baseURL string) config.ModelConfig {
	return config.ModelConfig{
		BaseURL:            baseURL,
		ModelName:          "test-model",
		Temperature:        0.7,
		TopP:               1.0,
		MaxOutputTokens:    100,
		RateLimitPerMinute: 600,
		HTTPTimeoutSeconds: 5,
		MaxRetries:         2,
	}
}

func completionBody(content string) string {
	return `{
		"id": "test-123",
		"object": "chat.completion",
		"created": 1234567890,
		"model": "test-model",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": ` + jsonString(content) + `},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestChatCompletion_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header 'Bearer test-key', got '%s'", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(completionBody("Test response")))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	resp, err := client.ChatCompletion(
		context.Background(),
		testModelConfig(server.URL),
		"test-key",
		[]Message{{Role: "user", Content: "Test message"}},
	)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Choices[0].Message.Content != "Test response" {
		t.Errorf("Unexpected content: %q", resp.Choices[0].Message.Content)
	}
}

func TestChatCompletionStructured_ForcesJSONMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("Expected response_format json_object")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(completionBody(`{"ok": true}`)))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	_, err := client.ChatCompletionStructured(
		context.Background(),
		testModelConfig(server.URL),
		"test-key",
		[]Message{{Role: "user", Content: "Test"}},
	)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestChatCompletion_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "upstream exploded", "type": "server_error"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(completionBody("Recovered")))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	client.baseRetryDelay = time.Millisecond

	resp, err := client.ChatCompletion(
		context.Background(),
		testModelConfig(server.URL),
		"test-key",
		[]Message{{Role: "user", Content: "Test"}},
	)
	if err != nil {
		t.Fatalf("Expected success after retries, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if resp.Choices[0].Message.Content != "Recovered" {
		t.Errorf("Unexpected content: %q", resp.Choices[0].Message.Content)
	}
}

func TestChatCompletion_NegativeMaxRetriesDisablesRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream exploded", "type": "server_error"}}`))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	client.baseRetryDelay = time.Millisecond

	modelCfg := testModelConfig(server.URL)
	modelCfg.MaxRetries = -1

	_, err := client.ChatCompletion(
		context.Background(),
		modelCfg,
		"test-key",
		[]Message{{Role: "user", Content: "Test"}},
	)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt with retries disabled, got %d", attempts)
	}
}

func TestChatCompletion_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "auth_error"}}`))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	client.baseRetryDelay = time.Millisecond

	_, err := client.ChatCompletion(
		context.Background(),
		testModelConfig(server.URL),
		"wrong-key",
		[]Message{{Role: "user", Content: "Test"}},
	)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected exactly 1 attempt for 401, got %d", attempts)
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Retryable {
		t.Error("Expected 401 to be non-retryable")
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", apiErr.StatusCode)
	}
}

func TestChatCompletion_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer server.Close()

	client := NewClient(testLogger())
	_, err := client.ChatCompletion(
		context.Background(),
		testModelConfig(server.URL),
		"test-key",
		[]Message{{Role: "user", Content: "Test"}},
	)
	if err == nil {
		t.Fatal("Expected error for empty choices, got nil")
	}
}

func TestChatCompletion_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(completionBody("too late")))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	client := NewClient(testLogger())
	client.baseRetryDelay = time.Millisecond

	start := time.Now()
	_, err := client.ChatCompletion(
		ctx,
		testModelConfig(server.URL),
		"test-key",
		[]Message{{Role: "user", Content: "Test"}},
	)
	if err == nil {
		t.Fatal("Expected error after cancellation, got nil")
	}
	if time.Since(start) > time.Second {
		t.Error("Cancellation did not interrupt the request promptly")
	}
}
