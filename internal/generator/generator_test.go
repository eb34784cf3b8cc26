package generator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xdotli/agentic-rl/internal/api"
	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/seeds"
	"github.com/xdotli/agentic-rl/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"task_name": "slack-notification-api",
		"task_yaml": map[string]interface{}{
			"instruction":              "Build a script that posts a message to Slack.",
			"author_name":              "Terminal Bench",
			"author_email":             "tb@laude.org",
			"difficulty":               "medium",
			"category":                 "software-engineering",
			"tags":                     []string{"api", "automation"},
			"parser_name":              "pytest",
			"max_agent_timeout_sec":    600,
			"max_test_timeout_sec":     120,
			"expert_time_estimate_min": 10,
			"junior_time_estimate_min": 30,
		},
		"dockerfile":        "FROM python:3.11-slim\n",
		"docker_compose":    "services:\n  app:\n    build: .\n",
		"solution_script":   "#!/bin/bash\necho done\n",
		"run_tests_script":  "#!/bin/bash\npytest tests/\n",
		"test_file_content": "def test_ok():\n    assert True\n",
	}
}

func marshalPayload(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return string(data)
}

func TestParseArtifact_Valid(t *testing.T) {
	artifact, err := parseArtifact(marshalPayload(t, validPayload()))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if artifact.ID == "" {
		t.Error("Expected artifact to get an ID")
	}
	if artifact.Name != "slack-notification-api" {
		t.Errorf("Unexpected task name: %q", artifact.Name)
	}
	if artifact.Metadata.Difficulty != models.DifficultyMedium {
		t.Errorf("Unexpected difficulty: %q", artifact.Metadata.Difficulty)
	}
	if artifact.TestFile == "" {
		t.Error("Expected test file content")
	}
}

func TestParseArtifact_MarkdownFenced(t *testing.T) {
	content := "Here is the task:\n```json\n" + marshalPayload(t, validPayload()) + "\n```"
	artifact, err := parseArtifact(content)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if artifact.Name != "slack-notification-api" {
		t.Errorf("Unexpected task name: %q", artifact.Name)
	}
}

func TestParseArtifact_SchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		reason string
	}{
		{
			name:   "empty task name",
			mutate: func(p map[string]interface{}) { p["task_name"] = "  " },
			reason: "task_name",
		},
		{
			name: "empty instruction",
			mutate: func(p map[string]interface{}) {
				p["task_yaml"].(map[string]interface{})["instruction"] = ""
			},
			reason: "instruction",
		},
		{
			name: "invalid difficulty",
			mutate: func(p map[string]interface{}) {
				p["task_yaml"].(map[string]interface{})["difficulty"] = "impossible"
			},
			reason: "difficulty",
		},
		{
			name: "empty category",
			mutate: func(p map[string]interface{}) {
				p["task_yaml"].(map[string]interface{})["category"] = ""
			},
			reason: "category",
		},
		{
			name:   "empty dockerfile",
			mutate: func(p map[string]interface{}) { p["dockerfile"] = "" },
			reason: "dockerfile",
		},
		{
			name:   "empty solution",
			mutate: func(p map[string]interface{}) { p["solution_script"] = "" },
			reason: "solution_script",
		},
		{
			name:   "empty test file",
			mutate: func(p map[string]interface{}) { p["test_file_content"] = "" },
			reason: "test_file_content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload()
			tt.mutate(payload)
			_, err := parseArtifact(marshalPayload(t, payload))

			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Expected *SchemaError, got: %v", err)
			}
			if !strings.Contains(schemaErr.Reason, tt.reason) {
				t.Errorf("Expected reason containing %q, got: %q", tt.reason, schemaErr.Reason)
			}
		})
	}
}

func TestParseArtifact_NotJSON(t *testing.T) {
	_, err := parseArtifact("I am unable to generate a task right now.")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Expected *SchemaError for non-JSON output, got: %v", err)
	}
}

func writeSeedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"task.yaml":   "instruction: demo seed\ndifficulty: medium\n",
		"Dockerfile":  "FROM python:3.11-slim\n",
		"solution.sh": "#!/bin/bash\necho solved\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write seed file: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "tests"), 0o755); err != nil {
		t.Fatalf("Failed to create tests dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tests", "test_outputs.py"), []byte("def test_seed():\n    assert True\n"), 0o644); err != nil {
		t.Fatalf("Failed to write seed test: %v", err)
	}
	return dir
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Generation: config.GenerationConfig{
			NumTasks:    3,
			Parallelism: 2,
			MaxRetries:  1,
		},
		Models: map[string]config.ModelConfig{
			"generator": {
				BaseURL:            baseURL,
				ModelName:          "test-model",
				Temperature:        0.7,
				TopP:               1.0,
				MaxOutputTokens:    1024,
				RateLimitPerMinute: 600,
				HTTPTimeoutSeconds: 5,
				MaxRetries:         1,
			},
		},
		PromptTemplates: config.PromptTemplates{
			TaskSystemPrompt: config.DefaultTaskSystemPrompt(),
			TaskGeneration:   config.DefaultTaskTemplate(),
		},
	}
}

func completionWith(t *testing.T, content string) string {
	t.Helper()
	resp := map[string]interface{}{
		"id":      "resp-1",
		"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}
	return string(data)
}

func TestGenerateTask_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(validPayload())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(completionWith(t, string(body))))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	store := seeds.NewStore(writeSeedDir(t), testLogger())
	gen := NewLLMGenerator(cfg, &config.Secrets{APIKeys: map[string]string{}}, api.NewClient(testLogger()), store, testLogger())

	if err := gen.Ready(context.Background()); err != nil {
		t.Fatalf("Ready failed: %v", err)
	}

	artifact, err := gen.GenerateTask(context.Background(), Job{Slot: 1, Scenario: "build API automation tasks"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if artifact.Name != "slack-notification-api" {
		t.Errorf("Unexpected task name: %q", artifact.Name)
	}
}

func TestGenerateTask_RetriesTransientFailures(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "upstream overloaded"}}`))
			return
		}
		body, _ := json.Marshal(validPayload())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(completionWith(t, string(body))))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Generation.MaxRetries = 2
	disableClientRetries(cfg)
	store := seeds.NewStore(writeSeedDir(t), testLogger())
	gen := NewLLMGenerator(cfg, &config.Secrets{APIKeys: map[string]string{}}, api.NewClient(testLogger()), store, testLogger())
	gen.retryDelay = time.Millisecond

	artifact, err := gen.GenerateTask(context.Background(), Job{Slot: 1, Scenario: "scenario"})
	if err != nil {
		t.Fatalf("Expected success after retries, got: %v", err)
	}
	if artifact.Name != "slack-notification-api" {
		t.Errorf("Unexpected task name: %q", artifact.Name)
	}
	if requests != 3 {
		t.Errorf("Expected 3 attempts (2 failures + 1 success), got %d", requests)
	}
}

func TestGenerateTask_RetryBudgetExhausted(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream overloaded"}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Generation.MaxRetries = 2
	disableClientRetries(cfg)
	store := seeds.NewStore(writeSeedDir(t), testLogger())
	gen := NewLLMGenerator(cfg, &config.Secrets{APIKeys: map[string]string{}}, api.NewClient(testLogger()), store, testLogger())
	gen.retryDelay = time.Millisecond

	_, err := gen.GenerateTask(context.Background(), Job{Slot: 1, Scenario: "scenario"})
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("Expected *ModelError after exhausted retries, got: %v", err)
	}
	if requests != 3 {
		t.Errorf("Expected 3 attempts (initial + 2 retries), got %d", requests)
	}
}

// disableClientRetries pins the model to a single HTTP attempt per call so
// the task-level retry loop is the only retry path under test.
func disableClientRetries(cfg *config.Config) {
	model := cfg.Models["generator"]
	model.MaxRetries = -1
	cfg.Models["generator"] = model
}

func TestGenerateTask_SchemaFailureNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(completionWith(t, `{"task_name": ""}`)))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	store := seeds.NewStore(writeSeedDir(t), testLogger())
	gen := NewLLMGenerator(cfg, &config.Secrets{APIKeys: map[string]string{}}, api.NewClient(testLogger()), store, testLogger())

	_, err := gen.GenerateTask(context.Background(), Job{Slot: 1, Scenario: "scenario"})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Expected *SchemaError, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for schema failure, got %d", attempts)
	}
}

func TestGenerateTask_MissingSeed(t *testing.T) {
	store := seeds.NewStore("", testLogger())
	cfg := testConfig("http://localhost:0")
	gen := NewLLMGenerator(cfg, &config.Secrets{APIKeys: map[string]string{}}, api.NewClient(testLogger()), store, testLogger())

	if err := gen.Ready(context.Background()); err == nil {
		t.Fatal("Expected Ready to fail without a seed task")
	}

	_, err := gen.GenerateTask(context.Background(), Job{Slot: 1, Scenario: "scenario"})
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("Expected *ModelError, got: %v", err)
	}
}
