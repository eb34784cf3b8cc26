package validator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/xdotli/agentic-rl/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testArtifacts() []models.TaskArtifact {
	return []models.TaskArtifact{
		{
			ID:   "id-1",
			Name: "postgres-backup-s3",
			Metadata: models.TaskMetadata{
				Instruction: "Back up a postgres database to S3.",
				Difficulty:  models.DifficultyMedium,
				Category:    "devops",
				Tags:        []string{"postgres", "s3"},
			},
		},
	}
}

// scriptedExecutor fails on the round numbers listed in failOn.
type scriptedExecutor struct {
	calls  int
	failOn map[int]error
}

func (e *scriptedExecutor) Execute(ctx context.Context, artifacts []models.TaskArtifact) error {
	e.calls++
	if err, ok := e.failOn[e.calls]; ok {
		return err
	}
	return nil
}

type stubRater struct {
	rating *Rating
	err    error
	calls  int
}

func (r *stubRater) Rate(ctx context.Context, artifacts []models.TaskArtifact) (*Rating, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.rating, nil
}

func goodRater() *stubRater {
	return &stubRater{rating: &Rating{Quality: 4.2, Difficulty: models.DifficultyMedium}}
}

func TestRunValidation_MixedRounds(t *testing.T) {
	executor := &scriptedExecutor{failOn: map[int]error{
		3: errors.New("task postgres-backup-s3 tests failed: exit status 1"),
	}}
	engine, err := NewEngine(executor, goodRater(), testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rounds := engine.RunValidation(context.Background(), testArtifacts(), 5)
	if len(rounds) != 5 {
		t.Fatalf("Expected 5 rounds, got %d", len(rounds))
	}

	for i, r := range rounds {
		if r.Round != i+1 {
			t.Errorf("Round %d has number %d", i, r.Round)
		}
		if r.Status != models.RoundPassed && r.Status != models.RoundFailed {
			t.Errorf("Round %d not terminal: %s", r.Round, r.Status)
		}
	}

	if rounds[2].Status != models.RoundFailed {
		t.Errorf("Expected round 3 to fail, got %s", rounds[2].Status)
	}
	if rounds[2].ErrorDetail == "" {
		t.Error("Failed round must carry an error detail")
	}
	if rounds[3].Status != models.RoundPassed {
		t.Errorf("Expected round 4 to pass after round 3 failed, got %s", rounds[3].Status)
	}

	passed, failed := models.CountRounds(rounds)
	if passed != 4 || failed != 1 {
		t.Errorf("Expected 4 passed / 1 failed, got %d / %d", passed, failed)
	}
}

func TestRunValidation_RatingsOnlyOnPassedRounds(t *testing.T) {
	executor := &scriptedExecutor{failOn: map[int]error{
		1: errors.New("boom"),
	}}
	engine, err := NewEngine(executor, goodRater(), testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rounds := engine.RunValidation(context.Background(), testArtifacts(), 3)
	for _, r := range rounds {
		switch r.Status {
		case models.RoundPassed:
			if r.Quality == nil || r.Difficulty == nil {
				t.Errorf("Passed round %d missing ratings", r.Round)
			}
			if r.Quality != nil && *r.Quality != 4.2 {
				t.Errorf("Round %d quality = %f, want 4.2", r.Round, *r.Quality)
			}
		case models.RoundFailed:
			if r.Quality != nil || r.Difficulty != nil {
				t.Errorf("Failed round %d carries ratings", r.Round)
			}
		}
	}
}

func TestRunValidation_RaterFailureFailsRound(t *testing.T) {
	executor := &scriptedExecutor{}
	rater := &stubRater{err: errors.New("rater model call failed: timeout")}
	engine, err := NewEngine(executor, rater, testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rounds := engine.RunValidation(context.Background(), testArtifacts(), 2)
	for _, r := range rounds {
		if r.Status != models.RoundFailed {
			t.Errorf("Round %d: expected failed when rater errors, got %s", r.Round, r.Status)
		}
		if r.Quality != nil || r.Difficulty != nil {
			t.Errorf("Round %d: ratings must be empty when rater fails", r.Round)
		}
	}
}

func TestRunValidation_CancellationFailsRemainingRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := &scriptedExecutor{}
	rater := goodRater()
	engine, err := NewEngine(executor, rater, testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	cancel()
	rounds := engine.RunValidation(ctx, testArtifacts(), 3)
	for _, r := range rounds {
		if r.Status != models.RoundFailed {
			t.Errorf("Round %d: expected failed after cancellation, got %s", r.Round, r.Status)
		}
	}
	if executor.calls != 0 {
		t.Errorf("Expected no executions after cancellation, got %d", executor.calls)
	}
}

func TestRunValidation_EmptyArtifacts(t *testing.T) {
	engine, err := NewEngine(&scriptedExecutor{}, goodRater(), testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rounds := engine.RunValidation(context.Background(), nil, 2)
	for _, r := range rounds {
		if r.Status != models.RoundFailed {
			t.Errorf("Round %d: expected failed for empty artifact set, got %s", r.Round, r.Status)
		}
	}
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	if _, err := NewEngine(nil, goodRater(), testLogger()); err == nil {
		t.Error("Expected error for nil executor")
	}
	if _, err := NewEngine(&scriptedExecutor{}, nil, testLogger()); err == nil {
		t.Error("Expected error for nil rater")
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name:    "valid rating",
			content: `{"quality": 4.5, "difficulty": "hard"}`,
			wantErr: false,
		},
		{
			name:    "markdown fenced rating",
			content: "```json\n{\"quality\": 3.0, \"difficulty\": \"easy\"}\n```",
			wantErr: false,
		},
		{
			name:    "quality out of range",
			content: `{"quality": 7.5, "difficulty": "hard"}`,
			wantErr: true,
		},
		{
			name:    "invalid difficulty",
			content: `{"quality": 3.0, "difficulty": "brutal"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			content: "the tasks look fine to me",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rating, err := parseRating(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got rating %+v", rating)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if !rating.Difficulty.Valid() {
				t.Errorf("Parsed invalid difficulty: %q", rating.Difficulty)
			}
		})
	}
}

func TestSummarizeTasks(t *testing.T) {
	artifacts := testArtifacts()
	summary := summarizeTasks(artifacts)
	for _, want := range []string{"postgres-backup-s3", "medium", "devops"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary missing %q:\n%s", want, summary)
		}
	}
}
