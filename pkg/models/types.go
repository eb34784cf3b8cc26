package models

import "time"

// Difficulty labels a task's expected effort level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the enumerated difficulty labels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// GenerationRequest is the immutable input for a generation run.
type GenerationRequest struct {
	Scenario    string `json:"scenario"`
	NumTasks    int    `json:"num_tasks"`
	Parallelism int    `json:"parallelism"`
	Model       string `json:"model"`
}

// TaskMetadata is the structured metadata document of a generated task,
// rendered to task.yaml on export.
type TaskMetadata struct {
	Instruction           string     `json:"instruction" yaml:"instruction"`
	AuthorName            string     `json:"author_name" yaml:"author_name"`
	AuthorEmail           string     `json:"author_email" yaml:"author_email"`
	Difficulty            Difficulty `json:"difficulty" yaml:"difficulty"`
	Category              string     `json:"category" yaml:"category"`
	Tags                  []string   `json:"tags" yaml:"tags"`
	ParserName            string     `json:"parser_name" yaml:"parser_name"`
	MaxAgentTimeoutSec    int        `json:"max_agent_timeout_sec" yaml:"max_agent_timeout_sec"`
	MaxTestTimeoutSec     int        `json:"max_test_timeout_sec" yaml:"max_test_timeout_sec"`
	ExpertTimeEstimateMin int        `json:"expert_time_estimate_min" yaml:"expert_time_estimate_min"`
	JuniorTimeEstimateMin int        `json:"junior_time_estimate_min" yaml:"junior_time_estimate_min"`
}

// TaskArtifact is one complete generated benchmark task bundle. An artifact
// is either fully populated or never surfaced to callers; workers discard
// partial results instead of emitting them.
type TaskArtifact struct {
	ID             string       `json:"id"`
	Name           string       `json:"task_name"`
	Metadata       TaskMetadata `json:"task_yaml"`
	Dockerfile     string       `json:"dockerfile"`
	DockerCompose  string       `json:"docker_compose"`
	SolutionScript string       `json:"solution_script"`
	RunTestsScript string       `json:"run_tests_script"`
	TestFile       string       `json:"test_file_content"`
}

// RunStatus is the lifecycle status of a generation run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status will no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunState is a snapshot of a generation run. It is written only by the
// orchestrator's collector; readers receive deep copies and may compare
// consecutive snapshots byte for byte.
type RunState struct {
	RunID     string         `json:"run_id"`
	Status    RunStatus      `json:"status"`
	Requested int            `json:"requested"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Log       []string       `json:"log"`
	Artifacts []TaskArtifact `json:"artifacts"`
}

// EventType identifies a streamed progress event.
type EventType string

const (
	EventStart    EventType = "start"
	EventInfo     EventType = "info"
	EventProgress EventType = "progress"
	EventSuccess  EventType = "success"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one entry of the ordered progress stream. Within a run, start
// precedes everything, complete follows everything, and progress/success/
// error interleave in worker completion order.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	// Generated is set only on complete events and then always carries the
	// success count, including zero.
	Generated *int          `json:"generated,omitempty"`
	Task      *TaskArtifact `json:"task,omitempty"`
}

// CompleteEvent builds the terminal event of a run's stream.
func CompleteEvent(generated, total int, message string) Event {
	return Event{
		Type:      EventComplete,
		Generated: &generated,
		Total:     total,
		Message:   message,
	}
}

// RoundStatus is the state of a single validation round.
type RoundStatus string

const (
	RoundPending RoundStatus = "pending"
	RoundRunning RoundStatus = "running"
	RoundPassed  RoundStatus = "passed"
	RoundFailed  RoundStatus = "failed"
)

// ValidationRound records one independent oracle sweep over the task set.
// Ratings are populated only when the round passed; a round that never ran
// to completion cannot be judged.
type ValidationRound struct {
	Round       int           `json:"round"`
	Status      RoundStatus   `json:"status"`
	Quality     *float64      `json:"quality_rating,omitempty"`
	Difficulty  *Difficulty   `json:"difficulty_rating,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Duration    time.Duration `json:"-"`
}

// CountRounds derives aggregate pass/fail totals from a round list. The
// counts are never stored alongside the rounds, so the two views cannot
// diverge.
func CountRounds(rounds []ValidationRound) (passed, failed int) {
	for _, r := range rounds {
		switch r.Status {
		case RoundPassed:
			passed++
		case RoundFailed:
			failed++
		}
	}
	return passed, failed
}

// RunStats tracks aggregate timing for a generation run.
type RunStats struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalTasks      int
	SuccessCount    int
	FailureCount    int
	TotalDuration   time.Duration
	AverageDuration time.Duration
}
