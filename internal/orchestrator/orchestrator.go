// Package orchestrator runs parallel task generation: it fans jobs out to a
// bounded worker pool and serializes every outcome through one collector
// goroutine, which is the only writer of the run's event stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/generator"
	"github.com/xdotli/agentic-rl/internal/metrics"
	"github.com/xdotli/agentic-rl/internal/runstate"
	"github.com/xdotli/agentic-rl/pkg/models"
)

// ReadyChecker is implemented by generators that need per-run setup (seed
// resolution, credential checks). A Ready failure aborts the run before any
// job is dispatched.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// Orchestrator coordinates generation runs. At most one run is active per
// process; concurrent starts are rejected, never queued.
type Orchestrator struct {
	cfg    *config.Config
	gen    generator.Generator
	store  *runstate.Store
	logger *slog.Logger

	mu     sync.Mutex
	active bool
}

// New creates an orchestrator writing into the given run state store.
func New(cfg *config.Config, gen generator.Generator, store *runstate.Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		gen:    gen,
		store:  store,
		logger: logger.With("component", "orchestrator"),
	}
}

// Store exposes the run state store for snapshot polling.
func (o *Orchestrator) Store() *runstate.Store { return o.store }

// RunHandle follows one generation run: its event stream, cancellation, and
// final outcome.
type RunHandle struct {
	RunID string

	events    <-chan models.Event
	cancelRun context.CancelFunc
	done      chan struct{}

	mu    sync.Mutex
	err   error
	stats models.RunStats
}

// Events returns the run's ordered event stream. The channel replays events
// emitted before the subscription and closes once the run is terminal.
func (h *RunHandle) Events() <-chan models.Event { return h.events }

// Cancel stops the run. In-flight model calls are interrupted; the run is
// recorded as failed.
func (h *RunHandle) Cancel() { h.cancelRun() }

// Wait blocks until the run is terminal and returns its stats and error.
func (h *RunHandle) Wait() (models.RunStats, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats, h.err
}

func (h *RunHandle) finish(stats models.RunStats, err error) {
	h.mu.Lock()
	h.stats = stats
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// jobResult is what a worker hands back to the collector.
type jobResult struct {
	job      generator.Job
	artifact *models.TaskArtifact
	err      error
	duration time.Duration
}

// StartRun validates the request, claims the single run slot, and launches
// the run in the background. The returned handle is live immediately; its
// event stream begins with the start event.
func (o *Orchestrator) StartRun(ctx context.Context, req models.GenerationRequest) (*RunHandle, error) {
	o.applyDefaults(&req)
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return nil, ErrRunInFlight
	}
	o.active = true
	o.mu.Unlock()

	runID := uuid.New().String()
	o.store.Reset(runID, req.NumTasks)

	// The store closes subscriber channels itself once the run is terminal,
	// so the handle never needs the explicit cancel.
	events, _ := o.store.Subscribe()
	runCtx, cancelRun := context.WithCancel(ctx)
	h := &RunHandle{
		RunID:     runID,
		events:    events,
		cancelRun: cancelRun,
		done:      make(chan struct{}),
	}

	o.logger.Info("Starting generation run",
		"run_id", runID,
		"num_tasks", req.NumTasks,
		"parallelism", req.Parallelism)

	go o.run(runCtx, req, h)
	return h, nil
}

// applyDefaults fills unset (zero) fields from config. Negative values are
// left alone so validateRequest rejects them.
func (o *Orchestrator) applyDefaults(req *models.GenerationRequest) {
	if req.NumTasks == 0 {
		req.NumTasks = o.cfg.Generation.NumTasks
	}
	if req.Parallelism == 0 {
		req.Parallelism = o.cfg.Generation.Parallelism
	}
	if req.Scenario == "" {
		req.Scenario = o.cfg.Generation.Scenario
	}
}

func (o *Orchestrator) validateRequest(req models.GenerationRequest) error {
	if strings.TrimSpace(req.Scenario) == "" {
		return &InvalidRequestError{Reason: "scenario must not be empty"}
	}
	if req.NumTasks < 1 {
		return &InvalidRequestError{Reason: fmt.Sprintf("num_tasks must be at least 1 (got %d)", req.NumTasks)}
	}
	if req.Parallelism < 1 {
		return &InvalidRequestError{Reason: fmt.Sprintf("parallelism must be at least 1 (got %d)", req.Parallelism)}
	}
	if err := config.ValidateScenario(req.Scenario); err != nil {
		return &InvalidRequestError{Reason: err.Error()}
	}
	if req.NumTasks > config.MaxNumTasks {
		return &InvalidRequestError{Reason: fmt.Sprintf("num_tasks must not exceed %d (got %d)", config.MaxNumTasks, req.NumTasks)}
	}
	if req.Parallelism > config.MaxParallelism {
		return &InvalidRequestError{Reason: fmt.Sprintf("parallelism must not exceed %d (got %d)", config.MaxParallelism, req.Parallelism)}
	}
	return nil
}

// release frees the single run slot. Idempotent; called before the handle
// is finished so a caller returning from Wait can start the next run
// immediately.
func (o *Orchestrator) release() {
	o.mu.Lock()
	o.active = false
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, req models.GenerationRequest, h *RunHandle) {
	defer o.release()
	defer h.cancelRun()

	total := req.NumTasks
	parallelism := req.Parallelism
	if parallelism > total {
		parallelism = total
	}
	startTime := time.Now()

	o.store.Append(models.Event{
		Type:    models.EventStart,
		Total:   total,
		Message: fmt.Sprintf("Starting generation of %d tasks (parallelism: %d)", total, parallelism),
	})

	if rc, ok := o.gen.(ReadyChecker); ok {
		if err := rc.Ready(ctx); err != nil {
			o.fail(h, startTime, total, fmt.Sprintf("Generation failed to start: %v", err), &FatalError{Err: err})
			return
		}
	}
	o.store.Append(models.Event{
		Type:    models.EventInfo,
		Message: "Task generator ready",
	})

	jobs := make(chan generator.Job, total)
	results := make(chan jobResult, total)

	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go o.worker(ctx, jobs, results, &wg)
	}

	for slot := 1; slot <= total; slot++ {
		jobs <- generator.Job{Slot: slot, Scenario: req.Scenario, Model: req.Model}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single collector: the only writer of events after this point. Worker
	// completion order decides event order; progress is strictly 1..total.
	var succeeded, failed, current int
	var totalDuration time.Duration
	for res := range results {
		if errors.Is(res.err, context.Canceled) {
			continue
		}
		current++
		totalDuration += res.duration

		if res.err != nil {
			failed++
			metrics.RecordTaskGenerated(false)
			o.store.Append(models.Event{
				Type:    models.EventError,
				Message: fmt.Sprintf("Task %d failed: %v", res.job.Slot, res.err),
			})
		} else {
			succeeded++
			metrics.RecordTaskGenerated(true)
			o.store.Append(models.Event{
				Type:    models.EventSuccess,
				Task:    res.artifact,
				Message: fmt.Sprintf("Generated: %s", res.artifact.Name),
			})
		}

		o.store.Append(models.Event{
			Type:    models.EventProgress,
			Current: current,
			Total:   total,
			Message: fmt.Sprintf("Progress: %d/%d", current, total),
		})
	}

	stats := models.RunStats{
		StartTime:     startTime,
		EndTime:       time.Now(),
		TotalTasks:    total,
		SuccessCount:  succeeded,
		FailureCount:  failed,
		TotalDuration: totalDuration,
	}
	if current > 0 {
		stats.AverageDuration = totalDuration / time.Duration(current)
	}

	if ctx.Err() != nil && current < total {
		o.store.Append(models.Event{
			Type:    models.EventError,
			Message: fmt.Sprintf("Run cancelled after %d/%d tasks", current, total),
		})
		o.store.SetStatus(models.RunStatusFailed)
		o.logger.Warn("Generation run cancelled",
			"run_id", h.RunID,
			"completed", current,
			"total", total)
		o.release()
		h.finish(stats, ctx.Err())
		return
	}

	o.store.Append(models.CompleteEvent(succeeded, total,
		fmt.Sprintf("Generation complete: %d/%d tasks", succeeded, total)))
	o.store.SetStatus(models.RunStatusCompleted)

	o.logger.Info("Generation run complete",
		"run_id", h.RunID,
		"succeeded", succeeded,
		"failed", failed,
		"duration", stats.EndTime.Sub(stats.StartTime))
	o.release()
	h.finish(stats, nil)
}

// fail records a run that could not dispatch any work.
func (o *Orchestrator) fail(h *RunHandle, startTime time.Time, total int, message string, err error) {
	o.store.Append(models.Event{
		Type:    models.EventError,
		Message: message,
	})
	o.store.SetStatus(models.RunStatusFailed)
	o.logger.Error("Generation run failed to start", "run_id", h.RunID, "error", err)
	o.release()
	h.finish(models.RunStats{
		StartTime:  startTime,
		EndTime:    time.Now(),
		TotalTasks: total,
	}, err)
}

func (o *Orchestrator) worker(ctx context.Context, jobs <-chan generator.Job, results chan<- jobResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		metrics.WorkerStarted()
		start := time.Now()
		artifact, err := o.gen.GenerateTask(ctx, job)
		duration := time.Since(start)
		metrics.WorkerFinished()

		results <- jobResult{job: job, artifact: artifact, err: err, duration: duration}
	}
}
