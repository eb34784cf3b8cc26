// Package runstate holds the state of the current generation run: an
// ordered event log, derived counters, and collected artifacts. The process
// tracks exactly one run at a time; starting a new run discards the previous
// one's state.
package runstate

import (
	"sync"

	"github.com/xdotli/agentic-rl/pkg/models"
)

// subscriberBuffer bounds each subscriber channel. A run emits at most two
// events per task plus a handful of lifecycle events, and requested task
// counts are capped well below this.
const subscriberBuffer = 1024

// Store is the single-writer event log for the current run. Only the
// orchestrator's collector appends; everything else reads snapshots or
// subscribes to the event stream.
type Store struct {
	mu      sync.RWMutex
	state   models.RunState
	events  []models.Event
	subs    map[int]chan models.Event
	nextSub int
	closed  bool
}

// NewStore creates an empty store in the idle state.
func NewStore() *Store {
	return &Store{
		state: models.RunState{Status: models.RunStatusIdle},
		subs:  make(map[int]chan models.Event),
	}
}

// Reset prepares the store for a new run, discarding all prior state and
// disconnecting any subscribers still attached to the previous run.
func (s *Store) Reset(runID string, requested int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}

	s.state = models.RunState{
		RunID:     runID,
		Status:    models.RunStatusRunning,
		Requested: requested,
	}
	s.events = nil
	s.closed = false
}

// Append records an event, folds it into the run state, and fans it out to
// subscribers. Events arrive from a single goroutine, so the log order is
// the run's canonical order.
func (s *Store) Append(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	s.apply(ev)

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// A subscriber that stopped draining loses events rather than
			// stalling the run.
		}
	}
}

func (s *Store) apply(ev models.Event) {
	switch ev.Type {
	case models.EventSuccess:
		s.state.Succeeded++
		if ev.Task != nil {
			s.state.Artifacts = append(s.state.Artifacts, *ev.Task)
		}
	case models.EventError:
		s.state.Failed++
	}
	if ev.Message != "" {
		s.state.Log = append(s.state.Log, ev.Message)
	}
}

// SetStatus transitions the run status. Terminal statuses also end the event
// stream: subscriber channels are closed once all appended events have been
// delivered.
func (s *Store) SetStatus(status models.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Status = status
	if status.Terminal() && !s.closed {
		s.closed = true
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
	}
}

// Snapshot returns a deep copy of the current run state.
func (s *Store) Snapshot() models.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.state
	snap.Log = append([]string(nil), s.state.Log...)
	snap.Artifacts = append([]models.TaskArtifact(nil), s.state.Artifacts...)
	for i := range snap.Artifacts {
		snap.Artifacts[i].Metadata.Tags = append([]string(nil), snap.Artifacts[i].Metadata.Tags...)
	}
	return snap
}

// Artifacts returns a copy of the artifacts collected so far.
func (s *Store) Artifacts() []models.TaskArtifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TaskArtifact(nil), s.state.Artifacts...)
}

// Subscribe attaches a new consumer to the event stream. All events appended
// so far are replayed first, then live events follow in order. The returned
// cancel function detaches the subscriber; the channel is closed either by
// cancel or when the run reaches a terminal status.
func (s *Store) Subscribe() (<-chan models.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.Event, subscriberBuffer)
	for _, ev := range s.events {
		ch <- ev
	}

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			close(sub)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}
