// Package jobwatch consumes the progress channel on behalf of a client: a
// reducer that mirrors job state from confirmed server events only, plus a
// status source abstraction unifying the push (socket) and pull (polling)
// paths.
package jobwatch

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/ws"
)

// JobState is the read-only client mirror of one generation job.
type JobState struct {
	JobID            string
	Stage            string
	Progress         int
	WordCount        int
	Content          string
	ErrorMessage     string
	Notice           string
	AwaitingApproval bool
	Terminal         bool
	// NeedsResync is set when the stream violated the protocol (progress
	// regression); the consumer should poll the status endpoint instead of
	// trusting further stream events.
	NeedsResync bool
}

// Watcher reduces protocol events into per-job state. It tolerates unknown
// event types, freezes state once a terminal event arrives, and flags a
// re-sync when progress regresses.
type Watcher struct {
	mu     sync.Mutex
	jobs   map[string]*JobState
	logger *zap.Logger
}

// NewWatcher constructs an empty watcher.
func NewWatcher(logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{jobs: make(map[string]*JobState), logger: logger}
}

// Apply folds one event into the mirror. Returns the resulting state and
// whether the event was applied (terminal jobs and malformed events are
// ignored).
func (w *Watcher) Apply(evt ws.Event) (JobState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.jobs[evt.JobID]
	if !ok {
		state = &JobState{JobID: evt.JobID}
		w.jobs[evt.JobID] = state
	}

	// Once terminal, the job is frozen: later events are not processed.
	if state.Terminal {
		return *state, false
	}

	switch evt.Type {
	case ws.EventProgress:
		payload, err := evt.DecodeProgress()
		if err != nil {
			w.logger.Debug("dropping malformed progress event", zap.String("job_id", evt.JobID), zap.Error(err))
			return *state, false
		}
		if payload.Progress < state.Progress {
			// Protocol violation: progress must be monotonic per job.
			state.NeedsResync = true
			w.logger.Warn("progress regressed, flagging re-sync",
				zap.String("job_id", evt.JobID), zap.Int("seen", state.Progress), zap.Int("got", payload.Progress))
			return *state, false
		}
		state.Stage = payload.Stage
		state.Progress = payload.Progress
		state.WordCount = payload.WordCount
		state.AwaitingApproval = false
		state.Notice = ""
		return *state, true

	case ws.EventStageComplete:
		var payload ws.StageCompletePayload
		if err := decode(evt, &payload); err != nil {
			return *state, false
		}
		state.Stage = payload.Stage
		if payload.Content != "" {
			state.Content = payload.Content
		}
		return *state, true

	case ws.EventComplete:
		payload, err := evt.DecodeComplete()
		if err != nil {
			return *state, false
		}
		state.Content = payload.Content
		state.Progress = 100
		state.Terminal = true
		return *state, true

	case ws.EventError:
		payload, err := evt.DecodeError()
		if err != nil {
			return *state, false
		}
		if payload.Recoverable {
			state.Notice = payload.Error
		} else {
			state.ErrorMessage = payload.Error
			state.Terminal = true
		}
		return *state, true

	case ws.EventApprovalRequired:
		var payload ws.ApprovalRequiredPayload
		if err := decode(evt, &payload); err != nil {
			return *state, false
		}
		state.Stage = payload.Stage
		state.AwaitingApproval = true
		return *state, true

	default:
		// Unknown event types must not crash or mutate state.
		return *state, false
	}
}

// Snapshot returns the current mirror for a job.
func (w *Watcher) Snapshot(jobID string) (JobState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.jobs[jobID]
	if !ok {
		return JobState{}, false
	}
	return *state, true
}

// Reset discards the mirror for a job. Used after a reconnect: a fresh
// connection is a clean slate and the client must re-subscribe.
func (w *Watcher) Reset(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.jobs, jobID)
}

func decode(evt ws.Event, dest interface{}) error {
	return json.Unmarshal(evt.Payload, dest)
}
