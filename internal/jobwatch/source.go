package jobwatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gradeforge/gradeforge-api/internal/ws"
)

// Source delivers job state updates. Consumers read one channel whether the
// backend pushes socket events or pulls status snapshots, so they never
// duplicate reconciliation logic between the two paths.
type Source interface {
	Watch(ctx context.Context, jobID string) (<-chan JobState, error)
}

// SnapshotFunc fetches an authoritative job status snapshot, e.g. from the
// polling endpoint.
type SnapshotFunc func(ctx context.Context, jobID string) (JobState, error)

// StreamSource reduces a live event stream through a Watcher. When the stream
// violates the protocol the source re-syncs once from the snapshot endpoint
// and keeps the authoritative result.
type StreamSource struct {
	Events   <-chan ws.Event
	Snapshot SnapshotFunc
	Logger   *zap.Logger
}

// Watch consumes events until the job reaches a terminal state, the stream
// closes, or the context is cancelled.
func (s *StreamSource) Watch(ctx context.Context, jobID string) (<-chan JobState, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher := NewWatcher(logger)
	out := make(chan JobState, 1)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-s.Events:
				if !ok {
					return
				}
				if evt.JobID != jobID {
					continue
				}
				state, applied := watcher.Apply(evt)
				if state.NeedsResync && s.Snapshot != nil {
					fresh, err := s.Snapshot(ctx, jobID)
					if err != nil {
						logger.Warn("status re-sync failed", zap.String("job_id", jobID), zap.Error(err))
					} else {
						state = fresh
					}
					emit(ctx, out, state)
					if state.Terminal {
						return
					}
					continue
				}
				if !applied {
					continue
				}
				emit(ctx, out, state)
				if state.Terminal {
					return
				}
			}
		}
	}()

	return out, nil
}

// PollSource periodically fetches status snapshots. Stale reads between polls
// are expected; this is the eventual-consistency fallback path.
type PollSource struct {
	Snapshot SnapshotFunc
	Interval time.Duration
	Logger   *zap.Logger
}

// Watch polls until the job reaches a terminal state or the context ends.
func (s *PollSource) Watch(ctx context.Context, jobID string) (<-chan JobState, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	out := make(chan JobState, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			state, err := s.Snapshot(ctx, jobID)
			if err != nil {
				logger.Warn("status poll failed", zap.String("job_id", jobID), zap.Error(err))
			} else {
				emit(ctx, out, state)
				if state.Terminal {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

func emit(ctx context.Context, out chan<- JobState, state JobState) {
	select {
	case <-ctx.Done():
	case out <- state:
	}
}
