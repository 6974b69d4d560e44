// Package ws implements the generation progress channel: a websocket
// protocol with explicit job-scoped subscriptions and typed server events.
package ws

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates server-to-client messages.
type EventType string

const (
	EventProgress         EventType = "job:progress"
	EventStageComplete    EventType = "job:stageComplete"
	EventComplete         EventType = "job:complete"
	EventError            EventType = "job:error"
	EventApprovalRequired EventType = "job:approvalRequired"
)

// Event is the wire envelope for server-to-client messages. JobID routes the
// event to subscribers of that job only.
type Event struct {
	Type    EventType       `json:"type"`
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// ProgressPayload advances stage/progress/word count. Progress is monotonic
// within a job's lifetime.
type ProgressPayload struct {
	Stage     string `json:"stage"`
	Progress  int    `json:"progress"`
	WordCount int    `json:"wordCount"`
}

// StageCompletePayload marks a pipeline phase boundary.
type StageCompletePayload struct {
	Stage   string `json:"stage"`
	Content string `json:"content,omitempty"`
}

// CompletePayload is terminal; no further events for the job follow.
type CompletePayload struct {
	JobID   string `json:"jobId"`
	Content string `json:"content"`
}

// ErrorPayload reports a job error. Recoverable errors may be followed by
// further progress; non-recoverable ones are terminal.
type ErrorPayload struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable"`
}

// ApprovalRequiredPayload signals the pipeline is paused pending a manual gate.
type ApprovalRequiredPayload struct {
	Stage string `json:"stage"`
}

// NewEvent builds an envelope with a marshalled payload.
func NewEvent(typ EventType, jobID string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{Type: typ, JobID: jobID, Payload: data}, nil
}

// Progress builds a job:progress event.
func Progress(jobID, stage string, progress, wordCount int) Event {
	evt, _ := NewEvent(EventProgress, jobID, ProgressPayload{Stage: stage, Progress: progress, WordCount: wordCount})
	return evt
}

// StageComplete builds a job:stageComplete event.
func StageComplete(jobID, stage, content string) Event {
	evt, _ := NewEvent(EventStageComplete, jobID, StageCompletePayload{Stage: stage, Content: content})
	return evt
}

// Complete builds the terminal job:complete event.
func Complete(jobID, content string) Event {
	evt, _ := NewEvent(EventComplete, jobID, CompletePayload{JobID: jobID, Content: content})
	return evt
}

// Error builds a job:error event.
func Error(jobID, message string, recoverable bool) Event {
	evt, _ := NewEvent(EventError, jobID, ErrorPayload{Error: message, Recoverable: recoverable})
	return evt
}

// ApprovalRequired builds a job:approvalRequired event.
func ApprovalRequired(jobID, stage string) Event {
	evt, _ := NewEvent(EventApprovalRequired, jobID, ApprovalRequiredPayload{Stage: stage})
	return evt
}

// Terminal reports whether the event ends the stream for its job: completion,
// or a non-recoverable error.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventComplete:
		return true
	case EventError:
		var payload ErrorPayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return false
		}
		return !payload.Recoverable
	default:
		return false
	}
}

// DecodeProgress extracts the payload of a job:progress event.
func (e Event) DecodeProgress() (ProgressPayload, error) {
	var payload ProgressPayload
	if e.Type != EventProgress {
		return payload, fmt.Errorf("event type %s is not %s", e.Type, EventProgress)
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode progress payload: %w", err)
	}
	return payload, nil
}

// DecodeError extracts the payload of a job:error event.
func (e Event) DecodeError() (ErrorPayload, error) {
	var payload ErrorPayload
	if e.Type != EventError {
		return payload, fmt.Errorf("event type %s is not %s", e.Type, EventError)
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode error payload: %w", err)
	}
	return payload, nil
}

// DecodeComplete extracts the payload of a job:complete event.
func (e Event) DecodeComplete() (CompletePayload, error) {
	var payload CompletePayload
	if e.Type != EventComplete {
		return payload, fmt.Errorf("event type %s is not %s", e.Type, EventComplete)
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode complete payload: %w", err)
	}
	return payload, nil
}

// Client-to-server message types.
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
)

// ClientMessage is the inbound subscription control message.
type ClientMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// ParseClientMessage decodes an inbound frame, rejecting malformed control
// messages while leaving unknown types to the caller to ignore.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("parse client message: %w", err)
	}
	if (msg.Type == MessageSubscribe || msg.Type == MessageUnsubscribe) && msg.JobID == "" {
		return msg, fmt.Errorf("%s message requires jobId", msg.Type)
	}
	return msg, nil
}
