package queue

import (
	"fmt"
	"time"
)

// LogRecord is a single client_log frame persisted to the debug-log sink.
// It mirrors the worker->broker client_log frame body plus enough context
// to reconstruct which worker and in-flight request it came from.
type LogRecord struct {
	// WorkerID is the broker-assigned id of the worker that emitted the line.
	WorkerID string `json:"worker_id"`

	// RequestID is the in-flight request the worker was processing, if any.
	RequestID string `json:"request_id,omitempty"`

	// Level is the worker-reported severity, e.g. "info", "warn", "error".
	Level string `json:"level,omitempty"`

	// Message is the raw log text as sent by the worker.
	Message string `json:"message"`

	// LoggedAt is the Unix timestamp in milliseconds when the broker received it.
	LoggedAt int64 `json:"logged_at"`
}

// IsValid checks that the LogRecord has the fields required to persist it.
func (r *LogRecord) IsValid() error {
	if r.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if r.Message == "" {
		return fmt.Errorf("message is required")
	}
	if r.LoggedAt <= 0 {
		return fmt.Errorf("logged_at must be positive, got %d", r.LoggedAt)
	}
	return nil
}

// Age returns the duration since this record was logged.
func (r *LogRecord) Age() time.Duration {
	if r.LoggedAt <= 0 {
		return 0
	}
	now := time.Now().UnixMilli()
	return time.Duration(now-r.LoggedAt) * time.Millisecond
}

// StrayReplyEvent is published when a completion_response frame arrives for
// a request-id that the rendezvous table no longer recognizes (the slot
// already timed out, was cancelled, or never existed). It is informational:
// nothing downstream of the publish depends on it.
type StrayReplyEvent struct {
	RequestID  string `json:"request_id"`
	WorkerID   string `json:"worker_id"`
	ReceivedAt int64  `json:"received_at"`
}

// IsValid checks that the StrayReplyEvent has the fields required to publish it.
func (e *StrayReplyEvent) IsValid() error {
	if e.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if e.ReceivedAt <= 0 {
		return fmt.Errorf("received_at must be positive, got %d", e.ReceivedAt)
	}
	return nil
}
