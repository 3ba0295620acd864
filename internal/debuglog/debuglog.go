// Package debuglog implements the broker's optional debug-log sink: a
// bounded in-memory ring of client_log frames, with an optional Redis
// backend for persistence across broker restarts.
package debuglog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatrelay/broker/internal/wire"
	"github.com/chatrelay/broker/queue"
)

const redisListKey = "broker:logs"

// Sink is a bounded ring buffer of the most recent client_log frames,
// optionally mirrored to Redis for persistence. It satisfies
// session.LogSink.
type Sink struct {
	mu       sync.Mutex
	entries  []queue.LogRecord
	capacity int

	redis  *queue.RedisClient
	logger *slog.Logger
}

// New constructs a Sink holding at most capacity entries in memory.
// redisClient may be nil, in which case persistence is skipped.
func New(capacity int, redisClient *queue.RedisClient, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		capacity: capacity,
		redis:    redisClient,
		logger:   logger,
	}
}

// Append records a client_log frame from workerID. It never blocks the
// session's read loop on Redis latency: persistence happens on a
// best-effort background goroutine.
func (s *Sink) Append(workerID string, frame wire.ClientLogFrame) {
	record := queue.LogRecord{
		WorkerID:  workerID,
		RequestID: frame.RequestID,
		Level:     frame.Level,
		Message:   frame.Message,
		LoggedAt:  time.Now().UnixMilli(),
	}

	s.mu.Lock()
	s.entries = append(s.entries, record)
	if s.capacity > 0 && len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	s.mu.Unlock()

	if s.redis == nil {
		return
	}
	go func() {
		if err := s.redis.Push(context.Background(), redisListKey, record); err != nil {
			s.logger.Warn("failed to persist debug log record", "error", err, "worker_id", workerID)
		}
	}()
}

// NotifyStrayReply implements session.StrayNotifier: a completion_response
// arrived for a request-id the rendezvous table no longer recognized. It is
// published to Redis pub/sub for observability only; nothing downstream of
// the publish affects dispatch outcomes.
func (s *Sink) NotifyStrayReply(workerID, requestID string) {
	if s.redis == nil {
		return
	}
	event := queue.StrayReplyEvent{
		RequestID:  requestID,
		WorkerID:   workerID,
		ReceivedAt: time.Now().UnixMilli(),
	}
	go func() {
		if err := s.redis.Publish(context.Background(), "broker:stray", event); err != nil {
			s.logger.Warn("failed to publish stray reply event", "error", err, "request_id", requestID)
		}
	}()
}

// Recent returns a copy of the most recently appended records, oldest first.
func (s *Sink) Recent() []queue.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]queue.LogRecord, len(s.entries))
	copy(out, s.entries)
	return out
}
