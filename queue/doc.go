// Package queue provides an optional Redis-backed sink for worker client_log
// frames and stray-reply notifications.
//
// The broker's core dispatch path never blocks on this package: it is wired
// in only when a debug-log Redis URL is configured, and internal/debuglog
// treats a queue error as "log and continue" rather than a dispatch failure.
//
// # Core Components
//
// Client: Interface for interacting with the Redis-backed sink. Provides:
//   - Push/Pop for the durable log-record list
//   - Publish/Subscribe for stray-reply events
//
// LogRecord: One client_log frame, tagged with the worker and request it came from.
//
// StrayReplyEvent: Notification that a completion_response frame arrived for
// a request-id the rendezvous table no longer recognizes.
//
// # Redis Key Schema
//
//   - broker:logs - List of LogRecord JSON blobs (LPUSH/BRPOP)
//   - broker:stray - Pub/Sub channel for StrayReplyEvent notifications
//
// # Usage
//
// Creating a client:
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{
//		URL: "redis://localhost:6379",
//	})
//
// Recording a client_log frame:
//
//	err := client.Push(ctx, "broker:logs", queue.LogRecord{
//		WorkerID:  "wkr-1",
//		RequestID: "req-42",
//		Message:   "navigated to chat tab",
//		LoggedAt:  time.Now().UnixMilli(),
//	})
//
// Announcing a stray reply:
//
//	err := client.Publish(ctx, "broker:stray", queue.StrayReplyEvent{
//		RequestID:  "req-42",
//		WorkerID:   "wkr-1",
//		ReceivedAt: time.Now().UnixMilli(),
//	})
//
// # Error Handling
//
// All methods return errors for Redis connection failures, serialization
// errors, or context cancellation. Callers in internal/debuglog log and
// continue rather than propagate these errors to the HTTP caller.
//
// # Thread Safety
//
// RedisClient is safe for concurrent use by multiple goroutines.
package queue
