// Package health provides reusable health check functions for the broker and
// its ancillary processes.
//
// This package offers standardized ways to verify dependencies, connectivity,
// and system state: the broker uses it at startup, when the optional
// debug-log sink is enabled, to check that Redis is reachable.
//
// # Health Check Functions
//
// The package provides three health check functions:
//
//   - NetworkCheck: Verify TCP connectivity to a host:port
//   - FileCheck: Verify a file or directory exists
//   - Combine: Aggregate multiple health checks into a single status
//
// # Usage Example
//
//	import (
//	    "context"
//	    "time"
//	    "github.com/chatrelay/broker/health"
//	)
//
//	// Check Redis connectivity before enabling the debug-log sink.
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	redisStatus := health.NetworkCheck(ctx, "localhost", 6379)
//
//	// Combine multiple checks
//	overall := health.Combine(
//	    redisStatus,
//	    health.FileCheck("/etc/broker/broker.yaml"),
//	)
//
//	if overall.IsUnhealthy() {
//	    log.Printf("Health check failed: %s", overall.Message)
//	    log.Printf("Details: %+v", overall.Details)
//	}
//
// # Health Status Priority
//
// When combining health checks with Combine(), the result follows this priority:
//
//   - Unhealthy: If any check is unhealthy, the combined result is unhealthy
//   - Degraded: If any check is degraded (and none unhealthy), the result is degraded
//   - Healthy: If all checks are healthy, the result is healthy
//
// # Context and Timeouts
//
// NetworkCheck accepts a context for timeout and cancellation control.
// If nil is passed, a default 5-second timeout is used.
package health
