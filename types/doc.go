// Package types provides small, dependency-free value types shared across the
// broker's internal packages — currently just the health-status vocabulary
// returned by the health package's checks. The broker's HTTP /health
// handler and its gRPC health service do not use it.
//
//	status := types.NewHealthyStatus("all systems operational")
//	if status.IsHealthy() {
//	    // component is fully operational
//	}
//
//	degraded := types.NewDegradedStatus("high latency", map[string]any{
//	    "latency_ms": 500,
//	})
package types
