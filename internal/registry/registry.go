// Package registry tracks connected workers: their status, heartbeat
// timestamps, and per-worker payload caches, under a single mutual-exclusion
// discipline distinct from the rendezvous table's lock.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/chatrelay/broker/internal/brokererr"
)

// Status is a worker's position in the READY/IDLE/BUSY state machine.
type Status string

const (
	StatusReady Status = "ready"
	StatusIdle  Status = "idle"
	StatusBusy  Status = "busy"
)

// Sender is the narrow interface the registry needs to address a worker's
// transport without depending on the session package's websocket details.
type Sender interface {
	Send(ctx context.Context, frame any) error
	Close() error
}

// Worker is one connected worker's tracked state.
type Worker struct {
	ID         string
	SuppliedID string
	Sender     Sender
	Status     Status

	ConnectedAt     time.Time
	LastHeartbeatAt time.Time
	LastActivityAt  time.Time

	Metadata map[string]string

	// SystemPromptDigest and ToolsDigest are the last fingerprints sent to
	// this worker. They are independent fields by design: a tools change
	// must not invalidate the prompt cache, and vice versa.
	SystemPromptDigest string
	ToolsDigest        string
}

// Snapshot is a point-in-time copy of a Worker safe to read without the
// registry lock held.
func (w *Worker) snapshot() Worker {
	cp := *w
	cp.Metadata = make(map[string]string, len(w.Metadata))
	for k, v := range w.Metadata {
		cp.Metadata[k] = v
	}
	return cp
}

// Counts is the total/idle/busy summary returned by Snapshot.
type Counts struct {
	Total int
	Ready int
	Idle  int
	Busy  int
}

// Registry holds the live worker set. All reads and writes go through its
// single mutex; it never blocks on transport I/O while holding it.
type Registry struct {
	mu         sync.Mutex
	workers    map[string]*Worker
	maxWorkers int
	nextID     func() string

	total metric.Int64ObservableGauge
	idle  metric.Int64ObservableGauge
	busy  metric.Int64ObservableGauge
}

// New creates an empty registry with the given worker ceiling. idFunc mints
// broker-assigned worker ids (e.g. uuid.NewString); nil uses a counter.
func New(maxWorkers int, idFunc func() string) *Registry {
	if idFunc == nil {
		var n int
		var mu sync.Mutex
		idFunc = func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("wkr-%d", n)
		}
	}
	return &Registry{
		workers:    make(map[string]*Worker),
		maxWorkers: maxWorkers,
		nextID:     idFunc,
	}
}

// InstrumentWith registers observable gauges on meter for total/idle/busy
// worker counts, read from the registry on every collection pass.
func (r *Registry) InstrumentWith(meter metric.Meter) error {
	total, err := meter.Int64ObservableGauge("broker.registry.workers.total")
	if err != nil {
		return fmt.Errorf("failed to create total gauge: %w", err)
	}
	idle, err := meter.Int64ObservableGauge("broker.registry.workers.idle")
	if err != nil {
		return fmt.Errorf("failed to create idle gauge: %w", err)
	}
	busy, err := meter.Int64ObservableGauge("broker.registry.workers.busy")
	if err != nil {
		return fmt.Errorf("failed to create busy gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		counts := r.Snapshot()
		o.ObserveInt64(total, int64(counts.Total))
		o.ObserveInt64(idle, int64(counts.Idle))
		o.ObserveInt64(busy, int64(counts.Busy))
		return nil
	}, total, idle, busy)
	if err != nil {
		return fmt.Errorf("failed to register registry callback: %w", err)
	}

	r.total, r.idle, r.busy = total, idle, busy
	return nil
}

// Register creates a worker in state READY and returns its broker-assigned id.
func (r *Registry) Register(sender Sender, suppliedID string, metadata map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxWorkers > 0 && len(r.workers) >= r.maxWorkers {
		return "", brokererr.ErrCapacityExhausted
	}

	id := r.nextID()
	now := time.Now()
	r.workers[id] = &Worker{
		ID:              id,
		SuppliedID:      suppliedID,
		Sender:          sender,
		Status:          StatusReady,
		ConnectedAt:     now,
		LastHeartbeatAt: now,
		LastActivityAt:  now,
		Metadata:        metadata,
	}
	return id, nil
}

// MarkReady transitions READY->IDLE or BUSY->IDLE. No-op when already IDLE.
func (r *Registry) MarkReady(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("mark-ready: worker %s not found", id)
	}
	if w.Status != StatusIdle {
		w.Status = StatusIdle
	}
	w.LastActivityAt = time.Now()
	return nil
}

// ClaimIdle selects one IDLE worker using the most-recently-heartbeat-first
// tie-break, transitions it to BUSY atomically with selection, and returns
// its id. Returns ok=false when no worker is IDLE.
func (r *Registry) ClaimIdle() (id string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var chosen *Worker
	for _, w := range r.workers {
		if w.Status != StatusIdle {
			continue
		}
		if chosen == nil || w.LastHeartbeatAt.After(chosen.LastHeartbeatAt) {
			chosen = w
		}
	}
	if chosen == nil {
		return "", false
	}

	chosen.Status = StatusBusy
	chosen.LastActivityAt = time.Now()
	return chosen.ID, true
}

// Release transitions BUSY->IDLE. Must be called exactly once per successful claim.
func (r *Registry) Release(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		// Already gone (disconnect/eviction); releasing a ghost is a no-op.
		return nil
	}
	if w.Status == StatusBusy {
		w.Status = StatusIdle
	}
	w.LastActivityAt = time.Now()
	return nil
}

// Touch updates the worker's last-heartbeat-at.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("touch: worker %s not found", id)
	}
	w.LastHeartbeatAt = time.Now()
	return nil
}

// EvictStale removes every worker whose last-heartbeat-at precedes
// now-livenessWindow and returns their ids, so the caller can fail any
// rendezvous slot still assigned to them with worker_gone.
func (r *Registry) EvictStale(now time.Time, livenessWindow time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-livenessWindow)
	var evicted []string
	for id, w := range r.workers {
		if w.LastHeartbeatAt.Before(cutoff) {
			evicted = append(evicted, id)
			delete(r.workers, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Remove deletes a worker unconditionally (session teardown on disconnect).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

// Snapshot returns total/idle/busy counts for health and stats reporting.
func (r *Registry) Snapshot() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()

	var c Counts
	c.Total = len(r.workers)
	for _, w := range r.workers {
		switch w.Status {
		case StatusReady:
			c.Ready++
		case StatusIdle:
			c.Idle++
		case StatusBusy:
			c.Busy++
		}
	}
	return c
}

// Detail returns a snapshot of every worker's state (connected_at,
// last_heartbeat_at, status and the rest), sorted by id.
func (r *Registry) Detail() []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a point-in-time copy of a single worker's state.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return Worker{}, false
	}
	return w.snapshot(), true
}

// Digests returns the worker's current prompt/tools cache digests.
func (r *Registry) Digests(id string) (system, tools string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, found := r.workers[id]
	if !found {
		return "", "", false
	}
	return w.SystemPromptDigest, w.ToolsDigest, true
}

// UpdateSystemDigest sets the worker's system-prompt cache digest. Per the
// cache-monotonicity invariant, callers must only call this after a
// successful transmit to the worker.
func (r *Registry) UpdateSystemDigest(id, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("update-system-digest: worker %s not found", id)
	}
	w.SystemPromptDigest = digest
	return nil
}

// UpdateToolsDigest sets the worker's tools-catalogue cache digest,
// independently of the system-prompt digest.
func (r *Registry) UpdateToolsDigest(id, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("update-tools-digest: worker %s not found", id)
	}
	w.ToolsDigest = digest
	return nil
}

// Sender returns the worker's transport sender, used by the dispatcher to
// transmit a forwarded request without holding the registry lock.
func (r *Registry) Sender(id string) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return nil, false
	}
	return w.Sender, true
}
