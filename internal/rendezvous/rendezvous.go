// Package rendezvous correlates a worker's reply with the dispatcher call
// that is waiting for it. It is a first-class object owned by the broker,
// not module-level state, and is guarded by a lock distinct from the
// worker registry's so dispatch never stalls behind registration or
// heartbeat eviction.
package rendezvous

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatrelay/broker/internal/brokererr"
)

// Outcome is the single result a slot ever carries: a reply payload or an
// error kind, never both.
type Outcome struct {
	Payload []byte
	Err     error
}

// Slot is a one-shot mailbox keyed by request-id. At most one producer (the
// worker session that receives the matching reply) and one consumer (the
// dispatcher waiting on Await) ever touch it.
type Slot struct {
	RequestID string
	WorkerID  string
	CreatedAt time.Time
	Deadline  time.Time

	ch   chan Outcome
	once sync.Once
}

func newSlot(requestID, workerID string, deadline time.Time) *Slot {
	return &Slot{
		RequestID: requestID,
		WorkerID:  workerID,
		CreatedAt: time.Now(),
		Deadline:  deadline,
		ch:        make(chan Outcome, 1),
	}
}

// deposit delivers an outcome to the slot's single waiter. Safe to call at
// most meaningfully once; a later call while the one-element buffer is
// still full is dropped and reports false.
func (s *Slot) deposit(outcome Outcome) bool {
	select {
	case s.ch <- outcome:
		return true
	default:
		return false
	}
}

// Table maps request-id to slot. Guarded by its own mutex, distinct from
// the worker registry's.
type Table struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

// New creates an empty rendezvous table.
func New() *Table {
	return &Table{slots: make(map[string]*Slot)}
}

// Open inserts a new empty slot for request-id. Fails with ErrDuplicateID
// if the id already exists — this should never happen in practice since
// ids are broker-minted, but callers must handle it.
func (t *Table) Open(requestID, workerID string, deadline time.Time) (*Slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.slots[requestID]; exists {
		return nil, fmt.Errorf("open %s: %w", requestID, brokererr.ErrDuplicateID)
	}

	slot := newSlot(requestID, workerID, deadline)
	t.slots[requestID] = slot
	return slot, nil
}

// Deposit stores payload/err in the slot for request-id and wakes its
// waiter. If no slot exists, this is a stray reply: logged by the caller,
// not fatal, and Deposit reports it via its bool return.
func (t *Table) Deposit(requestID string, payload []byte, err error) (delivered bool) {
	t.mu.Lock()
	slot, exists := t.slots[requestID]
	t.mu.Unlock()

	if !exists {
		return false
	}
	return slot.deposit(Outcome{Payload: payload, Err: err})
}

// Await blocks until either a deposit occurs or the slot's deadline
// elapses. On timeout it returns brokererr.ErrTimeout and removes the slot.
// Ctx cancellation (HTTP-caller hangup) is treated the same as timeout: the
// slot is closed so the worker is freed on the next release.
func (t *Table) Await(ctx context.Context, slot *Slot) ([]byte, error) {
	timer := time.NewTimer(time.Until(slot.Deadline))
	defer timer.Stop()

	select {
	case outcome := <-slot.ch:
		t.Close(slot.RequestID)
		return outcome.Payload, outcome.Err
	case <-timer.C:
		t.Close(slot.RequestID)
		return nil, fmt.Errorf("await %s: %w", slot.RequestID, brokererr.ErrTimeout)
	case <-ctx.Done():
		t.Close(slot.RequestID)
		return nil, ctx.Err()
	}
}

// CancelForWorker deposits worker_gone into every slot assigned to
// workerID, in a single sweep. Used by session teardown.
func (t *Table) CancelForWorker(workerID string) {
	t.mu.Lock()
	var affected []*Slot
	for _, slot := range t.slots {
		if slot.WorkerID == workerID {
			affected = append(affected, slot)
		}
	}
	t.mu.Unlock()

	for _, slot := range affected {
		slot.deposit(Outcome{Err: brokererr.ErrWorkerGone})
	}
}

// Close removes the slot for request-id after a terminal outcome.
// Idempotent: closing an already-closed or never-opened slot is a no-op.
func (t *Table) Close(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, requestID)
}

// Pending returns the number of open slots, for /stats reporting.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
