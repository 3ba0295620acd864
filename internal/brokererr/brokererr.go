// Package brokererr defines the broker's error-kind vocabulary: sentinel
// errors for each outcome named in the dispatch design, a Kind tag usable
// with errors.Is, and the HTTP status each kind maps to.
package brokererr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for dispatch outcomes. Wrap these with fmt.Errorf("...: %w", err)
// at call boundaries so errors.Is(err, ErrNoWorker) keeps working through the stack.
var (
	// ErrMissingUser indicates the normalizer found no last-user message.
	ErrMissingUser = errors.New("missing_user")

	// ErrNoWorker indicates claim-idle acquisition was exhausted with no idle worker.
	ErrNoWorker = errors.New("no_worker")

	// ErrTransport indicates a write to a claimed worker failed and retry was exhausted.
	ErrTransport = errors.New("transport_error")

	// ErrWorkerGone indicates the assigned worker disconnected or was evicted before reply.
	ErrWorkerGone = errors.New("worker_gone")

	// ErrTimeout indicates the response wait elapsed with no deposit.
	ErrTimeout = errors.New("timeout")

	// ErrUnknownType indicates a worker frame carried an unrecognized type discriminator.
	ErrUnknownType = errors.New("unknown_type")

	// ErrStrayReply indicates a reply arrived for an unknown or already-closed slot.
	ErrStrayReply = errors.New("stray_reply")

	// ErrDuplicateID indicates a rendezvous slot was opened for an id that already exists.
	ErrDuplicateID = errors.New("duplicate_id")

	// ErrCapacityExhausted indicates the configured worker ceiling has been reached.
	ErrCapacityExhausted = errors.New("capacity_exhausted")
)

// Kind tags an error with the category a caller can branch on without
// string-matching Error(). It mirrors the sentinel set above one-to-one,
// plus KindParseDegraded, which has no sentinel error.
type Kind string

const (
	KindMissingUser        Kind = "missing_user"
	KindNoWorker           Kind = "no_worker"
	KindTransportError     Kind = "transport_error"
	KindWorkerGone         Kind = "worker_gone"
	KindTimeout            Kind = "timeout"
	KindUnknownType        Kind = "unknown_type"
	KindStrayReply         Kind = "stray_reply"
	KindDuplicateID        Kind = "duplicate_id"
	KindCapacityExhausted  Kind = "capacity_exhausted"
	KindParseDegraded      Kind = "parse_degraded"
)

// kindBySentinel maps each sentinel error to its Kind.
var kindBySentinel = map[error]Kind{
	ErrMissingUser:       KindMissingUser,
	ErrNoWorker:          KindNoWorker,
	ErrTransport:         KindTransportError,
	ErrWorkerGone:        KindWorkerGone,
	ErrTimeout:           KindTimeout,
	ErrUnknownType:       KindUnknownType,
	ErrStrayReply:        KindStrayReply,
	ErrDuplicateID:       KindDuplicateID,
	ErrCapacityExhausted: KindCapacityExhausted,
}

// httpStatusByKind is the §7 HTTP mapping table.
var httpStatusByKind = map[Kind]int{
	KindMissingUser:       http.StatusBadRequest,
	KindNoWorker:          http.StatusServiceUnavailable,
	KindTransportError:    http.StatusBadGateway,
	KindWorkerGone:        http.StatusBadGateway,
	KindTimeout:           http.StatusGatewayTimeout,
	KindDuplicateID:       http.StatusInternalServerError,
	KindCapacityExhausted: http.StatusServiceUnavailable,
}

// KindOf returns the Kind for err, walking its Unwrap chain, or "" if err
// does not carry one of the broker's sentinel errors.
func KindOf(err error) Kind {
	for sentinel, kind := range kindBySentinel {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// HTTPStatus returns the HTTP status err should be reported to the caller
// with. Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	kind := KindOf(err)
	if status, ok := httpStatusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DispatchError is a structured error carrying the operation, Kind, and
// underlying sentinel, for callers that want more than errors.Is can give
// them (e.g. logging fields).
type DispatchError struct {
	Op      string
	Kind    Kind
	Err     error
	Context map[string]any
}

func (e *DispatchError) Error() string {
	if len(e.Context) > 0 {
		return fmt.Sprintf("broker: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("broker: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// New builds a DispatchError for the given operation and error. Kind is
// derived with KindOf, so err may be a bare sentinel or anything already
// wrapping one (errors.Is still finds it through DispatchError.Unwrap).
func New(op string, err error, context map[string]any) *DispatchError {
	return &DispatchError{
		Op:      op,
		Kind:    KindOf(err),
		Err:     err,
		Context: context,
	}
}
