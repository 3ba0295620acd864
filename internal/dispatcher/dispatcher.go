// Package dispatcher implements the broker's single dispatch operation:
// claim a worker, normalize and forward the request, wait for its reply,
// and release the worker exactly once regardless of outcome.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chatrelay/broker/internal/brokererr"
	"github.com/chatrelay/broker/internal/normalizer"
	"github.com/chatrelay/broker/internal/parser"
	"github.com/chatrelay/broker/internal/registry"
	"github.com/chatrelay/broker/internal/rendezvous"
	"github.com/chatrelay/broker/internal/wire"
	"github.com/chatrelay/broker/llm"
)

var tracer = otel.Tracer("github.com/chatrelay/broker/internal/dispatcher")

// Config controls dispatch timing, mirroring the broker's configured
// acquire-wait and response-wait defaults.
type Config struct {
	AcquireWait  time.Duration
	ResponseWait time.Duration
}

// Dispatcher routes inbound completion requests to a claimed worker and
// back.
type Dispatcher struct {
	registry *registry.Registry
	table    *rendezvous.Table
	cfg      Config
	idFunc   func() string
}

// New constructs a Dispatcher. idFunc mints request ids (e.g. uuid.NewString).
func New(reg *registry.Registry, table *rendezvous.Table, cfg Config, idFunc func() string) *Dispatcher {
	return &Dispatcher{registry: reg, table: table, cfg: cfg, idFunc: idFunc}
}

// Dispatch implements the six-step dispatch sequence: normalize, claim,
// send (retrying once on transport failure against a freshly claimed
// worker), await, and always release-exactly-once.
func (d *Dispatcher) Dispatch(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "dispatcher.Dispatch")
	defer span.End()

	requestID := d.idFunc()
	span.SetAttributes(attribute.String("broker.request_id", requestID))

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := d.attempt(ctx, requestID, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if brokererr.KindOf(err) != brokererr.KindTransportError {
			return nil, err
		}
		// Transport failure: retry once against a newly claimed worker.
	}
	return nil, lastErr
}

// attempt validates the request before claiming a worker, so a malformed
// request (no usable last user message) fails immediately instead of
// burning the acquire-wait and masking a 400 behind no_worker. It never
// returns without having released the worker it claimed, if any.
func (d *Dispatcher) attempt(ctx context.Context, requestID string, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	systemMessages, lastUser, err := normalizer.ValidateRequest(req.Messages)
	if err != nil {
		return nil, brokererr.New("dispatch.validate", err, map[string]any{"request_id": requestID})
	}

	workerID, err := d.claimIdleUntil(ctx, d.cfg.AcquireWait)
	if err != nil {
		return nil, brokererr.New("dispatch.claim", err, map[string]any{"request_id": requestID})
	}

	result := normalizer.Normalize(req, requestID, workerID, systemMessages, lastUser, d.registry)

	slot, err := d.table.Open(requestID, workerID, time.Now().Add(d.cfg.ResponseWait))
	if err != nil {
		_ = d.registry.Release(workerID)
		return nil, brokererr.New("dispatch.open_slot", err, map[string]any{"request_id": requestID, "worker_id": workerID})
	}

	if err := d.send(ctx, workerID, result.Frame); err != nil {
		d.table.Close(requestID)
		_ = d.registry.Release(workerID)
		return nil, brokererr.New("dispatch.send", brokererr.ErrTransport, map[string]any{"request_id": requestID, "worker_id": workerID})
	}

	// Commit digests only after a successful send: a failed send must not
	// advance the cache or a later request could wrongly elide content the
	// worker never got.
	_ = result.Commit(workerID, d.registry.UpdateSystemDigest, d.registry.UpdateToolsDigest)

	payload, err := d.table.Await(ctx, slot)
	_ = d.registry.Release(workerID)
	if err != nil {
		return nil, brokererr.New("dispatch.await", err, map[string]any{"request_id": requestID, "worker_id": workerID})
	}

	return decodeCompletionResponse(payload)
}

func (d *Dispatcher) send(ctx context.Context, workerID string, frame *wire.CompletionRequestFrame) error {
	sender, ok := d.registry.Sender(workerID)
	if !ok {
		return fmt.Errorf("worker %s has no transport", workerID)
	}
	return sender.Send(ctx, frame)
}

// claimIdleUntil retries ClaimIdle until one succeeds or deadline elapses,
// returning no_worker on timeout.
func (d *Dispatcher) claimIdleUntil(ctx context.Context, wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if id, ok := d.registry.ClaimIdle(); ok {
			return id, nil
		}
		if time.Now().After(deadline) {
			return "", brokererr.ErrNoWorker
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// decodeCompletionResponse turns a raw completion_response frame into a
// normalized result. A worker that already produced structured tool calls
// or an explicit finish reason skips the extraction ladder entirely;
// everything else is run through parser.Parse against the raw content.
func decodeCompletionResponse(payload []byte) (*llm.CompletionResponse, error) {
	var frame wire.CompletionResponseFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("decode completion_response: %w", err)
	}

	if len(frame.ToolCalls) > 0 || frame.FinishReason != "" {
		resp := &llm.CompletionResponse{
			Content:      frame.Content,
			ToolCalls:    frame.ToolCalls,
			FinishReason: frame.FinishReason,
		}
		if resp.FinishReason == "" {
			resp.FinishReason = "stop"
		}
		return resp, nil
	}

	return parser.Parse(frame.Content), nil
}
