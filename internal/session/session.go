// Package session drives one worker's full-duplex connection: the inbound
// frame dispatch table, the outbound heartbeat cadence, and teardown when
// the connection drops.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatrelay/broker/internal/brokererr"
	"github.com/chatrelay/broker/internal/registry"
	"github.com/chatrelay/broker/internal/rendezvous"
	"github.com/chatrelay/broker/internal/wire"
)

// LogSink receives client_log frames. It is optional; a nil sink drops them.
type LogSink interface {
	Append(workerID string, frame wire.ClientLogFrame)
}

// StrayNotifier is notified when a completion_response frame arrives for a
// request-id the rendezvous table no longer recognizes. It is optional; a
// nil notifier means stray replies are silently dropped.
type StrayNotifier interface {
	NotifyStrayReply(workerID, requestID string)
}

// Conn is the subset of *websocket.Conn a Session needs. Narrowed to an
// interface so tests can exercise the frame dispatch table without a real
// socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session owns one worker connection end-to-end.
type Session struct {
	conn          Conn
	registry      *registry.Registry
	table         *rendezvous.Table
	logSink       LogSink
	strayNotifier StrayNotifier

	heartbeatInterval time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	workerID string

	teardownOnce sync.Once
}

// New constructs a Session around an already-upgraded connection. The
// worker is not registered yet: that happens when its register frame
// arrives, inside Run.
func New(conn Conn, reg *registry.Registry, table *rendezvous.Table, heartbeatInterval time.Duration, logSink LogSink) *Session {
	return &Session{
		conn:              conn,
		registry:          reg,
		table:             table,
		logSink:           logSink,
		heartbeatInterval: heartbeatInterval,
	}
}

// SetStrayNotifier attaches a notifier for stray replies. Call before Run.
func (s *Session) SetStrayNotifier(n StrayNotifier) {
	s.strayNotifier = n
}

// Send implements registry.Sender: it serializes concurrent writers so two
// goroutines (the heartbeat ticker and a dispatch) never interleave bytes
// on the same connection.
func (s *Session) Send(_ context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal outbound frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements registry.Sender.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run blocks reading frames until the connection errors or ctx is
// canceled. It always tears the worker down before returning, exactly
// once, regardless of which path it exits through.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	stopHeartbeat := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		s.heartbeatLoop(ctx, stopHeartbeat)
	}()

	err := s.readLoop(ctx)

	close(stopHeartbeat)
	<-heartbeatDone
	return err
}

func (s *Session) heartbeatLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			frame := wire.HeartbeatFrame{Type: wire.TypeHeartbeat, Timestamp: now.Unix()}
			if err := s.Send(ctx, frame); err != nil {
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		typ, err := wire.SniffType(data)
		if err != nil {
			s.sendError(brokererr.KindUnknownType, "frame is not valid JSON")
			continue
		}

		switch typ {
		case wire.TypeRegister:
			s.handleRegister(data)
		case wire.TypeClientReady:
			s.handleClientReady()
		case wire.TypeHeartbeatResponse:
			s.handleHeartbeatResponse()
		case wire.TypeCompletionResponse:
			s.handleCompletionResponse(data)
		case wire.TypeClientLog:
			s.handleClientLog(data)
		default:
			s.sendError(brokererr.KindUnknownType, "unrecognized frame type: "+typ)
		}
	}
}

func (s *Session) handleRegister(data []byte) {
	var frame wire.RegisterFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(brokererr.KindUnknownType, "malformed register frame")
		return
	}

	id, err := s.registry.Register(s, frame.WorkerID, frame.Metadata)
	if err != nil {
		s.sendError(brokererr.KindCapacityExhausted, err.Error())
		return
	}

	s.mu.Lock()
	s.workerID = id
	s.mu.Unlock()

	_ = s.Send(context.Background(), wire.ConnectionEstablishedFrame{
		Type:     wire.TypeConnectionEstablished,
		WorkerID: id,
	})
}

func (s *Session) handleClientReady() {
	id, ok := s.currentWorkerID()
	if !ok {
		s.sendError(brokererr.KindUnknownType, "client_ready before register")
		return
	}
	_ = s.registry.MarkReady(id)
}

func (s *Session) handleHeartbeatResponse() {
	id, ok := s.currentWorkerID()
	if !ok {
		return
	}
	_ = s.registry.Touch(id)
}

func (s *Session) handleCompletionResponse(data []byte) {
	var frame wire.CompletionResponseFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(brokererr.KindUnknownType, "malformed completion_response frame")
		return
	}

	var deliverErr error
	if frame.Error != "" {
		deliverErr = fmt.Errorf("worker reported error: %s", frame.Error)
	}

	// A reply for a request-id the table no longer recognizes is a stray
	// reply: notified, not fatal, connection stays up.
	delivered := s.table.Deposit(frame.RequestID, data, deliverErr)
	if !delivered && s.strayNotifier != nil {
		workerID, _ := s.currentWorkerID()
		s.strayNotifier.NotifyStrayReply(workerID, frame.RequestID)
	}
}

func (s *Session) handleClientLog(data []byte) {
	var frame wire.ClientLogFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	if s.logSink == nil {
		return
	}
	id, _ := s.currentWorkerID()
	s.logSink.Append(id, frame)
}

func (s *Session) sendError(kind brokererr.Kind, message string) {
	_ = s.Send(context.Background(), wire.ErrorFrame{
		Type:    wire.TypeError,
		Kind:    string(kind),
		Message: message,
	})
}

func (s *Session) currentWorkerID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workerID, s.workerID != ""
}

// teardown cancels every rendezvous slot assigned to this worker in one
// sweep and removes it from the registry. Idempotent: Run's defer and any
// error path both call it safely.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		id, ok := s.currentWorkerID()
		if !ok {
			return
		}
		s.table.CancelForWorker(id)
		s.registry.Remove(id)
	})
}
