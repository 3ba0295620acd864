// Package wire defines the JSON frames exchanged on the worker transport.
// Every frame carries a `type` discriminator; session code sniffs it with
// Envelope before unmarshaling into the concrete frame type.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/chatrelay/broker/llm"
)

// Frame type discriminators.
const (
	// Broker -> worker
	TypeConnectionEstablished = "connection_established"
	TypeHeartbeat             = "heartbeat"
	TypeCompletionRequest     = "completion_request"
	TypeError                 = "error"

	// Worker -> broker
	TypeRegister           = "register"
	TypeClientReady        = "client_ready"
	TypeHeartbeatResponse  = "heartbeat_response"
	TypeCompletionResponse = "completion_response"
	TypeClientLog          = "client_log"
)

// Envelope is the minimal shape every frame satisfies; used to sniff a
// frame's type before unmarshaling the rest of its fields.
type Envelope struct {
	Type string `json:"type"`
}

// RegisterFrame is sent worker -> broker on connect.
type RegisterFrame struct {
	Type     string            `json:"type"`
	WorkerID string            `json:"worker_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ConnectionEstablishedFrame is sent broker -> worker in reply to register.
type ConnectionEstablishedFrame struct {
	Type     string `json:"type"`
	WorkerID string `json:"worker_id"`
}

// HeartbeatFrame is sent broker -> worker on the heartbeat cadence.
type HeartbeatFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// HeartbeatResponseFrame is sent worker -> broker in reply to a heartbeat.
type HeartbeatResponseFrame struct {
	Type string `json:"type"`
}

// ClientReadyFrame is sent worker -> broker once the worker can accept dispatches.
type ClientReadyFrame struct {
	Type string `json:"type"`
}

// ClientLogFrame is sent worker -> broker to report a debug line; never acked.
type ClientLogFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
}

// ErrorFrame is sent broker -> worker when a frame cannot be handled.
type ErrorFrame struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

// CompletionRequestFrame is sent broker -> worker to dispatch a completion.
// Fields elided by cache policy (§4.5) are absent, not null: SystemElided and
// ToolsElided tell the worker to reuse the prompt/tools it already has
// cached locally instead of resending them.
type CompletionRequestFrame struct {
	Type        string        `json:"type"`
	RequestID   string        `json:"request_id"`
	Model       string        `json:"model,omitempty"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
	Tools       []llm.ToolDef `json:"tools,omitempty"`
	SystemElided bool         `json:"system_elided,omitempty"`
	ToolsElided  bool         `json:"tools_elided,omitempty"`
}

// CompletionResponseFrame is sent worker -> broker with a completion's raw reply.
// Content is the raw text for the response parser (§4.6) to extract structure from;
// ToolCalls/FinishReason are populated only when the worker already produced
// structured JSON and skipped the marker/plain-text ladder itself.
type CompletionResponseFrame struct {
	Type         string         `json:"type"`
	RequestID    string         `json:"request_id"`
	Content      string         `json:"content"`
	ToolCalls    []llm.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Timestamp    int64          `json:"timestamp"`
	Error        string         `json:"error,omitempty"`
}

// SniffType reads only the `type` field from a raw frame.
func SniffType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("failed to sniff frame type: %w", err)
	}
	return env.Type, nil
}
