// Package httpapi exposes the broker's OpenAI-compatible HTTP surface:
// chat completions, health, and operational stats.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chatrelay/broker/internal/brokererr"
	"github.com/chatrelay/broker/llm"
)

// Stats is the registry/table snapshot the /stats endpoint reports.
type Stats struct {
	TotalWorkers    int `json:"total_workers"`
	IdleWorkers     int `json:"idle_workers"`
	BusyWorkers     int `json:"busy_workers"`
	PendingRequests int `json:"pending_requests"`
}

// StatsSource supplies the live counts behind /stats.
type StatsSource interface {
	Stats() Stats
}

// chatCompletionRequest is the wire shape of POST /v1/chat/completions.
type chatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []llm.ToolDef `json:"tools,omitempty"`
}

// chatCompletionChoice and chatCompletionEnvelope mirror the OpenAI
// chat-completions response shape closely enough for existing clients to
// parse unmodified.
type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      llm.Message `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatCompletionEnvelope struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model,omitempty"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   llm.TokenUsage         `json:"usage"`
}

// NowFunc is swappable in tests; defaults to time.Now().Unix().
var NowFunc = func() int64 { return time.Now().Unix() }

// Handler wires the broker's HTTP surface onto a gorilla/mux router.
type Handler struct {
	dispatch func(r *http.Request, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
	stats    StatsSource
}

// New constructs a Handler. dispatch is typically dispatcher.Dispatcher.Dispatch,
// adapted to accept *http.Request for its context.
func New(dispatch func(r *http.Request, req *llm.CompletionRequest) (*llm.CompletionResponse, error), stats StatsSource) *Handler {
	return &Handler{dispatch: dispatch, stats: stats}
}

// Router builds the mux.Router exposing every endpoint in §6.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/chat/completions", h.handleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/v1/models", h.handleModels).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	return r
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var body chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := &llm.CompletionRequest{
		Model:       body.Model,
		Messages:    body.Messages,
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
		Stream:      body.Stream,
		Tools:       body.Tools,
	}

	resp, err := h.dispatch(r, req)
	if err != nil {
		writeError(w, brokererr.HTTPStatus(err), string(brokererr.KindOf(err)))
		return
	}

	envelope := chatCompletionEnvelope{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: NowFunc(),
		Model:   body.Model,
		Choices: []chatCompletionChoice{{
			Index: 0,
			Message: llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			},
			FinishReason: resp.FinishReason,
		}},
		Usage: resp.Usage,
	}

	writeJSON(w, http.StatusOK, envelope)
}

// handleModels is a stub: model routing is explicitly out of scope, but
// OpenAI-compatible clients commonly probe this endpoint before their
// first completion call.
func (h *Handler) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   []any{},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]string{"error": kind})
}
