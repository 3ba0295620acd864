package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/broker/internal/brokererr"
	"github.com/chatrelay/broker/llm"
)

type fakeStats struct{ s Stats }

func (f fakeStats) Stats() Stats { return f.s }

func TestHandleChatCompletions_Success(t *testing.T) {
	dispatch := func(_ *http.Request, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: "hello back", FinishReason: "stop"}, nil
	}
	h := New(dispatch, fakeStats{})

	body, _ := json.Marshal(map[string]any{
		"model":    "gpt-4",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope chatCompletionEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "hello back", envelope.Choices[0].Message.Content)
	assert.Equal(t, "stop", envelope.Choices[0].FinishReason)
}

func TestHandleChatCompletions_DispatchErrorMapsToHTTPStatus(t *testing.T) {
	dispatch := func(_ *http.Request, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, brokererr.ErrNoWorker
	}
	h := New(dispatch, fakeStats{})

	body, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleChatCompletions_InvalidBody(t *testing.T) {
	h := New(func(_ *http.Request, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		t.Fatal("dispatch must not be called for an invalid body")
		return nil, nil
	}, fakeStats{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	h := New(nil, fakeStats{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStats(t *testing.T) {
	h := New(nil, fakeStats{s: Stats{TotalWorkers: 3, IdleWorkers: 2, BusyWorkers: 1, PendingRequests: 1}})
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalWorkers)
}

func TestHandleModels_ReturnsEmptyList(t *testing.T) {
	h := New(nil, fakeStats{})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()

	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
