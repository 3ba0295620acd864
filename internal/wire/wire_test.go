package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffType(t *testing.T) {
	data := []byte(`{"type":"completion_response","request_id":"req-1","content":"hi"}`)

	typ, err := SniffType(data)
	require.NoError(t, err)
	assert.Equal(t, TypeCompletionResponse, typ)
}

func TestSniffType_Invalid(t *testing.T) {
	_, err := SniffType([]byte(`not json`))
	assert.Error(t, err)
}

func TestCompletionRequestFrame_RoundTrip(t *testing.T) {
	temp := 0.7
	maxTokens := 256
	frame := CompletionRequestFrame{
		Type:        TypeCompletionRequest,
		RequestID:   "req-1",
		Model:       "gpt-4",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		SystemElided: true,
	}

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"tools"`)

	var decoded CompletionRequestFrame
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, frame.RequestID, decoded.RequestID)
	assert.True(t, decoded.SystemElided)
	assert.Equal(t, 0.7, *decoded.Temperature)
}

func TestCompletionResponseFrame_Decode(t *testing.T) {
	data := []byte(`{"type":"completion_response","request_id":"req-1","content":"hello","timestamp":123}`)

	var frame CompletionResponseFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "hello", frame.Content)
	assert.Equal(t, "req-1", frame.RequestID)
}
