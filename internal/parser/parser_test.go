package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MarkerContentOnly(t *testing.T) {
	resp := Parse("<content>Hello there</content><response_done>")
	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Empty(t, resp.ToolCalls)
}

func TestParse_MarkerWithToolCalls(t *testing.T) {
	reply := `<content>Let me check that.</content>` +
		`<tool_calls>[{"name":"lookup","arguments":{"q":"weather"}}]</tool_calls>` +
		`<response_done>`

	resp := Parse(reply)
	assert.Equal(t, "Let me check that.", resp.Content)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.NotEmpty(t, resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"q":"weather"}`, resp.ToolCalls[0].Arguments)
}

func TestParse_MarkerToolCallsOnlyNoContentPair(t *testing.T) {
	reply := `<tool_calls>[{"name":"lookup","arguments":{"q":"weather"}}]</tool_calls><response_done>`

	resp := Parse(reply)
	assert.Empty(t, resp.Content)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
}

func TestParse_MarkerWithMalformedToolCallsDegrades(t *testing.T) {
	reply := `<content>partial</content><tool_calls>[{not json</tool_calls>`

	resp := Parse(reply)
	assert.Equal(t, "partial", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Empty(t, resp.ToolCalls)
}

func TestParse_SentinelWithoutContentFallsThrough(t *testing.T) {
	resp := Parse(`{"content":"fallback JSON","finish_reason":"stop"}` + "<response_done>")
	assert.Equal(t, "fallback JSON", resp.Content)
}

func TestParse_JSONObject(t *testing.T) {
	resp := Parse(`{"content":"the answer is 42","finish_reason":"stop"}`)
	assert.Equal(t, "the answer is 42", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestParse_JSONObjectWithToolCalls(t *testing.T) {
	reply := `{"content":"","tool_calls":[{"id":"abc","function":{"name":"lookup","arguments":"{\"q\":\"x\"}"}}]}`

	resp := Parse(reply)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "abc", resp.ToolCalls[0].ID)
	assert.Equal(t, "lookup", resp.ToolCalls[0].Name)
	assert.Equal(t, "tool_calls", resp.FinishReason)
}

func TestParse_FencedJSONBlock_UsesLastBlock(t *testing.T) {
	reply := "some preamble\n```json\n{\"content\":\"first, stale\"}\n```\nmore text\n```json\n{\"content\":\"second, correct\"}\n```"

	resp := Parse(reply)
	assert.Equal(t, "second, correct", resp.Content)
}

func TestParse_PlainTextFallback(t *testing.T) {
	resp := Parse("just a plain chat reply, nothing structured")
	assert.Equal(t, "just a plain chat reply, nothing structured", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}
