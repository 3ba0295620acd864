// Package parser extracts a structured completion result from a worker's
// raw reply text. Workers drive third-party chat UIs that were never
// designed to emit structured output, so the reply is plain text most of
// the time; this package tries progressively looser extraction rules
// until one produces something usable.
package parser

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"

	rootparser "github.com/chatrelay/broker/parser"

	"github.com/chatrelay/broker/llm"
)

const (
	contentOpen  = "<content>"
	contentClose = "</content>"
	toolsOpen    = "<tool_calls>"
	toolsClose   = "</tool_calls>"
	responseDone = "<response_done>"
)

var (
	contentPattern = `(?s)<content>(.*?)</content>`
	toolCallsPattern = `(?s)<tool_calls>(.*?)</tool_calls>`
	fencedJSONPattern = "(?s)```json\\s*(.*?)\\s*```"
)

// rawToolCall is the shape a worker emits inside a <tool_calls> array or a
// JSON object's "tool_calls" field, before normalization into llm.ToolCall.
type rawToolCall struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type,omitempty"`
	Name      string          `json:"name,omitempty"`
	Function  *rawToolFunc    `json:"function,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type rawToolFunc struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// jsonObjectReply is the shape rule 2/3 decode into: a worker that already
// produces structured JSON directly.
type jsonObjectReply struct {
	Content      string        `json:"content"`
	ToolCalls    []rawToolCall `json:"tool_calls,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// Parse applies the extraction ladder to a worker's raw reply and returns
// a normalized completion result. It never errors: a reply nothing else
// matches falls back to plain text with finish_reason "stop".
func Parse(reply string) *llm.CompletionResponse {
	reply = strings.TrimRight(reply, "\n")
	reply = strings.TrimSuffix(strings.TrimSpace(reply), responseDone)
	reply = strings.TrimSpace(reply)

	if resp, ok := parseMarkers(reply); ok {
		return resp
	}
	if resp, ok := parseJSONObject(reply); ok {
		return resp
	}
	if resp, ok := parseFencedJSON(reply); ok {
		return resp
	}
	return &llm.CompletionResponse{Content: reply, FinishReason: "stop"}
}

// parseMarkers handles rule 1: sentinel-delimited content and tool_calls
// blocks. <content> and <tool_calls> are detected independently, so a reply
// carrying only a <tool_calls> block (no <content> pair at all) still has
// its tool calls parsed instead of falling through to the plain-text
// fallback.
func parseMarkers(reply string) (*llm.CompletionResponse, bool) {
	hasContent := strings.Contains(reply, contentOpen) && strings.Contains(reply, contentClose)
	hasTools := strings.Contains(reply, toolsOpen) && strings.Contains(reply, toolsClose)
	if !hasContent && !hasTools {
		return nil, false
	}

	resp := &llm.CompletionResponse{FinishReason: "stop"}

	if hasContent {
		groups, err := rootparser.ExtractGroups([]byte(reply), contentPattern)
		if err != nil || len(groups) == 0 {
			return nil, false
		}
		resp.Content = strings.TrimSpace(groups[0][1])
	}

	if hasTools {
		toolGroups, err := rootparser.ExtractGroups([]byte(reply), toolCallsPattern)
		if err == nil && len(toolGroups) > 0 {
			// Malformed JSON in the tool-calls block degrades to "no tool
			// calls" rather than aborting the whole parse: any content was
			// already extracted cleanly and is still worth returning.
			if calls, ok := decodeToolCallsArray([]byte(toolGroups[0][1])); ok && len(calls) > 0 {
				resp.ToolCalls = calls
				resp.FinishReason = "tool_calls"
			}
		}
	}

	return resp, true
}

// parseJSONObject handles rule 2: the entire trimmed reply is a JSON object.
func parseJSONObject(reply string) (*llm.CompletionResponse, bool) {
	if !strings.HasPrefix(reply, "{") || !strings.HasSuffix(reply, "}") {
		return nil, false
	}
	obj, err := rootparser.ParseJSON[jsonObjectReply]([]byte(reply))
	if err != nil {
		return nil, false
	}
	return fromJSONObjectReply(obj), true
}

// parseFencedJSON handles rule 3: a ```json fenced block, parsing the LAST
// such block in the reply when more than one is present.
func parseFencedJSON(reply string) (*llm.CompletionResponse, bool) {
	groups, err := rootparser.ExtractGroups([]byte(reply), fencedJSONPattern)
	if err != nil || len(groups) == 0 {
		return nil, false
	}
	last := groups[len(groups)-1][1]

	obj, err := rootparser.ParseJSON[jsonObjectReply]([]byte(last))
	if err != nil {
		return nil, false
	}
	return fromJSONObjectReply(obj), true
}

func fromJSONObjectReply(obj *jsonObjectReply) *llm.CompletionResponse {
	resp := &llm.CompletionResponse{
		Content:      obj.Content,
		FinishReason: obj.FinishReason,
	}
	if len(obj.ToolCalls) > 0 {
		resp.ToolCalls = normalizeToolCalls(obj.ToolCalls)
	}
	if resp.FinishReason == "" {
		if len(resp.ToolCalls) > 0 {
			resp.FinishReason = "tool_calls"
		} else {
			resp.FinishReason = "stop"
		}
	}
	return resp
}

// decodeToolCallsArray parses a JSON array of tool-call objects. Any
// malformation reports ok=false so the caller can degrade gracefully.
func decodeToolCallsArray(data []byte) (calls []llm.ToolCall, ok bool) {
	raws, err := rootparser.ParseJSONArray[rawToolCall](data)
	if err != nil {
		return nil, false
	}
	return normalizeToolCalls(raws), true
}

var toolCallCounter atomic.Int64

// normalizeToolCalls converts the worker's raw tool-call shape into the
// {id, type:"function", function:{name, arguments}} envelope, synthesizing
// an id when the worker didn't supply one and serializing object
// arguments into a compact JSON string.
func normalizeToolCalls(raws []rawToolCall) []llm.ToolCall {
	calls := make([]llm.ToolCall, 0, len(raws))
	for _, raw := range raws {
		name := raw.Name
		args := raw.Arguments
		if raw.Function != nil {
			name = raw.Function.Name
			args = raw.Function.Arguments
		}

		id := raw.ID
		if id == "" {
			id = "call_" + strconv.FormatInt(toolCallCounter.Add(1), 10)
		}

		calls = append(calls, llm.ToolCall{
			ID:        id,
			Name:      name,
			Arguments: compactArguments(args),
		})
	}
	return calls
}

// compactArguments serializes arguments to a compact JSON string
// regardless of whether the worker sent an object or already-encoded
// string.
func compactArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return trimmed
	}
	return compact.String()
}
