package llm

import (
	"encoding/json"
	"fmt"
)

// ToolDef defines a tool that an LLM can invoke.
type ToolDef struct {
	// Name is the unique identifier for this tool.
	Name string `json:"name"`

	// Description explains what the tool does and when to use it.
	// This helps the LLM decide when to invoke the tool.
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema describing the tool's input parameters.
	// The schema should define the structure, types, and validation rules.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToolCall represents an LLM's request to invoke a tool. The JSON shape
// matches the normalized {id, type:"function", function:{name, arguments}}
// envelope the response parser produces; Type/Function are populated by
// MarshalJSON rather than stored directly.
type ToolCall struct {
	// ID is a unique identifier for this tool call.
	// Used to match tool results back to the original call.
	ID string `json:"id"`

	// Name is the name of the tool to invoke.
	Name string `json:"-"`

	// Arguments contains the tool parameters as a JSON-encoded string.
	Arguments string `json:"-"`
}

// toolCallFunction is the nested {name, arguments} object in the wire shape.
type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// toolCallWire is the JSON envelope for a ToolCall: {id, type, function}.
type toolCallWire struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

// MarshalJSON encodes the tool call in the normalized OpenAI-compatible shape.
func (c ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolCallWire{
		ID:   c.ID,
		Type: "function",
		Function: toolCallFunction{
			Name:      c.Name,
			Arguments: c.Arguments,
		},
	})
}

// UnmarshalJSON decodes a tool call from the normalized OpenAI-compatible shape.
func (c *ToolCall) UnmarshalJSON(data []byte) error {
	var wire toolCallWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.ID = wire.ID
	c.Name = wire.Function.Name
	c.Arguments = wire.Function.Arguments
	return nil
}

// ToolResult represents the result of executing a tool.
type ToolResult struct {
	// ToolCallID matches the ID from the corresponding ToolCall.
	ToolCallID string `json:"tool_call_id"`

	// Content contains the result data as a string.
	// For structured data, this should be JSON-encoded.
	Content string `json:"content"`

	// IsError indicates whether the tool execution failed.
	// If true, Content contains an error message.
	IsError bool `json:"is_error,omitempty"`
}

// Validate checks if the tool definition is valid.
func (t *ToolDef) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if t.Parameters == nil {
		return fmt.Errorf("tool parameters cannot be nil")
	}
	return nil
}

// ParseArguments parses the tool call arguments into the provided value.
// The value parameter should be a pointer to the struct that will receive the arguments.
func (c *ToolCall) ParseArguments(v any) error {
	if c.Arguments == "" {
		return fmt.Errorf("no arguments to parse")
	}
	return json.Unmarshal([]byte(c.Arguments), v)
}

// Validate checks if the tool call is valid.
func (c *ToolCall) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("tool call ID cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("tool call name cannot be empty")
	}
	if c.Arguments == "" {
		return fmt.Errorf("tool call arguments cannot be empty")
	}

	// Verify that arguments is valid JSON
	var temp any
	if err := json.Unmarshal([]byte(c.Arguments), &temp); err != nil {
		return fmt.Errorf("invalid JSON in arguments: %w", err)
	}

	return nil
}

// NewToolResult creates a successful tool result.
func NewToolResult(toolCallID, content string) ToolResult {
	return ToolResult{
		ToolCallID: toolCallID,
		Content:    content,
		IsError:    false,
	}
}

// NewToolError creates an error tool result.
func NewToolError(toolCallID, errorMsg string) ToolResult {
	return ToolResult{
		ToolCallID: toolCallID,
		Content:    errorMsg,
		IsError:    true,
	}
}

// Validate checks if the tool result is valid.
func (r *ToolResult) Validate() error {
	if r.ToolCallID == "" {
		return fmt.Errorf("tool call ID cannot be empty")
	}
	if r.Content == "" {
		return fmt.Errorf("tool result content cannot be empty")
	}
	return nil
}

// SetJSONContent sets the result content from a JSON-encodable value.
func (r *ToolResult) SetJSONContent(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	r.Content = string(data)
	return nil
}

// ParseContent parses the result content into the provided value.
// The value parameter should be a pointer to the struct that will receive the content.
func (r *ToolResult) ParseContent(v any) error {
	if r.Content == "" {
		return fmt.Errorf("no content to parse")
	}
	return json.Unmarshal([]byte(r.Content), v)
}

// ToolChoice represents how the LLM should use tools.
type ToolChoice string

const (
	// ToolChoiceNone means the LLM will not use any tools.
	ToolChoiceNone ToolChoice = "none"

	// ToolChoiceAuto means the LLM decides whether to use tools.
	ToolChoiceAuto ToolChoice = "auto"

	// ToolChoiceRequired means the LLM must use a tool.
	ToolChoiceRequired ToolChoice = "required"
)

// String returns the string representation of the tool choice.
func (tc ToolChoice) String() string {
	return string(tc)
}

// IsValid checks if the tool choice is valid.
func (tc ToolChoice) IsValid() bool {
	switch tc {
	case ToolChoiceNone, ToolChoiceAuto, ToolChoiceRequired:
		return true
	default:
		return false
	}
}
