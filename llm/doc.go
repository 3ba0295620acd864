// Package llm provides the OpenAI-shaped vocabulary the broker normalizes
// inbound completion requests into and parses worker replies back out of.
//
// This package defines the core abstractions shared by the request
// normalizer and the response parser:
//   - Message types for conversations (system, user, assistant, tool)
//   - Completion requests and responses
//   - Tool/function calling definitions
//
// # Message Types
//
// The Message type represents a single message in a conversation. Messages
// have different roles (system, user, assistant, tool) and may carry text
// content, tool calls, or tool results.
//
//	msg := llm.Message{
//	    Role:    llm.RoleUser,
//	    Content: "What is the weather in San Francisco?",
//	}
//
// # Completion Requests
//
// CompletionRequest represents the caller's inbound request before the
// normalizer rewrites it into a forwarded worker request. Use functional
// options to configure it:
//
//	req := llm.NewCompletionRequest(messages,
//	    llm.WithTemperature(0.7),
//	    llm.WithMaxTokens(1000),
//	    llm.WithTools(tools...),
//	)
//
// # Tool Calling
//
// Tools allow a worker's reply to request a function invocation. Define
// tools with ToolDef and handle tool calls with ToolCall and ToolResult:
//
//	tool := llm.ToolDef{
//	    Name:        "get_weather",
//	    Description: "Get current weather for a location",
//	    Parameters: map[string]any{
//	        "type": "object",
//	        "properties": map[string]any{
//	            "location": map[string]any{
//	                "type":        "string",
//	                "description": "City name",
//	            },
//	        },
//	        "required": []string{"location"},
//	    },
//	}
package llm
