package llm

// CompletionRequest represents the caller's inbound completion request,
// before the normalizer rewrites it into a forwarded worker request.
type CompletionRequest struct {
	// Model is the model name the caller asked for. The broker does not
	// route on it; it is carried through as a hint to the worker.
	Model string `json:"model,omitempty"`

	// Messages contains the conversation history.
	Messages []Message `json:"messages"`

	// Temperature controls randomness in the output (0.0 to 2.0).
	// Lower values make output more focused and deterministic.
	// Higher values make output more creative and random.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens limits the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	// Only tokens with cumulative probability up to TopP are considered.
	TopP *float64 `json:"top_p,omitempty"`

	// Stop contains sequences that will stop generation when encountered.
	Stop []string `json:"stop,omitempty"`

	// Stream is informational: the broker always buffers the worker's
	// reply and never streams chunks back to the HTTP caller.
	Stream bool `json:"stream,omitempty"`

	// Tools contains tool definitions available for the model to use.
	Tools []ToolDef `json:"tools,omitempty"`
}

// CompletionResponse represents a response from an LLM completion.
type CompletionResponse struct {
	// Content is the generated text content.
	Content string `json:"content"`

	// ToolCalls contains tool invocations requested by the model.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// FinishReason indicates why the generation stopped.
	// Common values: "stop", "length", "tool_calls", "error"
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token usage statistics.
	Usage TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	// InputTokens is the number of tokens in the input/prompt.
	InputTokens int `json:"prompt_tokens"`

	// OutputTokens is the number of tokens generated in the response.
	OutputTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of input and output tokens.
	TotalTokens int `json:"total_tokens"`
}

// CompletionOption is a functional option for configuring CompletionRequest.
type CompletionOption func(*CompletionRequest)

// WithTemperature sets the temperature for the completion request.
// Temperature controls randomness (0.0 to 2.0).
func WithTemperature(t float64) CompletionOption {
	return func(r *CompletionRequest) {
		r.Temperature = &t
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) CompletionOption {
	return func(r *CompletionRequest) {
		r.MaxTokens = &n
	}
}

// WithTopP sets the nucleus sampling parameter.
// TopP controls diversity via nucleus sampling (0.0 to 1.0).
func WithTopP(p float64) CompletionOption {
	return func(r *CompletionRequest) {
		r.TopP = &p
	}
}

// WithStopSequences sets sequences that will stop generation.
func WithStopSequences(stops ...string) CompletionOption {
	return func(r *CompletionRequest) {
		r.Stop = stops
	}
}

// WithTools sets the available tools for the completion request.
func WithTools(tools ...ToolDef) CompletionOption {
	return func(r *CompletionRequest) {
		r.Tools = tools
	}
}

// ApplyOptions applies a set of options to the completion request.
func (r *CompletionRequest) ApplyOptions(opts ...CompletionOption) {
	for _, opt := range opts {
		opt(r)
	}
}

// NewCompletionRequest creates a new CompletionRequest with the given messages and options.
func NewCompletionRequest(messages []Message, opts ...CompletionOption) *CompletionRequest {
	req := &CompletionRequest{
		Messages: messages,
	}
	req.ApplyOptions(opts...)
	return req
}

// HasContent returns true if the response contains text content.
func (r *CompletionResponse) HasContent() bool {
	return r.Content != ""
}

// HasToolCalls returns true if the response contains tool calls.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// IsComplete returns true if generation finished normally (not truncated).
func (r *CompletionResponse) IsComplete() bool {
	return r.FinishReason == "stop" || r.FinishReason == "tool_calls"
}

// Add combines two TokenUsage instances.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}
