package llm

// ChatRequest is the chat completion request sent upstream.
// It mirrors the OpenAI-compatible Chat Completions request body.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o")
	Model string `json:"model"`

	// Conversation messages: the fixed system instruction followed by the
	// user message.
	Messages []Message `json:"messages"`

	// Generation parameters
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	// Whether the upstream should stream the response as SSE
	Stream bool `json:"stream"`
}

// GenerateRequest is the inbound request body accepted by the relay.
type GenerateRequest struct {
	// Text is the user-written input. Validation is the caller's
	// responsibility: an empty text still produces an upstream call.
	Text string `json:"text"`

	// Stream requests incremental delivery of the reply.
	Stream bool `json:"stream,omitempty"`
}
