package llm

import (
	"encoding/json"
	"time"
)

// ChatResponse represents a complete, non-streamed chat completion.
type ChatResponse struct {
	// ID of the completion assigned by the upstream
	ID string `json:"id,omitempty"`

	// Model that generated the response
	Model string `json:"model"`

	// Response timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// The assistant's response message, taken from the first choice
	Message Message `json:"message"`

	// Stop reason (e.g., "stop", "length")
	StopReason string `json:"stop_reason,omitempty"`

	// Token usage
	Usage *Usage `json:"usage,omitempty"`

	// RawResponse preserves the original response payload for debugging.
	RawResponse json.RawMessage `json:"-"`
}

// Usage contains token counts reported by the upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Reply is the aggregated reply returned to a relay consumer.
type Reply struct {
	// Text is the concatenation of every text fragment, in order.
	Text string `json:"text"`

	// Usage is present when the upstream reported token counts.
	Usage *Usage `json:"usage,omitempty"`
}

// ErrorResponse is the body returned to a relay consumer on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
