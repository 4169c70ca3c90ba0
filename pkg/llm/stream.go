package llm

import (
	"encoding/json"
	"time"
)

// StreamChunk is one increment of a streamed reply (a delta event).
// Zero or more chunks compose the full reply in emission order.
type StreamChunk struct {
	// ID of the completion the chunk belongs to
	ID string `json:"id,omitempty"`

	// Model that generated the chunk
	Model string `json:"model,omitempty"`

	// Chunk timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// Index of the choice this increment belongs to
	Index int `json:"index"`

	// Role is set on the first chunk of a choice only
	Role string `json:"role,omitempty"`

	// Content is the text fragment. Role-only and finish-only chunks carry
	// no content and contribute nothing to the aggregate.
	Content string `json:"content,omitempty"`

	// FinishReason is non-nil once generation ended for the choice. It is
	// advisory: the stream ends at the done sentinel or at closure.
	FinishReason *string `json:"finish_reason,omitempty"`

	// Usage metrics, present on the final chunk when the upstream sends them
	Usage *Usage `json:"usage,omitempty"`

	// Raw is the exact frame payload the chunk was parsed from.
	Raw json.RawMessage `json:"-"`
}
