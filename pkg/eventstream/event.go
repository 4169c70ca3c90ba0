// Package eventstream defines the transport-neutral events narrator emits
// after each relay call and the Publisher interface that ships them.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/narrator/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeGenerationCompleted is emitted after a relay call finished,
	// successfully or not.
	EventTypeGenerationCompleted = "narrator.generation.completed"
)

// Outcome is how a relay call ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// GenerationEvent describes one finished relay call. It carries metadata
// only: neither the user text nor the reply text is included.
type GenerationEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	RequestID string `json:"request_id,omitempty"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Streaming bool   `json:"streaming"`

	Outcome    Outcome `json:"outcome"`
	Stage      string  `json:"stage,omitempty"`
	DurationMs int64   `json:"duration_ms"`

	Fragments     int        `json:"fragments"`
	SkippedFrames int        `json:"skipped_frames"`
	FinishReason  string     `json:"finish_reason,omitempty"`
	Usage         *llm.Usage `json:"usage,omitempty"`
}

// NewGenerationEvent returns an event stamped with a fresh id and the current
// time.
func NewGenerationEvent() *GenerationEvent {
	return &GenerationEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeGenerationCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}
