// Package provider defines how upstream chat completion payloads are parsed
// into the relay's internal representation.
package provider

import (
	"github.com/papercomputeco/narrator/pkg/llm"
)

// Provider defines the interface for parsing an upstream API format.
type Provider interface {
	// Name returns the canonical provider name (e.g., "openai")
	Name() string

	// ParseResponse converts a complete, non-streamed response into the
	// internal format. Returns an error if the payload cannot be parsed.
	ParseResponse(payload []byte) (*llm.ChatResponse, error)

	// ParseStreamChunk converts the payload of a single stream frame into a
	// delta. Returns *llm.ParseError when the payload is not a well-formed
	// increment and *llm.StreamError when the upstream reported an error
	// in-band.
	ParseStreamChunk(payload []byte) (*llm.StreamChunk, error)
}
