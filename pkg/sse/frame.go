// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// frame decoder for the narrator relay. It reassembles "data:" frames from an
// upstream LLM provider byte stream whose chunk boundaries are arbitrary, and
// encodes frames back onto the wire for a downstream client.
//
// Only "data:" lines carry frames. Comments, "event:", "id:" and "retry:"
// fields are discarded: OpenAI-compatible chat completion streams do not use
// them.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DoneSentinel is the payload OpenAI-compatible providers send as the final
// frame of a stream.
const DoneSentinel = "[DONE]"

// Frame is a single "data:" line extracted from the byte stream.
type Frame struct {
	// Data is the line payload with the "data:" prefix and one optional
	// leading space stripped.
	Data string

	// Done reports whether Data is the DoneSentinel. A Done frame is a
	// termination signal, never a chat completion increment.
	Done bool
}
