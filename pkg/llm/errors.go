package llm

import "fmt"

// ParseError reports a stream payload that is not a well-formed chat
// completion increment.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing stream chunk: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StreamError is an error object sent by the upstream inside the stream
// instead of a chunk.
type StreamError struct {
	Type    string
	Message string
}

func (e *StreamError) Error() string {
	if e.Type == "" {
		return "upstream stream error: " + e.Message
	}
	return fmt.Sprintf("upstream stream error (%s): %s", e.Type, e.Message)
}
