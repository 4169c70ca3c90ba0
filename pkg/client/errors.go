package client

import "fmt"

// Error is returned when the relay answers with a non-2xx status. Message
// carries the relay's own error text when its body could be decoded.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("relay returned status %d: %s", e.StatusCode, e.Message)
}
