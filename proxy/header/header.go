// Package header sets the response headers of the narrator relay.
//
// The relay sits between a consumer and an upstream LLM provider like so:
//
//	Consumer <--> Relay <--> Upstream LLM Provider
//
// and each leg negotiates its headers independently: the upstream leg is
// owned by pkg/upstream, the consumer leg by this package.
package header

import (
	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the id assigned to every relay request.
const RequestIDHeader = "X-Request-Id"

// Handler manages headers on the consumer leg.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// streamHeaders are set on every streamed reply.
var streamHeaders = []struct{ key, value string }{
	{fiber.HeaderContentType, "text/event-stream"},

	// Intermediaries must neither cache nor buffer the event stream.
	{fiber.HeaderCacheControl, "no-cache"},
	{"X-Accel-Buffering", "no"},

	{fiber.HeaderConnection, "keep-alive"},
}

// SetStreamHeaders marks the response as a server-sent event stream.
func (h *Handler) SetStreamHeaders(c *fiber.Ctx) {
	for _, hdr := range streamHeaders {
		c.Set(hdr.key, hdr.value)
	}
}

// RequestID returns the id assigned to the current request, or "" when the
// request id middleware is not installed.
func (h *Handler) RequestID(c *fiber.Ctx) string {
	return string(c.Response().Header.Peek(RequestIDHeader))
}
