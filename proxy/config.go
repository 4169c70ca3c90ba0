package proxy

import (
	"github.com/papercomputeco/narrator/pkg/eventstream"
	"github.com/papercomputeco/narrator/pkg/relay"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Relay configures the upstream provider, transport and sampling
	// parameters.
	Relay relay.Config

	// Publisher is an optional event stream publisher for generation events.
	// If nil, events are dropped.
	Publisher eventstream.Publisher
}
