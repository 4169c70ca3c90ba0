package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent narrator configuration stored as config.toml
// in the .narrator/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Relay       RelayConfig       `toml:"relay"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Client      ClientConfig      `toml:"client"`
}

// RelayConfig holds settings for the relay HTTP server.
type RelayConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// UpstreamConfig holds settings for the upstream chat-completions endpoint
// and the generation parameters sent with every request.
type UpstreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	URL      string `toml:"url,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`

	Model     string `toml:"model,omitempty"`
	MaxTokens uint   `toml:"max_tokens,omitempty"`

	// Temperature is a pointer so an explicit 0 survives default merging.
	Temperature *float64 `toml:"temperature,omitempty"`

	// Durations are stored as Go duration strings (e.g. "30s").
	FirstByteTimeout string `toml:"first_byte_timeout,omitempty"`
	ChunkTimeout     string `toml:"chunk_timeout,omitempty"`
}

// EventStreamConfig holds settings for publishing generation events.
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running relay
// (e.g. narrator ask). Target is a full URL (scheme + host + port).
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get    func(c *Config) string
	set    func(c *Config, v string) error
	secret bool
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"upstream.provider": {
		get: func(c *Config) string { return c.Upstream.Provider },
		set: func(c *Config, v string) error { c.Upstream.Provider = v; return nil },
	},
	"upstream.url": {
		get: func(c *Config) string { return c.Upstream.URL },
		set: func(c *Config, v string) error { c.Upstream.URL = v; return nil },
	},
	"upstream.api_key": {
		get:    func(c *Config) string { return c.Upstream.APIKey },
		set:    func(c *Config, v string) error { c.Upstream.APIKey = v; return nil },
		secret: true,
	},
	"upstream.model": {
		get: func(c *Config) string { return c.Upstream.Model },
		set: func(c *Config, v string) error { c.Upstream.Model = v; return nil },
	},
	"upstream.max_tokens": {
		get: func(c *Config) string {
			if c.Upstream.MaxTokens == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Upstream.MaxTokens), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for upstream.max_tokens: %w", err)
			}
			c.Upstream.MaxTokens = uint(n)
			return nil
		},
	},
	"upstream.temperature": {
		get: func(c *Config) string {
			if c.Upstream.Temperature == nil {
				return ""
			}
			return strconv.FormatFloat(*c.Upstream.Temperature, 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for upstream.temperature: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("invalid value for upstream.temperature: %v is outside [0, 2]", f)
			}
			c.Upstream.Temperature = &f
			return nil
		},
	},
	"upstream.first_byte_timeout": {
		get: func(c *Config) string { return c.Upstream.FirstByteTimeout },
		set: func(c *Config, v string) error {
			if _, err := parseDuration(v); err != nil {
				return fmt.Errorf("invalid value for upstream.first_byte_timeout: %w", err)
			}
			c.Upstream.FirstByteTimeout = v
			return nil
		},
	},
	"upstream.chunk_timeout": {
		get: func(c *Config) string { return c.Upstream.ChunkTimeout },
		set: func(c *Config, v string) error {
			if _, err := parseDuration(v); err != nil {
				return fmt.Errorf("invalid value for upstream.chunk_timeout: %w", err)
			}
			c.Upstream.ChunkTimeout = v
			return nil
		},
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = SplitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"client.target": {
		get: func(c *Config) string { return c.Client.Target },
		set: func(c *Config, v string) error { c.Client.Target = v; return nil },
	},
}

// SplitList splits a comma separated value, trimming blanks and dropping
// empty entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseDuration parses a config duration string. An empty string means
// "no timeout" and yields zero.
func ParseDuration(v string) (time.Duration, error) {
	return parseDuration(v)
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}
