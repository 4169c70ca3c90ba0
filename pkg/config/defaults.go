package config

const (
	defaultRelayListen = ":8080"

	defaultUpstreamProvider = "openai"
	defaultUpstreamURL      = "https://api.openai.com/v1/chat/completions"
	defaultModel            = "gpt-4o"
	defaultMaxTokens        = 1688
	defaultTemperature      = 0.5
	defaultFirstByteTimeout = "60s"
	defaultChunkTimeout     = "30s"

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "narrator.generations"

	defaultClientTarget = "http://localhost:8080"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	temperature := defaultTemperature
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen: defaultRelayListen,
		},
		Upstream: UpstreamConfig{
			Provider:         defaultUpstreamProvider,
			URL:              defaultUpstreamURL,
			Model:            defaultModel,
			MaxTokens:        defaultMaxTokens,
			Temperature:      &temperature,
			FirstByteTimeout: defaultFirstByteTimeout,
			ChunkTimeout:     defaultChunkTimeout,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Client: ClientConfig{
			Target: defaultClientTarget,
		},
	}
}
