// Package servecmder provides the serve command that runs the relay server.
package servecmder

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/narrator/pkg/config"
	eventstreamutils "github.com/papercomputeco/narrator/pkg/eventstream/utils"
	"github.com/papercomputeco/narrator/pkg/logger"
	"github.com/papercomputeco/narrator/pkg/prompt"
	"github.com/papercomputeco/narrator/pkg/relay"
	"github.com/papercomputeco/narrator/pkg/upstream"
	"github.com/papercomputeco/narrator/proxy"
)

type serveCommander struct {
	flags config.FlagSet
	viper *viper.Viper

	listen           string
	providerType     string
	upstream         string
	apiKey           string
	model            string
	maxTokens        uint
	temperature      float64
	firstByteTimeout string
	chunkTimeout     string
	eventProvider    string
	eventBrokers     []string
	eventTopic       string

	debug     bool
	logFormat string
	logFile   string

	logger *slog.Logger
}

var serveFlags = config.FlagSet{
	config.FlagListen:           {Name: "listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay to listen on"},
	config.FlagProvider:         {Name: "provider", Shorthand: "p", ViperKey: "upstream.provider", Description: "Upstream provider type (openai)"},
	config.FlagUpstream:         {Name: "upstream", Shorthand: "u", ViperKey: "upstream.url", Description: "Upstream chat completions URL"},
	config.FlagAPIKey:           {Name: "api-key", ViperKey: "upstream.api_key", Description: "Upstream API key (prefer NARRATOR_UPSTREAM_API_KEY)"},
	config.FlagModel:            {Name: "model", Shorthand: "m", ViperKey: "upstream.model", Description: "Model name"},
	config.FlagMaxTokens:        {Name: "max-tokens", ViperKey: "upstream.max_tokens", Description: "Maximum tokens per reply"},
	config.FlagTemperature:      {Name: "temperature", ViperKey: "upstream.temperature", Description: "Sampling temperature"},
	config.FlagFirstByteTimeout: {Name: "first-byte-timeout", ViperKey: "upstream.first_byte_timeout", Description: "Time allowed for upstream response headers"},
	config.FlagChunkTimeout:     {Name: "chunk-timeout", ViperKey: "upstream.chunk_timeout", Description: "Idle time allowed between streamed chunks"},
	config.FlagEventProvider:    {Name: "event-provider", ViperKey: "eventstream.provider", Description: "Generation event publisher (nop, kafka)"},
	config.FlagEventBrokers:     {Name: "event-brokers", ViperKey: "eventstream.brokers", Description: "Kafka broker addresses"},
	config.FlagEventTopic:       {Name: "event-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for generation events"},
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagProvider,
	config.FlagUpstream,
	config.FlagAPIKey,
	config.FlagModel,
	config.FlagMaxTokens,
	config.FlagTemperature,
	config.FlagFirstByteTimeout,
	config.FlagChunkTimeout,
	config.FlagEventProvider,
	config.FlagEventBrokers,
	config.FlagEventTopic,
}

const serveLongDesc string = `Run the narrator relay server.

The relay accepts user text on POST /api/generate, wraps it in the narrator
system prompt and forwards it to the configured chat completions endpoint.
Replies are returned whole, or as a server-sent event stream when the request
sets "stream": true.

Settings are read from flags, then NARRATOR_* environment variables, then
config.toml in the .narrator/ directory, then built-in defaults.

Examples:
  NARRATOR_UPSTREAM_API_KEY=sk-... narrator serve
  narrator serve --listen :9000 --model gpt-4o-mini
  narrator serve --event-provider kafka --event-brokers localhost:9092`

const serveShortDesc string = "Run the narrator relay server"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{flags: serveFlags})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, cmder.flags, serveFlagKeys)
			cmder.viper = v
			return cmder.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	fs := cmder.flags
	config.AddStringFlag(cmd, fs, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagProvider, &cmder.providerType)
	config.AddStringFlag(cmd, fs, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, fs, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, fs, config.FlagModel, &cmder.model)
	config.AddUintFlag(cmd, fs, config.FlagMaxTokens, &cmder.maxTokens)
	config.AddFloat64Flag(cmd, fs, config.FlagTemperature, &cmder.temperature)
	config.AddDurationFlag(cmd, fs, config.FlagFirstByteTimeout, &cmder.firstByteTimeout)
	config.AddDurationFlag(cmd, fs, config.FlagChunkTimeout, &cmder.chunkTimeout)
	config.AddStringFlag(cmd, fs, config.FlagEventProvider, &cmder.eventProvider)
	config.AddStringSliceFlag(cmd, fs, config.FlagEventBrokers, &cmder.eventBrokers)
	config.AddStringFlag(cmd, fs, config.FlagEventTopic, &cmder.eventTopic)

	cmd.Flags().StringVar(&cmder.logFormat, "log-format", string(logger.FormatText), "Console log format (text, json, pretty)")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

// load resolves every setting through the viper precedence chain.
func (c *serveCommander) load() error {
	v := c.viper

	c.listen = v.GetString("relay.listen")
	c.providerType = v.GetString("upstream.provider")
	c.upstream = v.GetString("upstream.url")
	c.apiKey = v.GetString("upstream.api_key")
	c.model = v.GetString("upstream.model")
	c.maxTokens = v.GetUint("upstream.max_tokens")
	c.temperature = v.GetFloat64("upstream.temperature")
	c.firstByteTimeout = v.GetString("upstream.first_byte_timeout")
	c.chunkTimeout = v.GetString("upstream.chunk_timeout")
	c.eventProvider = v.GetString("eventstream.provider")
	c.eventBrokers = config.SplitList(strings.Join(v.GetStringSlice("eventstream.brokers"), ","))
	c.eventTopic = v.GetString("eventstream.topic")

	if c.temperature < 0 || c.temperature > 2 {
		return fmt.Errorf("temperature %v is outside [0, 2]", c.temperature)
	}

	return nil
}

func (c *serveCommander) proxyConfig() (proxy.Config, error) {
	firstByte, err := config.ParseDuration(c.firstByteTimeout)
	if err != nil {
		return proxy.Config{}, fmt.Errorf("invalid first byte timeout: %w", err)
	}
	chunk, err := config.ParseDuration(c.chunkTimeout)
	if err != nil {
		return proxy.Config{}, fmt.Errorf("invalid chunk timeout: %w", err)
	}

	return proxy.Config{
		ListenAddr: c.listen,
		Relay: relay.Config{
			ProviderType: c.providerType,
			Upstream: upstream.Config{
				URL:              c.upstream,
				APIKey:           c.apiKey,
				FirstByteTimeout: firstByte,
				ChunkTimeout:     chunk,
			},
			Params: prompt.Params{
				Model:       c.model,
				MaxTokens:   int(c.maxTokens),
				Temperature: c.temperature,
			},
		},
	}, nil
}

func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	format, err := logger.ParseFormat(c.logFormat)
	if err != nil {
		return nil, nil, err
	}

	console := logger.New(logger.WithDebug(c.debug), logger.WithFormat(format))
	if c.logFile == "" {
		return console, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(logger.WithDebug(c.debug), logger.WithFormat(logger.FormatJSON), logger.WithWriter(f))
	return logger.Multi(console, file), func() { _ = f.Close() }, nil
}

func (c *serveCommander) run() error {
	var (
		closeLog func()
		err      error
	)
	c.logger, closeLog, err = c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := c.proxyConfig()
	if err != nil {
		return err
	}

	if cfg.Relay.Upstream.APIKey == "" {
		c.logger.Warn("no upstream api key configured, requests are sent unauthenticated")
	}

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: c.eventProvider,
		Brokers:      c.eventBrokers,
		Topic:        c.eventTopic,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()
	cfg.Publisher = publisher

	if c.eventProvider == eventstreamutils.ProviderKafka {
		c.logger.Info("publishing generation events",
			"provider", c.eventProvider,
			"brokers", c.eventBrokers,
			"topic", c.eventTopic,
		)
	}

	p, err := proxy.New(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	defer p.Close()

	errChan := make(chan error, 1)
	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}
