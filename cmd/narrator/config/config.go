// Package configcmder provides the config command for managing persistent
// narrator configuration stored in the .narrator/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent narrator configuration.

Configuration is stored as config.toml in the .narrator/ directory and provides
default values for command flags. CLI flags and NARRATOR_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen,
  upstream.provider, upstream.url, upstream.api_key, upstream.model,
  upstream.max_tokens, upstream.temperature,
  upstream.first_byte_timeout, upstream.chunk_timeout,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  client.target

Use subcommands to get, set, or list configuration values:
  narrator config set <key> <value>    Set a configuration value
  narrator config get <key>            Get a configuration value
  narrator config list                 List all configuration values

Examples:
  narrator config set upstream.model gpt-4o-mini
  narrator config set eventstream.brokers kafka-1:9092,kafka-2:9092
  narrator config get upstream.url
  narrator config list`

const configShortDesc string = "Manage persistent narrator configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
