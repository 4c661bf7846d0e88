// Package configcmder provides the config command for managing persistent
// yui configuration stored in the .yui/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent yui configuration.

Configuration is stored as config.toml in the .yui/ directory and provides
default values for command flags. Environment variables override config
file values and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, storage.postgres_dsn,
  proxy.provider, proxy.upstream, proxy.api_key, proxy.listen,
  proxy.cors_origins, proxy.mode, proxy.static_dir, proxy.timeout,
  api.listen,
  client.proxy_target, client.api_target, client.model,
  reasoning.model_patterns, reasoning.force_tags,
  eventstream.provider, eventstream.kafka_brokers, eventstream.kafka_topic

Use subcommands to get, set, or list configuration values:
  yui config set <key> <value>    Set a configuration value
  yui config get <key>            Get a configuration value
  yui config list                 List all configuration values

Examples:
  yui config set proxy.upstream http://127.0.0.1:8000/v1
  yui config set reasoning.force_tags true
  yui config get proxy.upstream
  yui config list`

const configShortDesc string = "Manage persistent yui configuration"

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

// secretKeys are masked by get and list.
var secretKeys = map[string]struct{}{
	"proxy.api_key":        {},
	"storage.postgres_dsn": {},
}

func displayValue(key, value string) string {
	if _, secret := secretKeys[key]; !secret || value == "" {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
