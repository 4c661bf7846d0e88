package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --upstream
// on both "yui serve" and "yui serve proxy").
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen      = "listen"
	FlagAPIListen   = "api-listen"
	FlagUpstream    = "upstream"
	FlagProvider    = "provider"
	FlagAPIKey      = "api-key"
	FlagSQLite      = "sqlite"
	FlagPostgres    = "postgres"
	FlagCORSOrigins = "cors-origins"
	FlagStaticDir   = "static-dir"
	FlagTimeout     = "timeout"
	FlagForceTags   = "force-tags"
	FlagKafka       = "kafka-brokers"
	FlagKafkaTopic  = "kafka-topic"
	FlagAPITarget   = "api-target"
	FlagProxyTarget = "proxy-target"
	FlagModel       = "model"
)

// ServeFlags are the flags shared by "yui serve" and its subcommands.
var ServeFlags = FlagSet{
	FlagListen:      {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address to listen on"},
	FlagAPIListen:   {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagUpstream:    {Name: "upstream", Shorthand: "u", ViperKey: "proxy.upstream", Description: "Upstream OpenAI-compatible base URL"},
	FlagProvider:    {Name: "provider", ViperKey: "proxy.provider", Description: "Upstream provider name reported in events"},
	FlagAPIKey:      {Name: "api-key", ViperKey: "proxy.api_key", Description: "Upstream API key"},
	FlagSQLite:      {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: .yui/chatbox.db)"},
	FlagPostgres:    {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string, overrides --sqlite"},
	FlagCORSOrigins: {Name: "cors-origins", ViperKey: "proxy.cors_origins", Description: "Comma separated allowed CORS origins"},
	FlagStaticDir:   {Name: "static-dir", ViperKey: "proxy.static_dir", Description: "Directory holding the built web client"},
	FlagTimeout:     {Name: "timeout", ViperKey: "proxy.timeout", Description: "Upstream request timeout in seconds"},
	FlagForceTags:   {Name: "force-tags", ViperKey: "reasoning.force_tags", Description: "Split <think> tags for every model"},
	FlagKafka:       {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma separated Kafka brokers for message events"},
	FlagKafkaTopic:  {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for message events"},
}

// ClientFlags are the flags of commands that talk to a running server.
var ClientFlags = FlagSet{
	FlagProxyTarget: {Name: "proxy-target", Shorthand: "p", ViperKey: "client.proxy_target", Description: "yui proxy URL"},
	FlagAPITarget:   {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "yui API server URL"},
	FlagModel:       {Name: "model", Shorthand: "m", ViperKey: "client.model", Description: "Model to chat with"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
