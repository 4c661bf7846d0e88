package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/papercomputeco/yui/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable bound by InitViper.
const EnvPrefix = "YUI"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the YUI_ prefix plus the plain OpenAI-style names a .env file uses.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (YUI_PROXY_LISTEN, OPENAI_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: YUI_PROXY_LISTEN, YUI_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain names take effect only when the prefixed variable is unset.
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key, envName(key)}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	return v, nil
}

// envName returns the prefixed variable name for a dotted key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Unmarshal decodes the effective viper settings into a Config.
func Unmarshal(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Proxy: ProxyConfig{
			Provider:    v.GetString("proxy.provider"),
			Upstream:    v.GetString("proxy.upstream"),
			APIKey:      v.GetString("proxy.api_key"),
			Listen:      v.GetString("proxy.listen"),
			CORSOrigins: v.GetString("proxy.cors_origins"),
			Mode:        v.GetString("proxy.mode"),
			StaticDir:   v.GetString("proxy.static_dir"),
			Timeout:     v.GetUint("proxy.timeout"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			ProxyTarget: v.GetString("client.proxy_target"),
			APITarget:   v.GetString("client.api_target"),
			Model:       v.GetString("client.model"),
		},
		Reasoning: ReasoningConfig{
			ModelPatterns: v.GetString("reasoning.model_patterns"),
			ForceTags:     v.GetBool("reasoning.force_tags"),
		},
		EventStream: EventStreamConfig{
			Provider:     v.GetString("eventstream.provider"),
			KafkaBrokers: v.GetString("eventstream.kafka_brokers"),
			KafkaTopic:   v.GetString("eventstream.kafka_topic"),
		},
	}
}

// WatchConfig calls onChange with the re-read configuration each time the
// config.toml behind v is written. It reports false when v read no file and
// there is nothing to watch.
func WatchConfig(v *viper.Viper, onChange func(*Config)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(Unmarshal(v))
	})
	v.WatchConfig()
	return true
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Proxy
	v.SetDefault("proxy.provider", d.Proxy.Provider)
	v.SetDefault("proxy.upstream", d.Proxy.Upstream)
	v.SetDefault("proxy.api_key", d.Proxy.APIKey)
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.cors_origins", d.Proxy.CORSOrigins)
	v.SetDefault("proxy.mode", d.Proxy.Mode)
	v.SetDefault("proxy.static_dir", d.Proxy.StaticDir)
	v.SetDefault("proxy.timeout", d.Proxy.Timeout)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.proxy_target", d.Client.ProxyTarget)
	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.model", d.Client.Model)

	// Reasoning
	v.SetDefault("reasoning.model_patterns", d.Reasoning.ModelPatterns)
	v.SetDefault("reasoning.force_tags", d.Reasoning.ForceTags)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.kafka_brokers", d.EventStream.KafkaBrokers)
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)
}
