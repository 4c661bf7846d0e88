package config

import (
	"strings"

	"github.com/papercomputeco/yui/pkg/reasoning"
)

// Server modes. Production serves the built web client; development leaves
// that to a separate dev server.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Event stream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

// DefaultProvider names the upstream when none is configured.
const DefaultProvider = "openai"

const (
	defaultUpstream    = "https://api.openai.com/v1"
	defaultProxyListen = ":8001"
	defaultAPIListen   = ":8002"
	defaultCORSOrigins = "http://localhost:5173"
	defaultTimeout     = 120

	defaultClientProxyTarget = "http://localhost:8001"
	defaultClientAPITarget   = "http://localhost:8001"

	defaultKafkaTopic = "yui.messages"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Provider:    DefaultProvider,
			Upstream:    defaultUpstream,
			Listen:      defaultProxyListen,
			CORSOrigins: defaultCORSOrigins,
			Mode:        ModeProduction,
			Timeout:     defaultTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			ProxyTarget: defaultClientProxyTarget,
			APITarget:   defaultClientAPITarget,
		},
		Reasoning: ReasoningConfig{
			ModelPatterns: strings.Join(reasoning.DefaultModelPatterns, ","),
		},
		EventStream: EventStreamConfig{
			Provider:   EventStreamNop,
			KafkaTopic: defaultKafkaTopic,
		},
	}
}

// SplitList splits a comma separated config value, trimming blanks.
func SplitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
