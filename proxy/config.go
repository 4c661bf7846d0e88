package proxy

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/yui/pkg/eventstream"
	"github.com/papercomputeco/yui/pkg/reasoning"
)

const defaultTimeout = 120 * time.Second

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8001")
	ListenAddr string

	// UpstreamURL is the OpenAI-compatible base URL including the version
	// prefix (e.g., "https://api.openai.com/v1", "http://127.0.0.1:8000/v1").
	UpstreamURL string

	// APIKey is sent upstream as a bearer token.
	APIKey string

	// Provider names the upstream for logs and events (e.g., "openai", "vllm").
	Provider string

	// Mode is config.ModeProduction or config.ModeDevelopment.
	Mode string

	// StaticDir holds the built web UI (index.html and assets/). Only
	// served in production mode.
	StaticDir string

	// CORSOrigins are the browser origins allowed in development mode.
	CORSOrigins []string

	// Timeout bounds non-streaming upstream requests and the wait for
	// streaming response headers. Defaults to 120s.
	Timeout time.Duration

	// ForceTags enables inline <think> splitting for every model.
	ForceTags bool

	// Detector flags reasoning models. Defaults to reasoning.NewDetector().
	Detector *reasoning.Detector

	// Publisher receives finalized assistant messages. Defaults to a no-op
	// publisher.
	Publisher eventstream.Publisher

	// Registrars add routes to the proxy app before the web UI fallback,
	// so other services can share the proxy's listener.
	Registrars []RouteRegistrar
}

// RouteRegistrar registers routes on a fiber router.
type RouteRegistrar interface {
	RegisterRoutes(r fiber.Router)
}
