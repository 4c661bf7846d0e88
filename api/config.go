// Package api provides the HTTP API for conversations, messages, folders,
// model sources and settings, plus an MCP endpoint over the same store.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on when the API runs on its own
	// listener (e.g., ":8002").
	ListenAddr string
}
