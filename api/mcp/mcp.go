// Package mcp provides an MCP (Model Context Protocol) server over the yui
// conversation store.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/storage"
	"github.com/papercomputeco/yui/pkg/utils"
)

type Config struct {
	// Driver is the conversation store the tools read from
	Driver storage.Driver

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the conversation tools.
func NewServer(c Config) (*Server, error) {
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "yui",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listConversationsToolName,
		Description: listConversationsDescription,
	}, s.handleListConversations)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        getConversationToolName,
		Description: getConversationDescription,
	}, s.handleGetConversation)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchMessagesToolName,
		Description: searchMessagesDescription,
	}, s.handleSearchMessages)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
