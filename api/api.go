package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/api/mcp"
	"github.com/papercomputeco/yui/pkg/storage"
)

// Server is the database API server.
type Server struct {
	config Config
	driver storage.Driver
	logger *zap.Logger
	mcp    *mcp.Server
	app    *fiber.App
}

// NewServer creates a new API server.
// The driver is injected to allow sharing with other components
// (e.g., the proxy's worker pool when both run in one process).
func NewServer(config Config, driver storage.Driver, logger *zap.Logger) (*Server, error) {
	if driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Driver: driver,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create MCP server: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		driver: driver,
		logger: logger,
		mcp:    mcpServer,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	s.RegisterRoutes(app)

	return s, nil
}

// RegisterRoutes adds the /api/db and /mcp routes to r. It lets the proxy
// serve the API on its own listener.
func (s *Server) RegisterRoutes(r fiber.Router) {
	db := r.Group("/api/db")

	db.Get("/conversations", s.handleListConversations)
	db.Post("/conversations", s.handleCreateConversation)
	db.Get("/conversations/:id", s.handleGetConversation)
	db.Patch("/conversations/:id", s.handleUpdateConversation)
	db.Delete("/conversations/:id", s.handleDeleteConversation)
	db.Post("/conversations/:id/copy", s.handleCopyConversation)

	db.Post("/conversations/:id/messages", s.handleAddMessage)
	db.Patch("/conversations/:id/messages/:mid", s.handleUpdateMessage)
	db.Delete("/conversations/:id/messages/:mid", s.handleDeleteMessage)

	db.Get("/model-sources", s.handleListModelSources)
	db.Post("/model-sources", s.handleCreateModelSource)
	db.Patch("/model-sources/:id", s.handleUpdateModelSource)
	db.Delete("/model-sources/:id", s.handleDeleteModelSource)

	db.Get("/settings", s.handleGetSettings)
	db.Patch("/settings", s.handleUpdateSettings)

	db.Get("/folders", s.handleListFolders)
	db.Post("/folders", s.handleCreateFolder)
	db.Patch("/folders/:id", s.handleUpdateFolder)
	db.Delete("/folders/:id", s.handleDeleteFolder)

	db.Post("/import", s.handleImport)
	db.Get("/export", s.handleExport)

	r.All("/mcp", adaptor.HTTPHandler(s.mcp.Handler()))
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
