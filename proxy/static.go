package proxy

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/llm"
)

// reservedPrefixes are never answered with the web UI.
var reservedPrefixes = []string{"api/", "v1/", "health", "mcp"}

// FindStaticDir returns the first candidate directory that contains a built
// web UI (index.html), or "".
func FindStaticDir(candidates ...string) string {
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(filepath.Join(dir, "index.html")); err == nil && info.Mode().IsRegular() {
			return dir
		}
	}
	return ""
}

// registerStatic serves the web UI: /assets through a net/http file server
// and every other GET through the SPA fallback.
func (p *Proxy) registerStatic(app *fiber.App) {
	dir := p.config.StaticDir
	if dir == "" {
		p.logger.Warn("static files not found in production mode, run with --dev and a separate frontend server")
		return
	}

	p.logger.Info("production mode: serving static files", zap.String("dir", dir))

	assets := filepath.Join(dir, "assets")
	if info, err := os.Stat(assets); err == nil && info.IsDir() {
		app.Get("/assets/*", adaptor.HTTPHandler(
			http.StripPrefix("/assets", http.FileServer(http.Dir(assets))),
		))
	}

	app.Get("/*", p.handleSPA)
}

// handleSPA serves files from the static dir and index.html for client side
// routes.
func (p *Proxy) handleSPA(c *fiber.Ctx) error {
	fullPath := c.Params("*")
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(fullPath, prefix) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "Not found"})
		}
	}

	if fullPath != "" {
		file := filepath.Join(p.config.StaticDir, filepath.FromSlash(path.Clean("/"+fullPath)))
		if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
			return c.SendFile(file)
		}
	}

	index := filepath.Join(p.config.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: "Frontend not built. Please build frontend first or run in dev mode.",
		})
	}
	return c.SendFile(index)
}
