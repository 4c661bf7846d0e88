package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/yui/pkg/storage"
)

func (s *Server) handleListModelSources(c *fiber.Ctx) error {
	sources, err := s.driver.ListModelSources(c.Context())
	if err != nil {
		return s.storageError(c, err, "list model sources")
	}
	return c.JSON(sources)
}

func (s *Server) handleCreateModelSource(c *fiber.Ctx) error {
	var src storage.ModelSource
	if err := c.BodyParser(&src); err != nil {
		return invalidBody(c, err)
	}
	if strings.TrimSpace(src.ID) == "" {
		return invalidRequest(c, "id is required")
	}

	created, err := s.driver.CreateModelSource(c.Context(), &src)
	if err != nil {
		return s.storageError(c, err, "create model source")
	}
	return c.JSON(created)
}

func (s *Server) handleUpdateModelSource(c *fiber.Ctx) error {
	var update storage.ModelSourceUpdate
	if err := c.BodyParser(&update); err != nil {
		return invalidBody(c, err)
	}

	src, err := s.driver.UpdateModelSource(c.Context(), c.Params("id"), update)
	if err != nil {
		return s.storageError(c, err, "update model source")
	}
	return c.JSON(src)
}

func (s *Server) handleDeleteModelSource(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.driver.DeleteModelSource(c.Context(), id); err != nil {
		return s.storageError(c, err, "delete model source")
	}
	return c.JSON(DeleteResponse{OK: true, ID: id})
}

// handleGetSettings returns the application settings, falling back to the
// defaults when the store has none.
func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	settings, err := s.driver.GetSettings(c.Context())
	if storage.IsNotFound(err) {
		return c.JSON(storage.DefaultAppSettings())
	}
	if err != nil {
		return s.storageError(c, err, "get settings")
	}
	return c.JSON(settings)
}

func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	var update storage.SettingsUpdate
	if err := c.BodyParser(&update); err != nil {
		return invalidBody(c, err)
	}

	settings, err := s.driver.UpdateSettings(c.Context(), update)
	if err != nil {
		return s.storageError(c, err, "update settings")
	}
	return c.JSON(settings)
}

// handleListFolders returns folders, pinned first.
func (s *Server) handleListFolders(c *fiber.Ctx) error {
	folders, err := s.driver.ListFolders(c.Context())
	if err != nil {
		return s.storageError(c, err, "list folders")
	}
	return c.JSON(folders)
}

func (s *Server) handleCreateFolder(c *fiber.Ctx) error {
	var folder storage.Folder
	if err := c.BodyParser(&folder); err != nil {
		return invalidBody(c, err)
	}
	if strings.TrimSpace(folder.ID) == "" {
		return invalidRequest(c, "id is required")
	}

	created, err := s.driver.CreateFolder(c.Context(), &folder)
	if err != nil {
		return s.storageError(c, err, "create folder")
	}
	return c.JSON(created)
}

func (s *Server) handleUpdateFolder(c *fiber.Ctx) error {
	var update storage.FolderUpdate
	if err := c.BodyParser(&update); err != nil {
		return invalidBody(c, err)
	}

	folder, err := s.driver.UpdateFolder(c.Context(), c.Params("id"), update)
	if err != nil {
		return s.storageError(c, err, "update folder")
	}
	return c.JSON(folder)
}

// handleDeleteFolder removes a folder. Its conversations move to the default
// folder, which itself cannot be deleted.
func (s *Server) handleDeleteFolder(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.driver.DeleteFolder(c.Context(), id); err != nil {
		return s.storageError(c, err, "delete folder")
	}
	return c.JSON(DeleteResponse{OK: true, ID: id})
}
