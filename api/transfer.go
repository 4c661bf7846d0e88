package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/storage"
)

// ImportResponse reports the records created by an import.
type ImportResponse struct {
	OK       bool                  `json:"ok"`
	Imported *storage.ImportCounts `json:"imported"`
}

// handleImport loads a full data set, skipping records whose ids exist.
func (s *Server) handleImport(c *fiber.Ctx) error {
	var data storage.ImportData
	if err := c.BodyParser(&data); err != nil {
		return invalidBody(c, err)
	}

	counts, err := storage.Import(c.Context(), s.driver, &data)
	if err != nil {
		return s.storageError(c, err, "import data")
	}

	s.logger.Info("imported data",
		zap.Int("conversations", counts.Conversations),
		zap.Int("messages", counts.Messages),
		zap.Int("model_sources", counts.ModelSources),
	)
	return c.JSON(ImportResponse{OK: true, Imported: counts})
}

// handleExport returns every record in the store.
func (s *Server) handleExport(c *fiber.Ctx) error {
	data, err := storage.Export(c.Context(), s.driver)
	if err != nil {
		return s.storageError(c, err, "export data")
	}
	return c.JSON(data)
}
