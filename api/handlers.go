package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/llm"
	"github.com/papercomputeco/yui/pkg/storage"
)

// DeleteResponse acknowledges a deleted record.
type DeleteResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListConversations returns every conversation without messages.
func (s *Server) handleListConversations(c *fiber.Ctx) error {
	convs, err := s.driver.ListConversations(c.Context())
	if err != nil {
		return s.storageError(c, err, "list conversations")
	}
	return c.JSON(convs)
}

// handleGetConversation returns a conversation with all of its messages.
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	conv, err := s.driver.GetConversation(c.Context(), c.Params("id"))
	if err != nil {
		return s.storageError(c, err, "get conversation")
	}
	return c.JSON(conv)
}

// handleCreateConversation stores a conversation and its nested messages.
func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var conv storage.Conversation
	if err := c.BodyParser(&conv); err != nil {
		return invalidBody(c, err)
	}
	if strings.TrimSpace(conv.ID) == "" {
		return invalidRequest(c, "id is required")
	}
	for _, msg := range conv.Messages {
		if msg == nil || msg.ID == "" {
			return invalidRequest(c, "message id is required")
		}
	}

	created, err := s.driver.CreateConversation(c.Context(), &conv)
	if err != nil {
		return s.storageError(c, err, "create conversation")
	}
	return c.JSON(created)
}

// handleUpdateConversation applies a partial conversation update.
func (s *Server) handleUpdateConversation(c *fiber.Ctx) error {
	var update storage.ConversationUpdate
	if err := c.BodyParser(&update); err != nil {
		return invalidBody(c, err)
	}

	conv, err := s.driver.UpdateConversation(c.Context(), c.Params("id"), update)
	if err != nil {
		return s.storageError(c, err, "update conversation")
	}
	return c.JSON(conv)
}

// handleDeleteConversation removes a conversation and its messages.
func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.driver.DeleteConversation(c.Context(), id); err != nil {
		return s.storageError(c, err, "delete conversation")
	}
	return c.JSON(DeleteResponse{OK: true, ID: id})
}

// handleCopyConversation duplicates a conversation under fresh ids.
func (s *Server) handleCopyConversation(c *fiber.Ctx) error {
	dup, err := storage.CopyConversation(c.Context(), s.driver, c.Params("id"))
	if err != nil {
		return s.storageError(c, err, "copy conversation")
	}
	return c.JSON(dup)
}

// handleAddMessage appends a message to a conversation.
func (s *Server) handleAddMessage(c *fiber.Ctx) error {
	var msg storage.Message
	if err := c.BodyParser(&msg); err != nil {
		return invalidBody(c, err)
	}
	if strings.TrimSpace(msg.ID) == "" {
		return invalidRequest(c, "id is required")
	}
	if msg.Role == "" {
		return invalidRequest(c, "role is required")
	}

	added, err := s.driver.AddMessage(c.Context(), c.Params("id"), &msg)
	if err != nil {
		return s.storageError(c, err, "add message")
	}
	return c.JSON(added)
}

// handleUpdateMessage edits the content or reasoning of a message.
func (s *Server) handleUpdateMessage(c *fiber.Ctx) error {
	var update storage.MessageUpdate
	if err := c.BodyParser(&update); err != nil {
		return invalidBody(c, err)
	}

	msg, err := s.driver.UpdateMessage(c.Context(), c.Params("id"), c.Params("mid"), update)
	if err != nil {
		return s.storageError(c, err, "update message")
	}
	return c.JSON(msg)
}

// handleDeleteMessage removes a single message.
func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	id := c.Params("mid")
	if err := s.driver.DeleteMessage(c.Context(), c.Params("id"), id); err != nil {
		return s.storageError(c, err, "delete message")
	}
	return c.JSON(DeleteResponse{OK: true, ID: id})
}

// storageError maps a storage error onto an HTTP status. Unexpected errors
// are logged and reported as "failed to <action>".
func (s *Server) storageError(c *fiber.Ctx, err error, action string) error {
	switch {
	case storage.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: err.Error()})
	case storage.IsConflict(err):
		return c.Status(fiber.StatusConflict).JSON(llm.ErrorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrProtectedFolder):
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	s.logger.Error("storage request failed",
		zap.String("action", action),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to " + action})
}

func invalidBody(c *fiber.Ctx, err error) error {
	return invalidRequest(c, "invalid request body: "+err.Error())
}

func invalidRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(llm.ErrorResponse{Error: msg})
}
