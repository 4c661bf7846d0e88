package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/yui/pkg/storage"
	"github.com/papercomputeco/yui/pkg/utils"
)

const (
	defaultListLimit   = 20
	defaultSearchLimit = 10
	previewLength      = 200
)

var (
	listConversationsToolName    = "list_conversations"
	listConversationsDescription = "List stored chat conversations, most recently updated first. Archived conversations are skipped unless include_archived is set."

	getConversationToolName    = "get_conversation"
	getConversationDescription = "Get a stored chat conversation by id, including every message with its reasoning."

	searchMessagesToolName    = "search_messages"
	searchMessagesDescription = "Search stored chat messages. Matches the query case-insensitively against message content and reasoning."
)

// ListConversationsInput represents the input arguments for the list tool.
type ListConversationsInput struct {
	Limit           int  `json:"limit,omitempty" jsonschema:"maximum number of conversations to return (default: 20)"`
	IncludeArchived bool `json:"include_archived,omitempty" jsonschema:"include archived conversations"`
}

// ConversationSummary is a conversation without its messages.
type ConversationSummary struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
	IsPinned   bool    `json:"is_pinned"`
	IsArchived bool    `json:"is_archived"`
	FolderID   *string `json:"folder_id,omitempty"`
}

// ListConversationsOutput represents the output of the list tool.
type ListConversationsOutput struct {
	Conversations []ConversationSummary `json:"conversations"`
	Count         int                   `json:"count"`
}

// GetConversationInput represents the input arguments for the get tool.
type GetConversationInput struct {
	ID string `json:"id" jsonschema:"the conversation id"`
}

// Turn is a single message of a conversation.
type Turn struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// GetConversationOutput represents the output of the get tool.
type GetConversationOutput struct {
	Conversation ConversationSummary `json:"conversation"`
	Messages     []Turn              `json:"messages"`
}

// SearchMessagesInput represents the input arguments for the search tool.
type SearchMessagesInput struct {
	Query string `json:"query" jsonschema:"the text to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default: 10)"`
}

// SearchResult is a single matched message.
type SearchResult struct {
	ConversationID    string `json:"conversation_id"`
	ConversationTitle string `json:"conversation_title"`
	MessageID         string `json:"message_id"`
	Role              string `json:"role"`
	Preview           string `json:"preview"`
	CreatedAt         int64  `json:"created_at"`
}

// SearchMessagesOutput represents the output of the search tool.
type SearchMessagesOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

func (s *Server) handleListConversations(ctx context.Context, _ *mcp.CallToolRequest, input ListConversationsInput) (*mcp.CallToolResult, ListConversationsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	convs, err := s.config.Driver.ListConversations(ctx)
	if err != nil {
		s.config.Logger.Error("failed to list conversations", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to list conversations: %v", err)), ListConversationsOutput{}, nil
	}

	summaries := make([]ConversationSummary, 0, min(limit, len(convs)))
	for _, conv := range convs {
		if conv.IsArchived && !input.IncludeArchived {
			continue
		}
		summaries = append(summaries, summarize(conv))
		if len(summaries) == limit {
			break
		}
	}

	return jsonResult(s, ListConversationsOutput{
		Conversations: summaries,
		Count:         len(summaries),
	})
}

func (s *Server) handleGetConversation(ctx context.Context, _ *mcp.CallToolRequest, input GetConversationInput) (*mcp.CallToolResult, GetConversationOutput, error) {
	if input.ID == "" {
		return errorResult("id is required"), GetConversationOutput{}, nil
	}

	conv, err := s.config.Driver.GetConversation(ctx, input.ID)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.config.Logger.Error("failed to get conversation",
				zap.String("id", input.ID),
				zap.Error(err),
			)
		}
		return errorResult(fmt.Sprintf("Failed to get conversation: %v", err)), GetConversationOutput{}, nil
	}

	turns := make([]Turn, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		turns = append(turns, Turn{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Reasoning: msg.ReasoningContent,
			CreatedAt: msg.CreatedAt,
		})
	}

	return jsonResult(s, GetConversationOutput{
		Conversation: summarize(conv),
		Messages:     turns,
	})
}

func (s *Server) handleSearchMessages(ctx context.Context, _ *mcp.CallToolRequest, input SearchMessagesInput) (*mcp.CallToolResult, SearchMessagesOutput, error) {
	if input.Query == "" {
		return errorResult("query is required"), SearchMessagesOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	s.config.Logger.Debug("MCP search request",
		zap.String("query", input.Query),
		zap.Int("limit", limit),
	)

	hits, err := s.config.Driver.SearchMessages(ctx, input.Query, limit)
	if err != nil {
		s.config.Logger.Error("failed to search messages", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to search messages: %v", err)), SearchMessagesOutput{}, nil
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, buildSearchResult(hit))
	}

	return jsonResult(s, SearchMessagesOutput{
		Query:   input.Query,
		Results: results,
		Count:   len(results),
	})
}

// jsonResult serializes the structured output as JSON into a TextContent
// block as well, for clients that ignore structured content.
func jsonResult[T any](s *Server, output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		s.config.Logger.Error("failed to marshal tool output", zap.Error(err))
		var zero T
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func summarize(conv *storage.Conversation) ConversationSummary {
	return ConversationSummary{
		ID:         conv.ID,
		Title:      conv.Title,
		CreatedAt:  conv.CreatedAt,
		UpdatedAt:  conv.UpdatedAt,
		IsPinned:   conv.IsPinned,
		IsArchived: conv.IsArchived,
		FolderID:   conv.FolderID,
	}
}

// buildSearchResult previews the content of a hit, or its reasoning when the
// content is empty.
func buildSearchResult(hit *storage.MessageHit) SearchResult {
	text := hit.Message.Content
	if text == "" {
		text = hit.Message.ReasoningContent
	}

	return SearchResult{
		ConversationID:    hit.ConversationID,
		ConversationTitle: hit.ConversationTitle,
		MessageID:         hit.Message.ID,
		Role:              hit.Message.Role,
		Preview:           utils.Truncate(text, previewLength),
		CreatedAt:         hit.Message.CreatedAt,
	}
}
