package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/papercomputeco/yui/pkg/llm"
	"github.com/papercomputeco/yui/pkg/storage"
)

// apiClient talks to the yui database API.
type apiClient struct {
	target string
	client *http.Client
}

func newAPIClient(target string, client *http.Client) *apiClient {
	return &apiClient{
		target: strings.TrimRight(target, "/"),
		client: client,
	}
}

func (a *apiClient) getConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	conv := &storage.Conversation{}
	if err := a.do(ctx, http.MethodGet, "/api/db/conversations/"+url.PathEscape(id), nil, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (a *apiClient) createConversation(ctx context.Context, conv *storage.Conversation) (*storage.Conversation, error) {
	created := &storage.Conversation{}
	if err := a.do(ctx, http.MethodPost, "/api/db/conversations", conv, created); err != nil {
		return nil, err
	}
	return created, nil
}

func (a *apiClient) renameConversation(ctx context.Context, id, title string) error {
	update := storage.ConversationUpdate{Title: &title}
	return a.do(ctx, http.MethodPatch, "/api/db/conversations/"+url.PathEscape(id), update, nil)
}

func (a *apiClient) addMessage(ctx context.Context, conversationID string, msg *storage.Message) error {
	path := "/api/db/conversations/" + url.PathEscape(conversationID) + "/messages"
	return a.do(ctx, http.MethodPost, path, msg, nil)
}

// errNotFound marks a 404 from the API.
var errNotFound = errors.New("not found")

// do sends in as JSON and decodes the response into out when non-nil.
func (a *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.target+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading API response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp llm.ErrorResponse
		msg := string(data)
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", errNotFound, msg)
		}
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding API response: %w", err)
	}
	return nil
}
