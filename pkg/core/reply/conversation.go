package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/callio-ai/callio/pkg/core"
)

// ConversationProvider talks to a conversation service that stores
// history server-side: POST /api/conversations/{id}/messages with the
// user message, assistant answer in the response.
type ConversationProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewConversation creates a provider for the given service URL.
func NewConversation(baseURL string) *ConversationProvider {
	return &ConversationProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
	}
}

// NewConversationWithClient creates a provider with a custom HTTP client.
func NewConversationWithClient(baseURL string, client *http.Client) *ConversationProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &ConversationProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (c *ConversationProvider) Name() string {
	return "conversation"
}

// Reply implements Provider.
func (c *ConversationProvider) Reply(ctx context.Context, conversationID, message string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", core.NewReplyError("conversation id is required", nil)
	}

	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", core.NewReplyError("failed to build request", err)
	}

	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages", c.baseURL, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", core.NewReplyError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.NewReplyError("reply request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", core.NewReplyError("failed to read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", core.NewReplyError(
			fmt.Sprintf("conversation service returned %d", resp.StatusCode),
			nil,
		)
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", core.NewReplyError("failed to decode response", err)
	}
	if parsed.Message.Content == "" {
		return "", core.NewReplyError("conversation service returned an empty reply", nil)
	}

	return parsed.Message.Content, nil
}
