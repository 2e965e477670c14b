// Package client implements the conversation-side state of the chat UI: a
// typed HTTP client for the server API, a controller holding the optimistic
// message list, and a debounced draft store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clarichat/internal/models"
)

// APIClient talks to a running clarichat server over HTTP.
type APIClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewAPIClient creates a client for the given base URL, e.g. http://localhost:8090.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetAuthToken stores the bearer token used on subsequent requests.
func (c *APIClient) SetAuthToken(token string) {
	c.authToken = token
}

type errorResponse struct {
	Error string `json:"error"`
}

// LoginResponse is the payload of a successful login.
type LoginResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AuthToken string `json:"authToken"`
}

// Register creates an account.
func (c *APIClient) Register(ctx context.Context, name, email, password string) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.post(ctx, "/api/auth/register", body, nil)
}

// Login authenticates and stores the returned token on the client.
func (c *APIClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var result LoginResponse
	if err := c.post(ctx, "/api/auth/login", body, &result); err != nil {
		return nil, err
	}
	c.authToken = result.AuthToken
	return &result, nil
}

// Logout revokes the current token server-side and forgets it locally.
func (c *APIClient) Logout(ctx context.Context) error {
	err := c.post(ctx, "/api/auth/logout", nil, nil)
	c.authToken = ""
	return err
}

// SendResponse is the payload of a send-message call.
type SendResponse struct {
	ConvID    int64                   `json:"convId"`
	Reply     string                  `json:"reply"`
	Assistant *models.StructuredReply `json:"assistant"`
	Preview   string                  `json:"assistantPreview"`
	UpdatedAt time.Time               `json:"updatedAt"`
	Error     string                  `json:"error"`
}

// Send posts a message; convID zero starts a new conversation.
func (c *APIClient) Send(ctx context.Context, convID int64, message string) (*SendResponse, error) {
	body := map[string]interface{}{"convId": convID, "message": message}
	var result SendResponse
	if err := c.post(ctx, "/api/chat", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListConversations fetches the user's conversation summaries.
func (c *APIClient) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var result struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := c.get(ctx, "/api/chat", &result); err != nil {
		return nil, err
	}
	return result.Conversations, nil
}

// GetConversation fetches one transcript.
func (c *APIClient) GetConversation(ctx context.Context, convID int64) (*models.Conversation, error) {
	var result struct {
		Conversation models.Conversation `json:"conv"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/chat/%d", convID), &result); err != nil {
		return nil, err
	}
	return &result.Conversation, nil
}

// NewConversation creates an empty conversation.
func (c *APIClient) NewConversation(ctx context.Context, title string) (int64, string, error) {
	var result struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	body := map[string]string{"title": title}
	if err := c.post(ctx, "/api/chat/new", body, &result); err != nil {
		return 0, "", err
	}
	return result.ID, result.Title, nil
}

// RenameConversation sets a new title.
func (c *APIClient) RenameConversation(ctx context.Context, convID int64, title string) error {
	body := map[string]interface{}{"convId": convID, "title": title}
	return c.post(ctx, "/api/chat/rename", body, nil)
}

// DeleteConversation removes a conversation and its messages.
func (c *APIClient) DeleteConversation(ctx context.Context, convID int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+fmt.Sprintf("/api/chat/%d", convID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *APIClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *APIClient) post(ctx context.Context, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out interface{}) error {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error (%d)", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
