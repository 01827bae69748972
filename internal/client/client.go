// Package client talks to the advisor backend over HTTP on behalf of the
// widget.
package client

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
	"time"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
)

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client calls the advisor backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New returns a Client rooted at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: u, http: httpClient}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type replyRequest struct {
	Text    string         `json:"text"`
	History []chat.Message `json:"history,omitempty"`
}

type replyResponse struct {
	Reply    string `json:"reply"`
	Fallback bool   `json:"fallback"`
}

// Reply asks the backend advisor for one reply.
func (c *Client) Reply(ctx context.Context, history []chat.Message, text string) (string, error) {
	var out replyResponse
	if err := c.do(ctx, http.MethodPost, "/api/advisor/reply", nil, replyRequest{Text: text, History: history}, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

type saveMessageRequest struct {
	Email   string       `json:"email"`
	Message chat.Message `json:"message"`
}

// SaveMessage writes msg under email.
func (c *Client) SaveMessage(ctx context.Context, email, conversationID string, msg chat.Message) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.do(ctx, http.MethodPost, path, nil, saveMessageRequest{Email: email, Message: msg}, nil)
}

// ListConversations returns the owner's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context, email string) ([]chat.ConversationSummary, error) {
	var out []chat.ConversationSummary
	err := c.do(ctx, http.MethodGet, "/api/conversations", url.Values{"email": {email}}, nil, &out)
	return out, err
}

// Transcript returns one owner's copy of a conversation.
func (c *Client) Transcript(ctx context.Context, email, conversationID string) ([]chat.Message, error) {
	var out []chat.Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	err := c.do(ctx, http.MethodGet, path, url.Values{"email": {email}}, nil, &out)
	return out, err
}

// Login authenticates by email or username.
func (c *Client) Login(ctx context.Context, identifier, password string) (*user.User, error) {
	var out user.User
	in := map[string]string{"identifier": identifier, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a regular account.
func (c *Client) Register(ctx context.Context, username, email, password string) (*user.User, error) {
	var out user.User
	in := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the backend is up and has a model configured.
func (c *Client) Health(ctx context.Context) (bool, error) {
	var out struct {
		Status  string `json:"status"`
		Advisor bool   `json:"advisor"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Advisor, nil
}
