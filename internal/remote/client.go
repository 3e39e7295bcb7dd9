// Package remote talks to the chat server's session API on behalf of the
// signed-in user.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xiaoshi569/nextchat/pkg/types"
)

// Credentials supplies the bearer token. Invalidate is called with the
// token a request was rejected with; implementations clear it only if it is
// still the current one.
type Credentials interface {
	Token() string
	Invalidate(token string)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
}

type errorBody struct {
	Error string `json:"error"`
}

func NewClient(httpClient *http.Client, baseURL string, creds Credentials) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		creds:      creds,
	}
}

// ListSessions returns the caller's sessions without message bodies.
func (c *Client) ListSessions(ctx context.Context) ([]types.Session, error) {
	var out types.SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/sessions", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// GetSession returns one session with its messages in creation order.
func (c *Client) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var out types.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/api/chat/sessions/"+url.PathEscape(id), nil, &out, true); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

func (c *Client) CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	var out types.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/sessions", req, &out, true); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

func (c *Client) UpdateSession(ctx context.Context, id string, req types.UpdateSessionRequest) (*types.Session, error) {
	var out types.SessionResponse
	if err := c.do(ctx, http.MethodPatch, "/api/chat/sessions/"+url.PathEscape(id), req, &out, true); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/sessions/"+url.PathEscape(id), nil, nil, true)
}

func (c *Client) AppendMessage(ctx context.Context, req types.AppendMessageRequest) (*types.Message, error) {
	var out types.MessageResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/messages", req, &out, true); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) Login(ctx context.Context, req types.LoginRequest) (*types.AuthResponse, error) {
	var out types.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (*types.AuthResponse, error) {
	var out types.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me validates the held token and returns the identity it belongs to.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var out types.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, authed bool) error {
	var token string
	if authed {
		if c.creds != nil {
			token = strings.TrimSpace(c.creds.Token())
		}
		if token == "" {
			return ErrUnauthorized
		}
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
		}
		return nil
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	if resp.StatusCode == http.StatusUnauthorized {
		if authed && c.creds != nil {
			c.creds.Invalidate(token)
		}
		return ErrUnauthorized
	}
	return &RequestError{Status: resp.StatusCode, Message: strings.TrimSpace(eb.Error)}
}
