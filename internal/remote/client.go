// Package remote is the HTTP client for the taskr server API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sadopc/taskr/internal/api"
)

type Client struct {
	base   string
	http   *http.Client
	tokens TokenStore
	log    *slog.Logger

	refreshMu sync.Mutex
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 15 * time.Second},
		tokens: tokens,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "remote")
	return c
}

// ============================================================
// Auth
// ============================================================

func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", req)
}

func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", req)
}

func (c *Client) SocialLogin(ctx context.Context, provider, idToken string) (*api.AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/social", api.SocialLoginRequest{Provider: provider, IDToken: idToken})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*api.AuthResponse, error) {
	var out api.AuthResponse
	if err := c.do(ctx, http.MethodPost, path, body, &out, false); err != nil {
		return nil, err
	}
	if err := c.tokens.SaveTokens(Tokens{Access: out.AccessToken, Refresh: out.RefreshToken}); err != nil {
		return nil, fmt.Errorf("save tokens: %w", err)
	}
	return &out, nil
}

// Refresh exchanges the stored refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	tok, err := c.tokens.Tokens()
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	if tok.Refresh == "" {
		return ErrUnauthorized
	}
	var out api.AuthResponse
	err = c.do(ctx, http.MethodPost, "/api/auth/refresh", api.RefreshRequest{RefreshToken: tok.Refresh}, &out, false)
	if err != nil {
		return err
	}
	c.log.Debug("tokens refreshed")
	return c.tokens.SaveTokens(Tokens{Access: out.AccessToken, Refresh: out.RefreshToken})
}

// Logout revokes the refresh token on the server and forgets both tokens
// locally. Local tokens are cleared even when the server is unreachable.
func (c *Client) Logout(ctx context.Context) error {
	tok, err := c.tokens.Tokens()
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}
	var remoteErr error
	if tok.Refresh != "" {
		remoteErr = c.do(ctx, http.MethodPost, "/api/auth/logout", api.RefreshRequest{RefreshToken: tok.Refresh}, nil, false)
	}
	if err := c.tokens.ClearTokens(); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return remoteErr
}

func (c *Client) Me(ctx context.Context) (*api.User, error) {
	var u api.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

// ============================================================
// Tasks and groups
// ============================================================

// ListTasks returns tasks changed after since (unix millis); zero lists all.
func (c *Client) ListTasks(ctx context.Context, since int64) ([]api.TaskData, error) {
	path := "/api/tasks"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	var out []api.TaskData
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// PutTask upserts a task by id. When the server holds a newer version it
// returns that version together with ErrConflict.
func (c *Client) PutTask(ctx context.Context, t api.TaskData) (*api.TaskData, error) {
	var out api.TaskData
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(t.ID), t, &out, true)
	if err != nil && !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return &out, err
}

// DeleteTask deletes a task; a task the server does not know counts as deleted.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil, true)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) ListGroups(ctx context.Context) ([]api.GroupData, error) {
	var out []api.GroupData
	if err := c.do(ctx, http.MethodGet, "/api/groups", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PutGroup(ctx context.Context, g api.GroupData) (*api.GroupData, error) {
	var out api.GroupData
	err := c.do(ctx, http.MethodPut, "/api/groups/"+url.PathEscape(g.ID), g, &out, true)
	if err != nil && !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return &out, err
}

func (c *Client) DeleteGroup(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/groups/"+url.PathEscape(id), nil, nil, true)
	if isNotFound(err) {
		return nil
	}
	return err
}

// ============================================================
// Transport
// ============================================================

func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	var used string
	if auth {
		tok, err := c.tokens.Tokens()
		if err != nil {
			return fmt.Errorf("load tokens: %w", err)
		}
		if tok.Access == "" && tok.Refresh == "" {
			return ErrUnauthorized
		}
		used = tok.Access
	}

	err := c.send(ctx, method, path, payload, out, used, auth)
	if !auth || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	// One refresh, then replay. Another request may already have rotated
	// the tokens while this one was in flight.
	c.refreshMu.Lock()
	tok, terr := c.tokens.Tokens()
	if terr == nil && tok.Access == used {
		terr = c.refreshLocked(ctx)
		if terr == nil {
			tok, terr = c.tokens.Tokens()
		}
	}
	c.refreshMu.Unlock()
	if terr != nil {
		if errors.Is(terr, ErrUnauthorized) {
			return ErrUnauthorized
		}
		return terr
	}
	return c.send(ctx, method, path, payload, out, tok.Access, auth)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any, token string, auth bool) error {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if auth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrNoInternet, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request", "method", method, "path", path, "status", resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %v", method, path, ErrNoInternet, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er api.ErrorResponse
		if json.Unmarshal(data, &er) == nil {
			apiErr.Message = er.Error
		}
		// A conflict carries the winning row.
		if resp.StatusCode == http.StatusConflict && out != nil && len(data) > 0 {
			json.Unmarshal(data, out)
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
