// Package apiclient talks to the task board HTTP API. Client satisfies
// board.Remote, so a Board can run against a live server.
package apiclient

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

	"taskboard-api/internal/apperr"
	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/models"
)

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(server string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", server)
	}
	c := &Client{base: base, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns the session token in use.
func (c *Client) Token() string { return c.token }

type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login exchanges credentials for a session and keeps its token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/login", body, &s); err != nil {
		return Session{}, err
	}
	c.token = s.Token
	return s, nil
}

func (c *Client) List(ctx context.Context) ([]models.Task, error) {
	var resp struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Tasks {
		resp.Tasks[i] = withAssigneeID(resp.Tasks[i])
	}
	return resp.Tasks, nil
}

func (c *Client) Get(ctx context.Context, id string) (models.Task, error) {
	var t models.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &t); err != nil {
		return models.Task{}, err
	}
	return withAssigneeID(t), nil
}

func (c *Client) Create(ctx context.Context, p lifecycle.Patch) (models.Task, error) {
	var t models.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", p, &t); err != nil {
		return models.Task{}, err
	}
	return withAssigneeID(t), nil
}

// Update sends p as a PATCH and returns the canonical record.
func (c *Client) Update(ctx context.Context, id string, p lifecycle.Patch) (models.Task, error) {
	var t models.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), p, &t); err != nil {
		return models.Task{}, err
	}
	return withAssigneeID(t), nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

type User struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Stats returns the per-stage task counts of an assignee.
func (c *Client) Stats(ctx context.Context, userID string) (map[models.TaskStatus]int64, error) {
	var resp struct {
		Counts map[models.TaskStatus]int64 `json:"counts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/stats/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError turns an error response back into an *apperr.Error.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return apperr.New(apperr.CodeFromHTTPStatus(resp.StatusCode), http.StatusText(resp.StatusCode), errors.New(strings.TrimSpace(string(raw))))
	}
	code := apperr.ParseCode(body.Code)
	if code == apperr.Unknown {
		code = apperr.CodeFromHTTPStatus(resp.StatusCode)
	}
	return apperr.New(code, body.Error, fmt.Errorf("http status %d", resp.StatusCode))
}

// The wire form carries the assignee only as an object.
func withAssigneeID(t models.Task) models.Task {
	if t.AssigneeID == "" {
		t.AssigneeID = t.Assignee.ID
	}
	return t
}
