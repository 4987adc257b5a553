// Package authority is the client side of the durable authority's HTTP API.
package authority

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

	"todo-sync/internal/models"
	"todo-sync/internal/syncerr"
)

// Client talks to the todo server. Network failures come back as
// *syncerr.TransportError, rejected mutations as *syncerr.PersistenceError.
type Client struct {
	base  string
	token string
	hc    *http.Client
}

// New returns a client for the server at baseURL (http://host:port). token is
// the bearer token sent with mutations.
func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), token: token, hc: hc}
}

// FeedURL returns the websocket URL of the change feed.
func (c *Client) FeedURL() string {
	u, err := url.Parse(c.base)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/feed"
	return u.String()
}

// List fetches the authoritative list.
func (c *Client) List(ctx context.Context) (models.Snapshot, error) {
	var list models.Snapshot
	if err := c.do(ctx, "list", "", http.MethodGet, "/todos", nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = models.Snapshot{}
	}
	return list, nil
}

type insertBody struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Description *string   `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *Client) Insert(ctx context.Context, t models.Todo) error {
	body := insertBody{ID: t.ID, Text: t.Text, Description: t.Description, Completed: t.Completed, CreatedAt: t.CreatedAt}
	return c.do(ctx, "insert", t.ID, http.MethodPost, "/todos", body, nil)
}

func (c *Client) Update(ctx context.Context, id string, patch models.TodoPatch) error {
	return c.do(ctx, "update", id, http.MethodPatch, "/todos/"+url.PathEscape(id), patch, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", id, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil)
}

type apiError struct {
	Error string `json:"error"`
}

// StatusError is the server's rejection of a request.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, op, id, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return syncerr.Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ae apiError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&ae)
		se := &StatusError{Code: resp.StatusCode, Message: ae.Error}
		if method == http.MethodGet {
			return syncerr.Transport(op, se)
		}
		return &syncerr.PersistenceError{Op: op, ID: id, Err: se}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return syncerr.Transport(op, fmt.Errorf("decode: %w", err))
	}
	return nil
}
