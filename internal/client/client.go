// Package client talks to a running fan-controller over its HTTP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sweeney/fan-controller/internal/status"
	"github.com/sweeney/fan-controller/internal/web"
)

// DefaultAddr is the daemon's default listen address.
const DefaultAddr = "http://localhost:80"

var ErrNotFound = errors.New("not found")

// APIError is an error reported by the daemon.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fan-controller: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fan-controller: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 404 onto ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type Client struct {
	http *resty.Client
}

// New creates a client for the daemon at addr ("host:port" or a URL).
func New(addr string, timeout time.Duration) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(addr, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &Client{http: c}
}

// Status returns the full status document.
func (c *Client) Status(ctx context.Context) (status.StatusInner, error) {
	var sj status.StatusJSON
	if err := c.get(ctx, "/index.json", &sj); err != nil {
		return status.StatusInner{}, err
	}
	return sj.Status, nil
}

// Fans returns the state of every fan.
func (c *Client) Fans(ctx context.Context) ([]status.FanJSON, error) {
	var fans []status.FanJSON
	if err := c.get(ctx, "/fans", &fans); err != nil {
		return nil, err
	}
	return fans, nil
}

// Fan returns one fan's state.
func (c *Client) Fan(ctx context.Context, id string) (status.FanJSON, error) {
	var fan status.FanJSON
	err := c.get(ctx, "/fans/"+id, &fan)
	return fan, err
}

// SetSpeed asks the daemon to drive a fan at percent and returns the
// applied (clamped) value.
func (c *Client) SetSpeed(ctx context.Context, id string, percent int) (int, error) {
	var result web.SpeedResponse
	apiErr := &APIError{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetHeader("Content-Type", "application/json").
		SetBody(web.SpeedRequest{Speed: &percent}).
		SetResult(&result).
		SetError(apiErr).
		Post("/fans/{id}/speed")
	if err != nil {
		return 0, fmt.Errorf("set %s: %w", id, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return 0, apiErr
	}
	return result.Speed, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	apiErr := &APIError{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}
