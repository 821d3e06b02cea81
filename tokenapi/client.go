package tokenapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/szkolny-go/librus-auth/internal/config"
)

// UnexpectedStatusError marks responses outside the set of statuses
// the token endpoints use for structured replies.
type UnexpectedStatusError struct {
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("token endpoint returned unexpected status %d", e.StatusCode)
}

// Response is the raw outcome of an accepted token exchange. Statuses
// 400, 401 and 403 still carry structured application-level error
// bodies, so they are returned here rather than as transport failures.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client posts token-exchange requests. Any connect failure, timeout
// or status outside {200, 400, 401, 403} is reported as an error; the
// caller classifies everything else from the body.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, primarily for
// tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(cfg config.EndpointConfig, options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.GetHTTPTimeout()},
		userAgent:  cfg.GetUserAgent(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func acceptedStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Exchange posts the request and returns the raw response for
// classification.
func (c *Client) Exchange(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, strings.NewReader(req.Form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("tokenapi: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tokenapi: %s: %w", req.Variant, err)
	}
	defer resp.Body.Close()

	if !acceptedStatus(resp.StatusCode) {
		return nil, fmt.Errorf("tokenapi: %s: %w", req.Variant, &UnexpectedStatusError{StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tokenapi: %s: read body: %w", req.Variant, err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
