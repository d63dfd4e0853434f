// Package client provides the REST client for the chat server.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
)

// CookieName is the session cookie set by the login endpoint.
const CookieName = "jwt"

var (
	// ErrUnauthorized is returned when the server rejects the session cookie.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")
)

// StatusError is a non-2xx response that is neither 401 nor 404.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error: %s - %s", e.Status, e.Message)
	}
	return "server error: " + e.Status
}

// Client talks to the chat server's REST API. Auth is carried by the session
// cookie in its jar, which the websocket dialer shares.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	jar        http.CookieJar
	metrics    *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the overall HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithJar replaces the client's cookie jar.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
		c.httpClient.Jar = jar
	}
}

// WithMetrics records request timings into m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse server url: unsupported scheme %q", u.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:    u,
		jar:        jar,
		httpClient: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Jar returns the cookie jar holding the session cookie.
func (c *Client) Jar() http.CookieJar { return c.jar }

// BaseURL returns the server base URL.
func (c *Client) BaseURL() *url.URL { return c.baseURL }

// SetToken stores a session token obtained out of band.
func (c *Client) SetToken(token string) {
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: CookieName, Value: token, Path: "/"}})
}

// Token returns the current session token, or "" when not logged in.
func (c *Client) Token() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == CookieName {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) resolve(path string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimLeft(path, "/")}).String()
}

// Execute sends a JSON request and decodes the JSON response into result.
// A nil body sends no payload; a nil result discards the response.
func (c *Client) Execute(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp, body); err != nil {
		return err
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}

	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &msg); err != nil || msg.Message == "" {
		msg.Message = strings.TrimSpace(string(body))
	}
	return &StatusError{Code: resp.StatusCode, Status: resp.Status, Message: msg.Message}
}

func (c *Client) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.RecordTiming(op, time.Since(start), err)
	return err
}
