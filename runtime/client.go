package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agusx1211/hitlctl/config"
)

// DialContextFunc matches net.Dialer.DialContext so a tunnel can carry runtime traffic.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Client talks to the agent runtime's thread and run endpoints.
type Client struct {
	baseURL     string
	assistantID string
	maxRetries  int
	http        *http.Client
	auth        authorizer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func New(cfg config.RuntimeConfig, opts ...Option) *Client {
	must(strings.TrimSpace(cfg.BaseURL) != "", "runtime base url is required")
	return newClient(cfg, nil, opts...)
}

// NewWithDialer routes every connection through dial, e.g. an SSH tunnel.
func NewWithDialer(cfg config.RuntimeConfig, dial DialContextFunc, opts ...Option) *Client {
	must(dial != nil, "dial func must not be nil")
	return newClient(cfg, dial, opts...)
}

func newClient(cfg config.RuntimeConfig, dial DialContextFunc, opts ...Option) *Client {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = timeout
	if dial != nil {
		tr.DialContext = dial
	}
	assistant := cfg.AssistantID
	if assistant == "" {
		assistant = "agent"
	}
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		assistantID: assistant,
		maxRetries:  cfg.MaxRetries,
		http:        &http.Client{Transport: tr},
		auth:        newAuthorizer(cfg.Auth),
	}
	for _, o := range opts {
		o(c)
	}
	must(c.http != nil, "http client must not be nil")
	must(c.baseURL != "", "runtime base url must not be empty")
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func threadPath(threadID string, rest string) string {
	must(strings.TrimSpace(threadID) != "", "thread id must not be empty")
	return "/threads/" + url.PathEscape(threadID) + rest
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	must(ctx != nil, "context must not be nil")
	must(strings.HasPrefix(path, "/"), "request path must be absolute")
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.auth.apply(req); err != nil {
		return nil, err
	}
	return req, nil
}

// do sends one request. Throttled responses are retried up to maxRetries
// times; nothing of their body has been consumed, so a run is never replayed
// after it started streaming.
func (c *Client) do(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		resp, err := c.http.Do(req)
		if err != nil || attempt >= c.maxRetries || !throttled(resp.StatusCode) {
			return resp, err
		}
		wait := pause(attempt, resp.Header.Get("Retry-After"), time.Now())
		resp.Body.Close()
		log.Printf("[runtime] %s %s answered %d, retry %d/%d in %s", method, path, resp.StatusCode, attempt+1, c.maxRetries, wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return readStatusError(op, resp)
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
