package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/mihaisavezi/llm-bridge/internal/llm"
)

const (
	DefaultRequestTimeout = 120 * time.Second
	// DefaultStreamTimeout is long because reasoning models can take
	// minutes before the first token.
	DefaultStreamTimeout = 5 * time.Minute
	DefaultWarmupTimeout = 2 * time.Second

	// maxErrorBody bounds how much of a failed response is read.
	maxErrorBody = 64 * 1024
)

// Response is a complete, decompressed provider reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Outcome is delivered by Go once the request finishes.
type Outcome struct {
	Response *Response
	Err      error
}

// Client executes envelopes over HTTP. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	http   *http.Client
	logger *slog.Logger
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)

	RequestTimeout time.Duration
	StreamTimeout  time.Duration
	WarmupTimeout  time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeouts(request, stream, warmup time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.RequestTimeout = request
		}
		if stream > 0 {
			c.StreamTimeout = stream
		}
		if warmup > 0 {
			c.WarmupTimeout = warmup
		}
	}
}

func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:           &http.Client{},
		logger:         logger,
		dial:           (&net.Dialer{}).DialContext,
		RequestTimeout: DefaultRequestTimeout,
		StreamTimeout:  DefaultStreamTimeout,
		WarmupTimeout:  DefaultWarmupTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends env and reads the whole response. A status of 400 or above is
// returned as an HTTPStatusError together with the response.
func (c *Client) Do(ctx context.Context, env llm.Envelope) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, env)
	if err != nil {
		return nil, llm.ConfigError(env.Provider, "%v", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, llm.TransportError(env.Provider, err)
	}
	defer resp.Body.Close()

	reader, err := decompressReader(resp)
	if err != nil {
		return nil, llm.TransportError(env.Provider, fmt.Errorf("decompression error: %w", err))
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, llm.TransportError(env.Provider, fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("provider response",
		"provider", env.Provider,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start))

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode >= http.StatusBadRequest {
		return out, llm.HTTPStatusError(env.Provider, resp.StatusCode, body)
	}
	return out, nil
}

// Go runs Do on a worker goroutine. The channel receives exactly one
// outcome and is then closed.
func (c *Client) Go(ctx context.Context, env llm.Envelope) <-chan Outcome {
	ch := make(chan Outcome, 1)

	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				ch <- Outcome{Err: llm.TransportError(env.Provider, fmt.Errorf("request worker panic: %v", r))}
			}
		}()

		resp, err := c.Do(ctx, env)
		ch <- Outcome{Response: resp, Err: err}
	}()

	return ch
}

func (c *Client) newRequest(ctx context.Context, env llm.Envelope) (*http.Request, error) {
	body, err := env.EncodeBody()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range env.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")

	return req, nil
}

// warmup opens and closes a TCP connection to the envelope's host so DNS
// and connection state are primed before the stream worker starts.
// Failures are logged and otherwise ignored.
func (c *Client) warmup(ctx context.Context, rawURL string) {
	addr, ok := hostPort(rawURL)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.WarmupTimeout)
	defer cancel()

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		c.logger.Debug("warmup dial failed", "addr", addr, "error", err)
		return
	}
	conn.Close()
}

func hostPort(rawURL string) (string, bool) {
	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil || req.URL.Host == "" {
		return "", false
	}

	host, port := req.URL.Hostname(), req.URL.Port()
	if port == "" {
		port = "443"
		if strings.EqualFold(req.URL.Scheme, "http") {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), true
}

func decompressReader(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
