// Package chatgpt is a client for an OpenAI-style chat-completion endpoint.
//
// A Client turns a conversation history and Options into a request, sends
// it through a Transport, and decodes either a single JSON body (Complete,
// CompleteText) or a server-sent-event stream (Stream, StreamText). Streams
// are pull-driven: nothing is read from the connection until the caller asks
// for the next value, and abandoning a stream closes the connection.
package chatgpt

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"
)

// Config is the static configuration of a Client.
type Config struct {
	BaseURL string
	Path    string
	APIKey  string
	Headers map[string]string

	// ProxyURL and Timeout configure the default HTTP transport. Timeout
	// applies to buffered calls only.
	ProxyURL string
	Timeout  time.Duration

	// DefaultModel is used when Options.Model is empty.
	DefaultModel Model
}

// Client sends chat-completion requests. It is safe for concurrent use; its
// configuration is read-only after construction.
type Client struct {
	endpoint     Endpoint
	defaultModel Model
	transport    Transport
	logger       *slog.Logger

	// initErr is a construction failure reported by every call.
	initErr error
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithHTTPClient sends every call through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.transport = NewHTTPTransportWithClient(hc)
		}
	}
}

// WithLogger sets the logger used for request and stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient constructs a Client. The endpoint is validated on each call, so
// a bad BaseURL or ProxyURL surfaces as *ConfigurationError from the first
// request.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ModelGPT35Turbo
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	c := &Client{
		endpoint: Endpoint{
			BaseURL: cfg.BaseURL,
			Path:    cfg.Path,
			APIKey:  cfg.APIKey,
			Headers: headers,
		},
		defaultModel: cfg.DefaultModel,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		t, err := NewHTTPTransport(cfg.Timeout, cfg.ProxyURL)
		if err != nil {
			c.initErr = err
			t = NewHTTPTransportWithClient(nil)
		}
		c.transport = t
	}
	return c
}

// WithAPIKey returns a copy of c that authenticates with key. The copy shares
// the transport and logger.
func (c *Client) WithAPIKey(key string) *Client {
	out := *c
	out.endpoint.APIKey = key
	return &out
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() Endpoint { return c.endpoint }

// DefaultModel returns the model used when Options.Model is empty.
func (c *Client) DefaultModel() Model { return c.defaultModel }

func (c *Client) prepare(history []Message, opts Options, stream bool) (*RequestDescriptor, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}
	if opts.Model == "" {
		opts.Model = c.defaultModel
	}
	req, err := BuildRequest(c.endpoint, history, opts, stream)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("chatgpt request",
		"url", req.URL,
		"model", opts.Model.String(),
		"stream", stream,
		"messages", len(history),
	)
	return req, nil
}

// Complete performs a buffered call and returns the decoded result.
func (c *Client) Complete(ctx context.Context, history []Message, opts Options) (*Result, error) {
	req, err := c.prepare(history, opts, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.logger.Warn("chatgpt request failed", "error", err)
		return nil, err
	}
	return DecodeResult(resp.Body)
}

// CompleteText performs a buffered call and returns the primary completion.
func (c *Client) CompleteText(ctx context.Context, history []Message, opts Options) (string, error) {
	result, err := c.Complete(ctx, history, opts)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// Stream performs a streaming call. The caller must either drain the stream
// or Close it.
func (c *Client) Stream(ctx context.Context, history []Message, opts Options) (*Stream, error) {
	req, err := c.prepare(history, opts, true)
	if err != nil {
		return nil, err
	}
	src, err := c.transport.SendStreaming(ctx, req)
	if err != nil {
		c.logger.Warn("chatgpt stream request failed", "error", err)
		return nil, err
	}
	return NewStream(src, c.logger), nil
}

// StreamText performs a streaming call and returns the content fragments as
// a sequence. The connection is released when the range loop ends, whether
// by exhaustion, error or break; a sequence that is never ranged over holds
// the connection until ctx is canceled.
func (c *Client) StreamText(ctx context.Context, history []Message, opts Options) (iter.Seq2[string, error], error) {
	s, err := c.Stream(ctx, history, opts)
	if err != nil {
		return nil, err
	}
	return s.Text(), nil
}
