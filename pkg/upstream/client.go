// Package upstream sends chat completion requests to the configured
// OpenAI-compatible endpoint and hands back the raw response body.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/utils"
)

// DefaultTimeout bounds a whole exchange, body included.
// LLM requests can be slow, so this is generous.
const DefaultTimeout = 5 * time.Minute

// Config is the upstream transport configuration.
type Config struct {
	// URL is the full chat completions endpoint
	// (e.g., "https://api.openai.com/v1/chat/completions").
	URL string

	// APIKey is sent as a bearer token. Empty means no Authorization header.
	APIKey string

	// FirstByteTimeout bounds the wait for response headers.
	FirstByteTimeout time.Duration

	// ChunkTimeout bounds the silence between two reads of a streaming body.
	ChunkTimeout time.Duration

	// Timeout bounds the whole exchange. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client performs one POST per call. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. Returns an error if no URL is configured.
func New(c Config, logger *slog.Logger) (*Client, error) {
	if c.URL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = c.FirstByteTimeout

	return &Client{
		config: c,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   c.Timeout,
		},
		logger: logger,
	}, nil
}

// Stream issues req with streaming enabled and returns the SSE body.
// The body must be closed by the caller; closing it cancels the request.
// A non-2xx response is returned as *HTTPError and nothing is returned to
// read from.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	resp, err := c.do(ctx, req, "text/event-stream")
	if err != nil {
		cancel()
		return nil, err
	}

	return newIdleTimeoutBody(resp.Body, cancel, c.config.ChunkTimeout), nil
}

// Complete issues req and returns the whole response document.
func (c *Client) Complete(ctx context.Context, req *llm.ChatRequest) ([]byte, error) {
	resp, err := c.do(ctx, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HTTPError{Err: fmt.Errorf("reading response body: %w", err)}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, req *llm.ChatRequest, accept string) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", utils.UserAgent())
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	c.logger.Debug("forwarding request to upstream",
		"url", c.config.URL,
		"model", req.Model,
		"stream", req.Stream,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &HTTPError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		c.logger.Error("upstream returned error",
			"status", resp.StatusCode,
			"body", string(errBody),
		)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return resp, nil
}
