// Package client talks to a running narrator relay over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/llm/provider/openai"
	"github.com/papercomputeco/narrator/pkg/logger"
	"github.com/papercomputeco/narrator/pkg/relay"
	"github.com/papercomputeco/narrator/pkg/utils"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 4 << 10

// Client sends user text to a relay and reads back its reply.
type Client struct {
	target     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the relay at target (scheme + host + port).
func New(target string, opts ...Option) (*Client, error) {
	if target == "" {
		return nil, errors.New("relay target is required")
	}

	c := &Client{
		target: strings.TrimRight(target, "/"),
		httpClient: &http.Client{
			// Replies can be slow
			Timeout: 5 * time.Minute,
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Generate asks the relay for a whole reply.
func (c *Client) Generate(ctx context.Context, text string) (*llm.Reply, error) {
	resp, err := c.post(ctx, llm.GenerateRequest{Text: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply llm.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}

	return &reply, nil
}

// Stream asks the relay for a streamed reply. The relay re-emits upstream
// delta events verbatim, so the returned Stream decodes them with the same
// frame decoder and event parser the relay uses upstream. The caller must
// Close it.
func (c *Client) Stream(ctx context.Context, text string) (*relay.Stream, error) {
	resp, err := c.post(ctx, llm.GenerateRequest{Text: text, Stream: true})
	if err != nil {
		return nil, err
	}

	return relay.NewStream(resp.Body, openai.New(), c.logger), nil
}

func (c *Client) post(ctx context.Context, req llm.GenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.target + llm.GeneratePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", utils.UserAgent())
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	c.logger.Debug("sending generate request",
		"target", c.target,
		"stream", req.Stream,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to relay: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newError(resp)
	}

	return resp, nil
}

func newError(resp *http.Response) *Error {
	e := &Error{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return e
	}

	var body llm.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		e.Message = body.Error
	} else {
		e.Message = strings.TrimSpace(string(data))
	}

	return e
}
