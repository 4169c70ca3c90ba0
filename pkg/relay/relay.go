// Package relay turns one piece of user text into a generated reply, either as
// a single aggregated reply or as a stream of delta events re-emitted to a
// downstream consumer without buffering the whole response.
//
//	upstream body ─▶ sse.Reader ─▶ provider.ParseStreamChunk ─▶ Stream.Next ─▶ Emit / Collect
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/llm/provider"
	"github.com/papercomputeco/narrator/pkg/prompt"
	"github.com/papercomputeco/narrator/pkg/upstream"
)

// Config is the relay configuration.
type Config struct {
	// ProviderType selects the payload parser (e.g., "openai").
	ProviderType string

	// Upstream configures the transport to the chat completions endpoint.
	Upstream upstream.Config

	// Params are the sampling parameters sent with every request.
	Params prompt.Params
}

// Relay is safe for concurrent use: all per-request state lives in the
// returned Stream or on the stack of Generate.
type Relay struct {
	upstream *upstream.Client
	parser   provider.Provider
	params   prompt.Params
	logger   *slog.Logger
}

// Completion is the outcome of a non-streamed generation.
type Completion struct {
	Reply        *llm.Reply
	Model        string
	FinishReason string

	// Fallback is true when the upstream produced no content and Reply holds
	// FallbackReply.
	Fallback bool
}

// New creates a Relay. Returns an error if the provider type is not
// recognized or the upstream is not configured.
func New(c Config, logger *slog.Logger) (*Relay, error) {
	if c.ProviderType == "" {
		return nil, errors.New("provider type is required")
	}

	parser, err := provider.New(c.ProviderType)
	if err != nil {
		return nil, fmt.Errorf("could not create new provider: %w", err)
	}

	client, err := upstream.New(c.Upstream, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create upstream client: %w", err)
	}

	if c.Params.Model == "" {
		c.Params.Model = prompt.DefaultModel
	}

	return &Relay{
		upstream: client,
		parser:   parser,
		params:   c.Params,
		logger:   logger,
	}, nil
}

// Model returns the model name sent upstream.
func (r *Relay) Model() string {
	return r.params.Model
}

// Generate returns the aggregated reply for req.Text. An upstream reply with
// no content is not an error: ErrEmptyReply is logged and FallbackReply is
// returned.
func (r *Relay) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.Reply, error) {
	completion, err := r.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return completion.Reply, nil
}

// Complete is Generate with the metadata of the upstream reply.
func (r *Relay) Complete(ctx context.Context, req llm.GenerateRequest) (*Completion, error) {
	body, err := r.upstream.Complete(ctx, prompt.Build(req.Text, false, r.params))
	if err != nil {
		return nil, &Error{Stage: StageUpstream, Err: err}
	}

	resp, err := r.parser.ParseResponse(body)
	if err != nil {
		return nil, &Error{Stage: StageParse, Err: err}
	}

	completion := &Completion{
		Reply: &llm.Reply{
			Text:  resp.Message.Content,
			Usage: resp.Usage,
		},
		Model:        resp.Model,
		FinishReason: resp.StopReason,
	}

	if completion.Reply.Text == "" {
		r.logger.Warn("upstream reply has no content, using fallback",
			"error", ErrEmptyReply,
			"model", resp.Model,
			"stop_reason", resp.StopReason,
		)
		completion.Reply.Text = FallbackReply
		completion.Fallback = true
	}

	return completion, nil
}

// OpenStream issues a streaming request for req.Text. An upstream failure
// before any byte was received is returned here, as a *Error with
// StageUpstream. The caller must Close the returned Stream.
func (r *Relay) OpenStream(ctx context.Context, req llm.GenerateRequest) (*Stream, error) {
	body, err := r.upstream.Stream(ctx, prompt.Build(req.Text, true, r.params))
	if err != nil {
		return nil, &Error{Stage: StageUpstream, Err: err}
	}

	return NewStream(body, r.parser, r.logger), nil
}
