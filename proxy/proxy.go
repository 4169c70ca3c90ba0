// Package proxy provides the narrator relay server: it accepts user text over
// HTTP, relays it to the upstream LLM provider and returns the reply either
// whole or as a server-sent event stream.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/papercomputeco/narrator/pkg/eventstream"
	"github.com/papercomputeco/narrator/pkg/eventstream/nop"
	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/relay"
	"github.com/papercomputeco/narrator/pkg/sse"
	"github.com/papercomputeco/narrator/pkg/upstream"
	"github.com/papercomputeco/narrator/proxy/header"
	"github.com/papercomputeco/narrator/proxy/worker"
)

const (
	GeneratePath = llm.GeneratePath
	HealthPath   = llm.HealthPath

	stageDownstream = "downstream"
)

// Proxy is the relay server. It forwards every call to the upstream provider
// and enqueues a generation event for async publishing via its worker pool.
type Proxy struct {
	config        Config
	relay         *relay.Relay
	workerPool    *worker.Pool
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler

	// streams tracks the goroutines feeding streamed replies.
	streams sync.WaitGroup
}

// New creates a new Proxy.
// Returns an error if the relay cannot be configured.
func New(config Config, logger *slog.Logger) (*Proxy, error) {
	r, err := relay.New(config.Relay, logger)
	if err != nil {
		return nil, err
	}

	if config.Publisher == nil {
		config.Publisher = nop.NewPublisher()
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: config.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	// No compress middleware: it would buffer the event stream.
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    header.RequestIDHeader,
		Generator: uuid.NewString,
	}))

	p := &Proxy{
		config:        config,
		relay:         r,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
	}

	app.Get(HealthPath, p.handleHealth)
	app.Post(GeneratePath, p.handleGenerate)

	return p, nil
}

// Run starts the relay server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.Relay.Upstream.URL,
		"model", p.relay.Model(),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"upstream", p.config.Relay.Upstream.URL,
		"model", p.relay.Model(),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the server, waits for in-flight streams and
// then for the worker pool to drain. The publisher is left open.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.streams.Wait()
	p.workerPool.Close()
	return err
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleGenerate relays one piece of user text.
func (p *Proxy) handleGenerate(c *fiber.Ctx) error {
	startTime := time.Now()
	requestID := p.headerHandler.RequestID(c)

	var req llm.GenerateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		p.logger.Warn("invalid generate request",
			"request_id", requestID,
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: relay.FailureMessage})
	}

	p.logger.Debug("generate request",
		"request_id", requestID,
		"stream", req.Stream,
		"text_length", len([]rune(req.Text)),
	)

	if req.Stream {
		return p.handleStreaming(c, req, requestID, startTime)
	}

	return p.handleNonStreaming(c, req, requestID, startTime)
}

// handleNonStreaming returns the aggregated reply as one JSON document.
func (p *Proxy) handleNonStreaming(c *fiber.Ctx, req llm.GenerateRequest, requestID string, startTime time.Time) error {
	event := p.newEvent(requestID, false)

	completion, err := p.relay.Complete(c.Context(), req)
	if err != nil {
		p.logger.Error("generation failed", failureAttrs(requestID, err)...)
		p.finishEvent(event, eventstream.OutcomeFailed, stageOf(err), startTime)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: relay.FailureMessage})
	}

	event.Model = completion.Model
	event.FinishReason = completion.FinishReason
	event.Usage = completion.Reply.Usage
	outcome := eventstream.OutcomeOK
	if completion.Fallback {
		outcome = eventstream.OutcomeFallback
	}
	p.finishEvent(event, outcome, "", startTime)

	p.logger.Debug("generation complete",
		"request_id", requestID,
		"model", completion.Model,
		"duration", time.Since(startTime),
	)

	return c.JSON(completion.Reply)
}

// handleStreaming re-emits the upstream delta events as they arrive.
func (p *Proxy) handleStreaming(c *fiber.Ctx, req llm.GenerateRequest, requestID string, startTime time.Time) error {
	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the stream is consumed
	// asynchronously in a separate goroutine. Closing the stream cancels the
	// upstream request.
	stream, err := p.relay.OpenStream(context.Background(), req)
	if err != nil {
		p.logger.Error("generation failed before streaming", failureAttrs(requestID, err)...)
		event := p.newEvent(requestID, true)
		p.finishEvent(event, eventstream.OutcomeFailed, stageOf(err), startTime)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: relay.FailureMessage})
	}

	p.headerHandler.SetStreamHeaders(c)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter flushes into an internal buffered pipe, not to the
	// TCP socket, so frames would pile up in memory. With io.Pipe, pw.Write
	// blocks until fasthttp's chunked writer consumes the frame and flushes
	// it, which gives per-frame delivery and backpressure to the upstream.
	pr, pw := io.Pipe()

	p.streams.Add(1)
	go p.pipeStream(stream, pw, requestID, startTime)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pipeStream emits stream into pw. The generation event is enqueued before
// pw is closed so that it is never lost to a shutdown racing the response.
func (p *Proxy) pipeStream(stream *relay.Stream, pw *io.PipeWriter, requestID string, startTime time.Time) {
	defer p.streams.Done()
	defer stream.Close()

	summary, err := relay.Emit(stream, pw)

	event := p.newEvent(requestID, true)
	event.Model = summary.Model
	event.Fragments = summary.Fragments
	event.SkippedFrames = summary.Skipped
	event.FinishReason = summary.FinishReason
	event.Usage = summary.Usage

	switch {
	case err == nil:
		p.logger.Debug("streaming complete",
			"request_id", requestID,
			"fragments", summary.Fragments,
			"skipped", summary.Skipped,
			"duration", time.Since(startTime),
		)
		p.finishEvent(event, eventstream.OutcomeOK, "", startTime)
		pw.Close()

	case errors.Is(err, relay.ErrDownstreamClosed):
		p.logger.Info("consumer disconnected, releasing upstream",
			"request_id", requestID,
			"fragments", summary.Fragments,
		)
		p.finishEvent(event, eventstream.OutcomeFailed, stageDownstream, startTime)
		pw.CloseWithError(err)

	default:
		p.logger.Error("streaming failed",
			append(failureAttrs(requestID, err), "fragments", summary.Fragments)...,
		)
		p.finishEvent(event, eventstream.OutcomeFailed, stageOf(err), startTime)

		// The consumer learns about the failure in-band before the
		// connection is torn down.
		if werr := writeErrorFrame(pw); werr != nil {
			p.logger.Debug("could not write error frame",
				"request_id", requestID,
				"error", werr,
			)
		}
		pw.CloseWithError(err)
	}
}

type streamErrorPayload struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func writeErrorFrame(w io.Writer) error {
	var payload streamErrorPayload
	payload.Error.Message = relay.FailureMessage

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return sse.WriteFrame(w, sse.Frame{Data: string(data)})
}

func (p *Proxy) newEvent(requestID string, streaming bool) *eventstream.GenerationEvent {
	event := eventstream.NewGenerationEvent()
	event.RequestID = requestID
	event.Provider = p.config.Relay.ProviderType
	event.Model = p.relay.Model()
	event.Streaming = streaming
	return event
}

// finishEvent stamps the outcome and hands the event to the worker pool.
func (p *Proxy) finishEvent(event *eventstream.GenerationEvent, outcome eventstream.Outcome, stage string, startTime time.Time) {
	if event.Model == "" {
		event.Model = p.relay.Model()
	}
	event.Outcome = outcome
	event.Stage = stage
	event.DurationMs = time.Since(startTime).Milliseconds()
	event.EmittedAt = time.Now().UTC()

	p.workerPool.Enqueue(worker.Job{Event: event})
}

// failureAttrs builds the log attributes for a failed generation. Upstream
// rejections carry the status and, for rate limits and bad keys, a reason an
// operator can act on.
func failureAttrs(requestID string, err error) []any {
	attrs := []any{"request_id", requestID, "error", err}

	var httpErr *upstream.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode == 0 {
		return attrs
	}
	attrs = append(attrs, "upstream_status", httpErr.StatusCode)
	switch {
	case httpErr.IsRateLimit():
		attrs = append(attrs, "upstream_reason", "rate_limited")
	case httpErr.IsAuth():
		attrs = append(attrs, "upstream_reason", "auth_rejected")
	}
	return attrs
}

func stageOf(err error) string {
	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		return string(relayErr.Stage)
	}
	return ""
}
