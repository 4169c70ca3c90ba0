package relay

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/sse"
)

// Summary describes what a stream delivered.
type Summary struct {
	// Text is the concatenation of every fragment, in order.
	Text string

	// Fragments counts the delta events that carried content.
	Fragments int

	Model        string
	FinishReason string
	Usage        *llm.Usage

	// Skipped counts the malformed frames that were dropped.
	Skipped int
}

type accumulator struct {
	text      strings.Builder
	fragments int
	model     string
	finish    string
	usage     *llm.Usage
}

func (a *accumulator) add(chunk *llm.StreamChunk) {
	if chunk.Content != "" {
		a.text.WriteString(chunk.Content)
		a.fragments++
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.FinishReason != nil {
		a.finish = *chunk.FinishReason
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
}

func (a *accumulator) summary(s *Stream) *Summary {
	return &Summary{
		Text:         a.text.String(),
		Fragments:    a.fragments,
		Model:        a.model,
		FinishReason: a.finish,
		Usage:        a.usage,
		Skipped:      len(s.Skipped()),
	}
}

// Emit re-emits every delta event of s to w as an SSE frame carrying the
// event's original payload, in arrival order, flushing after each frame when
// w supports it. The done sentinel is forwarded only if the upstream sent it.
//
// A failed write returns ErrDownstreamClosed; the caller should then Close s
// to release the upstream. The returned Summary is never nil and covers what
// was read before any error.
func Emit(s *Stream, w io.Writer) (*Summary, error) {
	var acc accumulator

	for {
		chunk, err := s.Next()
		if err != nil {
			return acc.summary(s), err
		}
		if chunk == nil {
			break
		}

		acc.add(chunk)

		if err := sse.WriteFrame(w, sse.Frame{Data: string(chunk.Raw)}); err != nil {
			return acc.summary(s), fmt.Errorf("%w: %w", ErrDownstreamClosed, err)
		}
		if err := flush(w); err != nil {
			return acc.summary(s), fmt.Errorf("%w: %w", ErrDownstreamClosed, err)
		}
	}

	if s.SawDone() {
		if err := sse.WriteFrame(w, sse.Frame{Done: true}); err != nil {
			return acc.summary(s), fmt.Errorf("%w: %w", ErrDownstreamClosed, err)
		}
		if err := flush(w); err != nil {
			return acc.summary(s), fmt.Errorf("%w: %w", ErrDownstreamClosed, err)
		}
	}

	return acc.summary(s), nil
}

func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case http.Flusher:
		f.Flush()
	}
	return nil
}
