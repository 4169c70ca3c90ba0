package relay

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/papercomputeco/narrator/pkg/llm"
	"github.com/papercomputeco/narrator/pkg/llm/provider"
	"github.com/papercomputeco/narrator/pkg/sse"
)

// Stream is a pull-based iterator over the delta events of one streamed
// reply. It owns the upstream body and its decode buffer until Close.
//
// Malformed frames are skipped: they are logged, recorded (see Skipped) and
// never returned. Upstream failures and in-band error events end the stream.
type Stream struct {
	body   io.ReadCloser
	frames *sse.Reader
	parser provider.Provider
	logger *slog.Logger

	skipped []*Error
	err     error
	sawDone bool
	ended   bool

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an SSE body. The relay uses it on upstream bodies and the
// relay client on the relay's own output.
func NewStream(body io.ReadCloser, parser provider.Provider, logger *slog.Logger) *Stream {
	return &Stream{
		body:   body,
		frames: sse.NewReader(body),
		parser: parser,
		logger: logger,
	}
}

// Next returns the next delta event in arrival order. It returns nil, nil once
// the done sentinel was seen or the body ended. A returned error is terminal
// and is a *Error with StageUpstream; calling Next again returns it again.
func (s *Stream) Next() (*llm.StreamChunk, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		if s.ended {
			return nil, nil
		}

		frame, err := s.frames.Next()
		if err != nil {
			var decodeErr *sse.DecodeError
			if errors.As(err, &decodeErr) {
				s.skip(StageDecode, err)
				continue
			}
			s.err = &Error{Stage: StageUpstream, Err: err}
			return nil, s.err
		}

		if frame == nil {
			s.ended = true
			return nil, nil
		}

		if frame.Done {
			s.sawDone = true
			s.ended = true
			return nil, nil
		}

		// Bare "data:" lines carry nothing.
		if frame.Data == "" {
			continue
		}

		chunk, err := s.parser.ParseStreamChunk([]byte(frame.Data))
		if err != nil {
			var streamErr *llm.StreamError
			if errors.As(err, &streamErr) {
				s.err = &Error{Stage: StageUpstream, Err: err}
				return nil, s.err
			}
			s.skip(StageParse, err)
			continue
		}

		return chunk, nil
	}
}

func (s *Stream) skip(stage Stage, err error) {
	s.logger.Warn("skipping malformed frame",
		"stage", string(stage),
		"error", err,
	)
	s.skipped = append(s.skipped, &Error{Stage: stage, Err: err})
}

// Skipped returns the per-frame errors recorded so far.
func (s *Stream) Skipped() []*Error {
	return s.skipped
}

// SawDone reports whether the upstream sent the done sentinel.
func (s *Stream) SawDone() bool {
	return s.sawDone
}

// Close releases the upstream body, cancelling the request if it is still in
// flight. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
