package sse

import (
	"errors"
	"io"
)

const readBufferSize = 32 * 1024

// Reader pulls Frames out of a source io.Reader, one at a time.
//
// ┌──────────────────┐
// │ source io.Reader │  upstream body, arbitrary chunk sizes
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │     Decoder      │  holds only the unconsumed tail
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐
// │  Reader.Next()   │──▶ Frame
// └──────────────────┘
//
// The same Reader serves the relay's HTTP handler, the relay client and unit
// tests feeding synthetic chunks.
type Reader struct {
	src io.Reader
	buf []byte
	dec Decoder

	pending   []Frame
	decodeErr error
	readErr   error
	finished  bool
}

// NewReader returns a Reader that decodes frames from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src: src,
		buf: make([]byte, readBufferSize),
	}
}

// Next returns the next frame in arrival order. It blocks until a complete
// line is available. Next returns nil, nil when the source is exhausted or
// after the Done frame has been returned: nothing past the sentinel is read.
//
// A *DecodeError (possibly joined with others) is recoverable and callers may
// keep calling Next. Any other error comes from the source and is terminal.
func (r *Reader) Next() (*Frame, error) {
	for {
		if len(r.pending) > 0 {
			f := r.pending[0]
			r.pending = r.pending[1:]

			if f.Done {
				r.finished = true
				r.pending = nil
				r.decodeErr = nil
			}

			return &f, nil
		}

		if r.decodeErr != nil {
			err := r.decodeErr
			r.decodeErr = nil
			return nil, err
		}

		if r.finished {
			return nil, nil
		}

		if r.readErr != nil {
			if errors.Is(r.readErr, io.EOF) {
				r.finished = true
				return nil, r.dec.Flush()
			}
			return nil, r.readErr
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending, r.decodeErr = r.dec.Feed(r.buf[:n])
		}
		if err != nil {
			r.readErr = err
		}
	}
}
