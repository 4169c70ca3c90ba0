package sse

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxLineSize is the longest line the decoder buffers. Longer lines are
// dropped up to their terminating newline.
const MaxLineSize = 1024 * 1024

var dataPrefix = []byte("data:")

// DecodeError reports malformed framing that the decoder recovered from by
// discarding bytes. Decoding continues after a DecodeError.
type DecodeError struct {
	Reason    string
	Discarded int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sse: %s (%d bytes discarded)", e.Reason, e.Discarded)
}

// State is the unconsumed tail carried between two reads of one stream.
// The zero value is the state of a fresh stream.
type State struct {
	tail []byte

	// skipping is set while an oversized line is dropped up to its newline.
	skipping bool
}

// Pending returns the number of buffered bytes that do not yet form a
// complete line.
func (s State) Pending() int {
	return len(s.tail)
}

// Decode is the pure step function of the decoder: given the state left by
// the previous chunk and the next chunk of bytes, it returns every frame
// completed by the chunk, in order, together with the new state.
//
// A trailing partial line is kept in the returned state and never emitted.
// The returned error, if any, wraps one or more *DecodeError values; frames
// are still valid when it is non-nil.
func Decode(st State, chunk []byte) ([]Frame, State, error) {
	var (
		frames []Frame
		errs   []error
	)

	data := chunk
	if len(st.tail) > 0 {
		data = append(st.tail[:len(st.tail):len(st.tail)], chunk...)
	}

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}

		line := data[:i]
		data = data[i+1:]

		if st.skipping {
			st.skipping = false
			continue
		}

		frame, ok, err := parseLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			frames = append(frames, frame)
		}
	}

	switch {
	case st.skipping:
		data = nil
	case len(data) > MaxLineSize:
		errs = append(errs, &DecodeError{Reason: "line exceeds maximum size", Discarded: len(data)})
		st.skipping = true
		data = nil
	}

	st.tail = bytes.Clone(data)

	return frames, st, errors.Join(errs...)
}

// parseLine turns one complete line into a frame. The boolean is false for
// lines that are not "data:" fields.
func parseLine(line []byte) (Frame, bool, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	if len(line) > MaxLineSize {
		return Frame{}, false, &DecodeError{Reason: "line exceeds maximum size", Discarded: len(line)}
	}

	payload, ok := bytes.CutPrefix(line, dataPrefix)
	if !ok {
		return Frame{}, false, nil
	}

	// Strip a single leading space after the colon, per spec.
	payload = bytes.TrimPrefix(payload, []byte(" "))

	if !utf8.Valid(payload) {
		return Frame{}, false, &DecodeError{Reason: "invalid UTF-8 in data line", Discarded: len(line)}
	}

	data := string(payload)
	return Frame{Data: data, Done: data == DoneSentinel}, true, nil
}

// Decoder is an incremental frame decoder for a single stream. It is not safe
// for concurrent use and cannot be restarted once flushed.
type Decoder struct {
	state State
}

// Feed decodes the next chunk of the stream. See Decode.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	frames, st, err := Decode(d.state, chunk)
	d.state = st
	return frames, err
}

// Flush signals the end of the stream. Every complete line has already been
// emitted by Feed; an unterminated trailing line is discarded and reported as
// a *DecodeError.
func (d *Decoder) Flush() error {
	st := d.state
	d.state = State{}

	if len(st.tail) == 0 && !st.skipping {
		return nil
	}

	return &DecodeError{Reason: "unterminated line at end of stream", Discarded: len(st.tail)}
}
