package sse

import "io"

// WriteFrame encodes f as one SSE event: a single "data:" line followed by a
// blank line. Frame data never contains a newline since it was read from a
// single line.
func WriteFrame(w io.Writer, f Frame) error {
	data := f.Data
	if f.Done {
		data = DoneSentinel
	}

	_, err := io.WriteString(w, "data: "+data+"\n\n")
	return err
}
