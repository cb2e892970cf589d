package proxy

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// EventReader splits a Server-Sent Events stream into raw event blocks
// without interpreting field contents. The relay must not rewrite what the
// backend produced, so events are returned byte-for-byte as read: data
// lines, event/id/retry fields, and comment lines (used by providers as
// keep-alives) all pass through. An event block is everything up to and
// including its terminating blank line.
type EventReader struct {
	scanner *bufio.Scanner
}

// NewEventReader creates an EventReader over the given stream. The scanner
// buffer is sized at 64KB initial / 10MB max to handle large SSE lines
// containing tool call outputs, code blocks, or base64-encoded content.
func NewEventReader(r io.Reader) *EventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	return &EventReader{
		scanner: scanner,
	}
}

// Next reads and returns the raw bytes of the next event block, including
// its blank-line terminator. Consecutive blank lines between events are
// collapsed. Returns io.EOF when the stream ends; if the stream ends
// mid-event the partial block is returned without a terminator so the
// client sees exactly what the backend sent.
func (er *EventReader) Next() ([]byte, error) {
	var buf bytes.Buffer

	for er.scanner.Scan() {
		line := er.scanner.Bytes()

		// A blank line terminates the current event.
		if len(line) == 0 {
			if buf.Len() == 0 {
				continue
			}
			buf.WriteByte('\n')
			return buf.Bytes(), nil
		}

		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := er.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading SSE stream: %w", err)
	}

	if buf.Len() > 0 {
		return buf.Bytes(), nil
	}

	return nil, io.EOF
}

// EventWriter forwards raw event blocks to an http.ResponseWriter, flushing
// after each block so events reach the client as they are produced rather
// than when a buffer fills.
type EventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEventWriter creates an EventWriter. It checks whether the
// http.ResponseWriter supports the http.Flusher interface for real-time
// event delivery.
func NewEventWriter(w http.ResponseWriter) *EventWriter {
	flusher, _ := w.(http.Flusher)
	return &EventWriter{
		w:       w,
		flusher: flusher,
	}
}

// WriteEvent writes one raw event block and flushes.
func (ew *EventWriter) WriteEvent(raw []byte) error {
	if _, err := ew.w.Write(raw); err != nil {
		return fmt.Errorf("writing SSE event: %w", err)
	}
	ew.Flush()
	return nil
}

// Flush flushes the underlying ResponseWriter if it supports http.Flusher.
func (ew *EventWriter) Flush() {
	if ew.flusher != nil {
		ew.flusher.Flush()
	}
}
