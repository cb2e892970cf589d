package proxy

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

// readAllEvents drains the reader and returns each raw block as a string.
func readAllEvents(t *testing.T, er *EventReader) []string {
	t.Helper()
	var events []string
	for {
		raw, err := er.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		events = append(events, string(raw))
	}
}

func TestEventReader_SplitsEventsOnBlankLine(t *testing.T) {
	stream := "data: {\"id\":\"chunk-1\"}\n\ndata: {\"id\":\"chunk-2\"}\n\n"
	er := NewEventReader(strings.NewReader(stream))

	events := readAllEvents(t, er)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %q", len(events), events)
	}
	if events[0] != "data: {\"id\":\"chunk-1\"}\n\n" {
		t.Errorf("event 0 = %q; want terminated data line", events[0])
	}
	if events[1] != "data: {\"id\":\"chunk-2\"}\n\n" {
		t.Errorf("event 1 = %q; want terminated data line", events[1])
	}
}

func TestEventReader_KeepsMultiLineEventTogether(t *testing.T) {
	stream := "event: message\nid: 7\ndata: part one\ndata: part two\n\n"
	er := NewEventReader(strings.NewReader(stream))

	events := readAllEvents(t, er)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %q", len(events), events)
	}
	if events[0] != stream {
		t.Errorf("event = %q; want all fields in one block", events[0])
	}
}

func TestEventReader_ForwardsCommentKeepAlives(t *testing.T) {
	// Providers send comment lines as keep-alives; they must reach the
	// client untouched.
	stream := ": ping\n\ndata: {\"x\":1}\n\n"
	er := NewEventReader(strings.NewReader(stream))

	events := readAllEvents(t, er)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %q", len(events), events)
	}
	if events[0] != ": ping\n\n" {
		t.Errorf("event 0 = %q; want comment block preserved", events[0])
	}
}

func TestEventReader_ForwardsDoneMarker(t *testing.T) {
	stream := "data: {\"choices\":[]}\n\ndata: [DONE]\n\n"
	er := NewEventReader(strings.NewReader(stream))

	events := readAllEvents(t, er)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %q", len(events), events)
	}
	if events[1] != "data: [DONE]\n\n" {
		t.Errorf("final event = %q; want the [DONE] marker verbatim", events[1])
	}
}

func TestEventReader_CollapsesBlankRuns(t *testing.T) {
	stream := "\n\ndata: a\n\n\n\ndata: b\n\n\n"
	er := NewEventReader(strings.NewReader(stream))

	events := readAllEvents(t, er)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %q", len(events), events)
	}
	if events[0] != "data: a\n\n" || events[1] != "data: b\n\n" {
		t.Errorf("events = %q; want blank runs collapsed to one terminator each", events)
	}
}

func TestEventReader_ReturnsPartialEventAtEOF(t *testing.T) {
	// Stream cut off mid-event: the partial block comes back without a
	// terminator so the client sees exactly what the backend sent.
	stream := "data: complete\n\ndata: trunc"
	er := NewEventReader(strings.NewReader(stream))

	first, err := er.Next()
	if err != nil {
		t.Fatalf("first Next() error: %v", err)
	}
	if string(first) != "data: complete\n\n" {
		t.Errorf("first event = %q", first)
	}

	partial, err := er.Next()
	if err != nil {
		t.Fatalf("partial Next() error: %v", err)
	}
	if string(partial) != "data: trunc\n" {
		t.Errorf("partial event = %q; want unterminated tail", partial)
	}

	if _, err := er.Next(); err != io.EOF {
		t.Fatalf("after tail: got %v, want io.EOF", err)
	}
}

func TestEventReader_EmptyStream(t *testing.T) {
	er := NewEventReader(strings.NewReader(""))
	if _, err := er.Next(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestEventWriter_WritesRawBlockAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	ew := NewEventWriter(rec)

	if err := ew.WriteEvent([]byte("data: hello\n\n")); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}
	if err := ew.WriteEvent([]byte(": ping\n\n")); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}

	if got := rec.Body.String(); got != "data: hello\n\n: ping\n\n" {
		t.Errorf("body = %q; want raw blocks concatenated", got)
	}
	if !rec.Flushed {
		t.Error("expected response writer to be flushed after events")
	}
}
