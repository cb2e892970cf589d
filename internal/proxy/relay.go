package proxy

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// hopByHopHeaders are connection-level headers that must not be copied from
// the upstream response to the client (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// relayResponse forwards an accepted upstream response to the client with
// status, headers, and body preserved. The payload is never interpreted:
// event streams are forwarded block-by-block with their boundaries intact,
// anything else is copied with per-chunk flushing so incrementally-produced
// bodies reach the client as they arrive. Once relaying starts the outcome
// is final; an error mid-relay means the connection is simply torn down,
// since partial output cannot be un-sent.
func relayResponse(ctx context.Context, w http.ResponseWriter, resp *http.Response) (int64, error) {
	copyResponseHeaders(w.Header(), resp.Header)

	streaming := isEventStream(resp)
	if streaming {
		// Defend whatever buffering sits between us and the client.
		if w.Header().Get("Cache-Control") == "" {
			w.Header().Set("Cache-Control", "no-cache")
		}
		w.Header().Set("X-Accel-Buffering", "no")
	}

	w.WriteHeader(resp.StatusCode)

	if streaming {
		return relayEvents(ctx, w, resp.Body)
	}
	return relayBody(ctx, w, resp.Body)
}

// relayEvents forwards a text/event-stream body one raw event block at a
// time, flushing after each so the client observes the same chunking the
// backend produced. Stops on client disconnect via ctx.
func relayEvents(ctx context.Context, w http.ResponseWriter, body io.Reader) (int64, error) {
	reader := NewEventReader(body)
	writer := NewEventWriter(w)

	var written int64
	for {
		// Check for client disconnect between events.
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		evt, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}

		if err := writer.WriteEvent(evt); err != nil {
			return written, err
		}
		written += int64(len(evt))
	}
}

// relayBody copies a non-SSE body to the client in chunks, flushing after
// each read so incremental output is not held back by write buffering.
func relayBody(ctx context.Context, w http.ResponseWriter, body io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}

// copyResponseHeaders copies upstream headers to the client, dropping
// hop-by-hop headers that describe the upstream connection rather than the
// payload.
func copyResponseHeaders(dst, src http.Header) {
	for key, vals := range src {
		if isHopByHop(key) {
			continue
		}
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// isEventStream reports whether the upstream response is a Server-Sent
// Events stream.
func isEventStream(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "text/event-stream")
}
