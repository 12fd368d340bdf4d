// Package stream frames answer events onto an HTTP response as
// Server-Sent-Events and manages each stream's lifecycle: keepalives, the
// inactivity timeout, and a single terminal transition.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrTerminated is returned by writes attempted after the stream reached a
// terminal state.
var ErrTerminated = errors.New("stream: already terminated")

// ErrNoFlusher indicates the response writer cannot stream.
var ErrNoFlusher = errors.New("stream: response writer does not support flushing")

// Writer frames events onto one HTTP response. Every event is a
// `data: <json>\n\n` frame; the terminal marker is `data: [DONE]\n\n`;
// keepalives are comment lines conforming parsers ignore. All methods are
// safe for concurrent use, and nothing is written after the terminal marker.
type Writer struct {
	mu         sync.Mutex
	w          http.ResponseWriter
	flusher    http.Flusher
	terminated bool
}

// NewWriter prepares w for event streaming and sends the stream headers.
// Buffering is disabled end to end so chunks reach the client as written.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNoFlusher
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent frames one JSON payload. It fails once the stream terminated.
func (sw *Writer) WriteEvent(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stream: encode event: %w", err)
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.terminated {
		return ErrTerminated
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("stream: write event: %w", err)
	}
	sw.flusher.Flush()
	return nil
}

// WriteKeepalive emits a comment-only line carrying a timestamp. After
// termination it is a no-op rather than an error, since the keepalive loop
// may race the terminal transition.
func (sw *Writer) WriteKeepalive(at time.Time) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.terminated {
		return nil
	}
	if _, err := fmt.Fprintf(sw.w, ": keepalive %d\n\n", at.UnixMilli()); err != nil {
		return fmt.Errorf("stream: write keepalive: %w", err)
	}
	sw.flusher.Flush()
	return nil
}

// WriteDone emits the terminal marker and seals the writer. Only the first
// call writes; later calls return ErrTerminated.
func (sw *Writer) WriteDone() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.terminated {
		return ErrTerminated
	}
	sw.terminated = true
	if _, err := fmt.Fprint(sw.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("stream: write done: %w", err)
	}
	sw.flusher.Flush()
	return nil
}

// Seal marks the writer terminated without emitting the terminal marker.
// Used on abort, where the connection is already gone.
func (sw *Writer) Seal() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.terminated = true
}
