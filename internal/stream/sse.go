// Package stream writes server-sent events to an HTTP response.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Event names shared by the UI and the JSON API.
const (
	EventUser  = "user"
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

type Writer struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewWriter sets the event-stream headers and sends the status line.
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// Event writes one event with v encoded as JSON and flushes it to the client.
func (s *Writer) Event(name string, v any) error {
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("invalid event name %q", name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Delta sends one response fragment.
func (s *Writer) Delta(content string) error {
	return s.Event(EventDelta, map[string]string{"content": content})
}

// Error reports a failed turn. msg is shown to the user as is.
func (s *Writer) Error(msg string) error {
	return s.Event(EventError, map[string]string{"error": msg})
}
