package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

// SSEWriter writes Server-Sent Events for one run stream. Every event carries
// an increasing id so clients can tell where a dropped stream stopped.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// NewSSEWriter commits the stream headers.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends one named event with a JSON payload.
func (s *SSEWriter) WriteEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteComment sends a keep-alive comment line.
func (s *SSEWriter) WriteComment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete sends the closing event with the run's resting status.
func (s *SSEWriter) WriteComplete(runID string, status types.RunStatus) {
	s.WriteEvent("complete", map[string]any{ //nolint:errcheck
		"runId":  runID,
		"status": status,
	})
}
