package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// SSEClient writes run events to an open event-stream response. Payloads
// are the hub's marshalled Event envelopes; each frame is named after the
// event type so the dashboard subscribes per type (log, stderr, status).
type SSEClient struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	closed  bool
}

// NewSSEClient builds an SSE client over the response writer.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger) *SSEClient {
	return &SSEClient{writer: writer, flusher: flusher, log: logger}
}

// Send emits one event frame. The frame name is taken from the payload's
// type field; payloads that are not Event envelopes go out unnamed.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(payload, &head)
	if head.Type != "" {
		if _, err := fmt.Fprintf(c.writer, "event: %s\n", head.Type); err != nil {
			return c.fail("sse event frame failed", err)
		}
	}
	if _, err := fmt.Fprintf(c.writer, "data: %s\n\n", payload); err != nil {
		return c.fail("sse send failed", err)
	}
	c.flusher.Flush()
	return nil
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if _, err := fmt.Fprint(c.writer, ": ping\n\n"); err != nil {
		return c.fail("sse heartbeat failed", err)
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEClient) fail(msg string, err error) error {
	c.closed = true
	if c.log != nil {
		c.log.Warn(msg, "error", err)
	}
	return err
}

// Close marks the stream as closed.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
