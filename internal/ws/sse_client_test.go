package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

type countingFlusher struct {
	flushes int
}

func (f *countingFlusher) Flush() { f.flushes++ }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSSESendNamesFrameAfterEventType(t *testing.T) {
	var buf bytes.Buffer
	flusher := &countingFlusher{}
	c := NewSSEClient(&buf, flusher, nil)

	payload, err := json.Marshal(Event{Type: "log", RunID: "run-1", Line: "navigating"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Send(payload); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "event: log\n") {
		t.Fatalf("frame = %q", out)
	}
	if !strings.Contains(out, "data: "+string(payload)+"\n\n") {
		t.Fatalf("frame = %q", out)
	}
	if flusher.flushes != 1 {
		t.Fatalf("flushes = %d", flusher.flushes)
	}
}

func TestSSESendUnnamedForOpaquePayload(t *testing.T) {
	var buf bytes.Buffer
	c := NewSSEClient(&buf, &countingFlusher{}, nil)

	if err := c.Send([]byte("plain text")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "event:") {
		t.Fatalf("unexpected frame name: %q", out)
	}
	if out != "data: plain text\n\n" {
		t.Fatalf("frame = %q", out)
	}
}

func TestSSEHeartbeatIsCommentFrame(t *testing.T) {
	var buf bytes.Buffer
	c := NewSSEClient(&buf, &countingFlusher{}, nil)

	if err := c.Heartbeat(); err != nil {
		t.Fatal(err)
	}
	if buf.String() != ": ping\n\n" {
		t.Fatalf("frame = %q", buf.String())
	}
}

func TestSSEClosedStream(t *testing.T) {
	var buf bytes.Buffer
	c := NewSSEClient(&buf, &countingFlusher{}, nil)
	c.Close()

	if err := c.Send([]byte("late")); !errors.Is(err, io.EOF) {
		t.Fatalf("send err = %v, want EOF", err)
	}
	if err := c.Heartbeat(); !errors.Is(err, io.EOF) {
		t.Fatalf("heartbeat err = %v, want EOF", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %q after close", buf.String())
	}
}

func TestSSEWriteFailureClosesStream(t *testing.T) {
	c := NewSSEClient(failingWriter{}, &countingFlusher{}, nil)

	if err := c.Send([]byte("x")); err == nil {
		t.Fatal("expected write error")
	}
	if err := c.Send([]byte("y")); !errors.Is(err, io.EOF) {
		t.Fatalf("err after failure = %v, want EOF", err)
	}
}
