package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
	sendErr  error
	closed   bool
}

func (f *fakeSubscriber) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	f.payloads = append(f.payloads, cp)
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSubscriber) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBroadcastReachesRunSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	sub := &fakeSubscriber{}
	other := &fakeSubscriber{}
	h.Register("run-1", sub)
	h.Register("run-2", other)

	h.Broadcast("run-1", []byte("hello"))

	waitFor(t, func() bool { return sub.received() == 1 })
	if string(sub.last()) != "hello" {
		t.Fatalf("payload = %q", sub.last())
	}
	if other.received() != 0 {
		t.Fatal("subscriber of another run received the message")
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	sub := &fakeSubscriber{}
	h.Register("run-1", sub)
	h.Broadcast("run-1", []byte("one"))
	waitFor(t, func() bool { return sub.received() == 1 })

	h.Unregister("run-1", sub)
	h.Broadcast("run-1", []byte("two"))

	// second broadcast has been processed once a later one round-trips
	probe := &fakeSubscriber{}
	h.Register("run-1", probe)
	h.Broadcast("run-1", []byte("three"))
	waitFor(t, func() bool { return probe.received() == 1 })

	if sub.received() != 1 {
		t.Fatalf("unregistered subscriber received %d payloads", sub.received())
	}
}

func TestFailingSubscriberIsDropped(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	bad := &fakeSubscriber{sendErr: errors.New("gone")}
	good := &fakeSubscriber{}
	h.Register("run-1", bad)
	h.Register("run-1", good)

	h.Broadcast("run-1", []byte("first"))
	waitFor(t, func() bool { return good.received() == 1 && bad.isClosed() })

	h.Broadcast("run-1", []byte("second"))
	waitFor(t, func() bool { return good.received() == 2 })
	if bad.received() != 0 {
		t.Fatalf("failed subscriber buffered %d payloads", bad.received())
	}
}

func TestPublishMarshalsEvent(t *testing.T) {
	h := NewHub()
	defer h.Shutdown()

	sub := &fakeSubscriber{}
	h.Register("run-1", sub)

	h.Publish(Event{Type: "status", RunID: "run-1", Data: map[string]string{"status": "running"}})
	waitFor(t, func() bool { return sub.received() == 1 })

	var ev Event
	if err := json.Unmarshal(sub.last(), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "status" || ev.RunID != "run-1" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.At.IsZero() {
		t.Fatal("timestamp not stamped on publish")
	}
}

func TestShutdownClosesSubscribers(t *testing.T) {
	h := NewHub()
	sub := &fakeSubscriber{}
	h.Register("run-1", sub)

	h.Shutdown()
	waitFor(t, sub.isClosed)

	// calls after shutdown must not block
	done := make(chan struct{})
	go func() {
		h.Register("run-1", &fakeSubscriber{})
		h.Broadcast("run-1", []byte("late"))
		h.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub operations blocked after shutdown")
	}
}
