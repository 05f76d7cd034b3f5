package ws

import (
	"encoding/json"
	"sync"
	"time"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Event is the envelope broadcast to run subscribers.
type Event struct {
	Type  string    `json:"type"`
	RunID string    `json:"run_id"`
	Stage string    `json:"stage,omitempty"`
	Line  string    `json:"line,omitempty"`
	Data  any       `json:"data,omitempty"`
	At    time.Time `json:"at"`
}

// Hub manages stream subscriptions by run ID.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	runID   string
	payload []byte
}

type subscription struct {
	runID  string
	client Subscriber
}

// NewHub creates an initialized Hub and starts its event loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = make(map[string]map[Subscriber]struct{})
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.runID]; !ok {
				h.clients[sub.runID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.runID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.runID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.runID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.runID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.runID)
				}
			}
		}
	}
}

// Register adds a client to a run stream.
func (h *Hub) Register(runID string, client Subscriber) {
	select {
	case h.register <- subscription{runID: runID, client: client}:
	case <-h.done:
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(runID string, client Subscriber) {
	select {
	case h.unreg <- subscription{runID: runID, client: client}:
	case <-h.done:
	}
}

// Broadcast sends payload to all subscribers of a run.
func (h *Hub) Broadcast(runID string, payload []byte) {
	select {
	case h.broadcast <- message{runID: runID, payload: payload}:
	case <-h.done:
	}
}

// Publish marshals an event and broadcasts it to the event's run.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.Broadcast(ev.RunID, payload)
}

// Shutdown stops the hub loop and closes all subscribers.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
}
