package ws

import (
	"encoding/json"
	"sync"
)

// Event kinds pushed to run subscribers.
const (
	EventRunStatus = "run-status"
	EventRunLog    = "run-log"
	EventStats     = "stats"
	EventCiStatus  = "ci-status"
)

// Envelope is the wire frame every subscriber receives.
type Envelope struct {
	RunID string          `json:"runId"`
	Kind  string          `json:"kind"`
	Data  json.RawMessage `json:"data"`
}

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans live run updates out to stream subscribers, keyed by run ID.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

type message struct {
	runID   string
	payload []byte
}

type subscription struct {
	runID  string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
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
	h.register <- subscription{runID: runID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(runID string, client Subscriber) {
	h.unreg <- subscription{runID: runID, client: client}
}

// Broadcast sends a raw payload to all subscribers of a run.
func (h *Hub) Broadcast(runID string, payload []byte) {
	h.broadcast <- message{runID: runID, payload: payload}
}

// Publish marshals v into an Envelope of the given kind and broadcasts it.
// Marshal failures are dropped; live updates are best effort.
func (h *Hub) Publish(runID, kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	payload, err := json.Marshal(Envelope{RunID: runID, Kind: kind, Data: data})
	if err != nil {
		return
	}
	h.Broadcast(runID, payload)
}
