package sse

import (
	"sync"
)

// Event is one server-sent notification
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

// Hub fans notifications out to the stream listening on a session
type Hub struct {
	channels sync.Map // key: session id, value: chan Event
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Register(sessionID string, ch chan Event) {
	h.channels.Store(sessionID, ch)
}

// Unregister removes ch if it is still the registered listener
func (h *Hub) Unregister(sessionID string, ch chan Event) {
	h.channels.CompareAndDelete(sessionID, ch)
}

// Send never blocks; it reports false when nobody listens or the listener is behind
func (h *Hub) Send(sessionID string, ev Event) bool {
	if chVal, ok := h.channels.Load(sessionID); ok {
		if ch, ok := chVal.(chan Event); ok {
			select {
			case ch <- ev:
				return true
			default:
				return false
			}
		}
	}
	return false
}
