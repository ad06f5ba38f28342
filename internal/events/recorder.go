package events

import (
	"context"
	"sync"
)

// Message is one event captured by Recorder.
type Message struct {
	RoutingKey string
	Body       any
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Publish(_ context.Context, routingKey string, body any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{RoutingKey: routingKey, Body: body})
	return nil
}

func (r *Recorder) Close() {}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Keys returns the routing keys published so far, in order.
func (r *Recorder) Keys() []string {
	var keys []string
	for _, m := range r.Messages() {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}
