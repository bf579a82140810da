// Package memory keeps published roast events in process, for tests and
// single-node development.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("publisher closed")

// Message is one recorded publish. Data holds the JSON encoding of the payload
// exactly as a broker-backed publisher would send it.
type Message struct {
	ID      string
	Topic   string
	Payload any
	Data    []byte
}

// Publisher records events and optionally fans them out to subscribers.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
	subs     map[string][]chan Message
	closed   bool
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{subs: make(map[string][]chan Message)}
}

// Publish encodes payload, records it and notifies topic subscribers without
// blocking on slow readers.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	msg := Message{
		ID:      fmt.Sprintf("memory-%d", len(p.messages)+1),
		Topic:   topic,
		Payload: payload,
		Data:    data,
	}
	p.messages = append(p.messages, msg)
	for _, ch := range p.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return msg.ID, nil
}

// Subscribe returns a buffered channel receiving future messages on topic.
// The channel is closed by Close.
func (p *Publisher) Subscribe(topic string, buffer int) <-chan Message {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch
	}
	p.subs[topic] = append(p.subs[topic], ch)
	return ch
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close stops the publisher and closes all subscriber channels.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for topic, chans := range p.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(p.subs, topic)
	}
	return nil
}
