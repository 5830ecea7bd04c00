package events

import (
	"context"
	"sync"
)

// Message is a published event captured by MemoryPublisher.
type Message struct {
	RoutingKey string
	Body       []byte
}

// MemoryPublisher keeps published events in memory. It backs local runs
// without a broker and tests.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemoryPublisher returns an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the message.
func (p *MemoryPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	copied := append([]byte(nil), body...)
	p.messages = append(p.messages, Message{RoutingKey: routingKey, Body: copied})
	return nil
}

// Messages returns a snapshot of everything published so far.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close marks the publisher closed.
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
