// Package memory contains an in-memory queue publisher for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Publisher records published payloads instead of delivering them.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	err      error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Destination string
	Payload     any
	// NotBefore is set for delayed publishes.
	NotBefore time.Time
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err. Pass nil to recover.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the message and returns a pseudo message id.
func (p *Publisher) Publish(ctx context.Context, destination string, payload any) (string, error) {
	return p.PublishAt(ctx, destination, payload, time.Time{})
}

// PublishAt records a delayed message.
func (p *Publisher) PublishAt(ctx context.Context, destination string, payload any, notBefore time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, PublishedMessage{Destination: destination, Payload: payload, NotBefore: notBefore})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
