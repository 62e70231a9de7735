// Package memory holds an in-process progress.Publisher for tests. It
// retains every event, so it is never installed by default.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/game-progress/internal/progress"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// Message captures one publish call.
type Message struct {
	ID    string
	Topic string
	Event progress.Event
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, event progress.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Event: event})
	return id, nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// ForPlayer returns the recorded events for playerID in publish order.
func (p *Publisher) ForPlayer(playerID string) []progress.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []progress.Event
	for _, m := range p.messages {
		if m.Event.PlayerID == playerID {
			out = append(out, m.Event)
		}
	}
	return out
}
