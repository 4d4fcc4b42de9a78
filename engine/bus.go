package engine

import "sync"

// Bus is a minimal in-process topic bus. Modules publish change notifications
// to it instead of reaching into each other's state, and subscribers get a
// channel plus an unsubscribe func tied to their own lifecycle.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan any]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: map[string]map[chan any]struct{}{}}
}

// Publish delivers payload to every subscriber of the topic.
// Slow subscribers have the message dropped rather than blocking the publisher.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			// Drop for slow subscriber
		}
	}
}

// Subscribe returns a channel of payloads for the topic and a func that
// removes the subscription. The caller must call it when done to avoid leaks.
func (b *Bus) Subscribe(topic string) (<-chan any, func()) {
	ch := make(chan any, 16)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan any]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}
