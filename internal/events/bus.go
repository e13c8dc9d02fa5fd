// Package events fans tracker notifications out to subscribers.
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"slippi-tracker/internal/domain"
)

const subscriberBuffer = 256

// Bus delivers every emitted event to all current subscribers. A subscriber
// that falls behind loses events instead of blocking the emitter.
type Bus struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   map[int]chan domain.Event{},
	}
}

func (b *Bus) Emit(name domain.EventName, data any) {
	ev := domain.Event{Name: name, Data: data}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().Int("subscriber", id).Str("event", string(name)).Msg("subscriber is full, dropping event")
		}
	}
	b.logger.Debug().Str("event", string(name)).Msg("event emitted")
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
