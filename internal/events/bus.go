package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// subscriberBuffer bounds how many unconsumed events a single subscriber
// channel can hold before Publish starts dropping for it; a slow or absent
// subscriber must never block the publisher.
const subscriberBuffer = 64

// Mirror forwards a published event to an external sink (Kafka, ClickHouse).
// Mirror failures are logged and dropped, same as every other provenance-
// adjacent side effect in this system: the in-process fan-out is the
// source of truth, mirrors are best-effort.
type Mirror interface {
	Mirror(e Event)
}

// Bus is the in-process publish/subscribe hub. Subscribers register for a
// specific Type; Publish fans an event out to every channel registered for
// its type, non-blocking.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Type][]chan Event
	mirrors []Mirror
	log     zerolog.Logger
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[Type][]chan Event),
		log:  log.With().Str("component", "events").Logger(),
	}
}

// AddMirror registers an external sink that receives every published
// event regardless of type, in addition to in-process subscribers.
func (b *Bus) AddMirror(m Mirror) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirrors = append(b.mirrors, m)
}

// Subscribe returns a channel that receives every future event of the
// given type. The channel is never closed by the bus; callers stop
// reading when they're done.
func (b *Bus) Subscribe(t Type) <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[t] = append(b.subs[t], ch)
	b.mu.Unlock()
	return ch
}

// Publish fans e out to every subscriber of e.EventType and every
// registered mirror. A subscriber whose buffer is full has the event
// dropped for it rather than blocking the publisher.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.EventType]
	mirrors := b.mirrors
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			b.log.Warn().Str("event_type", string(e.EventType)).Msg("subscriber channel full, dropping event")
		}
	}
	for _, m := range mirrors {
		m.Mirror(e)
	}
}
