package events

import (
	"sync"
)

// Envelope pairs a payload with the topic it was published under. It is what
// firehose subscribers receive, since they have no single topic to key on.
type Envelope struct {
	Topic   Event
	Payload any
}

// Bus is a lightweight pub/sub broker using channels. Publish never blocks:
// a subscriber that falls behind loses events rather than stalling the
// engine loop. Within one subscription, events arrive in publish order.
type Bus struct {
	mu       sync.RWMutex
	subs     map[Event][]chan any
	firehose []chan Envelope
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for one topic and returns the channel and an
// unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// SubscribeAll registers a firehose listener that receives every published
// event wrapped in an Envelope. Used by the websocket event feed.
func (b *Bus) SubscribeAll(buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	b.firehose = append(b.firehose, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.firehose {
			if c == ch {
				close(c)
				b.firehose = append(b.firehose[:i], b.firehose[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fans the payload out to topic subscribers and the firehose.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
	for _, ch := range b.firehose {
		select {
		case ch <- Envelope{Topic: e, Payload: payload}:
		default:
		}
	}
}
