// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"sync"
	"time"
)

// subscriberBuffer bounds each progress channel. A slow subscriber loses
// the oldest events, never the newest, and never blocks the session loop.
const subscriberBuffer = 64

// broadcaster fans progress events out to any number of subscribers.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ProgressEvent
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan ProgressEvent)}
}

// subscribe registers a new listener. The returned cancel function is
// idempotent and must be called when the listener goes away.
func (b *broadcaster) subscribe() (<-chan ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// publish delivers an event to every subscriber, dropping the oldest
// buffered event when a channel is full.
func (b *broadcaster) publish(ev ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		for {
			select {
			case ch <- ev:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// close ends the stream; every subscriber channel is closed after the
// final event has been delivered.
func (b *broadcaster) close() {
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
