// Package refresh carries the fire-and-forget "re-fetch your data"
// signal from the countdown controller to collaborating list views.
package refresh

import "sync"

// Broadcaster fans a payload-free signal out to every subscriber.
// Delivery is non-blocking: a subscriber that is not draining its
// channel misses signals instead of stalling the sender.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]chan struct{}{}}
}

// Subscribe registers a listener. The returned cancel func must be
// called to release it.
func (b *Broadcaster) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Broadcast signals every subscriber once.
func (b *Broadcaster) Broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
