package weather

import (
	"context"
	"sync"
)

// broadcaster fans outcomes out to subscribers and replays the latest one to
// each new subscriber. publish never blocks: a subscriber whose buffer is full
// loses its oldest pending outcome.
type broadcaster struct {
	mu      sync.Mutex
	current Outcome
	subs    map[uint64]chan Outcome
	nextID  uint64
	buffer  int
	closed  bool
	done    chan struct{}
}

func newBroadcaster(initial Outcome, buffer int) *broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &broadcaster{
		current: initial,
		subs:    make(map[uint64]chan Outcome),
		buffer:  buffer,
		done:    make(chan struct{}),
	}
}

func (b *broadcaster) publish(o Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.current = o
	for _, ch := range b.subs {
		offer(ch, o)
	}
}

func offer(ch chan Outcome, o Outcome) {
	for {
		select {
		case ch <- o:
			return
		default:
		}
		// Only the publisher sends, under the lock, so dropping one makes room.
		select {
		case <-ch:
		default:
		}
	}
}

func (b *broadcaster) latest() Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// subscribe returns a channel primed with the latest outcome. It is closed when
// ctx is done or the broadcaster is closed.
func (b *broadcaster) subscribe(ctx context.Context) <-chan Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Outcome, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}

	ch <- b.current
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(id)
		case <-b.done:
		}
	}()

	return ch
}

func (b *broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

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
	close(b.done)
}
