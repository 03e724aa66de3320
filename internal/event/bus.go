package event

import "sync"

// Bus fans events out to subscribers. Publish never blocks: a bounded
// subscriber whose buffer is full loses the event and the loss is
// counted, so a stalled consumer cannot delay acquisition. Consumers
// that must see every event subscribe unbounded and queue in memory
// instead.
type Bus struct {
	mu      sync.Mutex
	subs    []*subscription
	closed  bool
	dropped uint64
}

type subscription struct {
	ch chan Event

	// Unbounded subscribers queue in pending instead of dropping;
	// notify wakes their drain goroutine.
	unbounded bool
	pending   []Event
	notify    chan struct{}
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a consumer with the given channel buffer size.
// Events published while the buffer is full are dropped and counted.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{ch: make(chan Event, buffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)

	return sub.ch
}

// SubscribeUnbounded registers a consumer that never loses events.
// Events queue in memory while the consumer lags; after Close the
// queue is still delivered in full before the channel closes.
func (b *Bus) SubscribeUnbounded() <-chan Event {
	sub := &subscription{
		ch:        make(chan Event),
		unbounded: true,
		notify:    make(chan struct{}, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go b.drain(sub)

	return sub.ch
}

// drain forwards an unbounded subscriber's queue to its channel and
// closes the channel once the bus is closed and the queue is empty.
func (b *Bus) drain(sub *subscription) {
	defer close(sub.ch)

	for {
		b.mu.Lock()
		batch := sub.pending
		sub.pending = nil
		closed := b.closed
		b.mu.Unlock()

		for _, ev := range batch {
			sub.ch <- ev
		}

		if len(batch) == 0 {
			if closed {
				return
			}
			<-sub.notify
		}
	}
}

// Publish delivers ev to every subscriber. Bounded subscribers without
// buffer space lose the event.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.unbounded {
			sub.pending = append(sub.pending, ev)
			select {
			case sub.notify <- struct{}{}:
			default:
			}
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Dropped returns the number of events lost to full subscriber buffers.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

// Close closes all subscriber channels. Publish becomes a no-op.
// Unbounded subscribers still receive their queued events first.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		if sub.unbounded {
			select {
			case sub.notify <- struct{}{}:
			default:
			}
			continue
		}
		close(sub.ch)
	}
	b.subs = nil
}
