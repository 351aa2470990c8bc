package eventbus

import "sync"

// TypedBus is a type-safe publish/subscribe bus for events of type T.
// Every subscriber owns an unbounded mailbox, so Publish never blocks and
// never drops an event; a slow subscriber only delays itself.
type TypedBus[T any] struct {
	mu     sync.RWMutex
	subs   []*mailbox[T]
	closed bool
}

// NewTyped creates a new TypedBus.
func NewTyped[T any]() *TypedBus[T] { return &TypedBus[T]{} }

// Publish queues the event for all subscribers in publication order.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, m := range b.subs {
		m.push(e)
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	m := newMailbox[T]()
	b.mu.Lock()
	if b.closed {
		m.stop()
	} else {
		b.subs = append(b.subs, m)
	}
	b.mu.Unlock()
	return m.out
}

// Unsubscribe removes the subscriber and closes its channel. Events still
// queued for it are discarded.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.subs {
		if (<-chan T)(m.out) == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			m.stop()
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, m := range b.subs {
		m.stop()
	}
	b.subs = nil
	b.mu.Unlock()
}

type mailbox[T any] struct {
	out    chan T
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		out:    make(chan T),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go m.pump()
	return m
}

func (m *mailbox[T]) push(e T) {
	m.mu.Lock()
	m.queue = append(m.queue, e)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) stop() { m.once.Do(func() { close(m.done) }) }

func (m *mailbox[T]) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.notify:
				continue
			case <-m.done:
				return
			}
		}
		e := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- e:
		case <-m.done:
			return
		}
	}
}
