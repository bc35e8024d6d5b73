package session

import "sync"

// message pairs a WebSocket message type with its payload.
type message struct {
	messageType int
	data        []byte
}

// outbox is the unbounded FIFO feeding the session's single socket
// writer. Any goroutine may Push without blocking; exactly one consumer
// drains it with Pop.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []message
	closed bool
}

func newOutbox() *outbox {
	b := &outbox{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends a message. It never blocks. It reports false once the
// outbox has been closed.
func (b *outbox) Push(messageType int, data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.items = append(b.items, message{messageType: messageType, data: data})
	b.cond.Signal()
	return true
}

// Pop removes and returns the oldest message, blocking until one is
// available. It reports false when the outbox is closed and drained.
func (b *outbox) Pop() (message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.items) == 0 {
		return message{}, false
	}

	m := b.items[0]
	b.items[0] = message{}
	b.items = b.items[1:]
	return m, true
}

// Close marks the outbox closed and wakes the consumer. Idempotent.
// Messages already queued remain poppable.
func (b *outbox) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of queued messages.
func (b *outbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
