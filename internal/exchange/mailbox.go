package exchange

import (
	"sync"

	"github.com/jqwang/partri/internal/wire"
	"github.com/jqwang/partri/pkg/collections"
)

// Mailbox is the per-process queue from §5: many producers (one per peer
// process), one consumer (the owning process), preserving per-producer
// FIFO order. Built on the teacher's generic collections.Queue behind a
// mutex/condition-variable pair for the blocking receive the coordinator
// round loop needs.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *collections.Queue[wire.Message]
	closed bool
}

// NewMailbox creates an empty mailbox with room for capacity messages
// before the backing queue grows.
func NewMailbox(capacity int) *Mailbox {
	m := &Mailbox{q: collections.NewQueue[wire.Message](capacity)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Push enqueues msg, waking one blocked Pop.
func (m *Mailbox) Push(msg wire.Message) {
	m.mu.Lock()
	m.q.Enqueue(msg)
	m.mu.Unlock()
	m.cond.Signal()
}

// Pop blocks until a message is available or the mailbox is closed. ok is
// false only once the mailbox is closed and drained — a closed-but-
// nonempty mailbox still yields its remaining messages first.
func (m *Mailbox) Pop() (wire.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.q.IsEmpty() && !m.closed {
		m.cond.Wait()
	}
	if m.q.IsEmpty() {
		var zero wire.Message
		return zero, false
	}
	msg, _ := m.q.Dequeue()
	return msg, true
}

// Close marks the mailbox closed and wakes any blocked Pop; used for
// fatal-abort unwinding (§4.5), never for normal round termination (the
// round barrier, not mailbox closure, signals the end of a run).
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}
